// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package sim

import (
	"fmt"

	"github.com/heistp/dualpi2/logging"
)

var logger = logging.New("sim").Sugar()

// logf logs a message.
func logf(now Clock, id nodeID, format string, a ...any) {
	logger.Debugf("%s [%d]: %s", now, id, fmt.Sprintf(format, a...))
}
