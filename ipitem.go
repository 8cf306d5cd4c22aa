// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/heistp/dualpi2/sim"
)

// IPItem is an Item over a serialized IPv4 packet.  The ECN codepoint is
// read from and written to the low two bits of the TOS byte, with the header
// checksum recomputed on Mark.
type IPItem struct {
	data []byte
	ip   *layers.IPv4
	enq  sim.Clock
}

// NewIPItem returns an IPItem for the given serialized IPv4 packet, or an
// error if it does not decode to IPv4.
func NewIPItem(data []byte) (*IPItem, error) {
	ip := &layers.IPv4{}
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("ipitem: decode: %w", err)
	}
	if ip.Version != 4 {
		return nil, fmt.Errorf("ipitem: not an IPv4 packet")
	}
	return &IPItem{data, ip, 0}, nil
}

// Bytes returns the serialized packet, reflecting any mark applied.
func (p *IPItem) Bytes() []byte {
	return p.data
}

// Size implements Item.
func (p *IPItem) Size() sim.Bytes {
	return sim.Bytes(len(p.data))
}

// Timestamp implements Item.
func (p *IPItem) Timestamp() sim.Clock {
	return p.enq
}

// SetTimestamp implements Item.
func (p *IPItem) SetTimestamp(t sim.Clock) {
	p.enq = t
}

// ECN implements Item.
func (p *IPItem) ECN() ECN {
	return ECN(p.ip.TOS & 0b11)
}

// Mark implements Item.
func (p *IPItem) Mark() bool {
	if p.ECN() == NotECT {
		return false
	}
	p.ip.TOS |= uint8(CE)
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	payload := gopacket.Payload(p.ip.Payload)
	if err := gopacket.SerializeLayers(buf, opts, p.ip, payload); err != nil {
		return false
	}
	p.data = buf.Bytes()
	return true
}
