// Package canid encodes and decodes the 29-bit extended CAN identifier
// used to route UAVCAN transfers (component E). Three disjoint layouts
// share the 29-bit space: broadcast messages, anonymous messages (used
// only during node-ID allocation, where source-node-id is always 0) and
// services (requests/responses).
//
// Bit layout, MSB (bit 28) to LSB (bit 0):
//
//	Message:    priority(5) | 0 (msg/svc) | reserved(2) | subject-id(13) | reserved(1) | source-node-id(7)
//	Anonymous:  priority(5) | 0 (msg/svc) | discriminator(14) | data-type-id low(2)     | source-node-id(7)=0
//	Service:    priority(5) | 1 (msg/svc) | request/response(1) | service-id(8) | destination-node-id(7) | source-node-id(7)
//
// A plain message and an anonymous message share the same msg/svc bit
// (0); they are distinguished by source-node-id: 0 means anonymous.
package canid

import "errors"

// ErrInvalidLayout describes a CAN-ID that fails every known layout's
// validity rules (reserved bits set, or source == destination on a
// service frame). Parse itself reports that case by returning false,
// not this error.
var ErrInvalidLayout = errors.New("canid: reserved bit set or invalid layout")

// Role distinguishes the three CAN-ID layouts.
type Role uint8

const (
	RoleMessage Role = iota
	RoleAnonymousMessage
	RoleService
)

const (
	maxPriority      = 0x1F // 5 bits, 0..31
	maxNodeID        = 0x7F // 7 bits, 0..127
	maxSubjectID     = 0x1FFF // 13 bits, 0..8191
	maxServiceID     = 0xFF    // 8 bits, 0..255
	maxDiscriminator = 0x3FFF  // 14 bits
	maxDataTypeLow   = 0x3     // 2 bits
)

const (
	shiftPriority = 24
	bitServiceFlag = 23
)

// MessageCANID is the broadcast-message CAN-ID layout (source-node-id
// 1..127).
type MessageCANID struct {
	Priority  uint8
	SubjectID uint16
	SourceID  uint8
}

// Encode renders m as a 29-bit identifier. Callers with SourceID == 0
// get the AnonymousMessageCANID layout instead; Encode does not enforce
// that split itself.
func (m MessageCANID) Encode() uint32 {
	return uint32(m.Priority&maxPriority)<<shiftPriority |
		uint32(m.SubjectID&maxSubjectID)<<8 |
		uint32(m.SourceID&maxNodeID)
}

// AnonymousMessageCANID is used only during dynamic node-ID allocation;
// SourceID is always 0.
type AnonymousMessageCANID struct {
	Priority      uint8
	Discriminator uint16 // 14 bits
	DataTypeLow   uint8  // low 2 bits of the allocation message's data-type-id
}

// Encode renders a as a 29-bit identifier.
func (a AnonymousMessageCANID) Encode() uint32 {
	return uint32(a.Priority&maxPriority)<<shiftPriority |
		uint32(a.Discriminator&maxDiscriminator)<<9 |
		uint32(a.DataTypeLow&maxDataTypeLow)<<7
}

// ServiceCANID is the request/response CAN-ID layout.
type ServiceCANID struct {
	Priority  uint8
	IsRequest bool
	ServiceID uint8
	DestID    uint8
	SourceID  uint8
}

// Encode renders s as a 29-bit identifier.
func (s ServiceCANID) Encode() uint32 {
	v := uint32(s.Priority&maxPriority)<<shiftPriority | 1<<bitServiceFlag
	if s.IsRequest {
		v |= 1 << 22
	}
	v |= uint32(s.ServiceID&maxServiceID) << 14
	v |= uint32(s.DestID&maxNodeID) << 7
	v |= uint32(s.SourceID & maxNodeID)
	return v
}

// CANID is the parsed, role-tagged form of a 29-bit identifier.
type CANID struct {
	Role    Role
	Message MessageCANID
	Anon    AnonymousMessageCANID
	Service ServiceCANID
}

// Parse decodes raw (only the low 29 bits are significant) into one of
// the three known layouts, re-encoding the result to confirm no reserved
// bit was set and rejecting service frames with SourceID == DestID.
// Parse returns (zero, false) on any violation; the transport must then
// silently drop the frame.
func Parse(raw uint32) (CANID, bool) {
	raw &= 0x1FFFFFFF
	priority := uint8((raw >> shiftPriority) & maxPriority)

	if raw&(1<<bitServiceFlag) != 0 {
		svc := ServiceCANID{
			Priority:  priority,
			IsRequest: raw&(1<<22) != 0,
			ServiceID: uint8((raw >> 14) & maxServiceID),
			DestID:    uint8((raw >> 7) & maxNodeID),
			SourceID:  uint8(raw & maxNodeID),
		}
		if svc.Encode() != raw {
			return CANID{}, false
		}
		if svc.SourceID == svc.DestID {
			return CANID{}, false
		}
		return CANID{Role: RoleService, Service: svc}, true
	}

	sourceID := uint8(raw & maxNodeID)
	if sourceID == 0 {
		anon := AnonymousMessageCANID{
			Priority:      priority,
			Discriminator: uint16((raw >> 9) & maxDiscriminator),
			DataTypeLow:   uint8((raw >> 7) & maxDataTypeLow),
		}
		if anon.Encode() != raw {
			return CANID{}, false
		}
		return CANID{Role: RoleAnonymousMessage, Anon: anon}, true
	}

	msg := MessageCANID{
		Priority:  priority,
		SubjectID: uint16((raw >> 8) & maxSubjectID),
		SourceID:  sourceID,
	}
	if msg.Encode() != raw {
		return CANID{}, false
	}
	return CANID{Role: RoleMessage, Message: msg}, true
}
