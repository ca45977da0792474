package codec

import (
	"github.com/marmos91/dittoots/pkg/ots"
)

// ============================================================================
// OACP
// ============================================================================

// OACPRequest is a decoded write to the Object Action Control Point.
// Only the fields used by Opcode are meaningful.
type OACPRequest struct {
	Opcode ots.OACPOpcode

	// Create
	Size uint32
	Type ots.ObjectType

	// Checksum, Read, Write
	Offset uint32
	Length uint32

	// Write
	Mode ots.WriteMode

	// Execute
	Params []byte
}

// EncodeOACPRequest encodes an OACP request.
func EncodeOACPRequest(req OACPRequest) []byte {
	b := []byte{byte(req.Opcode)}
	switch req.Opcode {
	case ots.OACPCreate:
		b = appendUint32(b, req.Size)
		b = appendType(b, req.Type)
	case ots.OACPCalcChecksum, ots.OACPRead:
		b = appendUint32(b, req.Offset)
		b = appendUint32(b, req.Length)
	case ots.OACPWrite:
		b = appendUint32(b, req.Offset)
		b = appendUint32(b, req.Length)
		b = append(b, byte(req.Mode))
	case ots.OACPExecute:
		b = append(b, req.Params...)
	}
	return b
}

// DecodeOACPRequest decodes an OACP request. Unknown opcodes decode
// successfully (with their raw parameters) so the engine can answer them
// with OpcodeNotSupported.
func DecodeOACPRequest(b []byte) (OACPRequest, error) {
	if len(b) == 0 {
		return OACPRequest{}, malformed("empty OACP request")
	}

	r := newReader(b)
	req := OACPRequest{Opcode: ots.OACPOpcode(r.u8())}

	switch req.Opcode {
	case ots.OACPCreate:
		req.Size = r.u32()
		req.Type = r.objectType(r.remaining())
	case ots.OACPCalcChecksum, ots.OACPRead:
		req.Offset = r.u32()
		req.Length = r.u32()
	case ots.OACPWrite:
		req.Offset = r.u32()
		req.Length = r.u32()
		req.Mode = ots.WriteMode(r.u8())
	case ots.OACPDelete, ots.OACPAbort:
	default:
		req.Params = append([]byte(nil), r.take(r.remaining())...)
	}

	if err := r.done(); err != nil {
		return OACPRequest{}, err
	}
	return req, nil
}

// OACPResponse is the OACP response indication.
type OACPResponse struct {
	RequestOpcode ots.OACPOpcode
	Result        ots.OACPResult

	// Checksum is present for a successful CalcChecksum
	Checksum    uint32
	HasChecksum bool
}

// EncodeOACPResponse encodes an OACP response indication.
func EncodeOACPResponse(resp OACPResponse) []byte {
	b := []byte{byte(ots.OACPResponseCode), byte(resp.RequestOpcode), byte(resp.Result)}
	if resp.HasChecksum {
		b = appendUint32(b, resp.Checksum)
	}
	return b
}

// DecodeOACPResponse decodes an OACP response indication.
func DecodeOACPResponse(b []byte) (OACPResponse, error) {
	r := newReader(b)
	if op := ots.OACPOpcode(r.u8()); r.err == nil && op != ots.OACPResponseCode {
		return OACPResponse{}, malformed("not an OACP response (opcode 0x%02X)", uint8(op))
	}
	resp := OACPResponse{
		RequestOpcode: ots.OACPOpcode(r.u8()),
		Result:        ots.OACPResult(r.u8()),
	}
	if r.err == nil && r.remaining() == 4 {
		resp.Checksum = r.u32()
		resp.HasChecksum = true
	}
	if err := r.done(); err != nil {
		return OACPResponse{}, err
	}
	return resp, nil
}

// ============================================================================
// OLCP
// ============================================================================

// OLCPRequest is a decoded write to the Object List Control Point.
type OLCPRequest struct {
	Opcode ots.OLCPOpcode

	// GoTo
	ID ots.ObjectID

	// Order
	Order ots.SortOrder
}

// EncodeOLCPRequest encodes an OLCP request.
func EncodeOLCPRequest(req OLCPRequest) []byte {
	b := []byte{byte(req.Opcode)}
	switch req.Opcode {
	case ots.OLCPGoTo:
		b = appendUint48(b, req.ID)
	case ots.OLCPOrder:
		b = append(b, byte(req.Order))
	}
	return b
}

// DecodeOLCPRequest decodes an OLCP request. Unknown opcodes decode with
// their parameters dropped.
func DecodeOLCPRequest(b []byte) (OLCPRequest, error) {
	if len(b) == 0 {
		return OLCPRequest{}, malformed("empty OLCP request")
	}

	r := newReader(b)
	req := OLCPRequest{Opcode: ots.OLCPOpcode(r.u8())}

	switch req.Opcode {
	case ots.OLCPGoTo:
		req.ID = r.u48()
	case ots.OLCPOrder:
		req.Order = ots.SortOrder(r.u8())
	case ots.OLCPFirst, ots.OLCPLast, ots.OLCPPrevious, ots.OLCPNext,
		ots.OLCPRequestNumberOfObjects, ots.OLCPClearMarking:
	default:
		return req, nil
	}

	if err := r.done(); err != nil {
		return OLCPRequest{}, err
	}
	return req, nil
}

// OLCPResponse is the OLCP response indication.
type OLCPResponse struct {
	RequestOpcode ots.OLCPOpcode
	Result        ots.OLCPResult

	// Count is present for a successful RequestNumberOfObjects
	Count    uint32
	HasCount bool
}

// EncodeOLCPResponse encodes an OLCP response indication.
func EncodeOLCPResponse(resp OLCPResponse) []byte {
	b := []byte{byte(ots.OLCPResponseCode), byte(resp.RequestOpcode), byte(resp.Result)}
	if resp.HasCount {
		b = appendUint32(b, resp.Count)
	}
	return b
}

// DecodeOLCPResponse decodes an OLCP response indication.
func DecodeOLCPResponse(b []byte) (OLCPResponse, error) {
	r := newReader(b)
	if op := ots.OLCPOpcode(r.u8()); r.err == nil && op != ots.OLCPResponseCode {
		return OLCPResponse{}, malformed("not an OLCP response (opcode 0x%02X)", uint8(op))
	}
	resp := OLCPResponse{
		RequestOpcode: ots.OLCPOpcode(r.u8()),
		Result:        ots.OLCPResult(r.u8()),
	}
	if r.err == nil && r.remaining() == 4 {
		resp.Count = r.u32()
		resp.HasCount = true
	}
	if err := r.done(); err != nil {
		return OLCPResponse{}, err
	}
	return resp, nil
}

// ============================================================================
// Object Changed
// ============================================================================

// ObjectChanged is the Object Changed indication.
type ObjectChanged struct {
	Flags ots.ChangeFlags
	ID    ots.ObjectID
}

// EncodeObjectChanged encodes an Object Changed indication.
func EncodeObjectChanged(c ObjectChanged) []byte {
	return appendUint48([]byte{byte(c.Flags)}, c.ID)
}

// DecodeObjectChanged decodes an Object Changed indication.
func DecodeObjectChanged(b []byte) (ObjectChanged, error) {
	r := newReader(b)
	c := ObjectChanged{Flags: ots.ChangeFlags(r.u8()), ID: r.u48()}
	return c, r.done()
}

// ============================================================================
// CCCD
// ============================================================================

// EncodeCCCD encodes a client characteristic configuration value.
func EncodeCCCD(v uint16) []byte {
	return appendUint16(make([]byte, 0, 2), v)
}

// DecodeCCCD decodes a client characteristic configuration value.
func DecodeCCCD(b []byte) (uint16, error) {
	r := newReader(b)
	v := r.u16()
	return v, r.done()
}
