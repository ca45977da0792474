package ots

import "fmt"

// ============================================================================
// OACP
// ============================================================================

// OACPOpcode identifies an Object Action Control Point procedure.
type OACPOpcode uint8

const (
	OACPCreate       OACPOpcode = 0x01
	OACPDelete       OACPOpcode = 0x02
	OACPCalcChecksum OACPOpcode = 0x03
	OACPExecute      OACPOpcode = 0x04
	OACPRead         OACPOpcode = 0x05
	OACPWrite        OACPOpcode = 0x06
	OACPAbort        OACPOpcode = 0x07

	// OACPResponseCode is the opcode of every OACP response indication.
	OACPResponseCode OACPOpcode = 0x60
)

func (op OACPOpcode) String() string {
	switch op {
	case OACPCreate:
		return "CREATE"
	case OACPDelete:
		return "DELETE"
	case OACPCalcChecksum:
		return "CALC_CHECKSUM"
	case OACPExecute:
		return "EXECUTE"
	case OACPRead:
		return "READ"
	case OACPWrite:
		return "WRITE"
	case OACPAbort:
		return "ABORT"
	case OACPResponseCode:
		return "RESPONSE"
	default:
		return fmt.Sprintf("OACP(0x%02X)", uint8(op))
	}
}

// OACPResult is the result code carried in an OACP response.
type OACPResult uint8

const (
	OACPSuccess               OACPResult = 0x01
	OACPOpcodeNotSupported    OACPResult = 0x02
	OACPInvalidParameter      OACPResult = 0x03
	OACPInsufficientResources OACPResult = 0x04
	OACPInvalidObject         OACPResult = 0x05
	OACPChannelUnavailable    OACPResult = 0x06
	OACPUnsupportedType       OACPResult = 0x07
	OACPProcedureNotPermitted OACPResult = 0x08
	OACPObjectLocked          OACPResult = 0x09
	OACPOperationFailed       OACPResult = 0x0A
)

func (r OACPResult) String() string {
	switch r {
	case OACPSuccess:
		return "Success"
	case OACPOpcodeNotSupported:
		return "OpcodeNotSupported"
	case OACPInvalidParameter:
		return "InvalidParameter"
	case OACPInsufficientResources:
		return "InsufficientResources"
	case OACPInvalidObject:
		return "InvalidObject"
	case OACPChannelUnavailable:
		return "ChannelUnavailable"
	case OACPUnsupportedType:
		return "UnsupportedType"
	case OACPProcedureNotPermitted:
		return "ProcedureNotPermitted"
	case OACPObjectLocked:
		return "ObjectLocked"
	case OACPOperationFailed:
		return "OperationFailed"
	default:
		return fmt.Sprintf("OACPResult(0x%02X)", uint8(r))
	}
}

// ============================================================================
// OLCP
// ============================================================================

// OLCPOpcode identifies an Object List Control Point procedure.
type OLCPOpcode uint8

const (
	OLCPFirst                  OLCPOpcode = 0x01
	OLCPLast                   OLCPOpcode = 0x02
	OLCPPrevious               OLCPOpcode = 0x03
	OLCPNext                   OLCPOpcode = 0x04
	OLCPGoTo                   OLCPOpcode = 0x05
	OLCPOrder                  OLCPOpcode = 0x06
	OLCPRequestNumberOfObjects OLCPOpcode = 0x07
	OLCPClearMarking           OLCPOpcode = 0x08

	// OLCPResponseCode is the opcode of every OLCP response indication.
	OLCPResponseCode OLCPOpcode = 0x70
)

func (op OLCPOpcode) String() string {
	switch op {
	case OLCPFirst:
		return "FIRST"
	case OLCPLast:
		return "LAST"
	case OLCPPrevious:
		return "PREVIOUS"
	case OLCPNext:
		return "NEXT"
	case OLCPGoTo:
		return "GOTO"
	case OLCPOrder:
		return "ORDER"
	case OLCPRequestNumberOfObjects:
		return "REQUEST_NUMBER_OF_OBJECTS"
	case OLCPClearMarking:
		return "CLEAR_MARKING"
	case OLCPResponseCode:
		return "RESPONSE"
	default:
		return fmt.Sprintf("OLCP(0x%02X)", uint8(op))
	}
}

// OLCPResult is the result code carried in an OLCP response.
type OLCPResult uint8

const (
	OLCPSuccess            OLCPResult = 0x01
	OLCPOpcodeNotSupported OLCPResult = 0x02
	OLCPInvalidParameter   OLCPResult = 0x03
	OLCPOperationFailed    OLCPResult = 0x04
	OLCPOutOfBounds        OLCPResult = 0x05
	OLCPTooManyObjects     OLCPResult = 0x06
	OLCPNoObject           OLCPResult = 0x07
	OLCPObjectIDNotFound   OLCPResult = 0x08
)

func (r OLCPResult) String() string {
	switch r {
	case OLCPSuccess:
		return "Success"
	case OLCPOpcodeNotSupported:
		return "OpcodeNotSupported"
	case OLCPInvalidParameter:
		return "InvalidParameter"
	case OLCPOperationFailed:
		return "OperationFailed"
	case OLCPOutOfBounds:
		return "OutOfBounds"
	case OLCPTooManyObjects:
		return "TooManyObjects"
	case OLCPNoObject:
		return "NoObject"
	case OLCPObjectIDNotFound:
		return "ObjectIDNotFound"
	default:
		return fmt.Sprintf("OLCPResult(0x%02X)", uint8(r))
	}
}

// SortOrder is the key passed to the OLCP Order procedure.
type SortOrder uint8

const (
	// SortNone means no sort order has been requested.
	SortNone SortOrder = 0x00

	SortNameAscending         SortOrder = 0x01
	SortTypeAscending         SortOrder = 0x02
	SortCurrentSizeAscending  SortOrder = 0x03
	SortFirstCreatedAscending SortOrder = 0x04
	SortLastModifiedAscending SortOrder = 0x05

	SortNameDescending         SortOrder = 0x11
	SortTypeDescending         SortOrder = 0x12
	SortCurrentSizeDescending  SortOrder = 0x13
	SortFirstCreatedDescending SortOrder = 0x14
	SortLastModifiedDescending SortOrder = 0x15
)

// Valid reports whether o is one of the ten defined sort keys.
func (o SortOrder) Valid() bool {
	key := o &^ 0x10
	return (o&0xE0) == 0 && key >= 0x01 && key <= 0x05
}

// Descending reports whether the order is one of the descending keys.
func (o SortOrder) Descending() bool {
	return o&0x10 != 0
}

// Key returns the ascending variant of the order.
func (o SortOrder) Key() SortOrder {
	return o &^ 0x10
}

func (o SortOrder) String() string {
	if o == SortNone {
		return "none"
	}
	if !o.Valid() {
		return fmt.Sprintf("order(0x%02X)", uint8(o))
	}
	keys := [...]string{"", "name", "type", "current-size", "first-created", "last-modified"}
	if o.Descending() {
		return keys[o.Key()] + "-desc"
	}
	return keys[o.Key()] + "-asc"
}

// ============================================================================
// List filters
// ============================================================================

// FilterType is the first byte of a List Filter characteristic value.
type FilterType uint8

const (
	FilterNone                 FilterType = 0x00
	FilterNameStartsWith       FilterType = 0x01
	FilterNameEndsWith         FilterType = 0x02
	FilterNameContains         FilterType = 0x03
	FilterNameIsExactly        FilterType = 0x04
	FilterObjectType           FilterType = 0x05
	FilterCreatedBetween       FilterType = 0x06
	FilterModifiedBetween      FilterType = 0x07
	FilterCurrentSizeBetween   FilterType = 0x08
	FilterAllocatedSizeBetween FilterType = 0x09
	FilterMarkedObjects        FilterType = 0x0A
)

// Valid reports whether t is a defined filter type.
func (t FilterType) Valid() bool {
	return t <= FilterMarkedObjects
}

// IsName reports whether t is one of the four name predicates.
func (t FilterType) IsName() bool {
	return t >= FilterNameStartsWith && t <= FilterNameIsExactly
}

func (t FilterType) String() string {
	switch t {
	case FilterNone:
		return "none"
	case FilterNameStartsWith:
		return "name-starts-with"
	case FilterNameEndsWith:
		return "name-ends-with"
	case FilterNameContains:
		return "name-contains"
	case FilterNameIsExactly:
		return "name-is-exactly"
	case FilterObjectType:
		return "object-type"
	case FilterCreatedBetween:
		return "created-between"
	case FilterModifiedBetween:
		return "modified-between"
	case FilterCurrentSizeBetween:
		return "current-size-between"
	case FilterAllocatedSizeBetween:
		return "allocated-size-between"
	case FilterMarkedObjects:
		return "marked-objects"
	default:
		return fmt.Sprintf("filter(0x%02X)", uint8(t))
	}
}
