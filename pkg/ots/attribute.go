package ots

import "fmt"

// HandleType tags which OTS characteristic (or descriptor) an attribute
// read or write targets. The transport maps its own attribute handles onto
// these tags before calling into the engine.
type HandleType uint8

const (
	HandleFeature HandleType = iota + 1
	HandleObjectName
	HandleObjectType
	HandleObjectSize
	HandleFirstCreated
	HandleLastModified
	HandleObjectID
	HandleObjectProperties
	HandleOACP
	HandleOLCP
	HandleListFilter1
	HandleListFilter2
	HandleListFilter3
	HandleObjectChanged

	// Client characteristic configuration descriptors.
	HandleOACPCCCD
	HandleOLCPCCCD
	HandleObjectChangedCCCD
)

// FilterSlot returns the filter slot index addressed by h.
func (h HandleType) FilterSlot() (int, bool) {
	switch h {
	case HandleListFilter1:
		return 0, true
	case HandleListFilter2:
		return 1, true
	case HandleListFilter3:
		return 2, true
	default:
		return 0, false
	}
}

// FilterHandle returns the handle type of the given filter slot.
func FilterHandle(slot int) HandleType {
	return HandleListFilter1 + HandleType(slot)
}

// IsCCCD reports whether h addresses a configuration descriptor.
func (h HandleType) IsCCCD() bool {
	return h >= HandleOACPCCCD && h <= HandleObjectChangedCCCD
}

// IsMetadata reports whether h addresses a per-object metadata characteristic.
func (h HandleType) IsMetadata() bool {
	return h >= HandleObjectName && h <= HandleObjectProperties
}

func (h HandleType) String() string {
	switch h {
	case HandleFeature:
		return "feature"
	case HandleObjectName:
		return "object-name"
	case HandleObjectType:
		return "object-type"
	case HandleObjectSize:
		return "object-size"
	case HandleFirstCreated:
		return "first-created"
	case HandleLastModified:
		return "last-modified"
	case HandleObjectID:
		return "object-id"
	case HandleObjectProperties:
		return "object-properties"
	case HandleOACP:
		return "oacp"
	case HandleOLCP:
		return "olcp"
	case HandleListFilter1, HandleListFilter2, HandleListFilter3:
		slot, _ := h.FilterSlot()
		return fmt.Sprintf("list-filter-%d", slot+1)
	case HandleObjectChanged:
		return "object-changed"
	case HandleOACPCCCD:
		return "oacp-cccd"
	case HandleOLCPCCCD:
		return "olcp-cccd"
	case HandleObjectChangedCCCD:
		return "object-changed-cccd"
	default:
		return fmt.Sprintf("handle(%d)", uint8(h))
	}
}

// ATTError is the status returned for an attribute read or write.
type ATTError uint8

const (
	ATTSuccess                     ATTError = 0x00
	ATTReadNotPermitted            ATTError = 0x02
	ATTWriteNotPermitted           ATTError = 0x03
	ATTInvalidOffset               ATTError = 0x07
	ATTInvalidAttributeValueLength ATTError = 0x0D
	ATTUnlikelyError               ATTError = 0x0E
	ATTWriteRequestRejected        ATTError = 0x80
	ATTObjectNotSelected           ATTError = 0x81
	ATTConcurrencyLimitExceeded    ATTError = 0x82
	ATTObjectNameAlreadyExists     ATTError = 0x83
	ATTCCCDImproperlyConfigured    ATTError = 0xFD
	ATTProcedureAlreadyInProgress  ATTError = 0xFE
)

func (e ATTError) String() string {
	switch e {
	case ATTSuccess:
		return "Success"
	case ATTReadNotPermitted:
		return "ReadNotPermitted"
	case ATTWriteNotPermitted:
		return "WriteNotPermitted"
	case ATTInvalidOffset:
		return "InvalidOffset"
	case ATTInvalidAttributeValueLength:
		return "InvalidAttributeValueLength"
	case ATTUnlikelyError:
		return "UnlikelyError"
	case ATTWriteRequestRejected:
		return "WriteRequestRejected"
	case ATTObjectNotSelected:
		return "ObjectNotSelected"
	case ATTConcurrencyLimitExceeded:
		return "ConcurrencyLimitExceeded"
	case ATTObjectNameAlreadyExists:
		return "ObjectNameAlreadyExists"
	case ATTCCCDImproperlyConfigured:
		return "CCCDImproperlyConfigured"
	case ATTProcedureAlreadyInProgress:
		return "ProcedureAlreadyInProgress"
	default:
		return fmt.Sprintf("ATTError(0x%02X)", uint8(e))
	}
}

// Error lets an ATTError travel as a Go error on the client side.
func (e ATTError) Error() string {
	return "att: " + e.String()
}

// CCCD bit values written to a client characteristic configuration
// descriptor.
const (
	CCCDNotify   uint16 = 0x0001
	CCCDIndicate uint16 = 0x0002
)
