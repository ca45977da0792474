// Package ots holds the protocol-level types shared by every layer of the
// Object Transfer engine: object identifiers, type tags, calendar timestamps,
// capability and feature bitmasks, and the opcode and result code enums used
// by the Object Action Control Point (OACP) and Object List Control Point
// (OLCP).
//
// The values mirror the Bluetooth Object Transfer Service definitions so they
// can be put on the wire without translation.
package ots

import "fmt"

// ObjectID is a 48-bit object identifier.
//
// Only the lower 48 bits are significant. ID 0 is reserved for the synthetic
// directory listing object, and IDs 0x01 through 0xFF are reserved by the
// protocol, so allocated IDs start at FirstObjectID.
type ObjectID uint64

const (
	// DirectoryListingID identifies the synthetic directory listing object.
	DirectoryListingID ObjectID = 0

	// FirstObjectID is the first ID handed out to a regular object.
	FirstObjectID ObjectID = 0x100

	// MaxObjectID is the largest value representable in 48 bits.
	MaxObjectID ObjectID = 1<<48 - 1
)

// Valid reports whether the ID fits in 48 bits.
func (id ObjectID) Valid() bool {
	return id <= MaxObjectID
}

// String formats the ID the way it is displayed in logs (12 hex digits).
func (id ObjectID) String() string {
	return fmt.Sprintf("0x%012X", uint64(id))
}

const (
	// MaxNameLength is the maximum object name length in bytes.
	MaxNameLength = 120

	// MaxFilters is the number of list filter slots per filtered view.
	MaxFilters = 3

	// DefaultPSM is the protocol/service multiplexer the transfer channel
	// listens on.
	DefaultPSM = 0x0025
)

// Properties is the per-object capability bitmask.
type Properties uint32

const (
	PropertyDelete   Properties = 0x00000001
	PropertyExecute  Properties = 0x00000002
	PropertyRead     Properties = 0x00000004
	PropertyWrite    Properties = 0x00000008
	PropertyAppend   Properties = 0x00000010
	PropertyTruncate Properties = 0x00000020
	PropertyPatch    Properties = 0x00000040
	PropertyMark     Properties = 0x00000080

	// PropertiesMask covers every defined property bit.
	PropertiesMask Properties = 0x000000FF
)

// Has reports whether every bit in p2 is set in p.
func (p Properties) Has(p2 Properties) bool {
	return p&p2 == p2
}

var propertyNames = []struct {
	bit  Properties
	name string
}{
	{PropertyDelete, "delete"},
	{PropertyExecute, "execute"},
	{PropertyRead, "read"},
	{PropertyWrite, "write"},
	{PropertyAppend, "append"},
	{PropertyTruncate, "truncate"},
	{PropertyPatch, "patch"},
	{PropertyMark, "mark"},
}

// ParseProperty maps a lowercase property name to its bit.
func ParseProperty(name string) (Properties, bool) {
	for _, p := range propertyNames {
		if p.name == name {
			return p.bit, true
		}
	}
	return 0, false
}

// Names returns the names of the set bits, in bit order.
func (p Properties) Names() []string {
	var names []string
	for _, pn := range propertyNames {
		if p.Has(pn.bit) {
			names = append(names, pn.name)
		}
	}
	return names
}

// OACPFeatures is the server-wide OACP feature bitmask advertised in the
// OTS Feature characteristic.
type OACPFeatures uint32

const (
	OACPFeatureCreate   OACPFeatures = 0x00000001
	OACPFeatureDelete   OACPFeatures = 0x00000002
	OACPFeatureChecksum OACPFeatures = 0x00000004
	OACPFeatureExecute  OACPFeatures = 0x00000008
	OACPFeatureRead     OACPFeatures = 0x00000010
	OACPFeatureWrite    OACPFeatures = 0x00000020
	OACPFeatureAppend   OACPFeatures = 0x00000040
	OACPFeatureTruncate OACPFeatures = 0x00000080
	OACPFeaturePatch    OACPFeatures = 0x00000100
	OACPFeatureAbort    OACPFeatures = 0x00000200

	OACPFeaturesMask OACPFeatures = 0x000003FF
)

// Has reports whether every bit in f2 is set in f.
func (f OACPFeatures) Has(f2 OACPFeatures) bool {
	return f&f2 == f2
}

var oacpFeatureNames = map[string]OACPFeatures{
	"create":   OACPFeatureCreate,
	"delete":   OACPFeatureDelete,
	"checksum": OACPFeatureChecksum,
	"execute":  OACPFeatureExecute,
	"read":     OACPFeatureRead,
	"write":    OACPFeatureWrite,
	"append":   OACPFeatureAppend,
	"truncate": OACPFeatureTruncate,
	"patch":    OACPFeaturePatch,
	"abort":    OACPFeatureAbort,
}

// ParseOACPFeature maps a lowercase feature name to its bit.
func ParseOACPFeature(name string) (OACPFeatures, bool) {
	f, ok := oacpFeatureNames[name]
	return f, ok
}

// OLCPFeatures is the server-wide OLCP feature bitmask.
type OLCPFeatures uint32

const (
	OLCPFeatureGoTo                   OLCPFeatures = 0x00000001
	OLCPFeatureOrder                  OLCPFeatures = 0x00000002
	OLCPFeatureRequestNumberOfObjects OLCPFeatures = 0x00000004
	OLCPFeatureClearMarking           OLCPFeatures = 0x00000008

	OLCPFeaturesMask OLCPFeatures = 0x0000000F
)

// Has reports whether every bit in f2 is set in f.
func (f OLCPFeatures) Has(f2 OLCPFeatures) bool {
	return f&f2 == f2
}

var olcpFeatureNames = map[string]OLCPFeatures{
	"goto":                      OLCPFeatureGoTo,
	"order":                     OLCPFeatureOrder,
	"request_number_of_objects": OLCPFeatureRequestNumberOfObjects,
	"clear_marking":             OLCPFeatureClearMarking,
}

// ParseOLCPFeature maps a lowercase feature name to its bit.
func ParseOLCPFeature(name string) (OLCPFeatures, bool) {
	f, ok := olcpFeatureNames[name]
	return f, ok
}

// Features is the value of the OTS Feature characteristic.
type Features struct {
	OACP OACPFeatures
	OLCP OLCPFeatures
}

// ChangeFlags describe what changed in an Object Changed indication.
type ChangeFlags uint8

const (
	// ChangeSourceClient is set when the change was made by a client rather
	// than by the server itself.
	ChangeSourceClient ChangeFlags = 0x01
	ChangeContents     ChangeFlags = 0x02
	ChangeMetadata     ChangeFlags = 0x04
	ChangeCreation     ChangeFlags = 0x08
	ChangeDeletion     ChangeFlags = 0x10
)

// WriteMode is the mode byte of an OACP Write request.
type WriteMode uint8

const (
	WriteModeNone     WriteMode = 0x00
	WriteModeTruncate WriteMode = 0x01
)
