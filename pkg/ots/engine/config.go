package engine

import (
	"fmt"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
)

// Default values applied by Config.applyDefaults.
const (
	DefaultCapacity          = 256
	DefaultMaxBondedSessions = 8
	DefaultObjectName        = "Untitled"
)

// DefaultProperties are given to objects created by clients when the
// configuration leaves them unset.
const DefaultProperties = ots.PropertyRead | ots.PropertyWrite | ots.PropertyDelete |
	ots.PropertyAppend | ots.PropertyTruncate | ots.PropertyPatch | ots.PropertyMark

// Config holds the server-side behavior of the engine.
type Config struct {
	// Features is the value of the OTS Feature characteristic. Procedures
	// whose feature bit is clear answer OpcodeNotSupported.
	Features ots.Features

	// DefaultProperties are assigned to objects created through OACP
	// Create and to imported objects.
	DefaultProperties ots.Properties

	// Capacity is the number of objects the store can hold, not counting
	// the directory listing object.
	Capacity int

	// MaxObjectSize bounds the allocated size of any object. 0 means no
	// limit.
	MaxObjectSize uint32

	// MaxChunkSize bounds the payload of one transfer channel chunk.
	MaxChunkSize int

	// CreatableTypes restricts OACP Create to these types. Empty means any
	// type except the directory listing type.
	CreatableTypes []ots.ObjectType

	// MaxBondedSessions is the number of bonded clients whose list view is
	// kept across disconnects.
	MaxBondedSessions int
}

// DefaultConfig returns a configuration with every feature enabled.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

// applyDefaults fills in zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Features == (ots.Features{}) {
		c.Features = ots.Features{OACP: ots.OACPFeaturesMask, OLCP: ots.OLCPFeaturesMask}
	}
	if c.DefaultProperties == 0 {
		c.DefaultProperties = DefaultProperties
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = transfer.DefaultMaxChunk
	}
	if c.MaxBondedSessions == 0 {
		c.MaxBondedSessions = DefaultMaxBondedSessions
	}
}

// validate checks the configuration after defaults are applied.
func (c *Config) validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.MaxChunkSize < 0 {
		return fmt.Errorf("max chunk size must be positive, got %d", c.MaxChunkSize)
	}
	if c.Features.OACP&^ots.OACPFeaturesMask != 0 || c.Features.OLCP&^ots.OLCPFeaturesMask != 0 {
		return fmt.Errorf("unknown feature bits in %+v", c.Features)
	}
	for _, t := range c.CreatableTypes {
		if t.Equal(ots.DirectoryListingType) {
			return fmt.Errorf("the directory listing type cannot be creatable")
		}
	}
	return nil
}

// creatable reports whether clients may create objects of type t.
func (c *Config) creatable(t ots.ObjectType) bool {
	if t.IsZero() || t.Equal(ots.DirectoryListingType) {
		return false
	}
	if len(c.CreatableTypes) == 0 {
		return true
	}
	for _, allowed := range c.CreatableTypes {
		if allowed.Equal(t) {
			return true
		}
	}
	return false
}
