package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "capacity out of range",
			mutate:  func(c *Config) { c.OTS.Capacity = 70000 },
			wantErr: "Capacity",
		},
		{
			name:    "unknown property",
			mutate:  func(c *Config) { c.OTS.DefaultProperties = []string{"read", "fly"} },
			wantErr: "DefaultProperties",
		},
		{
			name:    "malformed creatable type",
			mutate:  func(c *Config) { c.OTS.CreatableTypes = []string{"0xZZ"} },
			wantErr: "objecttype",
		},
		{
			name:    "directory listing creatable",
			mutate:  func(c *Config) { c.OTS.CreatableTypes = []string{"0x2acb"} },
			wantErr: "directory listing",
		},
		{
			name:    "no adapters",
			mutate:  func(c *Config) { c.Adapters.TCP.Enabled = false },
			wantErr: "at least one adapter",
		},
		{
			name:    "bad gc schedule",
			mutate:  func(c *Config) { c.GC.Schedule = "whenever" },
			wantErr: "gc.schedule",
		},
		{
			name:   "gc disabled ignores schedule",
			mutate: func(c *Config) { c.GC.Enabled = false; c.GC.Schedule = "whenever" },
		},
		{
			name: "importer directory type",
			mutate: func(c *Config) {
				c.Importer.Enabled = true
				c.Importer.DefaultType = "0x2ACB"
			},
			wantErr: "importer.default_type",
		},
		{
			name: "metrics port collides",
			mutate: func(c *Config) {
				c.Server.Metrics.Enabled = true
				c.Server.Metrics.Port = c.Adapters.TCP.Port
			},
			wantErr: "collides",
		},
		{
			name: "object larger than memory store",
			mutate: func(c *Config) {
				c.Content.Type = "memory"
				c.Content.Memory["max_size_bytes"] = 1024
				c.OTS.MaxObjectSize = 4096
			},
			wantErr: "max_object_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
