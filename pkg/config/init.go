package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// configHeader is written above the generated YAML.
const configHeader = `# DittoOTS Configuration File
#
# Every value below is a default. Delete what you do not need to change.
# Any scalar can be overridden from the environment with the DITTOOTS_
# prefix, e.g. DITTOOTS_LOGGING_LEVEL=DEBUG or DITTOOTS_ADAPTERS_TCP_PORT=7000.
#
# Stores: content.type selects filesystem, memory or s3 and catalog.type
# selects badger, leveldb or memory. Only the section named by the type is
# read.
#
# Features: ots.oacp_features and ots.olcp_features list the procedures
# clients may use. An empty list enables every procedure.

`

// InitConfig writes a default configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists and force is false, or on write failure
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML below the explanatory
// header.
func generateYAMLWithComments(cfg *Config) (string, error) {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	var b strings.Builder
	b.WriteString(configHeader)
	b.Write(body)
	return b.String(), nil
}
