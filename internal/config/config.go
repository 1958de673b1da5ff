package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Config holds gateway-level configuration
type Config struct {
	// Backend is the name of the signing backend to construct.
	Backend string
	// File is the parsed INI file. Backend constructors own their
	// dedicated sections and validate them at construction time.
	File *ini.File
}

// Load loads configuration from an INI file. Values may span multiple
// indented lines (Python configparser style), which is how DNS plugin
// credential blocks are written.
func Load(path string) (*Config, error) {
	cfgFile, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	return &Config{
		Backend: cfgFile.Section("gateway").Key("backend").MustString("acmesh"),
		File:    cfgFile,
	}, nil
}
