// Package parser reads declarative widget definitions from YAML (or JSON)
// files and keeps them current as the files change.
package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoName is returned for definitions without a name.
var ErrNoName = errors.New("definition has no name")

// Definition is the declarative input of one widget. Sources and Map are
// kept as decoded so their type contract is checked when a widget uses them.
type Definition struct {
	Name          string  `yaml:"name" json:"name"`
	DefaultSource string  `yaml:"defaultSource" json:"defaultSource"`
	Alt           *string `yaml:"alt,omitempty" json:"alt,omitempty"`
	Sources       any     `yaml:"sources" json:"sources"`
	Map           any     `yaml:"map,omitempty" json:"map,omitempty"`
	Path          string  `yaml:"-" json:"path,omitempty"`
}

// IsDefinitionFile reports whether path has a definition file extension.
func IsDefinitionFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// ParseDefinition parses a definition file. A definition without a name is
// named after its file.
func ParseDefinition(filePath string) (*Definition, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	def, err := ParseDefinitionFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	def.Path = filePath
	return def, nil
}

// ParseDefinitionFromReader parses a definition from an io.Reader.
func ParseDefinitionFromReader(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if def.Sources == nil {
		def.Sources = []any{}
	}
	return &def, nil
}
