package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

//go:embed catalog/default.json
var defaultCatalog []byte

// Default loads the embedded catalog of built-in AI node types.
func Default() (*Registry, error) {
	return LoadJSON(defaultCatalog)
}

// LoadFile reads a catalog file. ".toml" files are decoded as TOML, anything
// else as JSON.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return LoadTOML(data)
	}
	return LoadJSON(data)
}

// LoadJSON decodes a JSON catalog (an object mapping type id to definition),
// checks it against the catalog JSON Schema and loads it.
func LoadJSON(data []byte) (*Registry, error) {
	if result := validation.ValidateCatalogJSON(data); !result.Valid() {
		return nil, result.ToError(schema.ErrCodeDefinition)
	}

	var defs map[string]schema.NodeType
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&defs); err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "catalog is not valid JSON").WithCause(err)
	}
	return Load(defs)
}

// LoadTOML decodes a TOML catalog with one table per node type. TOML tables
// carry no key order, so configuration properties are ordered by name.
func LoadTOML(data []byte) (*Registry, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "catalog is not valid TOML").WithCause(err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "catalog cannot be converted to JSON").WithCause(err)
	}
	return LoadJSON(asJSON)
}
