package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/claims-recal/internal/engine"
)

// LoadClaimsFile reads claim snapshots from a JSON or YAML document,
// chosen by file extension. Used for offline CLI runs and fixtures.
func LoadClaimsFile(path string) ([]engine.ClaimRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read claims file: %w", err)
	}

	var claims []engine.ClaimRecord
	if err := unmarshalByExt(path, data, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims file %s: %w", path, err)
	}
	return claims, nil
}

// LoadWeightTableFile reads and validates a weight table from a JSON or
// YAML document.
func LoadWeightTableFile(path string) (engine.WeightTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weight table file: %w", err)
	}

	var table engine.WeightTable
	if err := unmarshalByExt(path, data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse weight table file %s: %w", path, err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadWeightVectorFile reads a factor->weight mapping from a JSON or
// YAML document.
func LoadWeightVectorFile(path string) (engine.WeightVector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weight vector file: %w", err)
	}

	var vector engine.WeightVector
	if err := unmarshalByExt(path, data, &vector); err != nil {
		return nil, fmt.Errorf("failed to parse weight vector file %s: %w", path, err)
	}
	return vector, nil
}

// unmarshalByExt decodes YAML for .yaml/.yml files and JSON otherwise.
func unmarshalByExt(path string, data []byte, v interface{}) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}
