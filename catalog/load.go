package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the catalog file at path and atomizes it into a Catalog.
// JSON is the canonical format (spec.md §6); a ".yaml"/".yml" extension
// selects the YAML decoder instead, grounded on kamusis-axon-cli's use of
// gopkg.in/yaml.v3 for on-disk config/records in the pack.
//
// Malformed individual records are logged and skipped — a tolerant,
// partial-success model grounded on the original implementation's
// atomize_tools, which skips malformed MCP tool definitions rather than
// failing the whole batch. If every record fails to parse, Load returns
// an error.
func Load(logger *slog.Logger, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	raws, err := decodeRecords(path, data)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}

	tools := make([]Tool, 0, len(raws))
	for i, raw := range raws {
		t, err := atomize(raw)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping malformed catalog record", "index", i, "error", err)
			}
			continue
		}
		tools = append(tools, t)
	}

	if len(tools) == 0 && len(raws) > 0 {
		return nil, fmt.Errorf("catalog: all %d records in %s failed to parse", len(raws), path)
	}

	return New(tools)
}

func decodeRecords(path string, data []byte) ([]map[string]any, error) {
	var raws []map[string]any

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
	}
	return raws, nil
}

func atomize(raw map[string]any) (Tool, error) {
	name, _ := raw["name"].(string)
	if name == "" {
		return Tool{}, fmt.Errorf("record missing non-empty %q", "name")
	}
	desc, _ := raw["description"].(string)
	category, _ := raw["category"].(string)

	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "name", "description", "category":
			continue
		default:
			extra[k] = v
		}
	}

	return Tool{
		Name:        name,
		Description: desc,
		Category:    category,
		Extra:       extra,
	}, nil
}
