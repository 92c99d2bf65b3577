package entitlement

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Supported entitlement list formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// Load reads an entitlement list from disk. The format is picked from the
// file extension (.json, .yaml, .yml, .csv). The returned list keeps the
// file order, which is the leaf order of the tree.
func Load(path string) ([]*Entitlement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entitlements file %s: %w", path, err)
	}

	format, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}

	return Parse(data, format)
}

// Parse decodes an entitlement list in the given format and validates it.
func Parse(data []byte, format string) ([]*Entitlement, error) {
	var (
		list []*Entitlement
		err  error
	)

	switch format {
	case FormatJSON:
		list, err = parseJSON(data)
	case FormatYAML:
		list, err = parseYAML(data)
	case FormatCSV:
		list, err = parseCSV(data)
	default:
		return nil, fmt.Errorf("unsupported entitlements format %q", format)
	}
	if err != nil {
		return nil, err
	}

	if err := ValidateList(list); err != nil {
		return nil, err
	}
	return list, nil
}

// ValidateList checks every entitlement and rejects duplicate recipients,
// since claims are tracked per recipient.
func ValidateList(list []*Entitlement) error {
	if len(list) == 0 {
		return fmt.Errorf("entitlement list is empty")
	}

	seen := make(map[common.Address]int, len(list))
	for i, e := range list {
		if e == nil {
			return fmt.Errorf("entitlement %d is nil", i)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entitlement %d: %w", i, err)
		}
		if prev, ok := seen[e.Recipient]; ok {
			return fmt.Errorf("duplicate recipient %s at entries %d and %d", e.Recipient.Hex(), prev, i)
		}
		seen[e.Recipient] = i
	}
	return nil
}

// EncodeAll returns the canonical leaf bytes for every entitlement, in order
func EncodeAll(list []*Entitlement) [][]byte {
	items := make([][]byte, len(list))
	for i, e := range list {
		items[i] = e.Bytes()
	}
	return items
}

func formatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("cannot infer entitlements format from %s (expected .json, .yaml, .yml or .csv)", path)
	}
}

func parseJSON(data []byte) ([]*Entitlement, error) {
	var list []*Entitlement
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse JSON entitlements: %w", err)
	}
	return list, nil
}

func parseYAML(data []byte) ([]*Entitlement, error) {
	var raw []entitlementJSON
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML entitlements: %w", err)
	}

	list := make([]*Entitlement, 0, len(raw))
	for i, r := range raw {
		e, err := fromRaw(r)
		if err != nil {
			return nil, fmt.Errorf("entitlement %d: %w", i, err)
		}
		list = append(list, e)
	}
	return list, nil
}

func parseCSV(data []byte) ([]*Entitlement, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	list := make([]*Entitlement, 0)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV entitlements: %w", err)
		}

		// Optional header row
		if line == 1 && !common.IsHexAddress(strings.TrimSpace(record[0])) {
			continue
		}

		e, err := fromRaw(entitlementJSON{Recipient: record[0], Amount: record[1]})
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		list = append(list, e)
	}
	return list, nil
}
