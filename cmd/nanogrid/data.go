package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nanogrid/nanogrid/store"
	"github.com/arthur-debert/nanogrid/types"
)

// dataset is the data file format: field declarations plus raw records.
// Records may nest children under "children" for tree grids.
type dataset struct {
	Fields  []types.FieldConfig `json:"fields" yaml:"fields"`
	Records []map[string]any    `json:"records" yaml:"records"`
}

// loadDataset reads a JSON or YAML data file, chosen by extension
func loadDataset(path string) (*dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &ds)
	default:
		err = json.Unmarshal(data, &ds)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(ds.Fields) == 0 {
		return nil, fmt.Errorf("%s declares no fields", path)
	}
	return &ds, nil
}

// openStore loads the configured data file into a store
func (cli *CLI) openStore() (*store.Store, error) {
	path := cli.v.GetString("data")
	if path == "" {
		return nil, NewConfigError("load data", "no data file given",
			"Pass --data <file> or set NANOGRID_DATA", CommonSuggestions.RunHelp)
	}
	ds, err := loadDataset(path)
	if err != nil {
		return nil, NewDataError(path, err)
	}
	s, err := store.New(store.Config{Fields: ds.Fields, Data: ds.Records})
	if err != nil {
		return nil, NewDataError(path, err)
	}
	cli.logger.Debug("data loaded", "path", path, "records", len(s.AllRecords()))
	return s, nil
}
