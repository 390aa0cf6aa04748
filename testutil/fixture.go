package testutil

import (
	_ "embed"
	"encoding/json"
	"testing"

	"github.com/arthur-debert/nanogrid/nanogrid/store"
	"github.com/arthur-debert/nanogrid/types"
)

//go:embed testdata/orders.json
var ordersJSON []byte

// Dataset is the shape of the fixture files and of the data files read by
// the command line
type Dataset struct {
	Fields  []types.FieldConfig `json:"fields" yaml:"fields"`
	Records []map[string]any    `json:"records" yaml:"records"`
}

// OrdersData provides typed access to the orders fixture
type OrdersData struct {
	Dataset

	// Open orders
	AcmeEast  *types.Record // o1: priority 5, tags urgent+wholesale, rush
	DuneNorth *types.Record // o4: priority 3, tags urgent, rush
	AcmeWest  *types.Record // o7: priority 2, no tags

	// Closed orders
	BirchWest *types.Record // o2: priority 4, tags wholesale
	EmberEast *types.Record // o5: priority 2, tags gift

	// Pending orders
	CobaltEast *types.Record // o3: priority 1, empty tags
	FjordWest  *types.Record // o6: priority 4, tags gift+urgent

	// Blank status
	GroveNorth *types.Record // o8: priority 5, tags wholesale

	ByID map[string]*types.Record
}

// Regions lists the distinct regions of the orders fixture
var Regions = []string{"east", "north", "west"}

// LoadOrdersData parses the orders fixture
func LoadOrdersData(t testing.TB) Dataset {
	t.Helper()
	var ds Dataset
	if err := json.Unmarshal(ordersJSON, &ds); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return ds
}

// LoadOrders returns a store holding the orders fixture as a flat list
func LoadOrders(t testing.TB, opts ...store.Option) (*store.Store, *OrdersData) {
	t.Helper()
	ds := LoadOrdersData(t)
	s, err := store.New(store.Config{Fields: ds.Fields, Data: ds.Records}, opts...)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s, newOrdersData(t, s, ds)
}

// LoadOrderTree returns a store holding the orders nested under one parent
// record per region. Parents have ids "region-<name>" and only a region
// value.
func LoadOrderTree(t testing.TB, opts ...store.Option) (*store.Store, *OrdersData) {
	t.Helper()
	ds := LoadOrdersData(t)

	var roots []map[string]any
	for _, region := range Regions {
		var children []any
		for _, r := range ds.Records {
			if r["region"] == region {
				children = append(children, r)
			}
		}
		roots = append(roots, map[string]any{
			"id":       "region-" + region,
			"region":   region,
			"children": children,
		})
	}

	s, err := store.New(store.Config{Fields: ds.Fields, Data: roots}, opts...)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s, newOrdersData(t, s, ds)
}

func newOrdersData(t testing.TB, s *store.Store, ds Dataset) *OrdersData {
	t.Helper()
	data := &OrdersData{Dataset: ds, ByID: make(map[string]*types.Record)}
	for _, raw := range ds.Records {
		id, _ := raw["id"].(string)
		r, ok := s.GetByID(id)
		if !ok {
			t.Fatalf("fixture record %q not loaded", id)
		}
		data.ByID[id] = r
	}

	data.AcmeEast = data.ByID["o1"]
	data.BirchWest = data.ByID["o2"]
	data.CobaltEast = data.ByID["o3"]
	data.DuneNorth = data.ByID["o4"]
	data.EmberEast = data.ByID["o5"]
	data.FjordWest = data.ByID["o6"]
	data.AcmeWest = data.ByID["o7"]
	data.GroveNorth = data.ByID["o8"]
	return data
}

// IDs returns the ids of records in order
func IDs(records []*types.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
