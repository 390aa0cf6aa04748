package types

// Record is an immutable snapshot of one row. Updates replace the Record
// rather than mutating it.
type Record struct {
	// ID is stable across reloads
	ID string
	// Data holds parsed values keyed by field name
	Data map[string]any
	// Raw is the payload the record was parsed from
	Raw map[string]any
	// Children holds nested records for tree grids
	Children []*Record
	// ParentID is empty for root records
	ParentID string
}

// Get returns the parsed value for a field, or nil when absent
func (r *Record) Get(field string) any {
	if r == nil || r.Data == nil {
		return nil
	}
	return r.Data[field]
}

// IsLeaf reports whether the record has no children
func (r *Record) IsLeaf() bool {
	return len(r.Children) == 0
}

// Flatten returns the record followed by all descendants in depth-first order
func (r *Record) Flatten() []*Record {
	out := []*Record{r}
	for _, c := range r.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}
