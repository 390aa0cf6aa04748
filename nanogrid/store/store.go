// Package store holds a grid's records together with the active filter.
// Records are always the subset of AllRecords passing the filter; loads
// replace the record set wholesale.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
	"github.com/arthur-debert/nanogrid/nanogrid/task"
	"github.com/arthur-debert/nanogrid/types"
	"github.com/google/uuid"
)

var (
	// ErrDuplicateID is returned when a load contains the same record id twice
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrInvalidRecord is returned when a raw record cannot be parsed
	ErrInvalidRecord = errors.New("invalid record")
)

// Loader fetches raw records for LoadDataAsync
type Loader func(ctx context.Context) ([]map[string]any, error)

// Config declares a store
type Config struct {
	Fields []types.FieldConfig
	// IDField names the raw key holding record ids; defaults to "id"
	IDField string
	// ChildrenField names the raw key holding nested records; defaults to
	// "children"
	ChildrenField string
	// Filter is applied from the start
	Filter filter.Filter
	// Data is loaded at construction
	Data []map[string]any
}

// Option customizes a Store
type Option func(*Store)

// WithTimeFunc sets the clock used for LastUpdated
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Store) {
		s.timeFunc = fn
	}
}

// WithIDFunc sets the generator for records loaded without an id
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// Store is a filtered record collection. All mutation goes through its
// methods; change notifications are delivered after locks are released on
// the mutating goroutine.
type Store struct {
	fields        *types.FieldSet
	idField       string
	childrenField string
	timeFunc      func() time.Time
	newID         func() string

	locks       *LockManager
	roots       []*types.Record
	all         []*types.Record
	byID        map[string]*types.Record
	records     []*types.Record
	filter      filter.Filter
	lastUpdated int64

	filterSig  reactive.Signal
	updatesSig reactive.Signal
	recordsSig reactive.Signal

	loadModel *task.Compound
	loadSeq   atomic.Int64
}

// New creates a store from cfg
func New(cfg Config, opts ...Option) (*Store, error) {
	fields, err := types.FieldSetFromConfigs(cfg.Fields)
	if err != nil {
		return nil, err
	}
	s := &Store{
		fields:        fields,
		idField:       cfg.IDField,
		childrenField: cfg.ChildrenField,
		timeFunc:      time.Now,
		newID:         uuid.NewString,
		locks:         NewLockManager(),
		byID:          map[string]*types.Record{},
		loadModel:     task.TrackLast("Loading"),
	}
	if s.idField == "" {
		s.idField = "id"
	}
	if s.childrenField == "" {
		s.childrenField = "children"
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Filter != nil {
		if err := filter.Validate(cfg.Filter, s); err != nil {
			return nil, err
		}
		s.filter = cfg.Filter
	}
	if cfg.Data != nil {
		if err := s.LoadData(cfg.Data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GetField returns a field by name. Store satisfies filter.FieldLookup.
func (s *Store) GetField(name string) (types.Field, bool) {
	return s.fields.Get(name)
}

// Fields returns the store's fields in declaration order
func (s *Store) Fields() []types.Field {
	return s.fields.All()
}

// FieldNames returns the names of the store's fields
func (s *Store) FieldNames() []string {
	return s.fields.Names()
}

// FieldSet returns the store's field collection
func (s *Store) FieldSet() *types.FieldSet {
	return s.fields
}

// AllRecords returns every record, children included, ignoring the filter
func (s *Store) AllRecords() []*types.Record {
	return read(s.locks, func() []*types.Record { return clone(s.all) })
}

// RootRecords returns the top-level records, ignoring the filter
func (s *Store) RootRecords() []*types.Record {
	return read(s.locks, func() []*types.Record { return clone(s.roots) })
}

// LeafRecords returns the records without children, ignoring the filter
func (s *Store) LeafRecords() []*types.Record {
	return read(s.locks, func() []*types.Record {
		out := make([]*types.Record, 0, len(s.all))
		for _, r := range s.all {
			if r.IsLeaf() {
				out = append(out, r)
			}
		}
		return out
	})
}

// Records returns the records passing the current filter
func (s *Store) Records() []*types.Record {
	return read(s.locks, func() []*types.Record { return clone(s.records) })
}

// GetByID returns a record from AllRecords
func (s *Store) GetByID(id string) (*types.Record, bool) {
	var (
		r  *types.Record
		ok bool
	)
	_ = s.locks.Execute(ReadOperation, func() error {
		r, ok = s.byID[id]
		return nil
	})
	return r, ok
}

// Count returns the number of records passing the filter
func (s *Store) Count() int {
	return read(s.locks, func() int { return len(s.records) })
}

// Empty reports whether the store holds no records at all
func (s *Store) Empty() bool {
	return read(s.locks, func() bool { return len(s.all) == 0 })
}

// Filter returns the active filter, nil when unfiltered
func (s *Store) Filter() filter.Filter {
	return read(s.locks, func() filter.Filter { return s.filter })
}

// LastUpdated returns the time of the last load in Unix milliseconds.
// It increases strictly with every load.
func (s *Store) LastUpdated() int64 {
	return read(s.locks, func() int64 { return s.lastUpdated })
}

// LoadModel tracks LoadDataAsync calls. Only the latest load is tracked.
func (s *Store) LoadModel() *task.Compound {
	return s.loadModel
}

// FilterChanges notifies after the filter changes
func (s *Store) FilterChanges() reactive.Source {
	return &s.filterSig
}

// Updates notifies after every load, when LastUpdated changes
func (s *Store) Updates() reactive.Source {
	return &s.updatesSig
}

// RecordsChanges notifies whenever Records may have changed
func (s *Store) RecordsChanges() reactive.Source {
	return &s.recordsSig
}

// SetFilter validates f against the store's fields and applies it. Setting
// a filter equal to the current one does nothing.
func (s *Store) SetFilter(f filter.Filter) error {
	if err := filter.Validate(f, s); err != nil {
		return err
	}

	changed := false
	_ = s.locks.Execute(WriteOperation, func() error {
		if filter.Equal(s.filter, f) {
			return nil
		}
		s.filter = f
		s.records = s.applyFilter(s.all, f)
		changed = true
		return nil
	})
	if changed {
		s.filterSig.Notify()
		s.recordsSig.Notify()
	}
	return nil
}

// LoadData replaces all records with ones parsed from raw. Values are parsed
// to their field types; keys that are not declared fields stay in Raw only.
func (s *Store) LoadData(raw []map[string]any) error {
	roots, err := s.parseRoots(raw)
	if err != nil {
		return err
	}
	s.replace(roots, 0)
	return nil
}

func (s *Store) parseRoots(raw []map[string]any) ([]*types.Record, error) {
	roots := make([]*types.Record, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, item := range raw {
		r, err := s.parseRecord(item, "", seen)
		if err != nil {
			return nil, err
		}
		roots = append(roots, r)
	}
	return roots, nil
}

// LoadRecords replaces all records with the given snapshots, as a flat list.
// Children of the given records are not loaded.
func (s *Store) LoadRecords(records []*types.Record) error {
	roots := make([]*types.Record, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
		cp := *r
		cp.Children = nil
		roots = append(roots, &cp)
	}
	s.replace(roots, 0)
	return nil
}

// LoadDataAsync runs loader on a new goroutine and loads its result. The
// returned promise is tracked by LoadModel. Results of a load superseded by
// a later call are dropped.
func (s *Store) LoadDataAsync(ctx context.Context, loader Loader) *task.Promise {
	seq := s.loadSeq.Add(1)
	return task.Go(ctx, func(ctx context.Context) error {
		raw, err := loader(ctx)
		if err != nil {
			return err
		}
		roots, err := s.parseRoots(raw)
		if err != nil {
			return err
		}
		s.replace(roots, seq)
		return nil
	}).Track(s.loadModel, "Loading")
}

// Clear removes all records
func (s *Store) Clear() {
	s.replace(nil, 0)
}

// replace swaps in roots. A non-zero seq names an async load, which is
// dropped unless it is still the latest one.
func (s *Store) replace(roots []*types.Record, seq int64) {
	replaced := false
	_ = s.locks.Execute(WriteOperation, func() error {
		if seq != 0 && s.loadSeq.Load() != seq {
			return nil
		}
		replaced = true
		all := make([]*types.Record, 0, len(roots))
		byID := make(map[string]*types.Record, len(roots))
		for _, r := range roots {
			for _, rec := range r.Flatten() {
				all = append(all, rec)
				byID[rec.ID] = rec
			}
		}
		s.roots = roots
		s.all = all
		s.byID = byID
		s.records = s.applyFilter(all, s.filter)

		now := s.timeFunc().UnixMilli()
		if now <= s.lastUpdated {
			now = s.lastUpdated + 1
		}
		s.lastUpdated = now
		return nil
	})
	if replaced {
		s.updatesSig.Notify()
		s.recordsSig.Notify()
	}
}

func (s *Store) applyFilter(all []*types.Record, f filter.Filter) []*types.Record {
	if f == nil {
		return clone(all)
	}
	test := f.Test(s)
	out := make([]*types.Record, 0, len(all))
	for _, r := range all {
		if test(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) parseRecord(raw map[string]any, parentID string, seen map[string]bool) (*types.Record, error) {
	id := types.ToString(raw[s.idField])
	if raw[s.idField] == nil || id == "" {
		id = s.newID()
	}
	if seen[id] {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	seen[id] = true

	data := make(map[string]any, s.fields.Len())
	for _, field := range s.fields.All() {
		v, err := field.ParseVal(raw[field.Name])
		if err != nil {
			return nil, fmt.Errorf("%w %q: field %q: %v", ErrInvalidRecord, id, field.Name, err)
		}
		data[field.Name] = v
	}

	r := &types.Record{ID: id, Data: data, Raw: raw, ParentID: parentID}
	for _, child := range childMaps(raw[s.childrenField]) {
		c, err := s.parseRecord(child, id, seen)
		if err != nil {
			return nil, err
		}
		r.Children = append(r.Children, c)
	}
	return r, nil
}

func childMaps(v any) []map[string]any {
	switch x := v.(type) {
	case []map[string]any:
		return x
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func clone(records []*types.Record) []*types.Record {
	out := make([]*types.Record, len(records))
	copy(out, records)
	return out
}
