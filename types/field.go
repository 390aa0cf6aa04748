package types

import (
	"errors"
	"fmt"
)

// FieldType defines how raw values for a field are parsed and compared
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldInt       FieldType = "int"
	FieldNumber    FieldType = "number"
	FieldBool      FieldType = "bool"
	FieldDate      FieldType = "date"
	FieldLocalDate FieldType = "localDate"
	FieldJSON      FieldType = "json"
	FieldTags      FieldType = "tags"
	FieldAuto      FieldType = "auto"
)

// AllFieldTypes lists every supported field type
var AllFieldTypes = []FieldType{
	FieldString, FieldInt, FieldNumber, FieldBool, FieldDate,
	FieldLocalDate, FieldJSON, FieldTags, FieldAuto,
}

// IsValid reports whether t is a known field type
func (t FieldType) IsValid() bool {
	for _, ft := range AllFieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// FilterType classifies a field for filtering purposes
type FilterType string

const (
	// FilterRange fields are compared by ordering (numbers and dates)
	FilterRange FilterType = "range"
	// FilterValue fields are compared by equality and text matching
	FilterValue FilterType = "value"
	// FilterCollection fields hold lists of values (tags)
	FilterCollection FilterType = "collection"
)

// FilterTypeOf derives the filter type from a field type
func FilterTypeOf(t FieldType) FilterType {
	switch t {
	case FieldInt, FieldNumber, FieldDate, FieldLocalDate:
		return FilterRange
	case FieldTags:
		return FilterCollection
	default:
		return FilterValue
	}
}

var (
	// ErrUnknownFieldType is returned when a field type is not one of AllFieldTypes
	ErrUnknownFieldType = errors.New("unknown field type")
	// ErrFieldNameRequired is returned when a field is declared without a name
	ErrFieldNameRequired = errors.New("field name is required")
	// ErrDuplicateField is returned when a field set declares the same name twice
	ErrDuplicateField = errors.New("duplicate field")
)

// FieldConfig declares a field. Zero values are filled in by NewField.
type FieldConfig struct {
	Name         string    `json:"name" yaml:"name"`
	Type         FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	DisplayName  string    `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	AllowNull    bool      `json:"allowNull,omitempty" yaml:"allowNull,omitempty"`
	DefaultValue any       `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
}

// Field describes one attribute of a Record. Fields are values and are not
// modified after NewField returns.
type Field struct {
	Name         string
	Type         FieldType
	DisplayName  string
	AllowNull    bool
	DefaultValue any
}

// NewField validates a FieldConfig and resolves its defaults
func NewField(cfg FieldConfig) (Field, error) {
	if cfg.Name == "" {
		return Field{}, ErrFieldNameRequired
	}
	typ := cfg.Type
	if typ == "" {
		typ = FieldAuto
	}
	if !typ.IsValid() {
		return Field{}, fmt.Errorf("field %q: %w: %q", cfg.Name, ErrUnknownFieldType, typ)
	}
	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = GenDisplayName(cfg.Name)
	}
	return Field{
		Name:         cfg.Name,
		Type:         typ,
		DisplayName:  displayName,
		AllowNull:    cfg.AllowNull,
		DefaultValue: cfg.DefaultValue,
	}, nil
}

// Config returns the declaration that recreates this field
func (f Field) Config() FieldConfig {
	return FieldConfig{
		Name:         f.Name,
		Type:         f.Type,
		DisplayName:  f.DisplayName,
		AllowNull:    f.AllowNull,
		DefaultValue: f.DefaultValue,
	}
}

// FilterType returns the filter classification of this field
func (f Field) FilterType() FilterType {
	return FilterTypeOf(f.Type)
}

// ParseVal converts a raw value into this field's typed representation
func (f Field) ParseVal(val any) (any, error) {
	return ParseFieldValue(val, f.Type, f.DefaultValue)
}

// FieldSet is an ordered collection of fields with lookup by name
type FieldSet struct {
	fields []Field
	byName map[string]int
}

// NewFieldSet builds a FieldSet, rejecting duplicate names
func NewFieldSet(fields []Field) (*FieldSet, error) {
	fs := &FieldSet{
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	copy(fs.fields, fields)

	for i, f := range fs.fields {
		if _, exists := fs.byName[f.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		fs.byName[f.Name] = i
	}
	return fs, nil
}

// FieldSetFromConfigs builds fields from their configs in order
func FieldSetFromConfigs(cfgs []FieldConfig) (*FieldSet, error) {
	fields := make([]Field, 0, len(cfgs))
	for _, cfg := range cfgs {
		f, err := NewField(cfg)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return NewFieldSet(fields)
}

// Get returns a field by name
func (fs *FieldSet) Get(name string) (Field, bool) {
	if fs == nil {
		return Field{}, false
	}
	i, ok := fs.byName[name]
	if !ok {
		return Field{}, false
	}
	return fs.fields[i], true
}

// All returns a copy of the fields in declaration order
func (fs *FieldSet) All() []Field {
	if fs == nil {
		return nil
	}
	out := make([]Field, len(fs.fields))
	copy(out, fs.fields)
	return out
}

// Names returns field names in declaration order
func (fs *FieldSet) Names() []string {
	if fs == nil {
		return nil
	}
	names := make([]string, len(fs.fields))
	for i, f := range fs.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields
func (fs *FieldSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.fields)
}
