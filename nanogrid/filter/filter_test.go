package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/arthur-debert/nanogrid/types"
	"github.com/google/go-cmp/cmp"
)

type fieldMap map[string]types.Field

func (m fieldMap) GetField(name string) (types.Field, bool) {
	f, ok := m[name]
	return f, ok
}

func testFields() fieldMap {
	return fieldMap{
		"status":   {Name: "status", Type: types.FieldString},
		"priority": {Name: "priority", Type: types.FieldInt},
		"tags":     {Name: "tags", Type: types.FieldTags},
		"due":      {Name: "due", Type: types.FieldLocalDate},
	}
}

func rec(id string, data map[string]any) *types.Record {
	return &types.Record{ID: id, Data: data}
}

func TestNewFieldFilterValidation(t *testing.T) {
	tests := []struct {
		name  string
		field string
		op    Op
		value any
		err   error
	}{
		{"missing field", "", OpEq, "x", ErrInvalidFilter},
		{"unknown operator", "status", "~=", "x", ErrInvalidOperator},
		{"list on range operator", "priority", OpGt, []any{1, 2}, ErrInvalidOperator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFieldFilter(tt.field, tt.op, tt.value); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}

	t.Run("list values are de-duplicated", func(t *testing.T) {
		f, err := NewFieldFilter("status", OpEq, []string{"a", "b", "a"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]any{"a", "b"}, f.Value); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestFieldFilterMatching(t *testing.T) {
	records := []*types.Record{
		rec("1", map[string]any{"status": "Open", "priority": int64(5), "tags": []string{"red", "blue"}}),
		rec("2", map[string]any{"status": "closed", "priority": int64(2), "tags": []string{}}),
		rec("3", map[string]any{"status": "", "priority": nil}),
	}

	tests := []struct {
		name   string
		filter *FieldFilter
		want   []string
	}{
		{"equals", MustFieldFilter("status", OpEq, "closed"), []string{"2"}},
		{"equals list", MustFieldFilter("status", OpEq, []any{"Open", "closed"}), []string{"1", "2"}},
		{"equals null matches blank", MustFieldFilter("status", OpEq, nil), []string{"3"}},
		{"not equals", MustFieldFilter("status", OpNe, "closed"), []string{"1", "3"}},
		{"greater than", MustFieldFilter("priority", OpGt, 2), []string{"1"}},
		{"less or equal skips null", MustFieldFilter("priority", OpLte, 5), []string{"1", "2"}},
		{"like is case insensitive", MustFieldFilter("status", OpLike, "OPE"), []string{"1"}},
		{"not like", MustFieldFilter("status", OpNotLike, "o"), []string{"3"}},
		{"begins", MustFieldFilter("status", OpBegins, "cl"), []string{"2"}},
		{"ends", MustFieldFilter("status", OpEnds, "EN"), []string{"1"}},
		{"includes", MustFieldFilter("tags", OpIncludes, "red"), []string{"1"}},
		{"excludes", MustFieldFilter("tags", OpExcludes, "red"), []string{"2", "3"}},
		{"tags blank", MustFieldFilter("tags", OpEq, nil), []string{"2", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test := tt.filter.Test(testFields())
			var got []string
			for _, r := range records {
				if test(r) {
					got = append(got, r.ID)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("matches mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("unknown field passes everything with a lookup", func(t *testing.T) {
		test := MustFieldFilter("missing", OpEq, "x").Test(testFields())
		for _, r := range records {
			if !test(r) {
				t.Errorf("expected record %s to pass", r.ID)
			}
		}
	})

	t.Run("filter values are parsed to the field type", func(t *testing.T) {
		test := MustFieldFilter("priority", OpEq, "5").Test(testFields())
		if !test(records[0]) {
			t.Error("expected string 5 to match int field value 5")
		}
	})
}

func TestCompoundFilter(t *testing.T) {
	a := MustFieldFilter("priority", OpGte, 3)
	b := MustFieldFilter("status", OpEq, "open")

	and := MustCombine(And, a, b)
	or := MustCombine(Or, a, b)

	r := rec("1", map[string]any{"priority": int64(4), "status": "closed"})
	if and.Test(testFields())(r) {
		t.Error("expected AND to fail when one child fails")
	}
	if !or.Test(testFields())(r) {
		t.Error("expected OR to pass when one child passes")
	}

	t.Run("combine collapses degenerate compounds", func(t *testing.T) {
		if f := MustCombine(And); f != nil {
			t.Errorf("expected nil, got %v", f)
		}
		if f := MustCombine(Or, a); f != Filter(a) {
			t.Errorf("expected single child, got %v", f)
		}
	})

	t.Run("common field", func(t *testing.T) {
		c, _ := NewCompoundFilter(Or, MustFieldFilter("status", OpEq, "a"), MustFieldFilter("status", OpLike, "b"))
		if c.Field() != "status" {
			t.Errorf("expected common field status, got %q", c.Field())
		}
		if and.(*CompoundFilter).Field() != "" {
			t.Error("expected mixed compound to have no common field")
		}
	})

	t.Run("rejects unknown compound operator", func(t *testing.T) {
		if _, err := NewCompoundFilter("XOR", a); !errors.Is(err, ErrInvalidOperator) {
			t.Errorf("expected ErrInvalidOperator, got %v", err)
		}
	})
}

func TestEqualsIgnoresOrder(t *testing.T) {
	a := MustFieldFilter("status", OpEq, []any{"x", "y"})
	b := MustFieldFilter("status", OpEq, []any{"y", "x"})
	if !a.Equals(b) {
		t.Error("expected list values to compare as sets")
	}

	c1 := MustCombine(And, a, MustFieldFilter("priority", OpGt, 1))
	c2 := MustCombine(And, MustFieldFilter("priority", OpGt, 1.0), b)
	if !c1.Equals(c2) {
		t.Error("expected sibling order and numeric kind to be ignored")
	}
	if c1.Equals(MustCombine(Or, a, MustFieldFilter("priority", OpGt, 1))) {
		t.Error("expected different compound operators to differ")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	original := MustCombine(And,
		MustFieldFilter("priority", OpGte, 3.0),
		MustCombine(Or,
			MustFieldFilter("status", OpEq, []any{"open", "pending"}),
			MustFieldFilter("status", OpEq, nil),
		),
		MustFieldFilter("due", OpLt, types.LocalDate("2024-06-01")),
		MustFieldFilter("created", OpGt, due),
	)

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !original.Equals(parsed) {
		t.Errorf("round trip mismatch:\n original: %s\n parsed:   %s\n json: %s", original, parsed, data)
	}

	t.Run("array shorthand is an AND", func(t *testing.T) {
		f, err := Parse([]byte(`[{"field":"a","op":"=","value":1},{"field":"b","op":"=","value":2}]`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c, ok := f.(*CompoundFilter)
		if !ok || c.Op != And || len(c.Filters) != 2 {
			t.Errorf("expected AND of 2 filters, got %v", f)
		}
	})

	t.Run("null and empty compound parse to nil", func(t *testing.T) {
		for _, in := range []string{"null", "", `{"op":"AND","filters":[]}`} {
			f, err := Parse([]byte(in))
			if err != nil || f != nil {
				t.Errorf("Parse(%q) = %v, %v; want nil, nil", in, f, err)
			}
		}
	})

	t.Run("zero values survive spec encoding", func(t *testing.T) {
		spec := MustFieldFilter("priority", OpEq, 0.0).Spec()
		data, err := spec.MarshalJSON()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f, err := Parse(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !f.Equals(MustFieldFilter("priority", OpEq, 0)) {
			t.Errorf("expected priority = 0, got %v", f)
		}
	})
}

func TestValidate(t *testing.T) {
	if err := Validate(MustFieldFilter("priority", OpLike, "1"), testFields()); !errors.Is(err, ErrInvalidOperator) {
		t.Errorf("expected like on range field to be rejected, got %v", err)
	}
	if err := Validate(MustFieldFilter("status", OpGt, "a"), testFields()); !errors.Is(err, ErrInvalidOperator) {
		t.Errorf("expected > on value field to be rejected, got %v", err)
	}
	if err := Validate(MustFieldFilter("tags", OpIncludes, "a"), testFields()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate(MustFieldFilter("unknown", OpLike, "a"), testFields()); err != nil {
		t.Errorf("expected unknown field to be allowed, got %v", err)
	}
}

func TestValidOpsNeverMix(t *testing.T) {
	for _, ft := range types.AllFieldTypes {
		if ft == types.FieldAuto || ft == types.FieldJSON {
			continue
		}
		for _, op := range ValidOps(types.FilterTypeOf(ft)) {
			if !OpValidFor(op, ft) {
				t.Errorf("%s listed as valid for %s but rejected", op, ft)
			}
		}
	}
	if OpValidFor(OpLike, types.FieldInt) || OpValidFor(OpGt, types.FieldString) {
		t.Error("expected range and value operators not to leak across filter types")
	}
}
