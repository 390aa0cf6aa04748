package fieldspec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
	"github.com/arthur-debert/nanogrid/types"
	"golang.org/x/net/html"
)

// DefaultDateLayout renders date values when no renderer is configured
const DefaultDateLayout = "2006-01-02"

// ValuesDebounce delays reloading values after the source changes
const ValuesDebounce = 100 * time.Millisecond

// ValueRenderer formats a value for display
type ValueRenderer func(value any, op filter.Op) string

// ValueParser converts user input into a typed filter value
type ValueParser func(input string, op filter.Op) (any, error)

// ChooserConfig declares a spec for the typeahead filter chooser
type ChooserConfig struct {
	Config

	ValueRenderer ValueRenderer
	// ValueParser is required for date fields. Numeric fields default to
	// ParseNumber.
	ValueParser ValueParser
	// Example is shown as a hint for free-form input
	Example string
	// DateLayout formats date values; defaults to DefaultDateLayout
	DateLayout string
	// Scheduler runs the debounced value reload; defaults to the wall clock
	Scheduler reactive.Scheduler
}

// Chooser is the field spec behind the filter chooser. Values sourced from
// a store are kept current while the field spec lives; call Destroy to stop.
type Chooser struct {
	*Base
	reactive.Reactive

	valueRenderer ValueRenderer
	valueParser   ValueParser
	example       string
	dateLayout    string
}

// NewChooser builds a chooser spec. Date fields without a parser and
// forceSelection without any values are configuration errors.
func NewChooser(cfg ChooserConfig) (*Chooser, error) {
	base, err := NewBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	c := &Chooser{
		Base:          base,
		valueRenderer: cfg.ValueRenderer,
		valueParser:   cfg.ValueParser,
		dateLayout:    cfg.DateLayout,
	}
	if c.dateLayout == "" {
		c.dateLayout = DefaultDateLayout
	}
	if cfg.Scheduler != nil {
		c.UseScheduler(cfg.Scheduler)
	}

	if c.valueParser == nil && c.IsNumericFieldType() {
		c.valueParser = func(input string, _ filter.Op) (any, error) {
			return ParseNumber(input)
		}
	}
	if c.valueParser == nil && c.fieldType == types.FieldDate {
		return nil, fmt.Errorf("field %q: %w", c.field, ErrDateParserRequired)
	}
	c.example = c.parseExample(cfg.Example)

	if !c.hasExplicitValues && c.source != nil && c.hasSourceField && (c.enableValues || c.forceSelection) {
		c.LoadValues()
		source := c.source
		if _, err := c.AddReaction(reactive.ReactionSpec{
			Name:     "fieldspec values " + c.field,
			Deps:     []reactive.Source{source.Updates()},
			Track:    func() any { return source.LastUpdated() },
			Run:      func(any) { c.LoadValues() },
			Debounce: reactive.Debounce(ValuesDebounce),
		}); err != nil {
			return nil, err
		}
	}

	if c.forceSelection && c.Values() == nil {
		c.Destroy()
		return nil, fmt.Errorf("field %q: %w", c.field, ErrValuesRequired)
	}
	return c, nil
}

// Example returns a representative input value
func (c *Chooser) Example() string {
	return c.example
}

// RenderValue formats value for display with any markup removed
func (c *Chooser) RenderValue(value any, op filter.Op) string {
	var out string
	switch {
	case c.valueRenderer != nil:
		out = c.valueRenderer(value, op)
	case value == nil:
		out = ""
	case c.IsDateBasedFieldType():
		out = c.formatDate(value)
	default:
		out = types.ToString(value)
	}
	return StripTags(out)
}

// ParseValue converts user input to a typed value. ok is false when the
// input cannot be parsed.
func (c *Chooser) ParseValue(input any, op filter.Op) (value any, ok bool) {
	if c.valueParser != nil {
		v, err := c.valueParser(types.ToString(input), op)
		if err != nil {
			return nil, false
		}
		return v, true
	}

	fieldType := c.fieldType
	if fieldType == types.FieldTags {
		fieldType = types.FieldString
	}
	v, err := types.ParseFieldValue(input, fieldType, nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *Chooser) parseExample(example string) string {
	switch {
	case example != "":
		return example
	case c.IsBoolFieldType():
		return "true | false"
	case c.IsDateBasedFieldType():
		return "YYYY-MM-DD"
	case c.IsNumericFieldType():
		return c.RenderValue(1234, filter.OpEq)
	}
	return "value"
}

func (c *Chooser) formatDate(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.Format(c.dateLayout)
	case types.LocalDate:
		return string(v)
	}
	if t, err := types.ParseDate(value); err == nil {
		return t.Format(c.dateLayout)
	}
	return types.ToString(value)
}

// ParseNumber parses user-entered numbers. Thousands separators are ignored
// and a k, m or b suffix scales the value.
func ParseNumber(input string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(input), ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", types.ErrInvalidValue)
	}

	scale := 1.0
	switch strings.ToLower(s[len(s)-1:]) {
	case "k":
		scale = 1e3
	case "m":
		scale = 1e6
	case "b":
		scale = 1e9
	}
	if scale != 1 {
		s = strings.TrimSpace(s[:len(s)-1])
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", types.ErrInvalidValue, input)
	}
	return n * scale, nil
}

// StripTags returns the text content of s with HTML markup removed
func StripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
