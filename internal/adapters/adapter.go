// Package adapters turns decoded datastore records into the data structures
// individual panels plot.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/internal/expressions"
	"github.com/anda-ren/starwhale/pkg/schema"
	"github.com/go-playground/validator/v10"
)

// Adapter extracts panel data from decoded records. Extract only fails for
// configuration problems; rows it cannot use are counted, not reported.
type Adapter interface {
	Kind() string
	Extract(ctx context.Context, records []datastore.DecodedRecord, opts Options) (PanelData, error)
}

// PanelData is the output of an Adapter.
type PanelData interface {
	Kind() string
	SkippedRows() int
}

// Options are the widget option values an adapter reads.
type Options map[string]any

// String returns the option as a string, or "" when unset or not a string.
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Strings returns a list option. Both []string and []any of strings are accepted.
func (o Options) Strings(key string) []string {
	switch v := o[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

var optionsValidate = newOptionsValidator()

// newOptionsValidator reports fields by their json option key.
func newOptionsValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateOptions checks a typed options struct and converts failures into a
// VALIDATION_ERROR naming the offending option keys.
func validateOptions(kind string, v any) error {
	err := optionsValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s options: %s", kind, err.Error()).WithCause(err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "%s options invalid: %s", kind, strings.Join(fields, ", ")).
		WithCause(err).
		WithDetails(map[string]any{"adapter": kind, "fields": fields})
}

// rowFilter evaluates an optional per-row filter.
type rowFilter struct {
	engine     expressions.Engine
	expression string
}

func newRowFilter(engines *expressions.Engines, engineName, expression string) (*rowFilter, error) {
	if expression == "" {
		return nil, nil
	}
	if engines == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "filters are not available: no expression engines configured")
	}
	eng, err := engines.Lookup(engineName)
	if err != nil {
		return nil, err
	}
	return &rowFilter{engine: eng, expression: expression}, nil
}

// keep reports whether the record passes the filter. A filter that does not
// compile is returned as err; a failure on one particular row is returned as
// rowErr with keep=false.
func (f *rowFilter) keep(ctx context.Context, rec datastore.DecodedRecord) (keep bool, rowErr error, err error) {
	if f == nil {
		return true, nil, nil
	}
	keep, evalErr := expressions.Match(ctx, f.engine, f.expression, rec.Plain())
	if evalErr != nil {
		if schema.IsCode(evalErr, schema.ErrCodeValidation) {
			return false, nil, evalErr
		}
		return false, evalErr, nil
	}
	return keep, nil, nil
}

// apply splits records into the kept rows, the number rejected by the filter
// and the number the filter could not evaluate. A nil filter keeps everything.
func (f *rowFilter) apply(ctx context.Context, records []datastore.DecodedRecord) (kept []datastore.DecodedRecord, filtered, skipped int, err error) {
	if f == nil {
		return records, 0, 0, nil
	}
	kept = make([]datastore.DecodedRecord, 0, len(records))
	for _, rec := range records {
		ok, rowErr, err := f.keep(ctx, rec)
		switch {
		case err != nil:
			return nil, 0, 0, err
		case rowErr != nil:
			skipped++
		case !ok:
			filtered++
		default:
			kept = append(kept, rec)
		}
	}
	return kept, filtered, skipped, nil
}

// LabelText renders a decoded scalar as a category label. Nil, Absent,
// Unknown and non-scalar values have no label.
func LabelText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int64:
		return strconv.FormatInt(val, 10), true
	case *big.Int:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	default:
		return "", false
	}
}
