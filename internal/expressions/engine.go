package expressions

import (
	"context"
	"sort"

	"github.com/anda-ren/starwhale/pkg/schema"
)

// Engine evaluates record filters and projections.
// Three implementations: Expr (default filters), CEL (typed filters), GoJQ (projections).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// DefaultEngine is used when a widget does not name a filter engine.
const DefaultEngine = "expr"

// RecordKey is the variable under which the whole record is exposed.
const RecordKey = "record"

// Engines is a name-indexed set of engines shared by adapters and renderers.
type Engines struct {
	byName map[string]Engine
}

// NewEngines builds the standard set: expr, cel and jq.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewEnginesFrom(NewExprEngine(), celEngine, NewGoJQEngine()), nil
}

// NewEnginesFrom indexes the given engines by Name. Later engines replace
// earlier ones with the same name.
func NewEnginesFrom(engines ...Engine) *Engines {
	e := &Engines{byName: make(map[string]Engine, len(engines))}
	for _, eng := range engines {
		e.byName[eng.Name()] = eng
	}
	return e
}

// Get returns the named engine. An empty name selects DefaultEngine.
func (e *Engines) Get(name string) (Engine, bool) {
	if name == "" {
		name = DefaultEngine
	}
	eng, ok := e.byName[name]
	return eng, ok
}

// Lookup is like Get but returns a validation error for unknown names.
func (e *Engines) Lookup(name string) (Engine, error) {
	eng, ok := e.Get(name)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name).
			WithDetails(map[string]any{"available": e.Names()})
	}
	return eng, nil
}

// Names lists the registered engine names, sorted.
func (e *Engines) Names() []string {
	names := make([]string, 0, len(e.byName))
	for n := range e.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RecordScope builds the evaluation data for one plain record: every column
// is a top-level variable and the full record is also available as "record".
// A column literally named "record" is only reachable through record.record.
func RecordScope(plain map[string]any) map[string]any {
	scope := make(map[string]any, len(plain)+1)
	for k, v := range plain {
		scope[k] = v
	}
	scope[RecordKey] = plain
	return scope
}

// Match evaluates a filter against one plain record. The expression must
// yield a bool; jq expressions that yield nothing count as false.
func Match(ctx context.Context, eng Engine, expression string, plain map[string]any) (bool, error) {
	var (
		out any
		err error
	)
	if eng.Name() == "jq" {
		out, err = eng.Evaluate(ctx, expression, plain)
	} else {
		out, err = eng.Evaluate(ctx, expression, RecordScope(plain))
	}
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"filter %q returned %T, expected bool", expression, v).
			WithDetails(map[string]any{"expression": expression, "engine": eng.Name()})
	}
}
