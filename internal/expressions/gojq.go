package expressions

import (
	"context"

	"github.com/itchyny/gojq"
)

// GoJQEngine evaluates "jq" rules. The payload is the program input and the
// rule params are bound to $config. Environment access is disabled.
type GoJQEngine struct {
	cache *programCache[*gojq.Code]
}

// NewGoJQEngine creates a jq engine with an empty compile cache.
func NewGoJQEngine() *GoJQEngine {
	e := &GoJQEngine{}
	e.cache = newProgramCache(e.build)
	return e
}

func (e *GoJQEngine) Name() string { return "jq" }

// Compile parses and compiles expression into the cache.
func (e *GoJQEngine) Compile(expression string) error {
	if expression == "" {
		return emptyExpression(e.Name())
	}
	_, err := e.cache.get(expression)
	return err
}

// Evaluate runs the program over payload. Zero outputs give nil, one output
// is returned as is and several are collected into a []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, payload any, config map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	code, err := e.cache.get(expression)
	if err != nil {
		return nil, err
	}

	var outputs []any
	iter := code.RunWithContext(ctx, jqValue(payload), jqValue(emptyIfNil(config)))
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			return nil, expressionError(e.Name(), "evaluation", expression, err)
		}
		outputs = append(outputs, v)
	}

	if len(outputs) > 1 {
		return outputs, nil
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return nil, nil
}

func (e *GoJQEngine) build(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, expressionError(e.Name(), "parse", expression, err)
	}
	code, err := gojq.Compile(query,
		gojq.WithVariables([]string{"$" + VarConfig}),
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, expressionError(e.Name(), "compile", expression, err)
	}
	return code, nil
}

// jqValue rewrites Go numbers as float64, matching what a JSON payload
// decodes to, recursing into JSON containers.
func jqValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = jqValue(x)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = jqValue(x)
		}
		return s
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	}
	return v
}

var _ Engine = (*GoJQEngine)(nil)
