package expressions

import (
	"context"
	"sync"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Variables visible to a transformation rule. payload is the data travelling
// along the connection (jq receives it as its input "."); config is the rule's
// params object.
const (
	VarPayload = "payload"
	VarConfig  = "config"
)

// maxCachedPrograms bounds each engine's compile cache. Rules are edited
// interactively, so stale expressions pile up over a long session.
const maxCachedPrograms = 512

// Engine evaluates the expression language of one rule type.
type Engine interface {
	Name() string
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, payload any, config map[string]any) (any, error)
}

// programCache memoizes compiled programs by source text. When full it is
// emptied rather than evicting piecemeal.
type programCache[P any] struct {
	mu       sync.RWMutex
	programs map[string]P
	compile  func(expression string) (P, error)
}

func newProgramCache[P any](compile func(string) (P, error)) *programCache[P] {
	return &programCache[P]{programs: make(map[string]P), compile: compile}
}

func (c *programCache[P]) get(expression string) (P, error) {
	c.mu.RLock()
	p, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[expression]; ok {
		return p, nil
	}
	p, err := c.compile(expression)
	if err != nil {
		return p, err
	}
	if len(c.programs) >= maxCachedPrograms {
		clear(c.programs)
	}
	c.programs[expression] = p
	return p, nil
}

// Len returns the number of cached programs.
func (c *programCache[P]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// expressionError wraps an engine failure as EXPRESSION_ERROR. stage is
// "parse", "compile" or "evaluation".
func expressionError(engine, stage, expression string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeExpression, "%s %s error in %q: %s", engine, stage, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "stage": stage, "expression": expression})
}

func emptyExpression(engine string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeExpression, "empty %s expression", engine).
		WithDetails(map[string]any{"engine": engine})
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
