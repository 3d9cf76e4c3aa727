package expressions

import (
	"context"
	"fmt"
	"sort"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Evaluator runs the transformation rules attached to connections. Rule
// types without an engine are opaque: they are skipped and reported.
type Evaluator struct {
	engines map[string]Engine
}

// NewEvaluator creates an Evaluator with the CEL, jq and Expr engines.
func NewEvaluator() (*Evaluator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewEvaluatorWith(celEngine, NewGoJQEngine(), NewExprEngine()), nil
}

// NewEvaluatorWith creates an Evaluator over the given engines, keyed by Name.
func NewEvaluatorWith(engines ...Engine) *Evaluator {
	ev := &Evaluator{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		ev.engines[e.Name()] = e
	}
	return ev
}

// Types returns the rule types with an engine, sorted.
func (ev *Evaluator) Types() []string {
	out := make([]string, 0, len(ev.engines))
	for name := range ev.engines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CheckRule compiles a rule's expression. handled is false for rule types
// without an engine.
func (ev *Evaluator) CheckRule(rule schema.TransformationRule) (handled bool, err error) {
	engine, ok := ev.engines[rule.Type]
	if !ok {
		return false, nil
	}
	return true, engine.Compile(rule.Expression())
}

// Step is the outcome of one rule in a preview.
type Step struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Skipped bool   `json:"skipped,omitempty"`
	Output  any    `json:"output,omitempty"`
}

// Preview is the result of running a rule chain over a sample payload.
type Preview struct {
	Input  any    `json:"input"`
	Output any    `json:"output"`
	Steps  []Step `json:"steps"`
}

// Apply evaluates rules in order, feeding each output to the next rule.
// The rule's params are exposed as config.
func (ev *Evaluator) Apply(ctx context.Context, rules []schema.TransformationRule, payload any) (*Preview, error) {
	p := &Preview{Input: payload, Steps: make([]Step, 0, len(rules))}
	current := payload
	for i, rule := range rules {
		engine, ok := ev.engines[rule.Type]
		if !ok {
			p.Steps = append(p.Steps, Step{Index: i, Type: rule.Type, Skipped: true})
			continue
		}
		out, err := engine.Evaluate(ctx, rule.Expression(), current, rule.Params)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Type, err)
		}
		p.Steps = append(p.Steps, Step{Index: i, Type: rule.Type, Output: out})
		current = out
	}
	p.Output = current
	return p, nil
}
