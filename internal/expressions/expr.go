package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates "expr" rules with expr-lang/expr: let bindings, array
// builtins, nil coalescing (??), optional chaining (?.) and pipes.
type ExprEngine struct {
	cache *programCache[*vm.Program]
}

// NewExprEngine creates an expr engine with an empty compile cache.
func NewExprEngine() *ExprEngine {
	e := &ExprEngine{}
	e.cache = newProgramCache(e.build)
	return e
}

func (e *ExprEngine) Name() string { return "expr" }

// Compile compiles expression into the cache.
func (e *ExprEngine) Compile(expression string) error {
	if expression == "" {
		return emptyExpression(e.Name())
	}
	_, err := e.cache.get(expression)
	return err
}

// Evaluate runs the program with payload and config as top-level variables.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, payload any, config map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	prg, err := e.cache.get(expression)
	if err != nil {
		return nil, err
	}
	out, err := vm.Run(prg, map[string]any{VarPayload: payload, VarConfig: emptyIfNil(config)})
	if err != nil {
		return nil, expressionError(e.Name(), "evaluation", expression, err)
	}
	return out, nil
}

// build compiles against an untyped environment, so one program serves
// every payload shape.
func (e *ExprEngine) build(expression string) (*vm.Program, error) {
	prg, err := expr.Compile(expression, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, expressionError(e.Name(), "compile", expression, err)
	}
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
