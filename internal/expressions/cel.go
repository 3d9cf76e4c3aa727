package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/types/known/structpb"
)

// CELEngine evaluates "cel" rules. Its environment declares payload as dyn
// and config as map(string, dyn).
type CELEngine struct {
	env   *cel.Env
	cache *programCache[cel.Program]
}

// NewCELEngine builds the CEL environment.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarPayload, cel.DynType),
		cel.Variable(VarConfig, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	e := &CELEngine{env: env}
	e.cache = newProgramCache(e.build)
	return e, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Compile type-checks expression and caches the program.
func (e *CELEngine) Compile(expression string) error {
	if expression == "" {
		return emptyExpression(e.Name())
	}
	_, err := e.cache.get(expression)
	return err
}

// Evaluate runs the program. Results come back as plain JSON values
// (objects, arrays, float64 numbers) when CEL can convert them.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, payload any, config map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	prg, err := e.cache.get(expression)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{VarPayload: payload, VarConfig: emptyIfNil(config)})
	if err != nil {
		return nil, expressionError(e.Name(), "evaluation", expression, err)
	}
	return jsonOf(out), nil
}

func (e *CELEngine) build(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, expressionError(e.Name(), "compile", expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, expressionError(e.Name(), "program", expression, err)
	}
	return prg, nil
}

func jsonOf(v ref.Val) any {
	native, err := v.ConvertToNative(types.JSONValueType)
	if err != nil {
		return v.Value()
	}
	if jv, ok := native.(*structpb.Value); ok {
		return jv.AsInterface()
	}
	return v.Value()
}

var _ Engine = (*CELEngine)(nil)
