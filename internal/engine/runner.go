package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Invocation is one node execution handed to a Runner. Inputs are keyed by
// input port id and have already been checked against the port schemas.
type Invocation struct {
	RunID    string
	NodeID   string
	NodeType string
	Inputs   map[string]any
	Config   map[string]any
}

// Runner executes one node type. It returns payloads keyed by output port id
// and should return promptly once ctx is done.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (map[string]any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, inv Invocation) (map[string]any, error)

func (f RunnerFunc) Run(ctx context.Context, inv Invocation) (map[string]any, error) {
	return f(ctx, inv)
}

// Runners maps node type ids to runners. It is safe for concurrent use.
type Runners struct {
	mu     sync.RWMutex
	byType map[string]Runner
}

// NewRunners creates an empty set.
func NewRunners() *Runners {
	return &Runners{byType: make(map[string]Runner)}
}

// DefaultRunners returns runners for the built-in AI node types. They produce
// deterministic placeholder payloads shaped like the types' output ports;
// deployments replace them with real service clients via Register.
func DefaultRunners() *Runners {
	r := NewRunners()
	r.Register("textGeneration", RunnerFunc(runTextGeneration))
	r.Register("speechToText", RunnerFunc(runSpeechToText))
	r.Register("textToSpeech", RunnerFunc(runTextToSpeech))
	r.Register("imageGeneration", RunnerFunc(runImageGeneration))
	return r
}

// Register sets the runner of typeID, replacing any previous one.
func (r *Runners) Register(typeID string, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[typeID] = runner
}

func (r *Runners) Lookup(typeID string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.byType[typeID]
	return runner, ok
}

// Types returns the registered type ids, sorted.
func (r *Runners) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for id := range r.byType {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func runTextGeneration(_ context.Context, inv Invocation) (map[string]any, error) {
	prompt, err := field(inv, "prompt", "text")
	if err != nil {
		return nil, err
	}
	words := strings.Fields("Generated text for prompt: " + prompt)
	if limit, ok := number(inv.Config["maxTokens"]); ok && limit >= 1 && int(limit) < len(words) {
		words = words[:int(limit)]
	}
	return map[string]any{
		"text": map[string]any{
			"text":   strings.Join(words, " "),
			"tokens": len(words),
			"model":  inv.Config["model"],
		},
	}, nil
}

func runSpeechToText(_ context.Context, inv Invocation) (map[string]any, error) {
	if _, err := field(inv, "audio", "audioData"); err != nil {
		return nil, err
	}
	return map[string]any{
		"text": map[string]any{"text": "Transcribed text would appear here", "confidence": 0.95},
	}, nil
}

func runTextToSpeech(_ context.Context, inv Invocation) (map[string]any, error) {
	text, err := field(inv, "text", "text")
	if err != nil {
		return nil, err
	}
	voice, _ := inv.Config["voice"].(string)
	return map[string]any{
		"audio": map[string]any{
			"audioData": base64.StdEncoding.EncodeToString([]byte(voice + ":" + text)),
			"format":    "wav",
			"duration":  float64(len(strings.Fields(text))) * 0.4,
		},
	}, nil
}

func runImageGeneration(_ context.Context, inv Invocation) (map[string]any, error) {
	prompt, err := field(inv, "prompt", "text")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"image": map[string]any{
			"imageData": base64.StdEncoding.EncodeToString([]byte(prompt)),
			"format":    "png",
			"width":     512,
			"height":    512,
		},
	}, nil
}

// field reads a string property of an input payload.
func field(inv Invocation, port, key string) (string, error) {
	payload, ok := inv.Inputs[port].(map[string]any)
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "input port %q has no value", port).WithNode(inv.NodeID)
	}
	s, ok := payload[key].(string)
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "input port %q: %s must be a string, got %T", port, key, payload[key]).
			WithNode(inv.NodeID)
	}
	return s, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
