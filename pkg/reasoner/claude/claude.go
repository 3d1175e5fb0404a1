// Package claude implements the engine's Reasoner interface on the
// Anthropic Messages API. Every response is treated as untrusted structured
// data: extracted as JSON, decoded into the engine's schema types, and
// validated before the engine sees it.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-playground/validator/v10"

	"github.com/azimuth-ai/azimuth/pkg/engine"
	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

const systemPrompt = `You are the planning component of an infrastructure
orchestration engine. You decompose requests, propose parameters, evaluate
results, and classify failures. Respond with a single JSON object and
nothing else. Goal types are limited to: resource_group, network, vm,
storage, dns_record, firewall_rule, repository. Failure classes are limited
to: transient, recoverable, permission, configuration, unrecoverable.`

// Reasoner calls the Anthropic API and decodes its answers into engine
// schema types.
type Reasoner struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	validate  *validator.Validate
}

// Config configures the reasoner.
type Config struct {
	// APIKey authenticates against the API.
	APIKey string

	// Model is the model identifier.
	Model string

	// MaxTokens bounds each completion.
	MaxTokens int

	// RequestTimeout bounds each API call.
	RequestTimeout time.Duration
}

// New creates a Claude reasoner.
func New(cfg Config) (*Reasoner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reasoner API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	return &Reasoner{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.RequestTimeout,
		validate:  validator.New(),
	}, nil
}

// ParseGoals implements engine.Reasoner.
func (r *Reasoner) ParseGoals(ctx context.Context, requestText string) (*engine.GoalGraphSpec, error) {
	prompt := fmt.Sprintf(`Decompose this infrastructure request into goals.

Request: %s

Respond with JSON: {"goals": [{"id": "...", "type": "...", "name": "...",
"parameters": {...}, "depends_on": [...], "criteria": [{"name": "...",
"check": "..."}]}]}. Use checks from: exit_zero, resource_id_present,
"output_contains:<substring>", "output_json_has:<key>". Reference earlier
goal outputs in parameters as ${goal-id.output-key}.`, requestText)

	var spec engine.GoalGraphSpec
	if err := r.complete(ctx, prompt, &spec); err != nil {
		return nil, err
	}
	if err := r.validate.Struct(&spec); err != nil {
		return nil, fmt.Errorf("goal decomposition failed validation: %w", err)
	}
	return &spec, nil
}

// SelectStrategy implements engine.Reasoner.
func (r *Reasoner) SelectStrategy(ctx context.Context, goal *engine.Goal, priorOutputs map[string]map[string]string) (*engine.StrategyHint, error) {
	outputs, _ := json.Marshal(priorOutputs)
	prompt := fmt.Sprintf(`Propose parameters for this goal.

Goal: id=%s type=%s name=%s
Outputs of achieved dependencies: %s

Respond with JSON: {"strategy_id": "...", "parameters": {...}}.`,
		goal.ID, goal.Type, goal.Name, outputs)

	var hint engine.StrategyHint
	if err := r.complete(ctx, prompt, &hint); err != nil {
		return nil, err
	}
	if err := r.validate.Struct(&hint); err != nil {
		return nil, fmt.Errorf("strategy hint failed validation: %w", err)
	}
	return &hint, nil
}

// EvaluateGoal implements engine.Reasoner.
func (r *Reasoner) EvaluateGoal(ctx context.Context, goal *engine.Goal, result *engine.ActionResult) (*engine.EvaluationResult, error) {
	prompt := fmt.Sprintf(`Evaluate whether this goal was achieved.

Goal: id=%s type=%s name=%s
Exit code: %d
Output: %s

Respond with JSON: {"status": "achieved|partial|failed", "confidence": 0.0}.
Confidence must be one of 1.0, 0.8, 0.6, 0.4, 0.2, 0.0.`,
		goal.ID, goal.Type, goal.Name, result.ExitCode, clip(result.RawOutput, 4000))

	var eval engine.EvaluationResult
	if err := r.complete(ctx, prompt, &eval); err != nil {
		return nil, err
	}
	if err := eval.Status.Validate(); err != nil {
		return nil, fmt.Errorf("evaluation hint failed validation: %w", err)
	}
	return &eval, nil
}

// ClassifyFailure implements engine.Reasoner.
func (r *Reasoner) ClassifyFailure(ctx context.Context, goal *engine.Goal, actionErr *engine.EngineError, history []engine.FailureRecord) (*engine.FailureHint, error) {
	prompt := fmt.Sprintf(`Classify this infrastructure action failure.

Goal: id=%s type=%s
Error: %s
Prior failures for this goal: %d

Respond with JSON: {"classification": "...", "reason": "..."}.`,
		goal.ID, goal.Type, actionErr.Error(), len(history))

	var hint engine.FailureHint
	if err := r.complete(ctx, prompt, &hint); err != nil {
		return nil, err
	}
	if err := r.validate.Struct(&hint); err != nil {
		return nil, fmt.Errorf("failure hint failed validation: %w", err)
	}
	return &hint, nil
}

// complete runs one bounded API call and decodes the JSON payload of the
// response into out.
func (r *Reasoner) complete(ctx context.Context, prompt string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log := telemetry.FromContext(ctx).NewComponentLogger("reasoner")

	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: int64(r.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return fmt.Errorf("reasoner request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	payload := extractJSON(text.String())
	if payload == "" {
		return fmt.Errorf("reasoner response contains no JSON object")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		log.Debugf("undecodable reasoner payload (%d bytes)", len(payload))
		return fmt.Errorf("reasoner response is not valid JSON: %w", err)
	}
	return nil
}

// extractJSON returns the first top-level JSON object in the text, tolerating
// markdown code fences around it.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
