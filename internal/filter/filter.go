package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"hookgate/internal/logger"
	"hookgate/pkg/metrics"
)

// Filter evaluates per-provider CEL drop expressions against incoming events.
// An expression returning true drops the event before it reaches the ledger.
// Programs are compiled once at load; evaluation errors fall back to the
// configured policy (default: process).
type Filter struct {
	programs    map[string]cel.Program
	dropOnError bool
	logger      logger.Logger
}

// New compiles the provider → expression map. An invalid expression is a
// configuration error and fails startup.
func New(expressions map[string]string, onError string, log logger.Logger) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("provider", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	programs := make(map[string]cel.Program, len(expressions))
	for provider, expression := range expressions {
		if expression == "" {
			continue
		}

		ast, issues := env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile filter for provider %s: %w", provider, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("filter for provider %s must return bool, got %v", provider, ast.OutputType())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create filter program for provider %s: %w", provider, err)
		}
		programs[provider] = program
	}

	return &Filter{
		programs:    programs,
		dropOnError: strings.EqualFold(onError, "drop"),
		logger:      log,
	}, nil
}

// ShouldDrop reports whether the event should be discarded before processing.
func (f *Filter) ShouldDrop(ctx context.Context, provider, eventType string, payload map[string]interface{}) bool {
	if f == nil {
		return false
	}

	program, ok := f.programs[provider]
	if !ok {
		return false
	}

	result, _, err := program.ContextEval(ctx, map[string]interface{}{
		"provider":   provider,
		"event_type": eventType,
		"payload":    payload,
	})
	if err != nil {
		f.logger.WarnwCtx(ctx, "Filter evaluation failed",
			"provider", provider,
			"error", err,
		)
		metrics.FilterEvaluationsTotal.WithLabelValues(provider, "error").Inc()
		return f.dropOnError
	}

	drop, ok := result.Value().(bool)
	if !ok {
		metrics.FilterEvaluationsTotal.WithLabelValues(provider, "error").Inc()
		return f.dropOnError
	}

	if drop {
		metrics.FilterEvaluationsTotal.WithLabelValues(provider, "dropped").Inc()
	} else {
		metrics.FilterEvaluationsTotal.WithLabelValues(provider, "passed").Inc()
	}
	return drop
}
