package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prodtalk/prodtalk/ai/metrics"
)

// ErrGenerationFailed is returned when every configured backend failed.
var ErrGenerationFailed = errors.New("all generation backends failed")

// Gateway tries an ordered list of backends and returns the first success.
type Gateway struct {
	backends []Backend
	exporter *metrics.PrometheusExporter
}

// NewGateway creates a gateway over the given backends, tried in order.
func NewGateway(backends []Backend, exporter *metrics.PrometheusExporter) (*Gateway, error) {
	if len(backends) == 0 {
		return nil, errors.New("llm: at least one backend required")
	}
	return &Gateway{backends: backends, exporter: exporter}, nil
}

// Complete runs the fallback chain for one completion. Each backend failure
// is logged and counted; the error wraps ErrGenerationFailed together with
// every backend error when the chain is exhausted.
func (g *Gateway) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	var failures []error
	for _, backend := range g.backends {
		start := time.Now()
		content, err := backend.Complete(ctx, systemPrompt, userPrompt, temperature)
		g.exporter.RecordBackendLatency(backend.Name(), time.Since(start))
		if err == nil {
			return content, nil
		}

		kind := ErrKindBadResponse
		var backendErr *BackendError
		if errors.As(err, &backendErr) {
			kind = backendErr.Kind
		}
		g.exporter.RecordBackendFailure(backend.Name(), string(kind))
		slog.Warn("llm: backend failed, trying next",
			"backend", backend.Name(), "kind", kind, "error", err)
		failures = append(failures, err)
	}
	return "", fmt.Errorf("%w: %w", ErrGenerationFailed, errors.Join(failures...))
}

// GenerateSQL converts the question plus its grounding context into a
// cleaned candidate SQL string. The result still has to pass validation.
func (g *Gateway) GenerateSQL(ctx context.Context, req *SQLRequest) (string, error) {
	raw, err := g.Complete(ctx, sqlSystemPrompt, buildSQLPrompt(req), 0.3)
	if err != nil {
		return "", err
	}
	sql := CleanSQL(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: backend produced no SQL", ErrGenerationFailed)
	}
	return sql, nil
}

// GenerateAnswer phrases a tabular result as a short natural-language
// answer to the question.
func (g *Gateway) GenerateAnswer(ctx context.Context, question, resultTable string) (string, error) {
	return g.Complete(ctx, answerSystemPrompt, buildAnswerPrompt(question, resultTable), 0.7)
}
