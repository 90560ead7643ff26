// Package queryengine wires the per-turn pipeline: term normalization,
// entity extraction, retrieval, the agent loop and turn persistence.
package queryengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/prodtalk/prodtalk/ai/agent"
	"github.com/prodtalk/prodtalk/ai/answer"
	"github.com/prodtalk/prodtalk/ai/extract"
	"github.com/prodtalk/prodtalk/ai/llm"
	"github.com/prodtalk/prodtalk/ai/metrics"
	"github.com/prodtalk/prodtalk/ai/retrieval"
	"github.com/prodtalk/prodtalk/ai/sqlguard"
	"github.com/prodtalk/prodtalk/internal/profile"
	"github.com/prodtalk/prodtalk/store"
	"github.com/prodtalk/prodtalk/store/proddb"
)

const (
	threadTitleLimit    = 50
	backfillWindow      = 6
	conversationTopK    = 3
	schemaTopK          = 5
	resultSummaryRowCap = 100
)

// Gateway is the generation surface the engine and its agent loop need.
// *llm.Gateway satisfies it.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
	GenerateSQL(ctx context.Context, req *llm.SQLRequest) (string, error)
	GenerateAnswer(ctx context.Context, question, resultTable string) (string, error)
}

// Config wires the engine's collaborators.
type Config struct {
	Profile  *profile.Profile
	Store    *store.Store
	Executor agent.Executor
	Gateway  Gateway
	Exporter *metrics.PrometheusExporter
}

// Engine processes query turns. The TF-IDF vectorizer is fit exactly once
// on first use and shared read-only afterwards.
type Engine struct {
	cfg         Config
	synthesizer *answer.Synthesizer

	vectorizerOnce sync.Once
	vectorizer     *retrieval.Vectorizer
	schemaIndex    *retrieval.Index
}

// TurnResponse is the caller-facing outcome of one processed turn.
type TurnResponse struct {
	ThreadUID         string         `json:"thread_uid"`
	UserTurnID        int64          `json:"user_turn_id"`
	AssistantTurnID   int64          `json:"assistant_turn_id"`
	OriginalMessage   string         `json:"original_message"`
	NormalizedMessage string         `json:"normalized_message"`
	GeneratedSQL      string         `json:"generated_sql,omitempty"`
	Result            *proddb.Result `json:"result,omitempty"`
	Answer            string         `json:"answer"`
	ExecutionTimeMs   int64          `json:"execution_time_ms"`
}

func NewEngine(cfg Config) *Engine {
	engine := &Engine{cfg: cfg}
	engine.synthesizer = answer.New(cfg.Gateway)
	return engine
}

// ProcessTurn runs the full pipeline for one user message. threadUID may
// be empty to start a new thread.
func (e *Engine) ProcessTurn(ctx context.Context, userID int32, threadUID, message string) (*TurnResponse, error) {
	start := time.Now()
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}

	thread, err := e.resolveThread(ctx, userID, threadUID, message)
	if err != nil {
		return nil, err
	}

	// Term dictionary normalization before extraction and generation.
	mappings, err := e.cfg.Store.ListTermMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load term mappings: %w", err)
	}
	normalized := extract.NewTermDictionary(mappings).Normalize(message)

	// Rule snapshot for this request.
	ruleRecords, err := e.cfg.Store.ListFilterRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load filter rules: %w", err)
	}
	rules := extract.CompileRules(ruleRecords)

	priorTurns, err := e.cfg.Store.ListQueryTurns(ctx, &store.FindQueryTurn{ThreadID: &thread.ID})
	if err != nil {
		return nil, fmt.Errorf("load prior turns: %w", err)
	}

	entities := extract.Extract(normalized, rules)
	entities = extract.Backfill(entities, recentUserTexts(priorTurns, backfillWindow), rules)

	schema, err := e.cfg.Store.ListSchemaTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema catalog: %w", err)
	}
	knowledge, err := e.cfg.Store.ListKnowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge: %w", err)
	}

	hints := e.retrieveHints(normalized, schema, knowledge, priorTurns)

	state := &agent.State{
		UserMessage: normalized,
		Entities:    entities,
		SQLRequest: &llm.SQLRequest{
			Question:  normalized,
			Schema:    schema,
			Hints:     hints,
			Knowledge: knowledge,
			Entities:  entities,
		},
	}

	orchestrator := agent.NewOrchestrator(agent.Config{
		Gateway:       e.cfg.Gateway,
		Executor:      e.cfg.Executor,
		References:    e,
		Synthesizer:   e.synthesizer,
		Exporter:      e.cfg.Exporter,
		MaxIterations: e.cfg.Profile.AgentMaxIterations,
		Deadline:      time.Duration(e.cfg.Profile.AgentDeadline) * time.Second,
		RowCap:        e.cfg.Profile.ProdRowCap,
	})
	outcome := orchestrator.Run(ctx, state)

	userTurn, assistantTurn, err := e.persistTurns(ctx, thread.ID, message, normalized, outcome)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	e.cfg.Exporter.RecordTurn(string(outcome.Kind), elapsed)
	slog.Info("engine: turn processed",
		"thread", thread.UID,
		"outcome", outcome.Kind,
		"iterations", outcome.Iterations,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &TurnResponse{
		ThreadUID:         thread.UID,
		UserTurnID:        userTurn.ID,
		AssistantTurnID:   assistantTurn.ID,
		OriginalMessage:   message,
		NormalizedMessage: normalized,
		GeneratedSQL:      outcome.SQL,
		Result:            outcome.Result,
		Answer:            outcome.Answer,
		ExecutionTimeMs:   elapsed.Milliseconds(),
	}, nil
}

func (e *Engine) resolveThread(ctx context.Context, userID int32, threadUID, message string) (*store.QueryThread, error) {
	if threadUID != "" {
		status := store.Normal
		thread, err := e.cfg.Store.GetQueryThread(ctx, &store.FindQueryThread{
			UID:       &threadUID,
			CreatorID: &userID,
			RowStatus: &status,
		})
		if err != nil {
			return nil, fmt.Errorf("find thread: %w", err)
		}
		if thread == nil {
			return nil, fmt.Errorf("thread %s not found", threadUID)
		}
		return thread, nil
	}

	title := message
	if runes := []rune(title); len(runes) > threadTitleLimit {
		title = string(runes[:threadTitleLimit])
	}
	thread, err := e.cfg.Store.CreateQueryThread(ctx, &store.QueryThread{
		UID:       shortuuid.New(),
		CreatorID: userID,
		Title:     title,
	})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// retrieveHints queries the schema and conversation corpora. Failures and
// thin corpora degrade to fewer (or no) hints.
func (e *Engine) retrieveHints(question string, schema []*store.SchemaTable, knowledge []*store.Knowledge, priorTurns []*store.QueryTurn) []retrieval.Hint {
	e.vectorizerOnce.Do(func() {
		var seed []string
		for _, table := range schema {
			seed = append(seed, schemaText(table))
		}
		for _, note := range knowledge {
			seed = append(seed, note.Content)
		}
		e.vectorizer = retrieval.NewVectorizer(seed)

		var items []retrieval.Item
		for _, table := range schema {
			items = append(items, retrieval.Item{Text: schemaText(table), Payload: table.Name})
		}
		e.schemaIndex = retrieval.BuildIndex(e.vectorizer, retrieval.SourceSchema, items)
	})

	hints := e.schemaIndex.Query(question, schemaTopK)

	var turnItems []retrieval.Item
	for _, turn := range priorTurns {
		turnItems = append(turnItems, retrieval.Item{Text: turn.RawText, Payload: turn.ID})
	}
	if len(turnItems) > 0 {
		conversationIndex := retrieval.BuildIndex(e.vectorizer, retrieval.SourceConversation, turnItems)
		hints = append(hints, conversationIndex.Query(question, conversationTopK)...)
	}
	return hints
}

// LoadReferenceData runs the admin-configured reference lookups against the
// production database. Individual lookup failures yield empty lists; the
// agent treats reference data as best-effort grounding.
func (e *Engine) LoadReferenceData(ctx context.Context) (map[string][]map[string]any, error) {
	lookups, err := e.cfg.Store.ListReferenceLookups(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference lookups: %w", err)
	}

	data := make(map[string][]map[string]any, len(lookups))
	for _, lookup := range lookups {
		if err := sqlguard.Validate(lookup.Query); err != nil {
			slog.Warn("engine: reference lookup rejected", "name", lookup.Name, "error", err)
			data[lookup.Name] = nil
			continue
		}
		result, err := e.cfg.Executor.Execute(ctx, sqlguard.Sanitize(lookup.Query, e.cfg.Profile.ProdRowCap))
		if err != nil {
			slog.Warn("engine: reference lookup failed", "name", lookup.Name, "error", err)
			data[lookup.Name] = nil
			continue
		}
		data[lookup.Name] = result.Rows
	}
	return data, nil
}

// persistTurns appends the user and assistant turns. Each append is one
// transactional write; the ephemeral agent state is not persisted.
func (e *Engine) persistTurns(ctx context.Context, threadID int32, raw, normalized string, outcome *agent.Outcome) (*store.QueryTurn, *store.QueryTurn, error) {
	userTurn, err := e.cfg.Store.CreateQueryTurn(ctx, &store.QueryTurn{
		ThreadID:       threadID,
		Role:           store.TurnRoleUser,
		RawText:        raw,
		NormalizedText: normalized,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist user turn: %w", err)
	}

	assistantTurn, err := e.cfg.Store.CreateQueryTurn(ctx, &store.QueryTurn{
		ThreadID:      threadID,
		Role:          store.TurnRoleAssistant,
		RawText:       outcome.Answer,
		GeneratedSQL:  outcome.SQL,
		ResultSummary: summarizeResult(outcome.Result),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist assistant turn: %w", err)
	}
	return userTurn, assistantTurn, nil
}

func summarizeResult(result *proddb.Result) string {
	if result == nil {
		return ""
	}
	rows := result.Rows
	if len(rows) > resultSummaryRowCap {
		rows = rows[:resultSummaryRowCap]
	}
	summary, err := json.Marshal(map[string]any{
		"columns":   result.Columns,
		"rows":      rows,
		"row_count": result.RowCount(),
	})
	if err != nil {
		return ""
	}
	return string(summary)
}

func recentUserTexts(turns []*store.QueryTurn, window int) []string {
	var texts []string
	for _, turn := range turns {
		if turn.Role != store.TurnRoleUser {
			continue
		}
		text := turn.NormalizedText
		if text == "" {
			text = turn.RawText
		}
		texts = append(texts, text)
	}
	if len(texts) > window {
		texts = texts[len(texts)-window:]
	}
	return texts
}

func schemaText(table *store.SchemaTable) string {
	parts := []string{table.Name, table.Description}
	for _, col := range table.Columns {
		parts = append(parts, col.Name, col.Description)
	}
	return strings.Join(parts, " ")
}
