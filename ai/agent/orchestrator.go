package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prodtalk/prodtalk/ai/extract"
	"github.com/prodtalk/prodtalk/ai/llm"
	"github.com/prodtalk/prodtalk/ai/metrics"
	"github.com/prodtalk/prodtalk/ai/sqlguard"
	"github.com/prodtalk/prodtalk/store/proddb"
)

// User-facing terminal messages. The orchestrator never exposes raw errors.
const (
	msgCouldNotResolve = "요청을 해결하지 못했습니다. 질문을 조금 더 구체적으로 말씀해 주시겠어요?"
	msgExecutionError  = "죄송합니다. 데이터 조회 중 오류가 발생했습니다. 잠시 후 다시 시도해 주세요."
	msgGenerationDown  = "죄송합니다. 지금은 요청을 처리할 수 없습니다. 잠시 후 다시 시도해 주세요."
	msgRejectedQuery   = "생성된 쿼리가 안전 규칙을 통과하지 못해 실행하지 않았습니다."
)

// Gateway is the slice of llm.Gateway the orchestrator needs.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
	GenerateSQL(ctx context.Context, req *llm.SQLRequest) (string, error)
}

// Executor runs validated SQL against the production database.
type Executor interface {
	Execute(ctx context.Context, sql string) (*proddb.Result, error)
}

// ReferenceLoader resolves the admin-configured reference lookups
// (valid machine IDs and similar grounding lists).
type ReferenceLoader interface {
	LoadReferenceData(ctx context.Context) (map[string][]map[string]any, error)
}

// Synthesizer turns a query result into the final answer text.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, result *proddb.Result, entities extract.Entities) (string, error)
}

// OutcomeKind classifies how the loop terminated.
type OutcomeKind string

const (
	OutcomeAnswer        OutcomeKind = "answer"
	OutcomeClarification OutcomeKind = "clarification"
	OutcomeError         OutcomeKind = "error"
)

// Outcome is the terminal state of one turn.
type Outcome struct {
	Kind       OutcomeKind
	Answer     string
	SQL        string // sanitized SQL that was executed, if any
	Result     *proddb.Result
	Iterations int
}

// State is the per-turn loop state. Created at turn start, mutated only by
// the orchestrator, discarded when the turn ends.
type State struct {
	UserMessage   string
	Entities      extract.Entities
	ReferenceData map[string][]map[string]any
	LastSQL       string
	LastResult    *proddb.Result
	Iteration     int
	History       []string

	// SQLRequest carries the grounding context (schema, hints, knowledge)
	// prepared by the engine, reused for direct SQL generation.
	SQLRequest *llm.SQLRequest
}

// Config wires the orchestrator.
type Config struct {
	Gateway       Gateway
	Executor      Executor
	References    ReferenceLoader
	Synthesizer   Synthesizer
	Exporter      *metrics.PrometheusExporter
	MaxIterations int
	Deadline      time.Duration
	RowCap        int
}

// Orchestrator drives the decision loop within a hard iteration cap and a
// cooperative wall-clock deadline.
type Orchestrator struct {
	cfg Config
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 30 * time.Second
	}
	if cfg.RowCap <= 0 {
		cfg.RowCap = 100
	}
	return &Orchestrator{cfg: cfg}
}

// Run executes the loop until a terminal state. Budgets are sampled at the
// top of every iteration; a successful query result is never discarded
// because the budget ran out.
func (o *Orchestrator) Run(ctx context.Context, state *State) *Outcome {
	deadline := time.Now().Add(o.cfg.Deadline)

	for {
		// Non-empty result short-circuits straight to synthesis; no more
		// decision calls, no duplicate queries.
		if state.LastResult.RowCount() > 0 {
			return o.answerFromResult(ctx, state)
		}

		if state.Iteration >= o.cfg.MaxIterations || time.Now().After(deadline) {
			o.cfg.Exporter.RecordAgentIterations(state.Iteration)
			return &Outcome{
				Kind:       OutcomeError,
				Answer:     msgCouldNotResolve,
				Iterations: state.Iteration,
			}
		}
		state.Iteration++

		raw, err := o.cfg.Gateway.Complete(ctx, decisionSystemPrompt, buildDecisionPrompt(state, o.cfg.MaxIterations), 0.1)
		if err != nil {
			slog.Error("agent: decision call failed", "iteration", state.Iteration, "error", err)
			o.cfg.Exporter.RecordAgentIterations(state.Iteration)
			return &Outcome{Kind: OutcomeError, Answer: msgGenerationDown, Iterations: state.Iteration}
		}

		decision, err := ParseDecision(raw)
		if err != nil {
			// A malformed decision burns one iteration; the budget bounds
			// how often this can repeat.
			slog.Warn("agent: unparseable decision", "iteration", state.Iteration, "error", err)
			continue
		}
		state.History = append(state.History, string(decision.Action)+": "+decision.Reasoning)
		slog.Info("agent: decision", "iteration", state.Iteration, "action", decision.Action)

		switch decision.Action {
		case ActionGatherEntities:
			o.gatherEntities(ctx, state)

		case ActionQueryProduction:
			if outcome := o.queryProduction(ctx, state, decision); outcome != nil {
				o.cfg.Exporter.RecordAgentIterations(state.Iteration)
				return outcome
			}

		case ActionAskClarification:
			message := decision.Message
			if message == "" {
				message = msgCouldNotResolve
			}
			o.cfg.Exporter.RecordAgentIterations(state.Iteration)
			return &Outcome{Kind: OutcomeClarification, Answer: message, Iterations: state.Iteration}

		case ActionReturnAnswer:
			if state.LastResult.RowCount() > 0 {
				return o.answerFromResult(ctx, state)
			}
			o.cfg.Exporter.RecordAgentIterations(state.Iteration)
			answer := decision.Answer
			if answer == "" {
				answer, err = o.cfg.Synthesizer.Synthesize(ctx, state.UserMessage, state.LastResult, state.Entities)
				if err != nil {
					answer = msgCouldNotResolve
				}
			}
			return &Outcome{Kind: OutcomeAnswer, Answer: answer, SQL: state.LastSQL, Result: state.LastResult, Iterations: state.Iteration}
		}
	}
}

func (o *Orchestrator) gatherEntities(ctx context.Context, state *State) {
	if state.ReferenceData != nil {
		return
	}
	data, err := o.cfg.References.LoadReferenceData(ctx)
	if err != nil {
		slog.Warn("agent: reference data load failed", "error", err)
		data = map[string][]map[string]any{}
	}
	state.ReferenceData = data
}

// queryProduction validates, sanitizes and executes the decision's SQL.
// Returns a terminal outcome for validation rejections and execution
// errors; returns nil when the loop should continue.
func (o *Orchestrator) queryProduction(ctx context.Context, state *State, decision *Decision) *Outcome {
	sql := decision.SQL
	if sql == "" {
		generated, err := o.cfg.Gateway.GenerateSQL(ctx, state.SQLRequest)
		if err != nil {
			slog.Error("agent: sql generation failed", "error", err)
			return &Outcome{Kind: OutcomeError, Answer: msgGenerationDown, Iterations: state.Iteration}
		}
		sql = generated
	}

	if err := sqlguard.Validate(sql); err != nil {
		var rejection *sqlguard.RejectionError
		if errors.As(err, &rejection) {
			o.cfg.Exporter.RecordValidatorRejection(rejection.Code)
		}
		slog.Warn("agent: candidate sql rejected", "error", err)
		return &Outcome{Kind: OutcomeError, Answer: msgRejectedQuery, Iterations: state.Iteration}
	}
	sanitized := sqlguard.Sanitize(sql, o.cfg.RowCap)

	result, err := o.cfg.Executor.Execute(ctx, sanitized)
	if err != nil {
		// Retrying a deterministic query against an unchanging schema would
		// fail identically, so the turn ends here.
		o.cfg.Exporter.RecordProdQuery("error")
		slog.Error("agent: query execution failed", "error", err)
		return &Outcome{Kind: OutcomeError, Answer: msgExecutionError, SQL: sanitized, Iterations: state.Iteration}
	}
	o.cfg.Exporter.RecordProdQuery("success")
	state.LastSQL = sanitized
	state.LastResult = result
	return nil
}

func (o *Orchestrator) answerFromResult(ctx context.Context, state *State) *Outcome {
	o.cfg.Exporter.RecordAgentIterations(state.Iteration)
	answer, err := o.cfg.Synthesizer.Synthesize(ctx, state.UserMessage, state.LastResult, state.Entities)
	if err != nil {
		slog.Error("agent: answer synthesis failed", "error", err)
		answer = msgCouldNotResolve
	}
	return &Outcome{
		Kind:       OutcomeAnswer,
		Answer:     answer,
		SQL:        state.LastSQL,
		Result:     state.LastResult,
		Iterations: state.Iteration,
	}
}

const decisionSystemPrompt = `제조 데이터 조회 에이전트입니다. 현재 상태를 보고 다음 액션을 JSON으로만 응답하세요.

액션 선택 규칙:
1. 조회 결과(previous_result)가 있으면 return_answer
2. 추출된 필터 조건이 비어 있고 참조 데이터도 없으면 gather_entities
3. 그 외에는 query_production (SQL 포함)
4. 질문이 모호해서 SQL을 만들 수 없으면 ask_clarification

JSON 응답 형식:
{
  "action": "gather_entities|query_production|ask_clarification|return_answer",
  "reasoning": "액션 선택 이유 (1-2문장)",
  "sql": "query_production일 때만",
  "message": "ask_clarification일 때만",
  "answer": "return_answer일 때만"
}

JSON만 응답하세요 (다른 텍스트 없음).`

func buildDecisionPrompt(state *State, maxIterations int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "질문: %s\n", state.UserMessage)

	entitiesJSON, _ := json.Marshal(state.Entities)
	fmt.Fprintf(&b, "추출된 필터 조건: %s\n", entitiesJSON)

	if state.SQLRequest != nil && len(state.SQLRequest.Schema) > 0 {
		b.WriteString("\n테이블 스키마:\n")
		for _, table := range state.SQLRequest.Schema {
			var cols []string
			for _, col := range table.Columns {
				cols = append(cols, col.Name)
			}
			fmt.Fprintf(&b, "- %s: %s\n", table.Name, strings.Join(cols, ", "))
		}
	}

	if len(state.ReferenceData) > 0 {
		b.WriteString("\n참조 데이터:\n")
		for name, rows := range state.ReferenceData {
			fmt.Fprintf(&b, "- %s: %d건\n", name, len(rows))
		}
	}

	previous := "없음"
	if state.LastResult != nil {
		previous = fmt.Sprintf("%d행", state.LastResult.RowCount())
	}
	fmt.Fprintf(&b, "\nprevious_result: %s | 반복 %d/%d\n", previous, state.Iteration, maxIterations)
	return b.String()
}
