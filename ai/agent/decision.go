// Package agent runs the bounded decision loop that turns one user message
// into a production query and an answer.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prodtalk/prodtalk/ai/llm"
)

// Action is the decision taken by the model for one loop iteration.
type Action string

const (
	ActionGatherEntities   Action = "gather_entities"
	ActionQueryProduction  Action = "query_production"
	ActionAskClarification Action = "ask_clarification"
	ActionReturnAnswer     Action = "return_answer"
)

var validActions = map[Action]bool{
	ActionGatherEntities:   true,
	ActionQueryProduction:  true,
	ActionAskClarification: true,
	ActionReturnAnswer:     true,
}

// Decision is the structured output of one decision call.
type Decision struct {
	Action    Action `json:"action"`
	Reasoning string `json:"reasoning"`
	Message   string `json:"message,omitempty"` // ask_clarification
	SQL       string `json:"sql,omitempty"`     // query_production
	Answer    string `json:"answer,omitempty"`  // return_answer
}

// ParseDecision decodes a raw completion into a Decision. Markdown fences
// and surrounding commentary are stripped first; unknown actions are
// rejected rather than guessed at.
func ParseDecision(raw string) (*Decision, error) {
	cleaned := llm.CleanJSON(raw)

	var decision Decision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	decision.Action = Action(strings.ToLower(strings.TrimSpace(string(decision.Action))))
	if !validActions[decision.Action] {
		return nil, fmt.Errorf("unknown action %q", decision.Action)
	}
	return &decision, nil
}
