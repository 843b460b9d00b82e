package orchestrator

import (
	"context"
)

// Task types accepted by Dispatch.
const (
	TaskAnswer      = "answer"
	TaskReformulate = "reformulate"
	TaskCorrect     = "correct"
	TaskSummarize   = "summarize"
	TaskPlan        = "plan"
)

// Request is one task call as the HTTP layer sees it. Fields not relevant
// to the task type are ignored.
type Request struct {
	Task            string `json:"task"`
	Text            string `json:"text"`
	UserID          string `json:"user_id,omitempty"`
	Style           string `json:"style,omitempty"`
	LengthStyle     string `json:"length_style,omitempty"`
	PlanType        string `json:"plan_type,omitempty"`
	Structure       string `json:"structure,omitempty"`
	ExplicitContext string `json:"context,omitempty"`
	ForceWeb        bool   `json:"force_web,omitempty"`
}

// Dispatch routes one request to its task pipeline. The returned envelope
// is one of the task envelope types.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Task {
	case TaskAnswer:
		return o.Answer(ctx, AnswerRequest{
			Question:        req.Text,
			UserID:          req.UserID,
			ExplicitContext: req.ExplicitContext,
			ForceWeb:        req.ForceWeb,
		})
	case TaskReformulate:
		style := req.Style
		if style == "" {
			style = "paraphrase"
		}
		return o.Reformulate(ctx, req.Text, style, req.UserID)
	case TaskCorrect:
		return o.Correct(ctx, req.Text)
	case TaskSummarize:
		style := req.LengthStyle
		if style == "" {
			style = "medium"
		}
		return o.Summarize(ctx, req.Text, style, req.UserID)
	case TaskPlan:
		return o.Plan(ctx, req.Text, req.PlanType, req.Structure)
	default:
		return nil, errInputInvalid("Type de tâche inconnu.")
	}
}
