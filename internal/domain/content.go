package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Typed content variants. Card.Content stores the raw document; these
// structs are what the validator chain and the reducer actually work with.
// One schema per CardType, registered in contentRegistry below.

// SessionPlanContent is a full proposed training session.
type SessionPlanContent struct {
	Title     string            `json:"title"`
	Notes     string            `json:"notes,omitempty"`
	Exercises []PlannedExercise `json:"exercises"`
}

// PlannedExercise is one exercise slot inside a session plan.
type PlannedExercise struct {
	ExerciseID string       `json:"exerciseId"`
	Name       string       `json:"name"`
	Sets       []PlannedSet `json:"sets"`
}

// PlannedSet is one prescribed set: target reps, target reps-in-reserve
// and load in kilograms.
type PlannedSet struct {
	SetIndex   int     `json:"setIndex"`
	TargetReps int     `json:"targetReps"`
	TargetRIR  int     `json:"targetRir"`
	LoadKg     float64 `json:"loadKg"`
}

// InstructionContent is a coaching instruction added by a user or agent.
type InstructionContent struct {
	Text string `json:"text"`
}

// NoteContent is free-form commentary attached to the workspace.
type NoteContent struct {
	Text string `json:"text"`
}

// SetResultContent records one performed set. Created/updated only by
// LOG_SET.
type SetResultContent struct {
	ExerciseID  string  `json:"exerciseId"`
	SetIndex    int     `json:"setIndex"`
	Reps        int     `json:"reps"`
	RIR         int     `json:"rir"` // reps in reserve, the reserve-effort value
	LoadKg      float64 `json:"loadKg"`
	Failure     bool    `json:"failure,omitempty"` // set taken to failure, permits reps=0
	VolumeKg    float64 `json:"volumeKg"`          // reps * load, recomputed on every log
	SessionReps int     `json:"sessionReps"`       // running total for the session
}

// AnalysisContent is an agent-produced numeric summary.
type AnalysisContent struct {
	Summary string             `json:"summary"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// VisualizationContent describes a chart an agent proposes to surface.
type VisualizationContent struct {
	ChartType string    `json:"chartType"` // e.g., "line", "bar"
	Title     string    `json:"title"`
	Labels    []string  `json:"labels,omitempty"`
	Series    []float64 `json:"series,omitempty"`
}

// contentRegistry maps each card type to a prototype constructor. Adding a
// new card type means adding a variant struct and one entry here.
var contentRegistry = map[CardType]func() any{
	CardTypeSessionPlan:   func() any { return &SessionPlanContent{} },
	CardTypeInstruction:   func() any { return &InstructionContent{} },
	CardTypeNote:          func() any { return &NoteContent{} },
	CardTypeSetResult:     func() any { return &SetResultContent{} },
	CardTypeAnalysis:      func() any { return &AnalysisContent{} },
	CardTypeVisualization: func() any { return &VisualizationContent{} },
}

// KnownCardType reports whether t has a registered content schema.
func KnownCardType(t CardType) bool {
	_, ok := contentRegistry[t]
	return ok
}

// DecodeContent decodes a raw content document into the typed variant
// registered for t. Unknown fields are rejected so that schema drift is
// caught at the boundary rather than silently dropped.
func DecodeContent(t CardType, raw map[string]any) (any, error) {
	proto, ok := contentRegistry[t]
	if !ok {
		return nil, NewFieldError(CodeInvalidArgument,
			"unknown card type", "type", fmt.Sprintf("no schema registered for %q", t))
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, NewFieldError(CodeInvalidArgument, "content is not encodable", "content", err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	out := proto()
	if err := dec.Decode(out); err != nil {
		return nil, NewFieldError(CodeInvalidArgument,
			fmt.Sprintf("content does not match schema for %q", t), "content", err.Error())
	}
	return out, nil
}

// EncodeContent converts a typed content variant back to the raw document
// form stored on the card.
func EncodeContent(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
