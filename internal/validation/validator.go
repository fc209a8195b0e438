package validation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"alcyxob/fitness-workspace/internal/domain"
)

// The validator chain runs three ordered checks before any mutation is
// attempted: structural (shape/schema), bounds (science-defined numeric
// ranges) and safety (contextual guardrails). The chain short-circuits on
// the first failure and is read-only against the static tables below, so
// it always runs before a transaction opens.

// Science bounds. These are the numeric ranges the reducer enforces; they
// are not exercise-science heuristics beyond that.
const (
	MinReps        = 0 // 0 permitted only on a set taken to failure
	MaxReps        = 30
	MinRIR         = 0
	MaxRIR         = 5
	MaxLoadKg      = 500.0
	MaxSetsPerSlot = 12 // sets per exercise in one session
	MaxSessionSets = 50 // total sets in one session plan
	MaxTextLen     = 4000
)

// Request is the unit the chain validates. DecodedPayload is populated by
// the structural stage so later stages (and the reducer) work with typed
// values, never raw maps.
type Request struct {
	Action         *domain.Action
	DecodedPayload any
}

// Stage is one link of the chain.
type Stage func(*Request) error

// Chain is an ordered validator pipeline.
type Chain struct {
	stages []Stage
}

// NewActionChain builds the standard structural -> bounds -> safety chain
// for reducer actions.
func NewActionChain() *Chain {
	return &Chain{stages: []Stage{structuralStage, boundsStage, safetyStage}}
}

// Validate runs the chain, stopping at the first failing stage.
func (c *Chain) Validate(req *Request) error {
	for _, stage := range c.stages {
		if err := stage(req); err != nil {
			return err
		}
	}
	return nil
}

// --- Stage 1: structural ---

func structuralStage(req *Request) error {
	a := req.Action
	if a == nil {
		return domain.NewError(domain.CodeInvalidArgument, "action is required")
	}
	if !a.Type.Valid() {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"unknown action type", "action.type", string(a.Type))
	}
	if a.IdempotencyKey == "" {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"idempotency key is required", "action.idempotencyKey", "empty")
	}
	if !a.Origin.Valid() {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"unknown origin", "action.origin", string(a.Origin))
	}
	if a.Type.NeedsTarget() && a.TargetID.IsZero() {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"action requires a target card", "action.targetId", "missing")
	}
	if (a.Type == domain.ActionAcceptAll || a.Type == domain.ActionRejectAll) && a.GroupID == "" {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"bulk action requires a group id", "action.groupId", "missing")
	}

	payload, err := decodeActionPayload(a)
	if err != nil {
		return err
	}
	req.DecodedPayload = payload
	return nil
}

// decodeActionPayload decodes a.Payload into the typed struct for a.Type.
// Actions without a payload schema must carry none.
func decodeActionPayload(a *domain.Action) (any, error) {
	var proto any
	switch a.Type {
	case domain.ActionAddInstruction, domain.ActionAddNote:
		proto = &domain.AddTextPayload{}
	case domain.ActionLogSet:
		proto = &domain.LogSetPayload{}
	case domain.ActionSwap:
		proto = &domain.SwapPayload{}
	case domain.ActionAdjustLoad:
		proto = &domain.AdjustLoadPayload{}
	case domain.ActionReorderSets:
		proto = &domain.ReorderSetsPayload{}
	default:
		// Accept/reject, phase transitions and UNDO take no payload.
		if len(a.Payload) != 0 {
			return nil, domain.NewFieldError(domain.CodeInvalidArgument,
				fmt.Sprintf("action %s takes no payload", a.Type), "action.payload", "unexpected")
		}
		return nil, nil
	}

	data, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"payload is not encodable", "action.payload", err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(proto); err != nil {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			fmt.Sprintf("payload does not match schema for %s", a.Type), "action.payload", err.Error())
	}
	return proto, nil
}

// --- Stage 2: bounds ---

func boundsStage(req *Request) error {
	switch p := req.DecodedPayload.(type) {
	case *domain.LogSetPayload:
		if p.Reps < MinReps || p.Reps > MaxReps {
			return domain.NewFieldError(domain.CodeScienceViolation,
				"repetition count out of range", "payload.reps",
				fmt.Sprintf("must be in [%d,%d], got %d", MinReps, MaxReps, p.Reps))
		}
		if p.Reps == 0 && !p.Failure {
			return domain.NewFieldError(domain.CodeScienceViolation,
				"zero reps requires the failure flag", "payload.reps", "0 without failure")
		}
		if p.RIR < MinRIR || p.RIR > MaxRIR {
			return domain.NewFieldError(domain.CodeScienceViolation,
				"reserve effort out of range", "payload.rir",
				fmt.Sprintf("must be in [%d,%d], got %d", MinRIR, MaxRIR, p.RIR))
		}
		if p.LoadKg < 0 {
			return domain.NewFieldError(domain.CodeScienceViolation,
				"load cannot be negative", "payload.loadKg", fmt.Sprintf("%v", p.LoadKg))
		}
	case *domain.AdjustLoadPayload:
		if p.LoadKg < 0 {
			return domain.NewFieldError(domain.CodeScienceViolation,
				"load cannot be negative", "payload.loadKg", fmt.Sprintf("%v", p.LoadKg))
		}
		if p.SetIndex < 0 {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"set index cannot be negative", "payload.setIndex", fmt.Sprintf("%d", p.SetIndex))
		}
	case *domain.ReorderSetsPayload:
		if len(p.Order) == 0 {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"order cannot be empty", "payload.order", "empty")
		}
		// Order must be a permutation of 0..n-1.
		seen := make(map[int]bool, len(p.Order))
		for _, idx := range p.Order {
			if idx < 0 || idx >= len(p.Order) || seen[idx] {
				return domain.NewFieldError(domain.CodeInvalidArgument,
					"order must be a permutation of existing set indexes", "payload.order",
					fmt.Sprintf("bad index %d", idx))
			}
			seen[idx] = true
		}
	case *domain.AddTextPayload:
		if p.Text == "" {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"text is required", "payload.text", "empty")
		}
	case *domain.SwapPayload:
		if p.ExerciseID == "" || p.Name == "" {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"swap requires exerciseId and name", "payload", "missing fields")
		}
	}
	return nil
}

// --- Stage 3: safety ---

func safetyStage(req *Request) error {
	switch p := req.DecodedPayload.(type) {
	case *domain.LogSetPayload:
		if p.LoadKg > MaxLoadKg {
			return domain.NewFieldError(domain.CodeSafetyViolation,
				"load exceeds the safety ceiling", "payload.loadKg",
				fmt.Sprintf("max %v kg, got %v", MaxLoadKg, p.LoadKg))
		}
	case *domain.AdjustLoadPayload:
		if p.LoadKg > MaxLoadKg {
			return domain.NewFieldError(domain.CodeSafetyViolation,
				"load exceeds the safety ceiling", "payload.loadKg",
				fmt.Sprintf("max %v kg, got %v", MaxLoadKg, p.LoadKg))
		}
	case *domain.AddTextPayload:
		if len(p.Text) > MaxTextLen {
			return domain.NewFieldError(domain.CodeSafetyViolation,
				"text exceeds the maximum length", "payload.text",
				fmt.Sprintf("max %d chars", MaxTextLen))
		}
	}
	return nil
}

// --- Card content validation (Propose path and ADD_* card creation) ---

// ValidateCardContent runs the same three-stage discipline against a
// proposed card's content: schema decode, numeric bounds, safety caps.
// It returns the decoded typed content on success.
func ValidateCardContent(t domain.CardType, lane domain.Lane, content map[string]any) (any, error) {
	if !lane.Valid() {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"unknown lane", "card.lane", string(lane))
	}
	decoded, err := domain.DecodeContent(t, content)
	if err != nil {
		return nil, err
	}
	switch c := decoded.(type) {
	case *domain.SessionPlanContent:
		if err := validateSessionPlan(c); err != nil {
			return nil, err
		}
	case *domain.SetResultContent:
		if c.Reps < MinReps || c.Reps > MaxReps {
			return nil, domain.NewFieldError(domain.CodeScienceViolation,
				"repetition count out of range", "content.reps", fmt.Sprintf("%d", c.Reps))
		}
		if c.RIR < MinRIR || c.RIR > MaxRIR {
			return nil, domain.NewFieldError(domain.CodeScienceViolation,
				"reserve effort out of range", "content.rir", fmt.Sprintf("%d", c.RIR))
		}
	case *domain.InstructionContent:
		if c.Text == "" {
			return nil, domain.NewFieldError(domain.CodeInvalidArgument,
				"text is required", "content.text", "empty")
		}
	case *domain.NoteContent:
		if c.Text == "" {
			return nil, domain.NewFieldError(domain.CodeInvalidArgument,
				"text is required", "content.text", "empty")
		}
	case *domain.AnalysisContent:
		if c.Summary == "" {
			return nil, domain.NewFieldError(domain.CodeInvalidArgument,
				"summary is required", "content.summary", "empty")
		}
	case *domain.VisualizationContent:
		if c.ChartType == "" {
			return nil, domain.NewFieldError(domain.CodeInvalidArgument,
				"chart type is required", "content.chartType", "empty")
		}
		if len(c.Labels) != 0 && len(c.Labels) != len(c.Series) {
			return nil, domain.NewFieldError(domain.CodeInvalidArgument,
				"labels and series lengths differ", "content.labels",
				fmt.Sprintf("%d labels, %d points", len(c.Labels), len(c.Series)))
		}
	}
	return decoded, nil
}

func validateSessionPlan(plan *domain.SessionPlanContent) error {
	if plan.Title == "" {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"plan title is required", "content.title", "empty")
	}
	if len(plan.Exercises) == 0 {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"plan needs at least one exercise", "content.exercises", "empty")
	}
	total := 0
	for i, ex := range plan.Exercises {
		field := fmt.Sprintf("content.exercises[%d]", i)
		if ex.ExerciseID == "" || ex.Name == "" {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"exercise requires exerciseId and name", field, "missing fields")
		}
		if len(ex.Sets) == 0 {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"exercise needs at least one set", field+".sets", "empty")
		}
		if len(ex.Sets) > MaxSetsPerSlot {
			return domain.NewFieldError(domain.CodeSafetyViolation,
				"too many sets for one exercise", field+".sets",
				fmt.Sprintf("max %d, got %d", MaxSetsPerSlot, len(ex.Sets)))
		}
		for j, set := range ex.Sets {
			setField := fmt.Sprintf("%s.sets[%d]", field, j)
			if set.TargetReps < 1 || set.TargetReps > MaxReps {
				return domain.NewFieldError(domain.CodeScienceViolation,
					"target reps out of range", setField+".targetReps",
					fmt.Sprintf("must be in [1,%d], got %d", MaxReps, set.TargetReps))
			}
			if set.TargetRIR < MinRIR || set.TargetRIR > MaxRIR {
				return domain.NewFieldError(domain.CodeScienceViolation,
					"target reserve effort out of range", setField+".targetRir",
					fmt.Sprintf("must be in [%d,%d], got %d", MinRIR, MaxRIR, set.TargetRIR))
			}
			if set.LoadKg < 0 || set.LoadKg > MaxLoadKg {
				return domain.NewFieldError(domain.CodeSafetyViolation,
					"load outside the safe range", setField+".loadKg",
					fmt.Sprintf("must be in [0,%v], got %v", MaxLoadKg, set.LoadKg))
			}
		}
		total += len(ex.Sets)
	}
	if total > MaxSessionSets {
		return domain.NewFieldError(domain.CodeSafetyViolation,
			"session volume exceeds the safety cap", "content.exercises",
			fmt.Sprintf("max %d total sets, got %d", MaxSessionSets, total))
	}
	return nil
}
