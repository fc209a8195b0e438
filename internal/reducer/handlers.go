package reducer

import (
	"fmt"

	"alcyxob/fitness-workspace/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// addText handles ADD_INSTRUCTION and ADD_NOTE: creates a card, appends an
// event, no phase change.
func addText(r *reduction) error {
	p := r.payload.(*domain.AddTextPayload)
	lane := p.Lane
	if lane == "" {
		lane = domain.LaneSystem
	}

	cardType := domain.CardTypeInstruction
	content, _ := domain.EncodeContent(&domain.InstructionContent{Text: p.Text})
	if r.action.Type == domain.ActionAddNote {
		cardType = domain.CardTypeNote
		content, _ = domain.EncodeContent(&domain.NoteContent{Text: p.Text})
	}

	card := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: r.state.Workspace.ID,
		Type:        cardType,
		Status:      domain.StatusActive,
		Lane:        lane,
		Content:     content,
		Origin:      r.action.Origin,
		CreatedAt:   r.now,
		UpdatedAt:   r.now,
	}

	r.appendDiff(domain.Diff{Path: cardPath(card.ID), After: card})
	r.upsert(card)

	r.event.Type = domain.EventCardAdded
	r.event.Payload = map[string]any{"cardId": card.ID.Hex(), "cardType": string(cardType)}
	return nil
}

// decideProposal handles ACCEPT_PROPOSAL and REJECT_PROPOSAL on a single
// proposed card, including replace-on-accept under a topic key and the
// session-plan phase transition.
func decideProposal(r *reduction) error {
	card, err := r.findCard(r.action.TargetID)
	if err != nil {
		return err
	}
	if card.Status != domain.StatusProposed {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"target card is not a live proposal", "action.targetId",
			fmt.Sprintf("status is %s", card.Status))
	}

	accept := r.action.Type == domain.ActionAcceptProposal
	to := domain.StatusAccepted
	if !accept {
		to = domain.StatusRejected
	}
	if err := r.transition(card, to, false); err != nil {
		return err
	}
	r.dropFromQueue(card.ID)

	var replaced []string
	if accept {
		replaced = r.replaceTopicMates(card)
		r.activateOnPlanAccept(card)
	}

	r.event.Type = domain.EventProposalDecided
	r.event.Payload = map[string]any{
		"cardId": card.ID.Hex(),
		"accept": accept,
	}
	if len(replaced) > 0 {
		r.event.Payload["replaced"] = domain.SummarizeIDs(replaced)
	}
	return nil
}

// decideGroup handles ACCEPT_ALL / REJECT_ALL: every proposed card sharing
// the group identifier transitions atomically in one commit.
func decideGroup(r *reduction) error {
	var group []*domain.Card
	for i := range r.state.Cards {
		if r.state.Cards[i].GroupID() == r.action.GroupID {
			group = append(group, &r.state.Cards[i])
		}
	}
	if len(group) == 0 {
		return domain.NewFieldError(domain.CodeNotFound,
			"no cards in group", "action.groupId", r.action.GroupID)
	}
	for _, card := range group {
		if card.Status != domain.StatusProposed {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"group contains a non-proposed card", "action.groupId",
				fmt.Sprintf("card %s is %s", card.ID.Hex(), card.Status))
		}
	}

	accept := r.action.Type == domain.ActionAcceptAll
	to := domain.StatusAccepted
	if !accept {
		to = domain.StatusRejected
	}

	ids := make([]string, 0, len(group))
	var replaced []string
	for _, card := range group {
		if err := r.transition(card, to, false); err != nil {
			return err
		}
		r.dropFromQueue(card.ID)
		ids = append(ids, card.ID.Hex())
		if accept {
			replaced = append(replaced, r.replaceTopicMates(card)...)
			r.activateOnPlanAccept(card)
		}
	}

	r.event.Type = domain.EventGroupDecided
	r.event.Payload = map[string]any{
		"groupId": r.action.GroupID,
		"accept":  accept,
		"cardIds": domain.SummarizeIDs(ids),
	}
	if len(replaced) > 0 {
		r.event.Payload["replaced"] = domain.SummarizeIDs(replaced)
	}
	return nil
}

// activateOnPlanAccept moves the workspace into the active phase when a
// session plan is accepted during planning or after a completed cycle.
// Phases cycle: analysis is not a dead end, the next accepted plan starts
// the next session.
func (r *reduction) activateOnPlanAccept(card *domain.Card) {
	if card.Type != domain.CardTypeSessionPlan {
		return
	}
	if r.result.Phase == domain.PhasePlanning || r.result.Phase == domain.PhaseAnalysis {
		r.setPhase(domain.PhaseActive)
	}
}

// replaceTopicMates implements replace-on-accept: when an analysis-lane
// card is accepted under a topic key, every other non-terminal card sharing
// that key expires in the same commit. Workout-lane cards are never
// auto-expired by this rule.
func (r *reduction) replaceTopicMates(accepted *domain.Card) []string {
	topic := accepted.TopicKey()
	if topic == "" || accepted.Lane != domain.LaneAnalysis {
		return nil
	}
	var replaced []string
	for i := range r.state.Cards {
		other := &r.state.Cards[i]
		if other.ID == accepted.ID || other.Status.Terminal() {
			continue
		}
		if other.Lane == domain.LaneWorkout {
			continue
		}
		if other.TopicKey() != topic {
			continue
		}
		// transition cannot fail here: expired is not the completed status.
		_ = r.transition(other, domain.StatusExpired, false)
		r.dropFromQueue(other.ID)
		replaced = append(replaced, other.ID.Hex())
	}
	return replaced
}

// logSet is the only code path that records actual performance and the
// only one allowed to move a card into the completed status.
func logSet(r *reduction) error {
	p := r.payload.(*domain.LogSetPayload)
	target, err := r.findCard(r.action.TargetID)
	if err != nil {
		return err
	}
	if target.Status.Terminal() && target.Type != domain.CardTypeSetResult {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"target card is already terminal", "action.targetId",
			fmt.Sprintf("status is %s", target.Status))
	}

	// Resolve the set slot: from the target's refs, else from the payload.
	exerciseID, setIndex := "", -1
	if _, ok := target.SetPairKey(); ok {
		exerciseID = target.Refs.ExerciseID
		setIndex = *target.Refs.SetIndex
	} else if p.ExerciseID != "" && p.SetIndex != nil {
		exerciseID = p.ExerciseID
		setIndex = *p.SetIndex
	} else {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"cannot resolve the set slot", "payload",
			"target has no set refs and payload names none")
	}

	// Logging against a whole session plan requires the slot to exist in it.
	if target.Type == domain.CardTypeSessionPlan {
		plan, err := decodeSessionPlan(target)
		if err != nil {
			return err
		}
		if !planHasSlot(plan, exerciseID, setIndex) {
			return domain.NewFieldError(domain.CodeNotFound,
				"set slot not in session plan", "payload",
				fmt.Sprintf("%s#%d", exerciseID, setIndex))
		}
	}

	// A targeted set card is done once its result is recorded.
	if _, ok := target.SetPairKey(); ok && !target.Status.Terminal() {
		if err := r.transition(target, domain.StatusCompleted, true); err != nil {
			return err
		}
		r.dropFromQueue(target.ID)
	}

	result := r.findSetResult(exerciseID, setIndex)
	created := result == nil
	if created {
		result = &domain.Card{
			ID:          primitive.NewObjectID(),
			WorkspaceID: r.state.Workspace.ID,
			Type:        domain.CardTypeSetResult,
			Status:      domain.StatusCompleted,
			Lane:        domain.LaneWorkout,
			Origin:      r.action.Origin,
			Refs: &domain.CardRefs{
				ExerciseID: exerciseID,
				SetIndex:   &setIndex,
				TargetID:   target.ID.Hex(),
			},
			CreatedAt: r.now,
		}
	}

	before := result.Content
	content := &domain.SetResultContent{
		ExerciseID: exerciseID,
		SetIndex:   setIndex,
		Reps:       p.Reps,
		RIR:        p.RIR,
		LoadKg:     p.LoadKg,
		Failure:    p.Failure,
		VolumeKg:   float64(p.Reps) * p.LoadKg,
	}
	content.SessionReps = r.sessionRepsTotal(result.ID) + p.Reps
	encoded, err := domain.EncodeContent(content)
	if err != nil {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"result content is not encodable", "payload", err.Error())
	}
	result.Content = encoded
	result.UpdatedAt = r.now

	if created {
		r.appendDiff(domain.Diff{Path: cardPath(result.ID), After: *result})
	} else {
		r.appendDiff(domain.Diff{Path: cardContentPath(result.ID), Before: before, After: encoded})
	}
	r.upsert(*result)

	r.event.Type = domain.EventSetLogged
	r.event.Payload = map[string]any{
		"resultId":   result.ID.Hex(),
		"targetId":   target.ID.Hex(),
		"exerciseId": exerciseID,
		"setIndex":   setIndex,
		"reps":       p.Reps,
		"rir":        p.RIR,
	}
	return nil
}

// sessionRepsTotal sums the reps of every set result in the workspace,
// skipping the card being rewritten.
func (r *reduction) sessionRepsTotal(excludeID primitive.ObjectID) int {
	total := 0
	for i := range r.state.Cards {
		c := &r.state.Cards[i]
		if c.Type != domain.CardTypeSetResult || c.ID == excludeID {
			continue
		}
		if decoded, err := domain.DecodeContent(domain.CardTypeSetResult, c.Content); err == nil {
			total += decoded.(*domain.SetResultContent).Reps
		}
	}
	return total
}

func (r *reduction) findSetResult(exerciseID string, setIndex int) *domain.Card {
	for i := range r.state.Cards {
		c := &r.state.Cards[i]
		if c.Type != domain.CardTypeSetResult || c.Refs == nil || c.Refs.SetIndex == nil {
			continue
		}
		if c.Refs.ExerciseID == exerciseID && *c.Refs.SetIndex == setIndex {
			return c
		}
	}
	return nil
}

// swapExercise handles SWAP: replaces an exercise in a workout-lane card
// in place.
func swapExercise(r *reduction) error {
	p := r.payload.(*domain.SwapPayload)
	target, err := r.workoutTarget()
	if err != nil {
		return err
	}

	if target.Type == domain.CardTypeSessionPlan {
		if p.ForExerciseID == "" {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"swapping inside a plan requires forExerciseId", "payload.forExerciseId", "missing")
		}
		plan, err := decodeSessionPlan(target)
		if err != nil {
			return err
		}
		found := false
		for i := range plan.Exercises {
			if plan.Exercises[i].ExerciseID == p.ForExerciseID {
				plan.Exercises[i].ExerciseID = p.ExerciseID
				plan.Exercises[i].Name = p.Name
				found = true
				break
			}
		}
		if !found {
			return domain.NewFieldError(domain.CodeNotFound,
				"exercise not in session plan", "payload.forExerciseId", p.ForExerciseID)
		}
		if err := r.rewritePlan(target, plan); err != nil {
			return err
		}
		r.event.Payload["action"] = string(domain.ActionSwap)
		return nil
	}

	if target.Refs == nil || target.Refs.ExerciseID == "" {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"target card references no exercise", "action.targetId", target.ID.Hex())
	}
	beforeRefs := *target.Refs
	newRefs := beforeRefs
	newRefs.ExerciseID = p.ExerciseID
	target.Refs = &newRefs
	if err := r.checkSetPairFree(target, nil); err != nil {
		target.Refs = &beforeRefs
		return err
	}
	target.UpdatedAt = r.now
	r.appendDiff(domain.Diff{Path: cardRefsPath(target.ID), Before: beforeRefs, After: newRefs})
	r.upsert(*target)

	r.event.Type = domain.EventCardMutated
	r.event.Payload = map[string]any{
		"cardId": target.ID.Hex(),
		"action": string(domain.ActionSwap),
	}
	return nil
}

// adjustLoad handles ADJUST_LOAD: changes the prescribed load on one
// planned set of a session-plan card.
func adjustLoad(r *reduction) error {
	p := r.payload.(*domain.AdjustLoadPayload)
	target, err := r.workoutTarget()
	if err != nil {
		return err
	}
	plan, err := decodeSessionPlan(target)
	if err != nil {
		return err
	}
	adjusted := false
	for i := range plan.Exercises {
		if plan.Exercises[i].ExerciseID != p.ExerciseID {
			continue
		}
		for j := range plan.Exercises[i].Sets {
			if plan.Exercises[i].Sets[j].SetIndex == p.SetIndex {
				plan.Exercises[i].Sets[j].LoadKg = p.LoadKg
				adjusted = true
				break
			}
		}
	}
	if !adjusted {
		return domain.NewFieldError(domain.CodeNotFound,
			"set slot not in session plan", "payload",
			fmt.Sprintf("%s#%d", p.ExerciseID, p.SetIndex))
	}
	if err := r.rewritePlan(target, plan); err != nil {
		return err
	}
	r.event.Payload["action"] = string(domain.ActionAdjustLoad)
	return nil
}

// reorderSets handles REORDER_SETS: permutes the sets of one exercise in a
// session plan and renumbers them sequentially.
func reorderSets(r *reduction) error {
	p := r.payload.(*domain.ReorderSetsPayload)
	target, err := r.workoutTarget()
	if err != nil {
		return err
	}
	plan, err := decodeSessionPlan(target)
	if err != nil {
		return err
	}
	for i := range plan.Exercises {
		if plan.Exercises[i].ExerciseID != p.ExerciseID {
			continue
		}
		sets := plan.Exercises[i].Sets
		if len(p.Order) != len(sets) {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"order length does not match set count", "payload.order",
				fmt.Sprintf("%d entries for %d sets", len(p.Order), len(sets)))
		}
		reordered := make([]domain.PlannedSet, len(sets))
		for k, idx := range p.Order {
			reordered[k] = sets[idx]
			reordered[k].SetIndex = k
		}
		plan.Exercises[i].Sets = reordered
		if err := r.rewritePlan(target, plan); err != nil {
			return err
		}
		r.event.Payload["action"] = string(domain.ActionReorderSets)
		return nil
	}
	return domain.NewFieldError(domain.CodeNotFound,
		"exercise not in session plan", "payload.exerciseId", p.ExerciseID)
}

// changePhase handles PAUSE / RESUME / COMPLETE: phase transition only.
// The phase guard already vetted the current phase.
func changePhase(r *reduction) error {
	var to domain.Phase
	switch r.action.Type {
	case domain.ActionPause:
		to = domain.PhasePaused
	case domain.ActionResume:
		to = domain.PhaseActive
	case domain.ActionComplete:
		to = domain.PhaseAnalysis
	}
	r.setPhase(to)
	r.event.Type = domain.EventPhaseChanged
	r.event.Payload = map[string]any{"phase": string(to)}
	return nil
}

// undo derives and applies the inverse of the most recent reversible
// commit. The undo commit itself is not reversible, so undo chains stop
// after one step.
func undo(r *reduction) error {
	last := r.state.LastEvent
	if last == nil || !last.Reversible {
		return domain.NewError(domain.CodeUndoNotPossible,
			"no reversible event to undo")
	}
	window := r.state.UndoWindow
	if window <= 0 {
		window = DefaultUndoWindow
	}
	if r.now.Sub(last.CreatedAt) > window {
		return domain.NewError(domain.CodeUndoNotPossible,
			fmt.Sprintf("last reversible event is older than %s", window))
	}

	if err := r.applyDiffs(last.InverseDiffs()); err != nil {
		return err
	}

	r.event.Type = domain.EventActionUndone
	r.event.Reversible = false
	r.event.Payload = map[string]any{
		"undoneVersion": last.Version,
		"undoneType":    string(last.Type),
	}
	return nil
}

// --- small shared pieces ---

// workoutTarget loads the action's target card and checks the common
// preconditions of the in-place mutation actions.
func (r *reduction) workoutTarget() (*domain.Card, error) {
	target, err := r.findCard(r.action.TargetID)
	if err != nil {
		return nil, err
	}
	if target.Status.Terminal() {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"target card is terminal", "action.targetId",
			fmt.Sprintf("status is %s", target.Status))
	}
	if target.Lane != domain.LaneWorkout {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"target card is not in the workout lane", "action.targetId", string(target.Lane))
	}
	return target, nil
}

func decodeSessionPlan(card *domain.Card) (*domain.SessionPlanContent, error) {
	if card.Type != domain.CardTypeSessionPlan {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"target card is not a session plan", "action.targetId", string(card.Type))
	}
	decoded, err := domain.DecodeContent(domain.CardTypeSessionPlan, card.Content)
	if err != nil {
		return nil, err
	}
	return decoded.(*domain.SessionPlanContent), nil
}

func planHasSlot(plan *domain.SessionPlanContent, exerciseID string, setIndex int) bool {
	for _, ex := range plan.Exercises {
		if ex.ExerciseID != exerciseID {
			continue
		}
		for _, set := range ex.Sets {
			if set.SetIndex == setIndex {
				return true
			}
		}
	}
	return false
}

// rewritePlan re-encodes mutated plan content onto the card with a content
// diff and seeds the card_mutated event.
func (r *reduction) rewritePlan(target *domain.Card, plan *domain.SessionPlanContent) error {
	encoded, err := domain.EncodeContent(plan)
	if err != nil {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"plan content is not encodable", "content", err.Error())
	}
	before := target.Content
	target.Content = encoded
	target.UpdatedAt = r.now
	r.appendDiff(domain.Diff{Path: cardContentPath(target.ID), Before: before, After: encoded})
	r.upsert(*target)

	r.event.Type = domain.EventCardMutated
	if r.event.Payload == nil {
		r.event.Payload = map[string]any{"cardId": target.ID.Hex()}
	} else {
		r.event.Payload["cardId"] = target.ID.Hex()
	}
	return nil
}
