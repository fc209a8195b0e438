package reducer

import (
	"testing"
	"time"

	"alcyxob/fitness-workspace/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func testWorkspace(phase domain.Phase, version int64) *domain.Workspace {
	return &domain.Workspace{
		ID:      primitive.NewObjectID(),
		OwnerID: primitive.NewObjectID(),
		Purpose: "strength-block",
		Phase:   phase,
		Version: version,
		Lanes:   []domain.Lane{domain.LaneWorkout, domain.LaneAnalysis, domain.LaneSystem},
	}
}

func planContent(t *testing.T) map[string]any {
	t.Helper()
	content, err := domain.EncodeContent(&domain.SessionPlanContent{
		Title: "Push day",
		Exercises: []domain.PlannedExercise{
			{ExerciseID: "bench", Name: "Bench Press", Sets: []domain.PlannedSet{
				{SetIndex: 0, TargetReps: 8, TargetRIR: 2, LoadKg: 80},
				{SetIndex: 1, TargetReps: 8, TargetRIR: 2, LoadKg: 80},
			}},
		},
	})
	require.NoError(t, err)
	return content
}

func queued(ws *domain.Workspace, card *domain.Card, priority int) domain.QueueEntry {
	return domain.QueueEntry{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		CardID:      card.ID,
		Lane:        card.Lane,
		Priority:    priority,
		InsertedAt:  testNow.Add(-time.Hour),
	}
}

func action(t domain.ActionType, target primitive.ObjectID) *domain.Action {
	return &domain.Action{
		Type:           t,
		TargetID:       target,
		IdempotencyKey: "test-key",
		Origin:         domain.OriginUser,
	}
}

func TestLogSetCompletesTargetAndRecordsResult(t *testing.T) {
	ws := testWorkspace(domain.PhaseActive, 5)
	setIndex := 2
	target := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeInstruction,
		Status:      domain.StatusActive,
		Lane:        domain.LaneWorkout,
		Content:     map[string]any{"text": "bench set 3"},
		Refs:        &domain.CardRefs{ExerciseID: "bench", SetIndex: &setIndex},
	}
	state := &State{
		Workspace: ws,
		Cards:     []domain.Card{target},
		Queue:     []domain.QueueEntry{queued(ws, &target, 5)},
	}

	payload := &domain.LogSetPayload{Reps: 8, RIR: 2, LoadKg: 100}
	result, err := Reduce(state, action(domain.ActionLogSet, target.ID), payload, testNow)
	require.NoError(t, err)

	assert.Equal(t, int64(6), result.Commit.NewVersion)
	assert.Equal(t, int64(6), result.Event.Version)
	assert.Equal(t, domain.EventSetLogged, result.Event.Type)
	assert.Equal(t, domain.CorrelationID(ws.ID, 6), result.Event.CorrelationID)

	// The target completes and leaves the queue.
	require.NotEmpty(t, result.Upserts)
	assert.Equal(t, domain.StatusCompleted, result.Upserts[0].Status)
	assert.Equal(t, []primitive.ObjectID{target.ID}, result.QueueRemovals)

	// A completed set_result card appears with the computed volume.
	var resultCard *domain.Card
	for i := range result.Upserts {
		if result.Upserts[i].Type == domain.CardTypeSetResult {
			resultCard = &result.Upserts[i]
		}
	}
	require.NotNil(t, resultCard)
	assert.Equal(t, domain.StatusCompleted, resultCard.Status)
	assert.Equal(t, 800.0, resultCard.Content["volumeKg"])
	assert.Equal(t, "bench", resultCard.Refs.ExerciseID)
	assert.Equal(t, 2, *resultCard.Refs.SetIndex)
}

func TestLogSetAgainstPlanRequiresKnownSlot(t *testing.T) {
	ws := testWorkspace(domain.PhaseActive, 1)
	plan := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeSessionPlan,
		Status:      domain.StatusAccepted,
		Lane:        domain.LaneWorkout,
		Content:     planContent(t),
	}
	state := &State{Workspace: ws, Cards: []domain.Card{plan}}

	missing := 7
	payload := &domain.LogSetPayload{Reps: 8, RIR: 2, LoadKg: 80, ExerciseID: "bench", SetIndex: &missing}
	_, err := Reduce(state, action(domain.ActionLogSet, plan.ID), payload, testNow)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	// A slot the plan actually prescribes is loggable.
	known := 1
	payload = &domain.LogSetPayload{Reps: 8, RIR: 2, LoadKg: 80, ExerciseID: "bench", SetIndex: &known}
	result, err := Reduce(state, action(domain.ActionLogSet, plan.ID), payload, testNow)
	require.NoError(t, err)

	// The plan itself stays accepted; only the result card is written.
	for _, up := range result.Upserts {
		if up.ID == plan.ID {
			t.Fatalf("plan card should not be rewritten by LOG_SET")
		}
	}
}

func TestAcceptSessionPlanActivatesWorkspace(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 3)
	proposal := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeSessionPlan,
		Status:      domain.StatusProposed,
		Lane:        domain.LaneWorkout,
		Content:     planContent(t),
	}
	state := &State{
		Workspace: ws,
		Cards:     []domain.Card{proposal},
		Queue:     []domain.QueueEntry{queued(ws, &proposal, 8)},
	}

	result, err := Reduce(state, action(domain.ActionAcceptProposal, proposal.ID), nil, testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseActive, result.Phase)
	assert.Equal(t, domain.PhaseActive, result.Commit.Phase)
	assert.Equal(t, domain.StatusAccepted, result.Upserts[0].Status)
	assert.Equal(t, []primitive.ObjectID{proposal.ID}, result.QueueRemovals)
	assert.Equal(t, domain.EventProposalDecided, result.Event.Type)

	// The phase change rides the same event as a diff.
	var phaseDiff bool
	for _, d := range result.Event.Diffs {
		if d.Path == "workspace/phase" {
			phaseDiff = true
			assert.Equal(t, "planning", d.Before)
			assert.Equal(t, "active", d.After)
		}
	}
	assert.True(t, phaseDiff)
}

func TestRejectProposalDoesNotChangePhase(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 0)
	proposal := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeSessionPlan,
		Status:      domain.StatusProposed,
		Lane:        domain.LaneWorkout,
		Content:     planContent(t),
	}
	state := &State{Workspace: ws, Cards: []domain.Card{proposal}}

	result, err := Reduce(state, action(domain.ActionRejectProposal, proposal.ID), nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePlanning, result.Phase)
	assert.Equal(t, domain.StatusRejected, result.Upserts[0].Status)
}

func TestAcceptExpiresTopicMatesButNeverWorkoutLane(t *testing.T) {
	ws := testWorkspace(domain.PhaseAnalysis, 10)
	accepted := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeAnalysis,
		Status:      domain.StatusProposed,
		Lane:        domain.LaneAnalysis,
		Content:     map[string]any{"summary": "fresh weekly summary"},
		Refs:        &domain.CardRefs{TopicKey: "weekly-summary"},
	}
	staleMate := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeAnalysis,
		Status:      domain.StatusActive,
		Lane:        domain.LaneAnalysis,
		Content:     map[string]any{"summary": "old weekly summary"},
		Refs:        &domain.CardRefs{TopicKey: "weekly-summary"},
	}
	workoutMate := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeSessionPlan,
		Status:      domain.StatusAccepted,
		Lane:        domain.LaneWorkout,
		Content:     planContent(t),
		Refs:        &domain.CardRefs{TopicKey: "weekly-summary"},
	}
	state := &State{Workspace: ws, Cards: []domain.Card{accepted, staleMate, workoutMate}}

	result, err := Reduce(state, action(domain.ActionAcceptProposal, accepted.ID), nil, testNow)
	require.NoError(t, err)

	statuses := make(map[primitive.ObjectID]domain.CardStatus)
	for _, up := range result.Upserts {
		statuses[up.ID] = up.Status
	}
	assert.Equal(t, domain.StatusAccepted, statuses[accepted.ID])
	assert.Equal(t, domain.StatusExpired, statuses[staleMate.ID])
	_, touched := statuses[workoutMate.ID]
	assert.False(t, touched, "workout-lane cards are never auto-expired")
}

func TestGroupDecisionIsAtomic(t *testing.T) {
	ws := testWorkspace(domain.PhaseAnalysis, 2)
	a := domain.Card{
		ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
		Type: domain.CardTypeNote, Status: domain.StatusProposed,
		Lane: domain.LaneAnalysis, Content: map[string]any{"text": "a"},
		Refs: &domain.CardRefs{GroupID: "g1"},
	}
	b := domain.Card{
		ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
		Type: domain.CardTypeNote, Status: domain.StatusProposed,
		Lane: domain.LaneAnalysis, Content: map[string]any{"text": "b"},
		Refs: &domain.CardRefs{GroupID: "g1"},
	}
	state := &State{Workspace: ws, Cards: []domain.Card{a, b}}

	act := &domain.Action{Type: domain.ActionAcceptAll, GroupID: "g1", IdempotencyKey: "k", Origin: domain.OriginUser}
	result, err := Reduce(state, act, nil, testNow)
	require.NoError(t, err)
	require.Len(t, result.Upserts, 2)
	for _, up := range result.Upserts {
		assert.Equal(t, domain.StatusAccepted, up.Status)
	}

	// A group containing a decided card refuses entirely.
	b.Status = domain.StatusRejected
	state = &State{Workspace: ws, Cards: []domain.Card{a, b}}
	_, err = Reduce(state, act, nil, testNow)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidArgument))
}

func TestPhaseGuardBlocksLogSetOutsideActive(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 0)
	state := &State{Workspace: ws}

	payload := &domain.LogSetPayload{Reps: 5, RIR: 2, LoadKg: 60}
	_, err := Reduce(state, action(domain.ActionLogSet, primitive.NewObjectID()), payload, testNow)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodePhaseGuard))
}

func TestPhaseTransitions(t *testing.T) {
	ws := testWorkspace(domain.PhaseActive, 7)
	state := &State{Workspace: ws}

	result, err := Reduce(state, action(domain.ActionPause, primitive.NilObjectID), nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePaused, result.Phase)
	assert.Equal(t, domain.EventPhaseChanged, result.Event.Type)

	// RESUME is only valid while paused.
	_, err = Reduce(state, action(domain.ActionResume, primitive.NilObjectID), nil, testNow)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodePhaseGuard))

	ws.Phase = domain.PhasePaused
	result, err = Reduce(state, action(domain.ActionComplete, primitive.NilObjectID), nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAnalysis, result.Phase)
}

func TestSetPairUniquenessOnSwap(t *testing.T) {
	ws := testWorkspace(domain.PhaseActive, 4)
	one := 1
	target := domain.Card{
		ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
		Type: domain.CardTypeInstruction, Status: domain.StatusActive,
		Lane: domain.LaneWorkout, Content: map[string]any{"text": "ohp set"},
		Refs: &domain.CardRefs{ExerciseID: "ohp", SetIndex: &one},
	}
	holder := domain.Card{
		ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
		Type: domain.CardTypeInstruction, Status: domain.StatusActive,
		Lane: domain.LaneWorkout, Content: map[string]any{"text": "incline set"},
		Refs: &domain.CardRefs{ExerciseID: "incline", SetIndex: &one},
	}
	state := &State{Workspace: ws, Cards: []domain.Card{target, holder}}

	payload := &domain.SwapPayload{ExerciseID: "incline", Name: "Incline Press"}
	_, err := Reduce(state, action(domain.ActionSwap, target.ID), payload, testNow)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidArgument))

	// Swapping to a free slot goes through and rewrites the refs.
	payload = &domain.SwapPayload{ExerciseID: "dips", Name: "Dips"}
	result, err := Reduce(state, action(domain.ActionSwap, target.ID), payload, testNow)
	require.NoError(t, err)
	assert.Equal(t, "dips", result.Upserts[0].Refs.ExerciseID)
}

func TestUndoRevertsLastCommit(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 0)
	addState := &State{Workspace: ws}
	addPayload := &domain.AddTextPayload{Text: "remember to warm up", Lane: domain.LaneSystem}
	added, err := Reduce(addState, &domain.Action{
		Type: domain.ActionAddNote, Payload: map[string]any{"text": "remember to warm up"},
		IdempotencyKey: "k1", Origin: domain.OriginUser,
	}, addPayload, testNow)
	require.NoError(t, err)
	cardID := added.Upserts[0].ID

	ws.Version = 1
	undoState := &State{
		Workspace: ws,
		Cards:     added.Upserts,
		LastEvent: added.Event,
	}
	undone, err := Reduce(undoState, action(domain.ActionUndo, primitive.NilObjectID), nil, testNow.Add(5*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, []primitive.ObjectID{cardID}, undone.Removals)
	assert.Equal(t, domain.EventActionUndone, undone.Event.Type)
	assert.False(t, undone.Event.Reversible, "undo of an undo is not possible")
	assert.Equal(t, int64(2), undone.Commit.NewVersion)
}

func TestUndoRefusesOutsideWindow(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 1)
	last := &domain.Event{
		WorkspaceID: ws.ID, Version: 1, Type: domain.EventCardAdded,
		Reversible: true, CreatedAt: testNow,
	}
	state := &State{Workspace: ws, LastEvent: last}

	_, err := Reduce(state, action(domain.ActionUndo, primitive.NilObjectID), nil, testNow.Add(16*time.Minute))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeUndoNotPossible))
}

func TestUndoRefusesIrreversibleEvent(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 2)
	last := &domain.Event{
		WorkspaceID: ws.ID, Version: 2, Type: domain.EventActionUndone,
		Reversible: false, CreatedAt: testNow,
	}
	state := &State{Workspace: ws, LastEvent: last}

	_, err := Reduce(state, action(domain.ActionUndo, primitive.NilObjectID), nil, testNow.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeUndoNotPossible))

	// No events at all is the same refusal.
	state.LastEvent = nil
	_, err = Reduce(state, action(domain.ActionUndo, primitive.NilObjectID), nil, testNow)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeUndoNotPossible))
}

func TestSweepExpiredProposals(t *testing.T) {
	ws := testWorkspace(domain.PhaseActive, 8)
	overdueAt := testNow.Add(-61 * time.Minute)
	overdue := domain.Card{
		ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
		Type: domain.CardTypeNote, Status: domain.StatusProposed,
		Lane: domain.LaneAnalysis, Content: map[string]any{"text": "stale"},
		ExpiresAt: &overdueAt,
	}
	freshAt := testNow.Add(30 * time.Minute)
	fresh := domain.Card{
		ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
		Type: domain.CardTypeNote, Status: domain.StatusProposed,
		Lane: domain.LaneAnalysis, Content: map[string]any{"text": "fresh"},
		ExpiresAt: &freshAt,
	}
	state := &State{
		Workspace: ws,
		Cards:     []domain.Card{overdue, fresh},
		Queue:     []domain.QueueEntry{queued(ws, &overdue, 3)},
	}

	result, err := SweepExpired(state, testNow)
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, result.Upserts, 1)
	assert.Equal(t, overdue.ID, result.Upserts[0].ID)
	assert.Equal(t, domain.StatusExpired, result.Upserts[0].Status)
	assert.Equal(t, []primitive.ObjectID{overdue.ID}, result.QueueRemovals)
	assert.Equal(t, domain.EventCardsExpired, result.Event.Type)
	assert.False(t, result.Event.Reversible)
	assert.Equal(t, int64(9), result.Commit.NewVersion)
}

func TestSweepIsNoopWithoutOverdueProposals(t *testing.T) {
	ws := testWorkspace(domain.PhaseActive, 8)
	freshAt := testNow.Add(time.Hour)
	fresh := domain.Card{
		ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
		Type: domain.CardTypeNote, Status: domain.StatusProposed,
		Lane: domain.LaneAnalysis, Content: map[string]any{"text": "fresh"},
		ExpiresAt: &freshAt,
	}
	state := &State{Workspace: ws, Cards: []domain.Card{fresh}}

	result, err := SweepExpired(state, testNow)
	require.NoError(t, err)
	assert.Nil(t, result, "a quiet sweep consumes no version")
}

func TestAcceptSessionPlanReactivatesFromAnalysis(t *testing.T) {
	ws := testWorkspace(domain.PhaseAnalysis, 12)
	plan := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeSessionPlan,
		Status:      domain.StatusProposed,
		Lane:        domain.LaneWorkout,
		Content:     planContent(t),
	}
	state := &State{Workspace: ws, Cards: []domain.Card{plan}}

	// Phases cycle: after COMPLETE moved the workspace to analysis, the
	// next accepted session plan starts the next session.
	result, err := Reduce(state, action(domain.ActionAcceptProposal, plan.ID), nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, result.Phase)

	var phaseDiff *domain.Diff
	for i := range result.Event.Diffs {
		if result.Event.Diffs[i].Path == "workspace/phase" {
			phaseDiff = &result.Event.Diffs[i]
		}
	}
	require.NotNil(t, phaseDiff)
	assert.Equal(t, string(domain.PhaseAnalysis), phaseDiff.Before)
	assert.Equal(t, string(domain.PhaseActive), phaseDiff.After)
}

func TestDecidedProposalCarriesWholeCardDiff(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 3)
	proposal := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeNote,
		Status:      domain.StatusProposed,
		Lane:        domain.LaneAnalysis,
		Content:     map[string]any{"text": "deload next week"},
	}
	state := &State{Workspace: ws, Cards: []domain.Card{proposal}}

	result, err := Reduce(state, action(domain.ActionAcceptProposal, proposal.ID), nil, testNow)
	require.NoError(t, err)

	// Proposals enter the store without an event, so the deciding event
	// must carry the whole card, not a bare status value.
	var whole *domain.Diff
	for i := range result.Event.Diffs {
		d := &result.Event.Diffs[i]
		assert.NotEqual(t, "card/"+proposal.ID.Hex()+"/status", d.Path)
		if d.Path == "card/"+proposal.ID.Hex() {
			whole = d
		}
	}
	require.NotNil(t, whole)
	before, ok := whole.Before.(domain.Card)
	require.True(t, ok)
	assert.Equal(t, domain.StatusProposed, before.Status)
	after, ok := whole.After.(domain.Card)
	require.True(t, ok)
	assert.Equal(t, domain.StatusAccepted, after.Status)
}

func TestUndoDecisionRestoresProposedCard(t *testing.T) {
	ws := testWorkspace(domain.PhaseAnalysis, 6)
	proposal := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeNote,
		Status:      domain.StatusProposed,
		Lane:        domain.LaneAnalysis,
		Content:     map[string]any{"text": "bump squat volume"},
	}
	entry := queued(ws, &proposal, 4)
	accepted, err := Reduce(&State{
		Workspace: ws,
		Cards:     []domain.Card{proposal},
		Queue:     []domain.QueueEntry{entry},
	}, action(domain.ActionAcceptProposal, proposal.ID), nil, testNow)
	require.NoError(t, err)

	ws.Version = 7
	undone, err := Reduce(&State{
		Workspace: ws,
		Cards:     accepted.Upserts,
		LastEvent: accepted.Event,
	}, action(domain.ActionUndo, primitive.NilObjectID), nil, testNow.Add(time.Minute))
	require.NoError(t, err)

	require.Len(t, undone.Upserts, 1)
	assert.Equal(t, domain.StatusProposed, undone.Upserts[0].Status)
	require.Len(t, undone.QueueAdds, 1)
	assert.Equal(t, proposal.ID, undone.QueueAdds[0].CardID)
}

func TestGroupWithTwoSessionPlansEmitsOnePhaseDiff(t *testing.T) {
	ws := testWorkspace(domain.PhasePlanning, 0)
	mkPlan := func() domain.Card {
		return domain.Card{
			ID: primitive.NewObjectID(), WorkspaceID: ws.ID,
			Type: domain.CardTypeSessionPlan, Status: domain.StatusProposed,
			Lane: domain.LaneWorkout, Content: planContent(t),
			Refs: &domain.CardRefs{GroupID: "g1"},
		}
	}
	state := &State{Workspace: ws, Cards: []domain.Card{mkPlan(), mkPlan()}}

	act := &domain.Action{Type: domain.ActionAcceptAll, GroupID: "g1", IdempotencyKey: "k", Origin: domain.OriginUser}
	result, err := Reduce(state, act, nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, result.Phase)

	phaseDiffs := 0
	for _, d := range result.Event.Diffs {
		if d.Path == "workspace/phase" {
			phaseDiffs++
		}
	}
	assert.Equal(t, 1, phaseDiffs)
}
