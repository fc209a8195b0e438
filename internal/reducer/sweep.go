package reducer

import (
	"time"

	"alcyxob/fitness-workspace/internal/domain"
)

// SweepExpired computes the commit that expires every overdue proposal in
// the loaded state. Returns (nil, nil) when nothing is overdue, so a sweep
// against a quiet workspace consumes no version and appends no event.
// Sweep commits are system-caused and not reversible: undoing an expiry
// would only re-expire on the next pass.
func SweepExpired(state *State, now time.Time) (*Result, error) {
	if state == nil || state.Workspace == nil {
		return nil, domain.NewError(domain.CodeNotFound, "workspace not loaded")
	}

	var overdue []*domain.Card
	for i := range state.Cards {
		if state.Cards[i].ExpiredBy(now) {
			overdue = append(overdue, &state.Cards[i])
		}
	}
	if len(overdue) == 0 {
		return nil, nil
	}

	ws := state.Workspace
	nextVersion := ws.Version + 1
	r := &reduction{
		state:  state,
		action: &domain.Action{Origin: domain.OriginSystem},
		now:    now,
		result: &Result{Phase: ws.Phase},
		event: &domain.Event{
			WorkspaceID:   ws.ID,
			Version:       nextVersion,
			CorrelationID: domain.CorrelationID(ws.ID, nextVersion),
			Type:          domain.EventCardsExpired,
			CausedBy:      domain.OriginSystem,
			Reversible:    false,
			CreatedAt:     now,
		},
	}

	expired := make([]string, 0, len(overdue))
	for _, card := range overdue {
		if err := r.transition(card, domain.StatusExpired, false); err != nil {
			return nil, err
		}
		r.dropFromQueue(card.ID)
		expired = append(expired, card.ID.Hex())
	}
	r.event.Payload = map[string]any{"cardIds": domain.SummarizeIDs(expired)}

	r.result.Event = r.event
	r.result.Commit.NewVersion = nextVersion
	r.result.Commit.Phase = r.result.Phase
	return r.result, nil
}
