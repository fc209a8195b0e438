package reducer

import (
	"fmt"

	"alcyxob/fitness-workspace/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Materialized is workspace state reconstructed purely from the event log.
// Replaying from version 0 against a fresh workspace must reproduce the
// exact live card/queue state; the replay endpoint compares the two.
type Materialized struct {
	Phase   domain.Phase
	Version int64
	Cards   map[primitive.ObjectID]domain.Card
	Queue   map[primitive.ObjectID]domain.QueueEntry // keyed by card id
}

// NewMaterialized starts a fold from the fresh-workspace state.
func NewMaterialized() *Materialized {
	return &Materialized{
		Phase:   domain.PhasePlanning,
		Version: 0,
		Cards:   make(map[primitive.ObjectID]domain.Card),
		Queue:   make(map[primitive.ObjectID]domain.QueueEntry),
	}
}

// Replay folds events, in version order, into the materialized state.
// Events must be contiguous: a gap means the log was tampered with or the
// read was inconsistent, and the fold refuses to continue.
func (m *Materialized) Replay(events []domain.Event) error {
	for i := range events {
		e := &events[i]
		if e.Version != m.Version+1 {
			return fmt.Errorf("event log gap: have version %d, next event is %d", m.Version, e.Version)
		}
		for _, d := range e.Diffs {
			if err := m.apply(d); err != nil {
				return fmt.Errorf("event version %d: %w", e.Version, err)
			}
		}
		m.Version = e.Version
	}
	return nil
}

func (m *Materialized) apply(d domain.Diff) error {
	pp, err := parsePath(d.Path)
	if err != nil {
		return err
	}
	switch pp.kind {
	case "workspace":
		phase, ok := asString(d.After)
		if !ok || !domain.Phase(phase).Valid() {
			return fmt.Errorf("bad phase value in diff %q", d.Path)
		}
		m.Phase = domain.Phase(phase)

	case "card":
		return m.applyCard(pp, d)

	case "queue":
		if d.After == nil {
			delete(m.Queue, pp.id)
			return nil
		}
		entry, err := decodeQueueSnapshot(d.After)
		if err != nil {
			return err
		}
		m.Queue[entry.CardID] = entry
	}
	return nil
}

func (m *Materialized) applyCard(pp parsedPath, d domain.Diff) error {
	switch pp.field {
	case "":
		if d.After == nil {
			delete(m.Cards, pp.id)
			delete(m.Queue, pp.id)
			return nil
		}
		card, err := decodeCardSnapshot(d.After)
		if err != nil {
			return err
		}
		m.Cards[card.ID] = card
		return nil
	case "status":
		card, ok := m.Cards[pp.id]
		if !ok {
			return fmt.Errorf("status diff for unknown card %s", pp.id.Hex())
		}
		status, okStr := asString(d.After)
		if !okStr {
			return fmt.Errorf("bad status value for card %s", pp.id.Hex())
		}
		card.Status = domain.CardStatus(status)
		m.Cards[pp.id] = card
		return nil
	case "content":
		card, ok := m.Cards[pp.id]
		if !ok {
			return fmt.Errorf("content diff for unknown card %s", pp.id.Hex())
		}
		content, err := decodeContentSnapshot(d.After)
		if err != nil {
			return err
		}
		card.Content = content
		m.Cards[pp.id] = card
		return nil
	case "refs":
		card, ok := m.Cards[pp.id]
		if !ok {
			return fmt.Errorf("refs diff for unknown card %s", pp.id.Hex())
		}
		refs, err := decodeRefsSnapshot(d.After)
		if err != nil {
			return err
		}
		card.Refs = refs
		m.Cards[pp.id] = card
		return nil
	}
	return fmt.Errorf("unsupported card diff field %q", pp.field)
}
