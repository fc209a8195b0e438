package reducer

import (
	"fmt"
	"strings"

	"alcyxob/fitness-workspace/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Diff path grammar. Everything an event can change is addressable here,
// which is what makes undo and replay generic instead of per-action code.
const phasePath = "workspace/phase"

func cardPath(id primitive.ObjectID) string        { return "card/" + id.Hex() }
func cardStatusPath(id primitive.ObjectID) string  { return "card/" + id.Hex() + "/status" }
func cardContentPath(id primitive.ObjectID) string { return "card/" + id.Hex() + "/content" }
func cardRefsPath(id primitive.ObjectID) string    { return "card/" + id.Hex() + "/refs" }
func queuePath(cardID primitive.ObjectID) string   { return "queue/" + cardID.Hex() }

// queueSnapshot is the value stored in queue diffs.
func queueSnapshot(e domain.QueueEntry) domain.QueueEntry { return e }

// parsedPath is one decoded diff path.
type parsedPath struct {
	kind  string // "workspace", "card", "queue"
	id    primitive.ObjectID
	field string // "", "status", "content", "refs", "phase"
}

func parsePath(p string) (parsedPath, error) {
	parts := strings.Split(p, "/")
	switch {
	case len(parts) == 2 && parts[0] == "workspace":
		return parsedPath{kind: "workspace", field: parts[1]}, nil
	case (len(parts) == 2 || len(parts) == 3) && (parts[0] == "card" || parts[0] == "queue"):
		id, err := primitive.ObjectIDFromHex(parts[1])
		if err != nil {
			return parsedPath{}, fmt.Errorf("diff path %q: %w", p, err)
		}
		pp := parsedPath{kind: parts[0], id: id}
		if len(parts) == 3 {
			pp.field = parts[2]
		}
		return pp, nil
	}
	return parsedPath{}, fmt.Errorf("unrecognized diff path %q", p)
}

// Snapshot values round-trip through BSON: in memory they are the domain
// structs, persisted and re-read they come back as primitive.M. A marshal/
// unmarshal pair normalizes both into the typed form.

func decodeCardSnapshot(v any) (domain.Card, error) {
	var card domain.Card
	if err := bsonRoundTrip(v, &card); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

func decodeQueueSnapshot(v any) (domain.QueueEntry, error) {
	var entry domain.QueueEntry
	if err := bsonRoundTrip(v, &entry); err != nil {
		return domain.QueueEntry{}, err
	}
	return entry, nil
}

func decodeRefsSnapshot(v any) (*domain.CardRefs, error) {
	if v == nil {
		return nil, nil
	}
	var refs domain.CardRefs
	if err := bsonRoundTrip(v, &refs); err != nil {
		return nil, err
	}
	return &refs, nil
}

func decodeContentSnapshot(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	var content map[string]any
	if err := bsonRoundTrip(v, &content); err != nil {
		return nil, err
	}
	return content, nil
}

func bsonRoundTrip(in, out any) error {
	data, err := bson.Marshal(in)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, out)
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// applyDiffs applies a diff list (the inverse of a prior event) to the
// working reduction, recording every applied diff on the new event so that
// replay treats undo commits like any other.
func (r *reduction) applyDiffs(diffs []domain.Diff) error {
	for _, d := range diffs {
		pp, err := parsePath(d.Path)
		if err != nil {
			return domain.NewError(domain.CodeUndoNotPossible, err.Error())
		}
		switch pp.kind {
		case "workspace":
			if pp.field != "phase" {
				return domain.NewError(domain.CodeUndoNotPossible,
					"unsupported workspace diff field "+pp.field)
			}
			phase, ok := asString(d.After)
			if !ok || !domain.Phase(phase).Valid() {
				return domain.NewError(domain.CodeUndoNotPossible, "bad phase value in diff")
			}
			// setPhase records its own diff.
			r.setPhase(domain.Phase(phase))
			continue

		case "card":
			if err := r.applyCardDiff(pp, d); err != nil {
				return err
			}

		case "queue":
			if d.After == nil {
				r.dropFromQueue(pp.id)
				continue
			}
			entry, err := decodeQueueSnapshot(d.After)
			if err != nil {
				return domain.NewError(domain.CodeUndoNotPossible, err.Error())
			}
			r.result.QueueAdds = append(r.result.QueueAdds, entry)
			r.result.Commit.QueueDelta = append(r.result.Commit.QueueDelta,
				domain.QueueChange{Op: domain.QueueOpAdd, CardID: entry.CardID})
			r.appendDiff(d)
			continue
		}
		if pp.kind != "queue" {
			r.appendDiff(d)
		}
	}
	return nil
}

func (r *reduction) applyCardDiff(pp parsedPath, d domain.Diff) error {
	switch pp.field {
	case "": // whole-card snapshot
		if d.After == nil {
			// Undoing a creation removes the card.
			r.result.Removals = append(r.result.Removals, pp.id)
			r.dropFromQueue(pp.id)
			return nil
		}
		card, err := decodeCardSnapshot(d.After)
		if err != nil {
			return domain.NewError(domain.CodeUndoNotPossible, err.Error())
		}
		if card.Status == domain.StatusProposed || card.Status == domain.StatusActive {
			if err := r.checkSetPairFree(&card, nil); err != nil {
				return err
			}
		}
		r.upsert(card)
		return nil

	case "status":
		card, err := r.findCard(pp.id)
		if err != nil {
			return err
		}
		status, ok := asString(d.After)
		if !ok {
			return domain.NewError(domain.CodeUndoNotPossible, "bad status value in diff")
		}
		card.Status = domain.CardStatus(status)
		card.UpdatedAt = r.now
		if card.Status == domain.StatusProposed || card.Status == domain.StatusActive {
			if err := r.checkSetPairFree(card, nil); err != nil {
				return err
			}
		}
		r.upsert(*card)
		return nil

	case "content":
		card, err := r.findCard(pp.id)
		if err != nil {
			return err
		}
		content, err := decodeContentSnapshot(d.After)
		if err != nil {
			return domain.NewError(domain.CodeUndoNotPossible, err.Error())
		}
		card.Content = content
		card.UpdatedAt = r.now
		r.upsert(*card)
		return nil

	case "refs":
		card, err := r.findCard(pp.id)
		if err != nil {
			return err
		}
		refs, err := decodeRefsSnapshot(d.After)
		if err != nil {
			return domain.NewError(domain.CodeUndoNotPossible, err.Error())
		}
		card.Refs = refs
		card.UpdatedAt = r.now
		if card.Status == domain.StatusProposed || card.Status == domain.StatusActive {
			if err := r.checkSetPairFree(card, nil); err != nil {
				return err
			}
		}
		r.upsert(*card)
		return nil
	}
	return domain.NewError(domain.CodeUndoNotPossible, "unsupported card diff field "+pp.field)
}
