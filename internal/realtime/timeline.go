package realtime

import (
	"sort"
	"time"

	"chat-sync/internal/models"
)

type entry struct {
	msg models.Message
}

// timeline holds one room's messages in arrival order. Reads sort by timestamp;
// the sort is stable, so arrival order breaks ties.
type timeline struct {
	entries    []*entry
	byID       map[string]*entry
	byClientID map[string]*entry
}

func newTimeline() *timeline {
	return &timeline{
		byID:       make(map[string]*entry),
		byClientID: make(map[string]*entry),
	}
}

func (t *timeline) append(msg models.Message) *entry {
	e := &entry{msg: msg}
	t.entries = append(t.entries, e)
	t.index(e)
	return e
}

func (t *timeline) index(e *entry) {
	if e.msg.ID != "" {
		t.byID[e.msg.ID] = e
	}
	if e.msg.ClientMessageID != "" {
		t.byClientID[e.msg.ClientMessageID] = e
	}
}

// match finds the optimistic entry that confirmed stands for: first by client
// message id, then, for own messages, the oldest still-sending entry with the same
// body, kind and sender timestamped within window. Failed entries are never matched
// by content; a resend of the same text has its own entry.
func (t *timeline) match(confirmed models.Message, window time.Duration) *entry {
	if confirmed.ClientMessageID != "" {
		if e, ok := t.byClientID[confirmed.ClientMessageID]; ok && e.msg.Provisional {
			return e
		}
	}
	if !confirmed.Own {
		return nil
	}
	for _, e := range t.entries {
		m := e.msg
		if !m.Provisional || m.Status != models.StatusSending {
			continue
		}
		if m.SenderID != confirmed.SenderID || m.Body != confirmed.Body || m.Kind != confirmed.Kind {
			continue
		}
		if absDuration(confirmed.CreatedAt.Sub(m.CreatedAt)) <= window {
			return e
		}
	}
	return nil
}

// adopt links a still-sending optimistic message to a confirmed own entry with the
// same content that no optimistic message has claimed yet.
func (t *timeline) adopt(provisional models.Message, window time.Duration) bool {
	if provisional.Status != models.StatusSending {
		return false
	}
	for _, e := range t.entries {
		m := e.msg
		if m.Provisional || !m.Own || m.ClientMessageID != "" {
			continue
		}
		if m.SenderID != provisional.SenderID || m.Body != provisional.Body || m.Kind != provisional.Kind {
			continue
		}
		if absDuration(m.CreatedAt.Sub(provisional.CreatedAt)) <= window {
			e.msg.ClientMessageID = provisional.ClientMessageID
			t.index(e)
			return true
		}
	}
	return false
}

// replace swaps a provisional entry for its server copy, keeping its place in arrival order.
func (t *timeline) replace(e *entry, confirmed models.Message, status models.DeliveryStatus) {
	if e.msg.ID != confirmed.ID {
		delete(t.byID, e.msg.ID)
	}
	if confirmed.ClientMessageID == "" {
		confirmed.ClientMessageID = e.msg.ClientMessageID
	}
	confirmed.Own = true
	confirmed.Provisional = false
	confirmed.Status = furthest(furthest(e.msg.Status, confirmed.Status), status)
	e.msg = confirmed
	t.index(e)
}

func (t *timeline) advance(e *entry, status models.DeliveryStatus) bool {
	next := furthest(e.msg.Status, status)
	if next == e.msg.Status {
		return false
	}
	e.msg.Status = next
	return true
}

// markFailed flags a still-sending optimistic entry as failed.
func (t *timeline) markFailed(clientID string) bool {
	e, ok := t.byClientID[clientID]
	if !ok || e.msg.Status != models.StatusSending {
		return false
	}
	e.msg.Status = models.StatusFailed
	return true
}

// markRead moves own confirmed messages up to and including upTo to read. An empty
// upTo marks all of them.
func (t *timeline) markRead(upTo string) bool {
	limit, bounded := time.Time{}, false
	if e, ok := t.byID[upTo]; ok {
		limit, bounded = e.msg.CreatedAt, true
	}
	changed := false
	for _, e := range t.entries {
		if !e.msg.Own || e.msg.Provisional {
			continue
		}
		if bounded && e.msg.CreatedAt.After(limit) {
			continue
		}
		if t.advance(e, models.StatusRead) {
			changed = true
		}
	}
	return changed
}

func (t *timeline) last() (models.Message, bool) {
	msgs := t.messages()
	if len(msgs) == 0 {
		return models.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

func (t *timeline) messages() []models.Message {
	ordered := make([]*entry, len(t.entries))
	copy(ordered, t.entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].msg.CreatedAt.Before(ordered[j].msg.CreatedAt)
	})
	out := make([]models.Message, len(ordered))
	for i, e := range ordered {
		out[i] = e.msg
	}
	return out
}

func furthest(cur, next models.DeliveryStatus) models.DeliveryStatus {
	if next != "" && cur.Advances(next) {
		return next
	}
	return cur
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

const recentIDCapacity = 512

// recentIDs remembers the last few message keys seen on the wire.
type recentIDs struct {
	ring []string
	pos  int
	set  map[string]struct{}
}

func newRecentIDs(capacity int) *recentIDs {
	return &recentIDs{ring: make([]string, capacity), set: make(map[string]struct{}, capacity)}
}

// seen records roomID/id and reports whether it was already present. Ids are
// only unique within a room.
func (r *recentIDs) seen(roomID, id string) bool {
	if id == "" {
		return false
	}
	id = roomID + "\x00" + id
	if _, ok := r.set[id]; ok {
		return true
	}
	if old := r.ring[r.pos]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.pos] = id
	r.pos = (r.pos + 1) % len(r.ring)
	r.set[id] = struct{}{}
	return false
}
