package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chat-sync/internal/models"
)

func TestRecentIDsEvictsOldest(t *testing.T) {
	r := newRecentIDs(2)

	assert.False(t, r.seen("r1", "a"))
	assert.True(t, r.seen("r1", "a"))
	assert.False(t, r.seen("r1", "b"))
	assert.False(t, r.seen("r1", "c"))
	assert.False(t, r.seen("r1", "a"), "a was evicted by c")
	assert.False(t, r.seen("r1", ""))
}

func TestRecentIDsScopedByRoom(t *testing.T) {
	r := newRecentIDs(8)

	assert.False(t, r.seen("r1", "1"))
	assert.False(t, r.seen("r2", "1"))
	assert.True(t, r.seen("r2", "1"))
}

func TestTimelineMatchPrefersOldestWithinWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tl := newTimeline()
	first := tl.append(models.Message{ID: "c1", ClientMessageID: "c1", SenderID: "u1", Body: "hi", Kind: models.KindText, CreatedAt: base, Own: true, Provisional: true})
	tl.append(models.Message{ID: "c2", ClientMessageID: "c2", SenderID: "u1", Body: "hi", Kind: models.KindText, CreatedAt: base.Add(time.Second), Own: true, Provisional: true})

	confirmed := models.Message{ID: "m1", SenderID: "u1", Body: "hi", Kind: models.KindText, CreatedAt: base.Add(2 * time.Second), Own: true}
	assert.Same(t, first, tl.match(confirmed, 30*time.Second))

	confirmed.Body = "other"
	assert.Nil(t, tl.match(confirmed, 30*time.Second))
}

func TestTimelineSkipsFailedEntries(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tl := newTimeline()
	failed := models.Message{ID: "c1", ClientMessageID: "c1", SenderID: "u1", Body: "hi", Kind: models.KindText, Status: models.StatusFailed, CreatedAt: base, Own: true, Provisional: true}
	tl.append(failed)
	retry := tl.append(models.Message{ID: "c2", ClientMessageID: "c2", SenderID: "u1", Body: "hi", Kind: models.KindText, Status: models.StatusSending, CreatedAt: base.Add(time.Second), Own: true, Provisional: true})

	confirmed := models.Message{ID: "m1", SenderID: "u1", Body: "hi", Kind: models.KindText, CreatedAt: base.Add(2 * time.Second), Own: true}
	assert.Same(t, retry, tl.match(confirmed, 30*time.Second))

	history := newTimeline()
	history.append(confirmed)
	assert.False(t, history.adopt(failed, 30*time.Second))
}

func TestDeliveryStatusNeverMovesBackwards(t *testing.T) {
	tl := newTimeline()
	e := tl.append(models.Message{ID: "m1", Status: models.StatusDelivered, Own: true})

	assert.False(t, tl.advance(e, models.StatusSent))
	assert.False(t, tl.advance(e, models.StatusFailed))
	assert.True(t, tl.advance(e, models.StatusRead))
	assert.Equal(t, models.StatusRead, e.msg.Status)
}
