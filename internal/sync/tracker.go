package sync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type bulkSession struct {
	id        string
	total     int
	completed int
	active    bool
	startedAt time.Time
}

// BulkTracker groups individual sync tasks into one logical bulk operation
// per group. At most one session per group is active at a time; callers must
// check IsActive before starting a new one.
type BulkTracker struct {
	mu       sync.Mutex
	sessions map[int64]*bulkSession
}

func NewBulkTracker() *BulkTracker {
	return &BulkTracker{sessions: make(map[int64]*bulkSession)}
}

// Start opens a session sized to total and returns its ID. Any previous
// session for the group is overwritten; by the caller contract it is
// necessarily inactive by then.
func (t *BulkTracker) Start(groupID int64, total int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	session := &bulkSession{
		id:        uuid.NewString(),
		total:     total,
		active:    true,
		startedAt: time.Now(),
	}
	t.sessions[groupID] = session
	return session.id
}

// Increment counts one finished task. The auto-close on completed >= total
// happens under the same lock as the increment, so two nearly simultaneous
// completions cannot both see "not yet done" and leave the session open.
func (t *BulkTracker) Increment(groupID int64) (completed, total int, finished bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[groupID]
	if !ok || !session.active {
		return 0, 0, false
	}

	session.completed++
	if session.completed >= session.total {
		session.active = false
		finished = true
	}
	return session.completed, session.total, finished
}

// End force-closes the session. Used when zero tasks could be started so an
// empty session does not linger active forever.
func (t *BulkTracker) End(groupID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if session, ok := t.sessions[groupID]; ok {
		session.active = false
	}
}

func (t *BulkTracker) IsActive(groupID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[groupID]
	return ok && session.active
}

// Progress reports (completed, total) for the group's session and whether it
// is still active. A group without a session reports zeros.
func (t *BulkTracker) Progress(groupID int64) (completed, total int, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[groupID]
	if !ok {
		return 0, 0, false
	}
	return session.completed, session.total, session.active
}

// SessionID returns the ID of the group's current session, if any.
func (t *BulkTracker) SessionID(groupID int64) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if session, ok := t.sessions[groupID]; ok {
		return session.id
	}
	return ""
}
