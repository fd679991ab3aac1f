package journal

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/pqd/internal/pq"
)

// Entry types.
const (
	TypeCallOK      = "call.ok"
	TypeCallFailed  = "call.failed"
	TypeReplayDone  = "replay.done"
	TypeSettingSeen = "setting.changed"
)

type Entry struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Journal is an in-memory pub/sub of recent call outcomes and daemon
// events, with a ring buffer for late readers.
type Journal struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Entry
	start int
	size  int

	subs      map[int]chan Entry
	nextSubID int
}

func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 256
	}
	return &Journal{
		ring: make([]Entry, capacity),
		subs: make(map[int]chan Entry),
	}
}

// Observe records a call outcome. It has the pq.Observer signature.
func (j *Journal) Observe(out pq.Outcome) {
	typ := TypeCallOK
	if !out.OK() {
		typ = TypeCallFailed
	}
	j.Publish(typ, out)
}

func (j *Journal) Publish(entryType string, data any) {
	id := j.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	e := Entry{
		ID:   id,
		Type: entryType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	j.mu.Lock()
	j.pushLocked(e)
	for _, ch := range j.subs {
		// Slow readers lose entries rather than block the event loop.
		select {
		case ch <- e:
		default:
		}
	}
	j.mu.Unlock()
}

func (j *Journal) Subscribe() (<-chan Entry, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextSubID
	j.nextSubID++
	ch := make(chan Entry, 64)
	j.subs[id] = ch

	cancel := func() {
		j.mu.Lock()
		if c, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(c)
		}
		j.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered entries with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (j *Journal) SnapshotSince(lastID int64) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, 0, j.size)
	for i := 0; i < j.size; i++ {
		e := j.ring[(j.start+i)%len(j.ring)]
		if lastID == 0 || e.ID > lastID {
			out = append(out, e)
		}
	}
	return out
}

func (j *Journal) pushLocked(e Entry) {
	capacity := len(j.ring)
	if j.size < capacity {
		j.ring[(j.start+j.size)%capacity] = e
		j.size++
		return
	}

	// Overwrite oldest.
	j.ring[j.start] = e
	j.start = (j.start + 1) % capacity
}
