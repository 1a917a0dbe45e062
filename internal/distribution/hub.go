// Package distribution fans captured events out to connected stream
// consumers. Each pairing subject gets its own backlog and subscriber set, so
// one account's events are never visible on another account's stream.
package distribution

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxBacklog bounds the per-subject replay buffer. New subscribers receive up
// to this many recent events before going live.
const maxBacklog = 200

// subscriberBuffer leaves headroom above the backlog so a replay never fills
// the channel on its own.
const subscriberBuffer = maxBacklog + 56

// Hub routes stamped events to per-subject subscriber sets.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	subjects map[string]*subjectState
}

type subjectState struct {
	backlog [][]byte
	subs    map[*Subscriber]struct{}
}

// Subscriber is one connected stream consumer. Messages arrive on C in
// publish order; the channel is closed when the hub evicts a consumer that
// stopped draining.
type Subscriber struct {
	hub     *Hub
	subject string
	ch      chan []byte
	closed  bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		now:      time.Now,
		subjects: make(map[string]*subjectState),
	}
}

// Publish stamps the event with a fresh id, timestamp and the owning subject,
// appends it to the subject's backlog, and delivers it to every live
// subscriber for that subject. It returns the stamped message.
func (h *Hub) Publish(subject string, fields map[string]any) ([]byte, error) {
	stamped := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		stamped[k] = v
	}
	stamped["id"] = uuid.NewString()
	stamped["ts"] = h.now().UnixMilli()
	stamped["userId"] = subject

	msg, err := json.Marshal(stamped)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	st := h.subjectLocked(subject)
	st.backlog = append(st.backlog, msg)
	if len(st.backlog) > maxBacklog {
		st.backlog = st.backlog[len(st.backlog)-maxBacklog:]
	}

	var evicted []*Subscriber
	for sub := range st.subs {
		select {
		case sub.ch <- msg:
		default:
			evicted = append(evicted, sub)
		}
	}
	for _, sub := range evicted {
		h.removeLocked(sub)
	}
	h.mu.Unlock()

	for range evicted {
		h.logger.Warn("evicted slow stream consumer", "subject", subject)
	}
	return msg, nil
}

// Subscribe registers a consumer for one subject. The current backlog is
// queued oldest first, so the consumer sees history and then live events in
// order.
func (h *Hub) Subscribe(subject string) *Subscriber {
	sub := &Subscriber{
		hub:     h,
		subject: subject,
		ch:      make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	st := h.subjectLocked(subject)
	for _, msg := range st.backlog {
		sub.ch <- msg
	}
	st.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Backlog returns a copy of the subject's replay buffer, oldest first.
func (h *Hub) Backlog(subject string) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.subjects[subject]
	if !ok {
		return nil
	}
	out := make([][]byte, len(st.backlog))
	copy(out, st.backlog)
	return out
}

// LiveCount reports the number of connected subscribers for a subject.
func (h *Hub) LiveCount(subject string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.subjects[subject]
	if !ok {
		return 0
	}
	return len(st.subs)
}

func (h *Hub) subjectLocked(subject string) *subjectState {
	st, ok := h.subjects[subject]
	if !ok {
		st = &subjectState{subs: make(map[*Subscriber]struct{})}
		h.subjects[subject] = st
	}
	return st
}

func (h *Hub) removeLocked(sub *Subscriber) {
	st, ok := h.subjects[sub.subject]
	if !ok {
		return
	}
	if _, live := st.subs[sub]; !live {
		return
	}
	delete(st.subs, sub)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// C is the subscriber's message stream.
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

// Close detaches the subscriber from the hub. Safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	s.hub.removeLocked(s)
	s.hub.mu.Unlock()
}
