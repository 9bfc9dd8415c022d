package audio

import (
	"sync"
	"sync/atomic"
)

// Frame is a block of mono samples in [-1, 1] rendered by one session.
type Frame struct {
	Session    int
	SampleRate int
	Samples    []float64
}

// Mix is the software output mix. Players publish the frames they render;
// taps subscribe either to one session or, with session 0, to everything.
//
// A realtime mix drops frames for subscribers that fall behind. A lossless mix
// blocks the publisher until every subscriber has taken the frame, which makes
// faster-than-realtime rendering deterministic.
type Mix struct {
	lossless bool

	nextSession atomic.Int64

	mu       sync.RWMutex
	sessions map[int]struct{}
	subs     map[*mixSubscription]struct{}
}

type mixSubscription struct {
	session int
	ch      chan Frame
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func NewMix(lossless bool) *Mix {
	return &Mix{
		lossless: lossless,
		sessions: make(map[int]struct{}),
		subs:     make(map[*mixSubscription]struct{}),
	}
}

// OpenSession allocates a new non-zero session id.
func (m *Mix) OpenSession() int {
	id := int(m.nextSession.Add(1))
	m.mu.Lock()
	m.sessions[id] = struct{}{}
	m.mu.Unlock()
	return id
}

func (m *Mix) CloseSession(id int) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Mix) HasSession(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Sessions returns the ids currently rendering into the mix.
func (m *Mix) Sessions() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Mix) subscribe(session int) *mixSubscription {
	depth := 64
	if m.lossless {
		depth = 0
	}
	sub := &mixSubscription{
		session: session,
		ch:      make(chan Frame, depth),
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	return sub
}

func (m *Mix) unsubscribe(sub *mixSubscription) {
	m.mu.Lock()
	delete(m.subs, sub)
	m.mu.Unlock()
	sub.once.Do(func() { close(sub.done) })
}

// Publish hands f to every matching subscriber.
func (m *Mix) Publish(f Frame) {
	m.mu.RLock()
	targets := make([]*mixSubscription, 0, len(m.subs))
	for sub := range m.subs {
		if sub.session == 0 || sub.session == f.Session {
			targets = append(targets, sub)
		}
	}
	m.mu.RUnlock()

	for _, sub := range targets {
		if m.lossless {
			select {
			case sub.ch <- f:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.ch <- f:
		case <-sub.done:
		default:
			sub.dropped.Add(1)
		}
	}
}
