// Package presence tracks which users are online.
//
// A Store is a small realtime key-value store: writers Set records, watchers
// Subscribe to keys, and sessions register actions that the store itself
// performs when the session drops. A Heartbeat keeps one user's record fresh.
package presence

import (
	"sync"
	"time"
)

type Record struct {
	Online     bool      `json:"online"`
	LastActive time.Time `json:"lastActive"`
}

type Watcher func(key string, rec Record)

type subscription struct {
	id int
	fn Watcher
}

type disconnectAction struct {
	key string
	rec Record
}

type Store struct {
	mu      sync.Mutex
	records map[string]Record
	subs    map[string][]subscription
	actions map[string][]disconnectAction
	nextSub int
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]Record),
		subs:    make(map[string][]subscription),
		actions: make(map[string][]disconnectAction),
	}
}

// Set writes rec under key and notifies the key's watchers. Watchers run
// on the caller's goroutine after the store lock is released.
func (s *Store) Set(key string, rec Record) {
	s.mu.Lock()
	s.records[key] = rec
	watchers := make([]Watcher, 0, len(s.subs[key]))
	for _, sub := range s.subs[key] {
		watchers = append(watchers, sub.fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(key, rec)
	}
}

func (s *Store) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	return rec, ok
}

// Online reports whether key is currently marked online. Unknown keys are
// offline.
func (s *Store) Online(key string) bool {
	rec, _ := s.Get(key)
	return rec.Online
}

// Subscribe registers fn for changes to key. The returned func removes the
// subscription and is safe to call more than once.
func (s *Store) Subscribe(key string, fn Watcher) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[key] = append(s.subs[key], subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			subs := s.subs[key]
			for i, sub := range subs {
				if sub.id == id {
					s.subs[key] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
		})
	}
}

// OnDisconnect registers a write the store performs when session drops.
func (s *Store) OnDisconnect(session, key string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions[session] = append(s.actions[session], disconnectAction{key: key, rec: rec})
}

func (s *Store) CancelOnDisconnect(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.actions, session)
}

// Disconnect runs and clears every action registered for session. It
// reports whether any action ran.
func (s *Store) Disconnect(session string) bool {
	s.mu.Lock()
	actions := s.actions[session]
	delete(s.actions, session)
	s.mu.Unlock()

	for _, a := range actions {
		s.Set(a.key, a.rec)
	}

	return len(actions) > 0
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}

	return out
}

func (s *Store) Watchers(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs[key])
}
