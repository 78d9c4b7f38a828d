package presence

import (
	"log"
	"sync"
	"time"
)

const DefaultInterval = 10 * time.Second

// Heartbeat keeps a single session's user marked online. It registers an
// offline record with the store on Start, so the user goes offline when the
// session drops even if Stop is never called.
type Heartbeat struct {
	store    *Store
	session  string
	interval time.Duration
	log      *log.Logger
	now      func() time.Time

	mu     sync.Mutex
	userId string
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewHeartbeat(store *Store, session string, interval time.Duration, logger *log.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Heartbeat{
		store:    store,
		session:  session,
		interval: interval,
		log:      logger,
		now:      time.Now,
	}
}

// Start marks userId online and keeps re-writing the record every
// interval until Stop. Starting a running heartbeat restarts it for the new
// user.
func (h *Heartbeat) Start(userId string) {
	h.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.userId = userId
	h.done = make(chan struct{})

	h.beat(userId)
	h.store.OnDisconnect(h.session, userId, Record{Online: false, LastActive: h.now()})

	h.wg.Add(1)
	go h.run(userId, h.done)
}

func (h *Heartbeat) run(userId string, done <-chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.beat(userId)
		case <-done:
			return
		}
	}
}

func (h *Heartbeat) beat(userId string) {
	h.store.Set(userId, Record{Online: true, LastActive: h.now()})
}

// Stop halts the ticker and marks the user offline. Calling Stop on a
// heartbeat that was never started does nothing.
func (h *Heartbeat) Stop() {
	userId, ok := h.halt()
	if !ok {
		return
	}

	h.store.CancelOnDisconnect(h.session)
	h.store.Set(userId, Record{Online: false, LastActive: h.now()})
	h.log.Printf("presence: %s offline (session %s)", userId, h.session)
}

// Abandon halts the ticker without writing anything. The offline record
// registered on Start stays with the store until the session's Disconnect.
func (h *Heartbeat) Abandon() {
	h.halt()
}

func (h *Heartbeat) halt() (string, bool) {
	h.mu.Lock()
	if h.done == nil {
		h.mu.Unlock()
		return "", false
	}

	close(h.done)
	h.done = nil
	userId := h.userId
	h.userId = ""
	h.mu.Unlock()

	h.wg.Wait()
	return userId, true
}

func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.done != nil
}
