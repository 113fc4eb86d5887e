package outbox

import "sync"

// Listener receives delivery notifications from a Manager.
type Listener interface {
	// OnFlushed is called once per entry the server accepted.
	OnFlushed(event Flushed)
	// OnSyncComplete is called after a flush triggered by regained connectivity.
	OnSyncComplete(event SyncComplete)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Flushed      func(Flushed)
	SyncComplete func(SyncComplete)
}

// OnFlushed implements Listener.
func (l ListenerFuncs) OnFlushed(event Flushed) {
	if l.Flushed != nil {
		l.Flushed(event)
	}
}

// OnSyncComplete implements Listener.
func (l ListenerFuncs) OnSyncComplete(event SyncComplete) {
	if l.SyncComplete != nil {
		l.SyncComplete(event)
	}
}

type listeners struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]Listener
	order  []int
}

func (ls *listeners) add(l Listener) func() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.byID == nil {
		ls.byID = make(map[int]Listener)
	}
	ls.nextID++
	id := ls.nextID
	ls.byID[id] = l
	ls.order = append(ls.order, id)

	var once sync.Once

	return func() {
		once.Do(func() {
			ls.remove(id)
		})
	}
}

func (ls *listeners) remove(id int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	delete(ls.byID, id)
	for i, existing := range ls.order {
		if existing == id {
			ls.order = append(ls.order[:i], ls.order[i+1:]...)

			break
		}
	}
}

func (ls *listeners) snapshot() []Listener {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	out := make([]Listener, 0, len(ls.order))
	for _, id := range ls.order {
		out = append(out, ls.byID[id])
	}

	return out
}
