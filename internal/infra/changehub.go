package infra

import "sync"

type changeTopic int

const (
	topicApps changeTopic = iota
	topicSchedules
)

// changeHub fans out "something changed" signals to subscribers. Signals
// coalesce: a slow subscriber sees one pending signal, never a backlog.
type changeHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[changeTopic]map[int]chan struct{}
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[changeTopic]map[int]chan struct{})}
}

func (h *changeHub) subscribe(topic changeTopic) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := h.nextID
	h.nextID++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan struct{})
	}
	h.subs[topic][id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[topic], id)
	}
}

func (h *changeHub) publish(topic changeTopic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
