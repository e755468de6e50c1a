package output

import (
	"sync"

	"Soundy/core/player"
)

// eventQueue decouples emitters from the consumer: push never blocks, events are delivered in
// order on out.
type eventQueue struct {
	mu     sync.Mutex
	items  []player.OutputEvent
	notify chan struct{}
	out    chan player.OutputEvent
	done   chan struct{}
	once   sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan player.OutputEvent),
		done:   make(chan struct{}),
	}
	go q.forward()
	return q
}

func (q *eventQueue) push(ev player.OutputEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) forward() {
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()

			select {
			case q.out <- ev:
			case <-q.done:
				return
			}
		}
	}
}

func (q *eventQueue) close() {
	q.once.Do(func() {
		close(q.done)
	})
}
