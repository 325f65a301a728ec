package gateway

import (
	"container/list"
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/wabot/internal/bus"
)

// Handler processes one inbound message. *router.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg bus.InboundMessage) error
}

// dispatcher runs messages for the same conversation one after another in
// arrival order, and different conversations concurrently. A conversation's
// worker goroutine exists only while its mailbox is non-empty.
type dispatcher struct {
	handler Handler
	log     zerolog.Logger

	mu        sync.Mutex
	mailboxes map[string]*list.List
	wg        sync.WaitGroup
}

func newDispatcher(h Handler, logger zerolog.Logger) *dispatcher {
	return &dispatcher{
		handler:   h,
		log:       logger,
		mailboxes: make(map[string]*list.List),
	}
}

// mailboxKey keeps status updates off the sender's conversation queue.
func mailboxKey(msg bus.InboundMessage) string {
	if msg.IsStatus {
		return "status:" + msg.Ref.Sender + ":" + msg.Ref.ID
	}
	return msg.SessionKey()
}

// Submit enqueues msg and starts a worker for its conversation if none runs.
func (d *dispatcher) Submit(ctx context.Context, msg bus.InboundMessage) {
	key := mailboxKey(msg)

	d.mu.Lock()
	box, running := d.mailboxes[key]
	if !running {
		box = list.New()
		d.mailboxes[key] = box
	}
	box.PushBack(msg)
	if !running {
		d.wg.Add(1)
	}
	d.mu.Unlock()

	if !running {
		go d.drain(ctx, key, box)
	}
}

func (d *dispatcher) drain(ctx context.Context, key string, box *list.List) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		front := box.Front()
		if front == nil {
			delete(d.mailboxes, key)
			d.mu.Unlock()
			return
		}
		msg := box.Remove(front).(bus.InboundMessage)
		d.mu.Unlock()

		if err := d.handler.Handle(ctx, msg); err != nil {
			d.log.Error().Err(err).Str("key", key).Msg("handle message")
		}
	}
}

// Pending reports how many conversations have queued or running work.
func (d *dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

// Wait blocks until every mailbox has drained.
func (d *dispatcher) Wait() {
	d.wg.Wait()
}
