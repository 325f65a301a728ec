package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/wabot/internal/bus"
)

// recordingHandler tracks per-key ordering and overlap.
type recordingHandler struct {
	mu       sync.Mutex
	active   map[string]int
	overlap  bool
	order    map[string][]string
	block    map[string]chan struct{}
	failWith error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		active: make(map[string]int),
		order:  make(map[string][]string),
		block:  make(map[string]chan struct{}),
	}
}

func (h *recordingHandler) Handle(ctx context.Context, msg bus.InboundMessage) error {
	key := msg.SessionKey()
	h.mu.Lock()
	h.active[key]++
	if h.active[key] > 1 {
		h.overlap = true
	}
	gate := h.block[key]
	h.mu.Unlock()

	if gate != nil {
		<-gate
	} else {
		time.Sleep(time.Millisecond)
	}

	h.mu.Lock()
	h.active[key]--
	h.order[key] = append(h.order[key], msg.Content)
	h.mu.Unlock()
	return h.failWith
}

func inbound(chat, text string) bus.InboundMessage {
	return bus.InboundMessage{Channel: "whatsapp", ChatID: chat, Content: text}
}

func TestDispatcher_SerialPerKeyInOrder(t *testing.T) {
	h := newRecordingHandler()
	d := newDispatcher(h, zerolog.Nop())

	for i := 0; i < 50; i++ {
		d.Submit(context.Background(), inbound(fmt.Sprintf("u%d", i%3), fmt.Sprintf("%d", i)))
	}
	d.Wait()

	if h.overlap {
		t.Fatal("messages for one conversation overlapped")
	}
	for k := 0; k < 3; k++ {
		key := fmt.Sprintf("whatsapp:u%d", k)
		got := h.order[key]
		prev := -1
		for _, s := range got {
			var n int
			fmt.Sscanf(s, "%d", &n)
			if n <= prev {
				t.Fatalf("%s handled out of order: %v", key, got)
			}
			prev = n
		}
	}
	if d.Pending() != 0 {
		t.Errorf("Pending = %d after drain, want 0", d.Pending())
	}
}

func TestDispatcher_ConcurrentAcrossKeys(t *testing.T) {
	h := newRecordingHandler()
	gate := make(chan struct{})
	h.block["whatsapp:slow"] = gate
	d := newDispatcher(h, zerolog.Nop())

	d.Submit(context.Background(), inbound("slow", "stuck"))
	d.Submit(context.Background(), inbound("fast", "done"))

	deadline := time.Now().Add(time.Second)
	for {
		h.mu.Lock()
		n := len(h.order["whatsapp:fast"])
		h.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fast conversation blocked behind slow one")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for d.Pending() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Pending = %d, want 1 while slow conversation runs", d.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(gate)
	d.Wait()
}

func TestDispatcher_HandlerErrorDoesNotStopMailbox(t *testing.T) {
	h := newRecordingHandler()
	h.failWith = fmt.Errorf("send failed")
	d := newDispatcher(h, zerolog.Nop())

	d.Submit(context.Background(), inbound("u", "a"))
	d.Submit(context.Background(), inbound("u", "b"))
	d.Wait()

	if got := len(h.order["whatsapp:u"]); got != 2 {
		t.Fatalf("handled %d messages, want 2", got)
	}
}

func TestMailboxKey(t *testing.T) {
	direct := inbound("u1@s.whatsapp.net", "hi")
	if got := mailboxKey(direct); got != "whatsapp:u1@s.whatsapp.net" {
		t.Errorf("direct key = %q", got)
	}

	status := bus.InboundMessage{
		Channel:  "whatsapp",
		ChatID:   "status@broadcast",
		IsStatus: true,
		Ref:      bus.MessageRef{ID: "A1", Sender: "u1@s.whatsapp.net"},
	}
	other := status
	other.Ref.ID = "A2"
	if mailboxKey(status) == mailboxKey(other) {
		t.Error("distinct status updates should not share a mailbox")
	}
	if mailboxKey(status) == mailboxKey(direct) {
		t.Error("status updates should not queue behind the sender's chat")
	}
}
