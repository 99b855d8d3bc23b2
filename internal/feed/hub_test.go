package feed

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestHub_PublishDelivers(t *testing.T) {
	h := NewHub(nil)
	events, unsubscribe := h.Subscribe("admin-1")
	defer unsubscribe()

	h.Publish(Event{Kind: KindReceipt, SubjectID: "r1", Status: "approved", Points: 10})

	select {
	case ev := <-events:
		if ev.SubjectID != "r1" || ev.Status != "approved" || ev.Points != 10 {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.At.IsZero() {
			t.Error("expected timestamp to be filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHub_DropsWhenSubscriberLags(t *testing.T) {
	h := NewHub(nil)
	events, unsubscribe := h.Subscribe("slow")
	defer unsubscribe()

	for i := 0; i < defaultBuffer+10; i++ {
		h.Publish(Event{Kind: KindOrder, SubjectID: strconv.Itoa(i)})
	}

	if got := len(events); got != defaultBuffer {
		t.Fatalf("buffered events = %d, want %d", got, defaultBuffer)
	}
}

func TestHub_ReplaceClosesPrevious(t *testing.T) {
	h := NewHub(nil)
	first, unsubscribeFirst := h.Subscribe("tab")
	_, unsubscribeSecond := h.Subscribe("tab")
	defer unsubscribeSecond()

	if _, ok := <-first; ok {
		t.Fatal("expected replaced subscriber channel to be closed")
	}

	// A stale unsubscribe must not remove the replacement.
	unsubscribeFirst()
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub(nil)
	events, unsubscribe := h.Subscribe("a")
	h.Close()
	unsubscribe()

	if _, ok := <-events; ok {
		t.Fatal("expected channel closed after hub close")
	}
	late, _ := h.Subscribe("b")
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel for subscription after close")
	}
	h.Publish(Event{Kind: KindReceipt})
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := NewHub(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, unsubscribe := h.Subscribe("tab-" + strconv.Itoa(i))
			unsubscribe()
		}(i)
		go func() {
			defer wg.Done()
			h.Publish(Event{Kind: KindReceipt, SubjectID: "r"})
		}()
	}
	wg.Wait()
	if h.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", h.Len())
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(NewHandler(h, []string{"*"}, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for h.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Publish(Event{Kind: KindOrder, SubjectID: "o1", Status: "processing", MessageID: "m1"})

	var got Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != KindOrder || got.SubjectID != "o1" || got.Status != "processing" || got.MessageID != "m1" {
		t.Fatalf("unexpected event: %+v", got)
	}
}
