package discord

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/ashureev/points-bridge/internal/store"
)

func newTestNotifier(ready bool) (*Notifier, *fakeAPI, *fakeStore) {
	st := newFakeStore()
	seed(st)
	api := newFakeAPI()
	n := NewNotifier(fakeConnector{ready: ready}, api, st, "chan-1", nil)
	n.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return n, api, st
}

func TestNotifier_NotifyReceiptSingleProduct(t *testing.T) {
	n, api, st := newTestNotifier(true)

	id, err := n.NotifyReceipt(context.Background(), "r1")
	if err != nil {
		t.Fatalf("NotifyReceipt: %v", err)
	}
	if st.receipts["r1"].MessageID != id {
		t.Errorf("message id not stored: %q vs %q", st.receipts["r1"].MessageID, id)
	}

	sent := api.sent[0]
	embed := sent.Embeds[0]
	if embed.Image == nil || embed.Image.URL != "https://cdn.example.com/r1.jpg" {
		t.Errorf("image not embedded: %+v", embed.Image)
	}
	if !strings.Contains(embed.Description, "**Status:** Pending review") {
		t.Errorf("description missing status line: %q", embed.Description)
	}
	ids := customIDs(sent.Components)
	if strings.Join(ids, ",") != "approve_receipt:r1:10,reject_receipt:r1" {
		t.Errorf("buttons = %v", ids)
	}
}

func TestNotifier_NotifyReceiptMultiProduct(t *testing.T) {
	n, api, _ := newTestNotifier(true)

	if _, err := n.NotifyReceipt(context.Background(), "r2"); err != nil {
		t.Fatalf("NotifyReceipt: %v", err)
	}
	embed := api.sent[0].Embeds[0]
	var total string
	for _, f := range embed.Fields {
		if f.Name == "Total" {
			total = f.Value
		}
	}
	if total != "20 points" {
		t.Errorf("total field = %q, want 20 points", total)
	}
	if ids := customIDs(api.sent[0].Components); len(ids) != 3 {
		t.Errorf("expected approve/custom/reject buttons, got %v", ids)
	}
}

func TestNotifier_NotConnected(t *testing.T) {
	n, api, st := newTestNotifier(false)

	_, err := n.NotifyReceipt(context.Background(), "r1")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if api.sentCount() != 0 || st.receipts["r1"].MessageID != "" {
		t.Error("nothing should be sent or stored when disconnected")
	}
}

func TestNotifier_DuplicateNotifySuppressed(t *testing.T) {
	n, api, _ := newTestNotifier(true)

	first, err := n.NotifyReceipt(context.Background(), "r1")
	if err != nil {
		t.Fatalf("first notify: %v", err)
	}
	second, err := n.NotifyReceipt(context.Background(), "r1")
	if !errors.Is(err, ErrAlreadyNotified) {
		t.Fatalf("err = %v, want ErrAlreadyNotified", err)
	}
	if second != first || api.sentCount() != 1 {
		t.Errorf("duplicate notify sent again: ids %q/%q, sent %d", first, second, api.sentCount())
	}
}

func TestNotifier_Preconditions(t *testing.T) {
	n, _, st := newTestNotifier(true)

	st.receipts["r1"].ImageURL = ""
	if _, err := n.NotifyReceipt(context.Background(), "r1"); !errors.Is(err, ErrMissingImage) {
		t.Errorf("missing image: err = %v", err)
	}

	st.receipts["r2"].UserID = "ghost"
	if _, err := n.NotifyReceipt(context.Background(), "r2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing owner: err = %v", err)
	}

	if _, err := n.NotifyOrder(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing order: err = %v", err)
	}
}

func TestNotifier_DecidedSubjectsNotPosted(t *testing.T) {
	n, api, st := newTestNotifier(true)
	st.receipts["r1"].Status = domain.ReceiptRejected
	st.orders["o1"].Status = domain.OrderCancelled

	if _, err := n.NotifyReceipt(context.Background(), "r1"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("rejected receipt: err = %v", err)
	}
	if _, err := n.NotifyOrder(context.Background(), "o1"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("cancelled order: err = %v", err)
	}
	if api.sentCount() != 0 {
		t.Errorf("sent = %d, want 0", api.sentCount())
	}
}

func TestNotifier_SendFailure(t *testing.T) {
	n, api, st := newTestNotifier(true)
	api.sendErr = errBoom

	if _, err := n.NotifyOrder(context.Background(), "o1"); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want send error", err)
	}
	if st.orders["o1"].MessageID != "" {
		t.Error("message id stored despite failed send")
	}
}

func TestNotifier_StoreFailureReturnsSentID(t *testing.T) {
	n, _, st := newTestNotifier(true)
	st.setErr = errBoom

	id, err := n.NotifyOrder(context.Background(), "o1")
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want store error", err)
	}
	if id == "" {
		t.Error("expected sent message id to be returned")
	}
}

func TestNotifier_NotifyOrder(t *testing.T) {
	n, api, st := newTestNotifier(true)

	id, err := n.NotifyOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("NotifyOrder: %v", err)
	}
	if st.orders["o1"].MessageID != id {
		t.Error("order message id not stored")
	}
	sent := api.sent[0]
	if sent.Embeds[0].Thumbnail == nil || sent.Embeds[0].Thumbnail.URL != mug.ImageURL {
		t.Errorf("expected product thumbnail, got %+v", sent.Embeds[0].Thumbnail)
	}
	if got := strings.Join(customIDs(sent.Components), ","); got != "process_order:o1,complete_order:o1" {
		t.Errorf("buttons = %s", got)
	}
}
