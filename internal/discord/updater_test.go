package discord

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func postedMessage(t *testing.T, api *fakeAPI) string {
	t.Helper()
	st := newFakeStore()
	seed(st)
	n := NewNotifier(fakeConnector{ready: true}, api, st, "chan-1", nil)
	id, err := n.NotifyReceipt(context.Background(), "r2")
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return id
}

func TestUpdater_UpdateMessage(t *testing.T) {
	api := newFakeAPI()
	id := postedMessage(t, api)
	u := NewUpdater(fakeConnector{ready: true}, api, "chan-1", nil)

	got, err := u.UpdateMessage(context.Background(), id, "Approved (20 points)", true, true)
	if err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	if got != id {
		t.Errorf("returned id = %q, want %q", got, id)
	}

	msg := api.message(id)
	embed := msg.Embeds[0]
	if embed.Color != colorSuccess {
		t.Errorf("color = %x, want green", embed.Color)
	}
	if !strings.HasPrefix(embed.Title, glyphSuccess) {
		t.Errorf("title = %q", embed.Title)
	}
	if !strings.Contains(embed.Description, "**Status:** Approved (20 points)") ||
		strings.Contains(embed.Description, "Pending review") {
		t.Errorf("description = %q", embed.Description)
	}
	for _, c := range msg.Components {
		for _, b := range c.(discordgo.ActionsRow).Components {
			if !b.(discordgo.Button).Disabled {
				t.Errorf("button %q still enabled", b.(discordgo.Button).Label)
			}
		}
	}
}

func TestUpdater_KeepsButtonsWhenAsked(t *testing.T) {
	api := newFakeAPI()
	id := postedMessage(t, api)
	u := NewUpdater(fakeConnector{ready: true}, api, "chan-1", nil)

	if _, err := u.UpdateMessage(context.Background(), id, "Awaiting custom points selection", true, false); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	if edit := api.edits[0]; edit.Components != nil {
		t.Error("components should be left untouched")
	}
	if c := api.message(id).Embeds[0].Color; c != colorProcessing {
		t.Errorf("color = %x, want orange", c)
	}
}

func TestUpdater_Failures(t *testing.T) {
	api := newFakeAPI()
	u := NewUpdater(fakeConnector{ready: true}, api, "chan-1", nil)

	if _, err := u.UpdateMessage(context.Background(), "", "Rejected", false, true); !errors.Is(err, ErrNoMessage) {
		t.Errorf("empty id: err = %v", err)
	}
	if _, err := u.UpdateMessage(context.Background(), "missing", "Rejected", false, true); err == nil {
		t.Error("expected error for unknown message")
	}

	api.channelErr = errBoom
	if _, err := u.UpdateMessage(context.Background(), "missing", "Rejected", false, true); !errors.Is(err, errBoom) {
		t.Errorf("missing channel: err = %v", err)
	}

	offline := NewUpdater(fakeConnector{ready: false}, api, "chan-1", nil)
	if _, err := offline.UpdateMessage(context.Background(), "x", "Rejected", false, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("offline: err = %v", err)
	}
	if len(api.edits) != 0 {
		t.Errorf("edits = %d, want 0", len(api.edits))
	}
}

func TestUpdater_CollapseMessage(t *testing.T) {
	api := newFakeAPI()
	id := postedMessage(t, api)
	u := NewUpdater(fakeConnector{ready: true}, api, "chan-1", nil)

	if err := u.CollapseMessage(context.Background(), id, "done"); err != nil {
		t.Fatalf("CollapseMessage: %v", err)
	}
	msg := api.message(id)
	if msg.Content != "done" || len(msg.Embeds) != 0 || len(msg.Components) != 0 {
		t.Errorf("message not collapsed: %+v", msg)
	}
}
