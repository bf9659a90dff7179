package mx

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/whitemax/maxd/internal/model"
)

// decodeJSON parses a payload the way envelopes arrive: numbers preserved
// as json.Number.
func decodeJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDecodeMessageNumericID(t *testing.T) {
	payload := decodeJSON(t, `{"id": 987654321, "chat_id": 5, "text": "hi"}`)

	m, ok := DecodeMessage(payload, 0)
	if !ok {
		t.Fatal("DecodeMessage() rejected a valid payload")
	}
	if m.ID != "987654321" {
		t.Errorf("ID = %q, want normalized decimal string", m.ID)
	}
	if m.ChatID != 5 || m.Text != "hi" {
		t.Errorf("got %+v", m)
	}
}

func TestDecodeMessageFallbackChatID(t *testing.T) {
	payload := decodeJSON(t, `{"id": "m1", "text": "no chat id here"}`)

	m, ok := DecodeMessage(payload, 77)
	if !ok {
		t.Fatal("DecodeMessage() rejected a valid payload")
	}
	if m.ChatID != 77 {
		t.Errorf("ChatID = %d, want fallback 77", m.ChatID)
	}

	if _, ok := DecodeMessage(payload, 0); ok {
		t.Error("DecodeMessage() accepted a message with no chat id at all")
	}
}

func TestDecodeMessageNoID(t *testing.T) {
	payload := decodeJSON(t, `{"chat_id": 5, "text": "orphan"}`)
	if _, ok := DecodeMessage(payload, 0); ok {
		t.Error("DecodeMessage() accepted a payload without id")
	}
}

func TestDecodeMessageFull(t *testing.T) {
	payload := decodeJSON(t, `{
		"id": "m9", "chat_id": 3, "text": "see file", "sender_id": 100,
		"time": 1724668800000, "type": "TEXT", "reply_to": "m8",
		"reactions": {"👍": 2},
		"attachments": [{"id": 55, "type": "PHOTO", "url": "https://x/p.jpg",
			"thumbnail_url": "https://x/t.jpg", "file_name": "p.jpg", "file_size": 1024}]
	}`)

	m, ok := DecodeMessage(payload, 0)
	if !ok {
		t.Fatal("DecodeMessage() rejected a valid payload")
	}
	if m.SenderID != 100 || m.Timestamp != 1724668800000 || m.ReplyToID != "m8" {
		t.Errorf("got %+v", m)
	}
	if m.Reactions["👍"] != 2 {
		t.Errorf("Reactions = %v", m.Reactions)
	}
	if len(m.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(m.Attachments))
	}
	att := m.Attachments[0]
	if att.ID != 55 || att.Kind != model.Photo || att.FileSize != 1024 {
		t.Errorf("attachment = %+v", att)
	}
}

func TestDecodeChat(t *testing.T) {
	payload := decodeJSON(t, `{"id": 42, "title": "Team", "type": "CHAT",
		"icon_url": "https://x/i.png", "unread_count": 3}`)

	chat, ok := DecodeChat(payload)
	if !ok {
		t.Fatal("DecodeChat() rejected a valid payload")
	}
	want := model.Chat{ID: 42, Title: "Team", Kind: model.Group,
		IconRef: "https://x/i.png", UnreadCount: 3}
	if chat != want {
		t.Errorf("DecodeChat() = %+v, want %+v", chat, want)
	}

	if _, ok := DecodeChat(decodeJSON(t, `{"title": "no id"}`)); ok {
		t.Error("DecodeChat() accepted a payload without id")
	}
}

func TestDecodeReactionsShapes(t *testing.T) {
	flat := decodeJSON(t, `{"r": {"👍": 2, "🔥": 1}}`)
	if got := DecodeReactions(flat["r"]); got["👍"] != 2 || got["🔥"] != 1 {
		t.Errorf("flat form = %v", got)
	}

	info := decodeJSON(t, `{"r": {"counters": [{"reaction": "👍", "count": 3}]}}`)
	if got := DecodeReactions(info["r"]); got["👍"] != 3 {
		t.Errorf("counters form = %v", got)
	}

	if got := DecodeReactions(nil); got != nil {
		t.Errorf("nil input = %v, want nil", got)
	}
}

func TestDecodeUserNameFallback(t *testing.T) {
	u := decodeUser(decodeJSON(t, `{"id": 9, "first_name": "Ann"}`))
	if u == nil || u.ID != 9 || u.DisplayName != "Ann" {
		t.Errorf("decodeUser = %+v", u)
	}
	if decodeUser(decodeJSON(t, `{"first_name": "ghost"}`)) != nil {
		t.Error("decodeUser accepted a payload without id")
	}
}
