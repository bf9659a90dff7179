package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/whitemax/maxd/internal/model"
)

func TestUpsertChatIdempotent(t *testing.T) {
	c := New()

	chat := model.Chat{ID: 1, Title: "Alice", Kind: model.Dialog}
	c.UpsertChat(chat)
	c.UpsertChat(chat)

	if c.ChatCount() != 1 {
		t.Fatalf("ChatCount() = %d, want 1", c.ChatCount())
	}
	got, ok := c.Chat(1)
	if !ok || got != chat {
		t.Errorf("Chat(1) = %+v, want %+v", got, chat)
	}
}

func TestUpsertChatLastWriteWins(t *testing.T) {
	c := New()
	c.UpsertChat(model.Chat{ID: 1, Title: "old", Kind: model.Group})
	c.UpsertChat(model.Chat{ID: 1, Title: "new", Kind: model.Group, UnreadCount: 3})

	got, _ := c.Chat(1)
	if got.Title != "new" || got.UnreadCount != 3 {
		t.Errorf("Chat(1) = %+v, want latest write", got)
	}
}

func TestMergeChatKeepsCachedFields(t *testing.T) {
	c := New()
	c.UpsertChat(model.Chat{ID: 5, Title: "Team", Kind: model.Group, IconRef: "icon://5"})

	// Partial update: only unread count changed.
	c.MergeChat(model.Chat{ID: 5, UnreadCount: 7})

	got, _ := c.Chat(5)
	if got.Title != "Team" || got.IconRef != "icon://5" || got.Kind != model.Group {
		t.Errorf("MergeChat dropped cached fields: %+v", got)
	}
	if got.UnreadCount != 7 {
		t.Errorf("UnreadCount = %d, want 7", got.UnreadCount)
	}
}

func TestMergeChatUnknownID(t *testing.T) {
	c := New()
	c.MergeChat(model.Chat{ID: 9, Title: "fresh"})
	if got, ok := c.Chat(9); !ok || got.Title != "fresh" {
		t.Errorf("Chat(9) = %+v, %v", got, ok)
	}
}

func TestUpsertMessagesReplaceInPlace(t *testing.T) {
	c := New()
	c.UpsertMessages(42, []model.Message{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two"},
		{ID: "c", Text: "three"},
	})

	// Replacing "b" must keep its position, not move it to the end.
	c.UpsertMessages(42, []model.Message{{ID: "b", Text: "two edited", IsEdited: true}})

	msgs := c.Messages(42)
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[1].ID != "b" || msgs[1].Text != "two edited" || !msgs[1].IsEdited {
		t.Errorf("msgs[1] = %+v, want edited b in place", msgs[1])
	}
}

func TestUpsertThenDeleteMessages(t *testing.T) {
	c := New()
	c.UpsertMessages(42, []model.Message{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	c.DeleteMessages(42, []string{"b", "missing"})

	msgs := c.Messages(42)
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "a" || msgs[1].ID != "c" {
		t.Errorf("remaining = %q, %q; want a, c", msgs[0].ID, msgs[1].ID)
	}
	if _, ok := c.Message(42, "b"); ok {
		t.Error("deleted message still present")
	}
}

func TestDeleteMessagesOtherChatUntouched(t *testing.T) {
	c := New()
	c.UpsertMessages(1, []model.Message{{ID: "x"}})
	c.UpsertMessages(2, []model.Message{{ID: "x"}})

	c.DeleteMessages(1, []string{"x"})

	if _, ok := c.Message(2, "x"); !ok {
		t.Error("message in other chat was deleted")
	}
}

func TestSetPinned(t *testing.T) {
	c := New()
	c.UpsertMessages(1, []model.Message{{ID: "m"}})
	c.SetPinned(1, "m", true)

	got, _ := c.Message(1, "m")
	if !got.IsPinned {
		t.Error("IsPinned = false after SetPinned")
	}

	// Unknown id is a no-op, not a panic.
	c.SetPinned(1, "nope", true)
}

func TestSetReactions(t *testing.T) {
	c := New()
	c.UpsertMessages(1, []model.Message{{ID: "m"}})
	c.SetReactions(1, "m", map[string]int{"👍": 2})

	got, _ := c.Message(1, "m")
	if got.Reactions["👍"] != 2 {
		t.Errorf("Reactions = %v", got.Reactions)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := New()
	c.UpsertMessages(1, []model.Message{{ID: "m", Text: "hello world"}})

	if hits := c.Search(""); len(hits) != 0 {
		t.Errorf("Search(\"\") = %d hits, want 0", len(hits))
	}
}

func TestSearchCaseInsensitiveAcrossChats(t *testing.T) {
	c := New()
	c.UpsertMessages(1, []model.Message{{ID: "a", Text: "Hello there", Timestamp: 10}})
	c.UpsertMessages(2, []model.Message{{ID: "b", Text: "say HELLO back", Timestamp: 20}})
	c.UpsertMessages(3, []model.Message{{ID: "c", Text: "unrelated"}})

	hits := c.Search("hello")
	if len(hits) != 2 {
		t.Fatalf("Search(hello) = %d hits, want 2", len(hits))
	}
	seen := map[int64]bool{}
	for _, h := range hits {
		seen[h.ChatID] = true
		if h.Snippet == "" || h.MessageID == "" {
			t.Errorf("incomplete hit: %+v", h)
		}
	}
	if !seen[1] || !seen[2] {
		t.Errorf("hits cover chats %v, want 1 and 2", seen)
	}
}

func TestSearchReflectsDeletes(t *testing.T) {
	c := New()
	c.UpsertMessages(1, []model.Message{{ID: "a", Text: "findme"}})
	c.DeleteMessages(1, []string{"a"})

	if hits := c.Search("findme"); len(hits) != 0 {
		t.Errorf("Search after delete = %d hits, want 0", len(hits))
	}
}

// TestSnippetRuneBoundary covers long texts cut at the snippet limit around
// a multi-byte rune. Regression: a cut ending exactly after a complete rune
// used to strip its continuation bytes and leave a bare lead byte, yielding
// an invalid-UTF-8 snippet.
func TestSnippetRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			// é is 2 bytes and ends exactly at the 96-byte limit.
			"rune ends on boundary",
			strings.Repeat("a", 94) + "é" + "world",
			strings.Repeat("a", 94) + "é" + "...",
		},
		{
			// é straddles the limit; only the broken tail goes.
			"rune straddles boundary",
			strings.Repeat("a", 95) + "é" + "world",
			strings.Repeat("a", 95) + "...",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.UpsertMessages(1, []model.Message{{ID: "m", Text: tt.text}})

			hits := c.Search("aaa")
			if len(hits) != 1 {
				t.Fatalf("Search() = %d hits, want 1", len(hits))
			}
			if !utf8.ValidString(hits[0].Snippet) {
				t.Fatalf("snippet is invalid UTF-8: %q", hits[0].Snippet)
			}
			if hits[0].Snippet != tt.want {
				t.Errorf("snippet = %q, want %q", hits[0].Snippet, tt.want)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	c := New()
	c.UpsertChat(model.Chat{ID: 1})
	c.UpsertChat(model.Chat{ID: 2})
	c.UpsertMessages(1, []model.Message{{ID: "a"}, {ID: "b"}})
	c.UpsertMessages(2, []model.Message{{ID: "a"}})

	if c.ChatCount() != 2 {
		t.Errorf("ChatCount() = %d, want 2", c.ChatCount())
	}
	if c.MessageCount() != 3 {
		t.Errorf("MessageCount() = %d, want 3", c.MessageCount())
	}
}

// TestConcurrentMutation exercises the façade path and the event path
// racing on the same ids. Run with -race; the assertion is only that the
// final state is one of the two serialized outcomes, not a corrupted mix.
func TestConcurrentMutation(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("m%d", j%10)
				c.UpsertMessages(7, []model.Message{{ID: id, Text: "t"}})
				c.DeleteMessages(7, []string{id})
				c.UpsertChat(model.Chat{ID: 7, Title: id})
			}
		}()
	}
	wg.Wait()

	// Every surviving message must be unique by id.
	seen := map[string]bool{}
	for _, m := range c.Messages(7) {
		if seen[m.ID] {
			t.Fatalf("duplicate message id %q after concurrent upserts", m.ID)
		}
		seen[m.ID] = true
	}
}
