// Package cache holds the in-memory chat cache and per-chat message index.
// It is mutated from two paths at once — façade call completions and push
// event ingestion — so every operation takes the one internal mutex; callers
// never receive references into the internal maps, only copies.
package cache

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/whitemax/maxd/internal/model"
)

// SearchHit is one match from Search.
type SearchHit struct {
	ChatID    int64
	MessageID string
	Snippet   string
	Timestamp int64
}

const snippetLen = 96

// Cache is the shared chat/message store. The zero value is not usable; use New.
type Cache struct {
	mu       sync.RWMutex
	chats    map[int64]model.Chat
	messages map[int64][]model.Message // per chat, in arrival order
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		chats:    make(map[int64]model.Chat),
		messages: make(map[int64][]model.Message),
	}
}

// UpsertChat inserts or replaces a chat. Last write wins by id.
func (c *Cache) UpsertChat(chat model.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[chat.ID] = chat
}

// MergeChat applies a partial chat payload: zero-valued fields keep the
// cached values. Push chat_update events often carry only the fields that
// changed.
func (c *Cache) MergeChat(chat model.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.chats[chat.ID]
	if !ok {
		c.chats[chat.ID] = chat
		return
	}
	if chat.Title != "" {
		cur.Title = chat.Title
	}
	if chat.Kind != "" && chat.Kind != model.UnknownChat {
		cur.Kind = chat.Kind
	}
	if chat.IconRef != "" {
		cur.IconRef = chat.IconRef
	}
	if chat.UnreadCount != 0 {
		cur.UnreadCount = chat.UnreadCount
	}
	c.chats[chat.ID] = cur
}

// DeleteChat removes a chat and its message index. Absent ids are ignored.
func (c *Cache) DeleteChat(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chats, id)
	delete(c.messages, id)
}

// Chat returns the cached chat by id.
func (c *Cache) Chat(id int64) (model.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.chats[id]
	return chat, ok
}

// Chats returns a snapshot of all cached chats in unspecified order.
func (c *Cache) Chats() []model.Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Chat, 0, len(c.chats))
	for _, chat := range c.chats {
		out = append(out, chat)
	}
	return out
}

// UpsertMessages merges messages into the chat's collection by message id:
// an existing id is replaced in place (keeping its position), a new id is
// appended. No re-sort happens; callers supply messages in arrival order.
func (c *Cache) UpsertMessages(chatID int64, msgs []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.messages[chatID]
	for _, m := range msgs {
		m.ChatID = chatID
		replaced := false
		for i := range list {
			if list[i].ID == m.ID {
				list[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, m)
		}
	}
	c.messages[chatID] = list
}

// DeleteMessages removes the given ids from the chat's collection. Absent
// ids are ignored.
func (c *Cache) DeleteMessages(chatID int64, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.messages[chatID]
	if len(list) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := list[:0]
	for _, m := range list {
		if _, gone := drop[m.ID]; !gone {
			kept = append(kept, m)
		}
	}
	c.messages[chatID] = kept
}

// Message returns a single cached message.
func (c *Cache) Message(chatID int64, id string) (model.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages[chatID] {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

// Messages returns a snapshot of the chat's messages in stored order.
func (c *Cache) Messages(chatID int64) []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.messages[chatID]
	out := make([]model.Message, len(list))
	copy(out, list)
	return out
}

// SetPinned patches the pinned flag of a cached message. A miss is a no-op:
// pin state for uncached messages arrives with the next full payload.
func (c *Cache) SetPinned(chatID int64, id string, pinned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.messages[chatID]
	for i := range list {
		if list[i].ID == id {
			list[i].IsPinned = pinned
			return
		}
	}
}

// SetReactions replaces the reaction counters of a cached message.
func (c *Cache) SetReactions(chatID int64, id string, reactions map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.messages[chatID]
	for i := range list {
		if list[i].ID == id {
			list[i].Reactions = reactions
			return
		}
	}
}

// Search performs a case-insensitive substring match over message text in
// all chats. An empty query matches nothing.
func (c *Cache) Search(query string) []SearchHit {
	if query == "" {
		return nil
	}
	needle := strings.ToLower(query)

	c.mu.RLock()
	defer c.mu.RUnlock()
	var hits []SearchHit
	for chatID, list := range c.messages {
		for _, m := range list {
			if strings.Contains(strings.ToLower(m.Text), needle) {
				hits = append(hits, SearchHit{
					ChatID:    chatID,
					MessageID: m.ID,
					Snippet:   snippet(m.Text),
					Timestamp: m.Timestamp,
				})
			}
		}
	}
	return hits
}

// ChatCount returns the number of cached chats.
func (c *Cache) ChatCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chats)
}

// MessageCount returns the number of indexed messages across all chats.
func (c *Cache) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, list := range c.messages {
		n += len(list)
	}
	return n
}

func snippet(text string) string {
	if len(text) <= snippetLen {
		return text
	}
	cut := text[:snippetLen]
	// Do not split a UTF-8 sequence: drop bytes only while the tail is a
	// broken rune. A cut landing exactly on a rune boundary keeps that rune.
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size != 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
