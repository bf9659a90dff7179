package mx

import (
	"github.com/whitemax/maxd/internal/model"
)

// DecodeMessage maps a wire message payload to a model.Message. A payload
// without an id is unusable and reports false. A missing chat_id inherits
// fallbackChatID (the chat the call or event was scoped to); if neither is
// known the message is dropped.
func DecodeMessage(payload map[string]any, fallbackChatID int64) (model.Message, bool) {
	if payload == nil {
		return model.Message{}, false
	}
	id := asString(payload["id"])
	if id == "" {
		return model.Message{}, false
	}

	chatID, ok := asInt64(payload["chat_id"])
	if !ok {
		chatID = fallbackChatID
	}
	if chatID == 0 {
		return model.Message{}, false
	}

	m := model.Message{
		ID:     id,
		ChatID: chatID,
		Text:   asString(payload["text"]),
		Kind:   asString(payload["type"]),
	}
	if sender, ok := asInt64(payload["sender_id"]); ok {
		m.SenderID = sender
	}
	if ts, ok := asInt64(payload["time"]); ok {
		m.Timestamp = ts
	} else if ts, ok := asInt64(payload["date"]); ok {
		m.Timestamp = ts
	}
	if reply := asString(payload["reply_to"]); reply != "" {
		m.ReplyToID = reply
	}
	m.Reactions = DecodeReactions(payload["reactions"])
	m.IsEdited = asBool(payload["edited"])
	m.IsPinned = asBool(payload["pinned"])

	if attaches, ok := payload["attachments"].([]any); ok {
		for _, a := range attaches {
			raw, ok := a.(map[string]any)
			if !ok {
				continue
			}
			m.Attachments = append(m.Attachments, decodeAttachment(raw))
		}
	}
	return m, true
}

func decodeAttachment(raw map[string]any) model.Attachment {
	att := model.Attachment{
		Kind:         model.ParseAttachmentKind(asString(raw["type"])),
		URL:          asString(raw["url"]),
		ThumbnailURL: asString(raw["thumbnail_url"]),
		FileName:     asString(raw["file_name"]),
	}
	if id, ok := asInt64(raw["id"]); ok {
		att.ID = id
	}
	if size, ok := asInt64(raw["file_size"]); ok {
		att.FileSize = size
	}
	return att
}

// DecodeChat maps a wire chat payload to a model.Chat. Reports false when
// the id is absent.
func DecodeChat(payload map[string]any) (model.Chat, bool) {
	if payload == nil {
		return model.Chat{}, false
	}
	id, ok := asInt64(payload["id"])
	if !ok {
		return model.Chat{}, false
	}
	chat := model.Chat{
		ID:      id,
		Title:   asString(payload["title"]),
		Kind:    model.ParseChatKind(asString(payload["type"])),
		IconRef: asString(payload["icon_url"]),
	}
	if unread, ok := asInt64(payload["unread_count"]); ok && unread > 0 {
		chat.UnreadCount = int(unread)
	}
	return chat, true
}

// DecodeReactions accepts either a plain counter map {"👍": 2} or a
// reaction_info object {"counters": [{"reaction": "👍", "count": 2}]}.
// Returns nil when there are no counters.
func DecodeReactions(v any) map[string]int {
	switch t := v.(type) {
	case map[string]any:
		if counters, ok := t["counters"].([]any); ok {
			return decodeCounters(counters)
		}
		out := make(map[string]int, len(t))
		for sym, cnt := range t {
			if n, ok := asInt64(cnt); ok {
				out[sym] = int(n)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		return decodeCounters(t)
	default:
		return nil
	}
}

func decodeCounters(counters []any) map[string]int {
	out := make(map[string]int)
	for _, c := range counters {
		raw, ok := c.(map[string]any)
		if !ok {
			continue
		}
		sym := asString(raw["reaction"])
		if sym == "" {
			continue
		}
		n, _ := asInt64(raw["count"])
		out[sym] = int(n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// decodeUser maps a wire user payload ("me", "user") to a model.User.
func decodeUser(payload map[string]any) *model.User {
	if payload == nil {
		return nil
	}
	id, ok := asInt64(payload["id"])
	if !ok {
		return nil
	}
	name := asString(payload["name"])
	if name == "" {
		name = asString(payload["first_name"])
	}
	return &model.User{ID: id, DisplayName: name}
}

// decodeFolder maps a wire folder payload to a model.Folder.
func decodeFolder(payload map[string]any) (model.Folder, bool) {
	if payload == nil {
		return model.Folder{}, false
	}
	id := asString(payload["id"])
	if id == "" {
		return model.Folder{}, false
	}
	f := model.Folder{ID: id, Title: asString(payload["title"])}
	if include, ok := payload["include"].([]any); ok {
		for _, v := range include {
			if n, ok := asInt64(v); ok {
				f.Include = append(f.Include, n)
			}
		}
	}
	return f, true
}
