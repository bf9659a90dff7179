// Package watch follows the runtime's event directory and turns dropped
// JSON files into an ordered stream of typed events. Each file is consumed
// at most once: it is deleted after its handler returns, so a restart never
// redelivers.
package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/whitemax/maxd/internal/model"
	"github.com/whitemax/maxd/internal/mx"
)

// Event is a typed push notification from the runtime.
type Event interface {
	isEvent()
}

// MessageNew announces a message that did not exist before.
type MessageNew struct {
	Message model.Message
}

// MessageEdit announces a changed message body.
type MessageEdit struct {
	Message model.Message
}

// MessageDelete announces a removed message.
type MessageDelete struct {
	ChatID    int64
	MessageID string
}

// ReactionChange announces new reaction counters for a message.
type ReactionChange struct {
	ChatID    int64
	MessageID string
	Reactions map[string]int
}

// ChatUpdate carries a possibly partial chat payload; zero fields mean "no
// change" and the cache keeps its values for them.
type ChatUpdate struct {
	Chat model.Chat
}

func (MessageNew) isEvent()     {}
func (MessageEdit) isEvent()    {}
func (MessageDelete) isEvent()  {}
func (ReactionChange) isEvent() {}
func (ChatUpdate) isEvent()     {}

// Handler consumes one event. It runs on the watcher goroutine; a slow
// handler delays every following event.
type Handler func(Event)

var errUnknownType = errors.New("unknown event type")

// decodeEvent parses one event file body. Unusable payloads are errors;
// types this host does not know return errUnknownType and are skipped
// silently by the watcher.
func decodeEvent(body []byte) (Event, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	typ, _ := raw["type"].(string)

	switch typ {
	case "message_new", "message_edit":
		payload, _ := raw["message"].(map[string]any)
		m, ok := mx.DecodeMessage(payload, 0)
		if !ok {
			return nil, fmt.Errorf("%s without usable message", typ)
		}
		if typ == "message_edit" {
			m.IsEdited = true
			return MessageEdit{Message: m}, nil
		}
		return MessageNew{Message: m}, nil

	case "message_delete":
		chatID, msgID, err := idPair(raw)
		if err != nil {
			return nil, fmt.Errorf("message_delete: %w", err)
		}
		return MessageDelete{ChatID: chatID, MessageID: msgID}, nil

	case "reaction_change":
		chatID, msgID, err := idPair(raw)
		if err != nil {
			return nil, fmt.Errorf("reaction_change: %w", err)
		}
		return ReactionChange{
			ChatID:    chatID,
			MessageID: msgID,
			Reactions: mx.DecodeReactions(raw["reactions"]),
		}, nil

	case "chat_update":
		payload, _ := raw["chat"].(map[string]any)
		chat, ok := mx.DecodeChat(payload)
		if !ok {
			return nil, errors.New("chat_update without usable chat")
		}
		return ChatUpdate{Chat: chat}, nil

	default:
		return nil, errUnknownType
	}
}

func idPair(raw map[string]any) (int64, string, error) {
	var chatID int64
	switch v := raw["chat_id"].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, "", errors.New("bad chat_id")
		}
		chatID = n
	default:
		return 0, "", errors.New("missing chat_id")
	}

	msgID := ""
	switch v := raw["message_id"].(type) {
	case string:
		msgID = v
	case json.Number:
		msgID = v.String()
	}
	if msgID == "" {
		return 0, "", errors.New("missing message_id")
	}
	return chatID, msgID, nil
}
