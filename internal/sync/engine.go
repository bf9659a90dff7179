// Package sync applies push events from the event watcher to the shared
// cache and republishes them on the bus, so observers see one stream no
// matter whether a change came from a call result or a push.
package sync

import (
	"go.uber.org/zap"

	"github.com/whitemax/maxd/internal/bus"
	"github.com/whitemax/maxd/internal/cache"
	"github.com/whitemax/maxd/internal/model"
	"github.com/whitemax/maxd/internal/mx"
	"github.com/whitemax/maxd/internal/watch"
)

// Engine is the watcher's handler. It is driven from the single watcher
// goroutine, so events apply in arrival order.
type Engine struct {
	cache  *cache.Cache
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates an ingest engine over the shared cache and bus.
func New(store *cache.Cache, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{cache: store, bus: b, logger: logger}
}

// Handle applies one typed event.
func (e *Engine) Handle(evt watch.Event) {
	switch ev := evt.(type) {
	case watch.MessageNew:
		e.upsert(ev.Message)
	case watch.MessageEdit:
		e.upsert(ev.Message)
	case watch.MessageDelete:
		e.cache.DeleteMessages(ev.ChatID, []string{ev.MessageID})
		e.bus.Publish(bus.KindMessageDeleted, mx.DeletedMessages{
			ChatID:     ev.ChatID,
			MessageIDs: []string{ev.MessageID},
		})
	case watch.ReactionChange:
		e.cache.SetReactions(ev.ChatID, ev.MessageID, ev.Reactions)
		e.bus.Publish(bus.KindReactionChanged, mx.ReactionUpdate{
			ChatID:    ev.ChatID,
			MessageID: ev.MessageID,
			Reactions: ev.Reactions,
		})
	case watch.ChatUpdate:
		e.cache.MergeChat(ev.Chat)
		// Publish the merged value, not the partial payload.
		if chat, ok := e.cache.Chat(ev.Chat.ID); ok {
			e.bus.Publish(bus.KindChatUpdated, chat)
		}
	default:
		e.logger.Warn("unhandled event", zap.Any("event", evt))
	}
}

func (e *Engine) upsert(m model.Message) {
	e.cache.UpsertMessages(m.ChatID, []model.Message{m})
	e.bus.Publish(bus.KindMessageUpserted, m)
}
