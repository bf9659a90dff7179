package bus

import "time"

// Event kinds published by the host core. The UI layer subscribes by
// namespace prefix ("message.", "chat.", "session.").
const (
	KindChatUpdated     = "chat.updated"
	KindChatDeleted     = "chat.deleted"
	KindMessageUpserted = "message.upserted"
	KindMessageDeleted  = "message.deleted"
	KindReactionChanged = "reaction.changed"
	KindStatusChanged   = "session.status_changed"
	KindAuthChanged     = "session.auth_changed"
)

// Event is a domain notification delivered to subscribers.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
