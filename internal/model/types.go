package model

// ChatKind classifies a chat.
type ChatKind string

const (
	Dialog      ChatKind = "DIALOG"
	Group       ChatKind = "GROUP"
	Channel     ChatKind = "CHANNEL"
	UnknownChat ChatKind = "UNKNOWN"
)

// ParseChatKind maps a wire chat type string to a ChatKind.
// The server uses "CHAT" for group chats.
func ParseChatKind(s string) ChatKind {
	switch s {
	case "DIALOG":
		return Dialog
	case "CHAT", "GROUP":
		return Group
	case "CHANNEL":
		return Channel
	default:
		return UnknownChat
	}
}

// AttachmentKind classifies an attachment.
type AttachmentKind string

const (
	Photo             AttachmentKind = "PHOTO"
	Video             AttachmentKind = "VIDEO"
	File              AttachmentKind = "FILE"
	UnknownAttachment AttachmentKind = "UNKNOWN"
)

// ParseAttachmentKind maps a wire attachment type string to an AttachmentKind.
func ParseAttachmentKind(s string) AttachmentKind {
	switch s {
	case "PHOTO":
		return Photo
	case "VIDEO":
		return Video
	case "FILE":
		return File
	default:
		return UnknownAttachment
	}
}

// User is a remote account. DisplayName may be empty.
type User struct {
	ID          int64
	DisplayName string
}

// Chat is a conversation (dialog, group or channel). ID is globally unique.
type Chat struct {
	ID          int64
	Title       string
	Kind        ChatKind
	IconRef     string
	UnreadCount int
}

// Attachment belongs to exactly one Message.
type Attachment struct {
	ID           int64
	Kind         AttachmentKind
	URL          string
	ThumbnailURL string
	FileName     string
	FileSize     int64
}

// Message is identified by (ChatID, ID). Message ids are server-assigned
// strings; numeric ids on the wire are normalized to their decimal form.
type Message struct {
	ID          string
	ChatID      int64
	Text        string
	SenderID    int64
	Timestamp   int64 // unix milliseconds, 0 if unknown
	Kind        string
	Reactions   map[string]int
	ReplyToID   string
	Attachments []Attachment
	IsEdited    bool
	IsPinned    bool
}

// Folder groups chats by id on the server side.
type Folder struct {
	ID      string
	Title   string
	Include []int64
}

// DirectChatID derives the one-to-one chat id for a pair of users.
// XOR is commutative, so both participants compute the same id.
func DirectChatID(a, b int64) int64 {
	return a ^ b
}
