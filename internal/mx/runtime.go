// Package mx is the typed call surface over the embedded Max runtime. The
// runtime itself is a foreign, single-threaded black box: it exposes named
// operations taking primitive arguments and answers every call with one
// serialized JSON envelope. This package turns those envelopes into domain
// objects and typed errors; all invocations are routed through the worker
// executor so the runtime never sees two calls at once.
package mx

// Operation names understood by the embedded runtime. Each corresponds 1:1
// to a Client method.
const (
	OpCreateSession          = "create_session"
	OpRequestCode            = "request_code"
	OpLoginWithCode          = "login_with_code"
	OpStartClient            = "start_client"
	OpStopClient             = "stop_client"
	OpGetChats               = "get_chats"
	OpFetchChats             = "fetch_chats"
	OpGetMessages            = "get_messages"
	OpSendMessage            = "send_message"
	OpSendAttachment         = "send_attachment"
	OpEditMessage            = "edit_message"
	OpDeleteMessage          = "delete_message"
	OpPinMessage             = "pin_message"
	OpAddReaction            = "add_reaction"
	OpRemoveReaction         = "remove_reaction"
	OpUploadPhoto            = "upload_photo"
	OpUploadFile             = "upload_file"
	OpChangeProfile          = "change_profile"
	OpGetFolders             = "get_folders"
	OpCreateFolder           = "create_folder"
	OpUpdateFolder           = "update_folder"
	OpDeleteFolder           = "delete_folder"
	OpSearchByPhone          = "search_by_phone"
	OpResolveChannel         = "resolve_channel"
	OpJoinGroup              = "join_group"
	OpJoinChannel            = "join_channel"
	OpLeaveGroup             = "leave_group"
	OpLeaveChannel           = "leave_channel"
	OpReadMessage            = "read_message"
	OpRegisterEventCallbacks = "register_event_callbacks"
)

// Runtime is the embedded module's invocation surface. Implementations are
// not safe for concurrent use; the Client serializes access through the
// executor. Invoke returns the raw envelope string; a non-nil error means
// the call never reached the module (transport failure).
type Runtime interface {
	Invoke(op string, args map[string]any) (string, error)
}
