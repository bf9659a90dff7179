package mx

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/whitemax/maxd/internal/bus"
	"github.com/whitemax/maxd/internal/cache"
	"github.com/whitemax/maxd/internal/executor"
	"github.com/whitemax/maxd/internal/model"
	"github.com/whitemax/maxd/internal/status"
)

// DefaultCallTimeout bounds a single runtime invocation as observed by the
// caller. The worker itself is never interrupted; an expired caller simply
// stops waiting.
const DefaultCallTimeout = 60 * time.Second

// Client is the typed façade over the embedded runtime. All invocations are
// serialized through the executor; successful results are folded into the
// cache and announced on the bus.
type Client struct {
	rt      Runtime
	exec    *executor.Executor
	cache   *cache.Cache
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	callTimeout time.Duration

	// Own account id, learned from login or start_client. Needed to derive
	// direct chat ids.
	selfID atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// NewClient wires the façade. The runtime is expected to be single-threaded;
// the Client never calls Invoke outside the executor.
func NewClient(rt Runtime, exec *executor.Executor, store *cache.Cache, b *bus.Bus, machine *status.Machine, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		rt:          rt,
		exec:        exec,
		cache:       store,
		bus:         b,
		machine:     machine,
		logger:      logger,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelfID returns the authenticated account id, 0 when unknown.
func (c *Client) SelfID() int64 { return c.selfID.Load() }

// SetSelfID records the account id restored from the credential store.
func (c *Client) SetSelfID(id int64) { c.selfID.Store(id) }

// invoke runs op on the worker and decodes the envelope. It fails fast with
// ErrNotInitialized unless the session is in an operational state. The caller
// stops waiting when ctx or the per-call timeout expires, but the call itself
// still runs to completion on the worker.
func (c *Client) invoke(ctx context.Context, op string, args map[string]any) (envelope, error) {
	if !c.machine.Operational() {
		return nil, ErrNotInitialized
	}
	return c.invokeRaw(ctx, op, args)
}

func (c *Client) invokeRaw(ctx context.Context, op string, args map[string]any) (envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	res := c.exec.CallAsync(func() (string, error) {
		return c.rt.Invoke(op, args)
	})

	select {
	case r := <-res:
		c.logger.Debug("runtime call finished",
			zap.String("op", op),
			zap.Duration("took", time.Since(start)),
			zap.Error(r.Err))
		if r.Err != nil {
			return nil, &InvalidResponseError{Op: op, Err: r.Err}
		}
		return decodeEnvelope(op, r.Value)
	case <-ctx.Done():
		c.logger.Warn("runtime call abandoned", zap.String("op", op))
		return nil, fmt.Errorf("mx: %s: %w", op, ctx.Err())
	}
}

// CreateSession initializes the runtime session and drives the state machine
// to READY, or to NO_MODULE when the embedded module cannot be loaded. It is
// the one call allowed outside an operational state.
func (c *Client) CreateSession(ctx context.Context, phone, workDir, token string) error {
	if err := c.machine.Transition(status.Initializing); err != nil {
		return err
	}
	args := map[string]any{"phone": phone, "work_dir": workDir}
	if token != "" {
		args["token"] = token
	}
	env, err := c.invokeRaw(ctx, OpCreateSession, args)
	if err != nil {
		if moduleUnavailable(err) {
			c.logger.Error("embedded module unavailable", zap.Error(err))
			if terr := c.machine.Transition(status.NoModule); terr != nil {
				return terr
			}
			return err
		}
		return err
	}
	if unavailable, ok := env.bool("module_unavailable"); ok && unavailable {
		c.logger.Error("embedded module unavailable")
		if terr := c.machine.Transition(status.NoModule); terr != nil {
			return terr
		}
		return &RemoteError{Op: OpCreateSession, Message: "module unavailable"}
	}
	return c.machine.Transition(status.Ready)
}

// RequestCode asks the server to send an SMS code to phone. Returns the
// temporary token the subsequent login must present.
func (c *Client) RequestCode(ctx context.Context, phone, language string) (string, error) {
	env, err := c.invoke(ctx, OpRequestCode, map[string]any{
		"phone":    phone,
		"language": language,
	})
	if err != nil {
		return "", err
	}
	token := env.str("temp_token")
	if token == "" {
		return "", &MissingFieldError{Op: OpRequestCode, Field: "temp_token"}
	}
	return token, nil
}

// LoginResult is the outcome of a successful code login.
type LoginResult struct {
	Token string
	Phone string
	Me    *model.User
}

// LoginWithCode exchanges the SMS code for a durable token. A RemoteError
// with RequiresNewCode set means the code is spent and a fresh RequestCode
// round is needed.
func (c *Client) LoginWithCode(ctx context.Context, tempToken, code string) (LoginResult, error) {
	env, err := c.invoke(ctx, OpLoginWithCode, map[string]any{
		"temp_token": tempToken,
		"code":       code,
	})
	if err != nil {
		return LoginResult{}, err
	}
	token := env.str("token")
	if token == "" {
		return LoginResult{}, &MissingFieldError{Op: OpLoginWithCode, Field: "token"}
	}
	out := LoginResult{Token: token, Phone: env.str("phone")}
	if me, ok := env.object("me"); ok {
		out.Me = decodeUser(me)
	}
	if out.Me != nil {
		c.selfID.Store(out.Me.ID)
	}
	return out, nil
}

// StartResult is the connection outcome reported by start_client.
type StartResult struct {
	Connected     bool
	Authenticated bool
	RequiresAuth  bool
	Me            *model.User
}

// StartClient connects the runtime session. hasToken tells the façade a
// persisted credential was supplied to CreateSession: when the envelope
// carries no explicit authentication verdict, that credential counts as
// provisionally authenticated until the server says otherwise.
func (c *Client) StartClient(ctx context.Context, hasToken bool) (StartResult, error) {
	env, err := c.invoke(ctx, OpStartClient, nil)
	if err != nil {
		return StartResult{}, err
	}

	out := StartResult{Connected: true}
	if conn, ok := env.bool("connected"); ok {
		out.Connected = conn
	}
	if me, ok := env.object("me"); ok {
		out.Me = decodeUser(me)
	}
	if out.Me != nil {
		c.selfID.Store(out.Me.ID)
	}

	requiresAuth, _ := env.bool("requires_auth")
	out.RequiresAuth = requiresAuth
	switch auth, explicit := env.bool("authenticated"); {
	case explicit:
		out.Authenticated = auth
	case requiresAuth:
		out.Authenticated = false
	default:
		out.Authenticated = hasToken
	}
	return out, nil
}

// StopClient disconnects the runtime session.
func (c *Client) StopClient(ctx context.Context) error {
	_, err := c.invoke(ctx, OpStopClient, nil)
	return err
}

// ListChats returns the chat list. Duplicate ids collapse to one entry:
// first-seen order, data from the last occurrence. The cache receives the
// same last-write-wins result.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	env, err := c.invoke(ctx, OpGetChats, nil)
	if err != nil {
		return nil, err
	}
	chats := dedupChats(env.list("chats"))
	for _, chat := range chats {
		c.cache.UpsertChat(chat)
		c.bus.Publish(bus.KindChatUpdated, chat)
	}
	return chats, nil
}

func dedupChats(raw []any) []model.Chat {
	var order []int64
	byID := make(map[int64]model.Chat)
	for _, item := range raw {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		chat, ok := DecodeChat(payload)
		if !ok {
			continue
		}
		if _, seen := byID[chat.ID]; !seen {
			order = append(order, chat.ID)
		}
		byID[chat.ID] = chat
	}
	out := make([]model.Chat, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// FetchChats asks the server for the next chat list page after marker and
// merges it into the cache.
func (c *Client) FetchChats(ctx context.Context, marker int64) ([]model.Chat, error) {
	args := map[string]any{}
	if marker != 0 {
		args["marker"] = marker
	}
	env, err := c.invoke(ctx, OpFetchChats, args)
	if err != nil {
		return nil, err
	}
	chats := dedupChats(env.list("chats"))
	for _, chat := range chats {
		c.cache.UpsertChat(chat)
		c.bus.Publish(bus.KindChatUpdated, chat)
	}
	return chats, nil
}

// ListMessages returns up to limit messages of a chat, oldest first as the
// runtime orders them, and upserts them into the cache.
func (c *Client) ListMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, error) {
	env, err := c.invoke(ctx, OpGetMessages, map[string]any{
		"chat_id": chatID,
		"limit":   limit,
	})
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	for _, item := range env.list("messages") {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if m, ok := DecodeMessage(payload, chatID); ok {
			msgs = append(msgs, m)
		}
	}
	c.cache.UpsertMessages(chatID, msgs)
	return msgs, nil
}

// SendMessage sends text to a chat. replyTo may be empty.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, replyTo string) (model.Message, error) {
	args := map[string]any{"chat_id": chatID, "text": text}
	if replyTo != "" {
		args["reply_to"] = replyTo
	}
	env, err := c.invoke(ctx, OpSendMessage, args)
	if err != nil {
		return model.Message{}, err
	}
	return c.acceptMessage(OpSendMessage, env, chatID, acceptAsIs)
}

// SendAttachment sends a local file to a chat, optionally with a caption.
func (c *Client) SendAttachment(ctx context.Context, chatID int64, path string, kind model.AttachmentKind, caption, replyTo string) (model.Message, error) {
	args := map[string]any{
		"chat_id": chatID,
		"path":    path,
		"type":    string(kind),
	}
	if caption != "" {
		args["caption"] = caption
	}
	if replyTo != "" {
		args["reply_to"] = replyTo
	}
	env, err := c.invoke(ctx, OpSendAttachment, args)
	if err != nil {
		return model.Message{}, err
	}
	return c.acceptMessage(OpSendAttachment, env, chatID, acceptAsIs)
}

// EditMessage replaces the text of an own message.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID, text string) (model.Message, error) {
	env, err := c.invoke(ctx, OpEditMessage, map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	})
	if err != nil {
		return model.Message{}, err
	}
	m, err := c.acceptMessage(OpEditMessage, env, chatID, markEdited)
	return m, err
}

type acceptFlag int

const (
	acceptAsIs acceptFlag = iota
	// markEdited forces IsEdited even when the envelope omits it; the server
	// confirms an edit without echoing the flag.
	markEdited
)

// acceptMessage decodes the "message" field, upserts it and announces it.
func (c *Client) acceptMessage(op string, env envelope, chatID int64, flag acceptFlag) (model.Message, error) {
	payload, ok := env.object("message")
	if !ok {
		return model.Message{}, &MissingFieldError{Op: op, Field: "message"}
	}
	m, ok := DecodeMessage(payload, chatID)
	if !ok {
		return model.Message{}, &InvalidResponseError{Op: op, Err: fmt.Errorf("message payload has no id")}
	}
	if flag == markEdited {
		m.IsEdited = true
	}
	c.cache.UpsertMessages(m.ChatID, []model.Message{m})
	c.bus.Publish(bus.KindMessageUpserted, m)
	return m, nil
}

// DeleteMessages removes messages from a chat. forMe limits the deletion to
// the own copy.
func (c *Client) DeleteMessages(ctx context.Context, chatID int64, ids []string, forMe bool) error {
	_, err := c.invoke(ctx, OpDeleteMessage, map[string]any{
		"chat_id":     chatID,
		"message_ids": ids,
		"for_me":      forMe,
	})
	if err != nil {
		return err
	}
	c.cache.DeleteMessages(chatID, ids)
	c.bus.Publish(bus.KindMessageDeleted, DeletedMessages{ChatID: chatID, MessageIDs: ids})
	return nil
}

// DeletedMessages is the bus payload for a confirmed deletion.
type DeletedMessages struct {
	ChatID     int64
	MessageIDs []string
}

// PinMessage pins or unpins a message and reconciles the cached pin flag.
func (c *Client) PinMessage(ctx context.Context, chatID int64, messageID string, notify bool) error {
	_, err := c.invoke(ctx, OpPinMessage, map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"notify":     notify,
	})
	if err != nil {
		return err
	}
	c.cache.SetPinned(chatID, messageID, true)
	if m, ok := c.cache.Message(chatID, messageID); ok {
		c.bus.Publish(bus.KindMessageUpserted, m)
	}
	return nil
}

// AddReaction adds a reaction and returns the new counters.
func (c *Client) AddReaction(ctx context.Context, chatID int64, messageID, reaction string) (map[string]int, error) {
	return c.react(ctx, OpAddReaction, chatID, messageID, reaction)
}

// RemoveReaction removes a reaction and returns the new counters.
func (c *Client) RemoveReaction(ctx context.Context, chatID int64, messageID, reaction string) (map[string]int, error) {
	return c.react(ctx, OpRemoveReaction, chatID, messageID, reaction)
}

func (c *Client) react(ctx context.Context, op string, chatID int64, messageID, reaction string) (map[string]int, error) {
	env, err := c.invoke(ctx, op, map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction":   reaction,
	})
	if err != nil {
		return nil, err
	}
	counters := DecodeReactions(env["reactions"])
	c.cache.SetReactions(chatID, messageID, counters)
	c.bus.Publish(bus.KindReactionChanged, ReactionUpdate{
		ChatID:    chatID,
		MessageID: messageID,
		Reactions: counters,
	})
	return counters, nil
}

// ReactionUpdate is the bus payload for changed reaction counters.
type ReactionUpdate struct {
	ChatID    int64
	MessageID string
	Reactions map[string]int
}

// UploadPhoto uploads a local image and returns the upload token to attach.
func (c *Client) UploadPhoto(ctx context.Context, path string) (string, error) {
	return c.upload(ctx, OpUploadPhoto, path)
}

// UploadFile uploads a local file and returns the upload token to attach.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	return c.upload(ctx, OpUploadFile, path)
}

func (c *Client) upload(ctx context.Context, op, path string) (string, error) {
	env, err := c.invoke(ctx, op, map[string]any{"path": path})
	if err != nil {
		return "", err
	}
	token := env.str("token")
	if token == "" {
		token = env.str("upload_id")
	}
	if token == "" {
		return "", &MissingFieldError{Op: op, Field: "token"}
	}
	return token, nil
}

// ChangeProfile updates the own profile. Empty fields are left unchanged
// server-side.
func (c *Client) ChangeProfile(ctx context.Context, firstName, lastName, description, photoPath string) (*model.User, error) {
	args := map[string]any{}
	if firstName != "" {
		args["first_name"] = firstName
	}
	if lastName != "" {
		args["last_name"] = lastName
	}
	if description != "" {
		args["description"] = description
	}
	if photoPath != "" {
		args["photo_path"] = photoPath
	}
	env, err := c.invoke(ctx, OpChangeProfile, args)
	if err != nil {
		return nil, err
	}
	if me, ok := env.object("me"); ok {
		u := decodeUser(me)
		if u != nil {
			c.selfID.Store(u.ID)
		}
		return u, nil
	}
	return nil, nil
}

// Folders returns the server-side chat folders.
func (c *Client) Folders(ctx context.Context) ([]model.Folder, error) {
	env, err := c.invoke(ctx, OpGetFolders, nil)
	if err != nil {
		return nil, err
	}
	var out []model.Folder
	for _, item := range env.list("folders") {
		payload, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := decodeFolder(payload); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// CreateFolder creates a folder holding the given chat ids.
func (c *Client) CreateFolder(ctx context.Context, title string, include []int64) (model.Folder, error) {
	env, err := c.invoke(ctx, OpCreateFolder, map[string]any{
		"title":   title,
		"include": include,
	})
	if err != nil {
		return model.Folder{}, err
	}
	if payload, ok := env.object("folder"); ok {
		if f, ok := decodeFolder(payload); ok {
			return f, nil
		}
	}
	return model.Folder{}, &MissingFieldError{Op: OpCreateFolder, Field: "folder"}
}

// UpdateFolder replaces a folder's title and chat set.
func (c *Client) UpdateFolder(ctx context.Context, id, title string, include []int64) error {
	_, err := c.invoke(ctx, OpUpdateFolder, map[string]any{
		"folder_id": id,
		"title":     title,
		"include":   include,
	})
	return err
}

// DeleteFolder removes a folder. The chats inside are untouched.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, OpDeleteFolder, map[string]any{"folder_id": id})
	return err
}

// SearchByPhone resolves a phone number to a user.
func (c *Client) SearchByPhone(ctx context.Context, phone string) (model.User, error) {
	env, err := c.invoke(ctx, OpSearchByPhone, map[string]any{"phone": phone})
	if err != nil {
		return model.User{}, err
	}
	payload, ok := env.object("user")
	if !ok {
		return model.User{}, &MissingFieldError{Op: OpSearchByPhone, Field: "user"}
	}
	u := decodeUser(payload)
	if u == nil {
		return model.User{}, &InvalidResponseError{Op: OpSearchByPhone, Err: fmt.Errorf("user payload has no id")}
	}
	return *u, nil
}

// ResolveChannel resolves a public channel name to its chat and caches it.
func (c *Client) ResolveChannel(ctx context.Context, name string) (model.Chat, error) {
	env, err := c.invoke(ctx, OpResolveChannel, map[string]any{"name": name})
	if err != nil {
		return model.Chat{}, err
	}
	return c.acceptChat(OpResolveChannel, env)
}

// JoinGroup joins a group by invite link and caches the joined chat.
func (c *Client) JoinGroup(ctx context.Context, link string) (model.Chat, error) {
	env, err := c.invoke(ctx, OpJoinGroup, map[string]any{"link": link})
	if err != nil {
		return model.Chat{}, err
	}
	return c.acceptChat(OpJoinGroup, env)
}

// JoinChannel subscribes to a channel and caches it.
func (c *Client) JoinChannel(ctx context.Context, link string) (model.Chat, error) {
	env, err := c.invoke(ctx, OpJoinChannel, map[string]any{"link": link})
	if err != nil {
		return model.Chat{}, err
	}
	return c.acceptChat(OpJoinChannel, env)
}

func (c *Client) acceptChat(op string, env envelope) (model.Chat, error) {
	payload, ok := env.object("chat")
	if !ok {
		return model.Chat{}, &MissingFieldError{Op: op, Field: "chat"}
	}
	chat, ok := DecodeChat(payload)
	if !ok {
		return model.Chat{}, &InvalidResponseError{Op: op, Err: fmt.Errorf("chat payload has no id")}
	}
	c.cache.UpsertChat(chat)
	c.bus.Publish(bus.KindChatUpdated, chat)
	return chat, nil
}

// LeaveGroup leaves a group and evicts it from the cache.
func (c *Client) LeaveGroup(ctx context.Context, chatID int64) error {
	return c.leave(ctx, OpLeaveGroup, chatID)
}

// LeaveChannel unsubscribes from a channel and evicts it from the cache.
func (c *Client) LeaveChannel(ctx context.Context, chatID int64) error {
	return c.leave(ctx, OpLeaveChannel, chatID)
}

func (c *Client) leave(ctx context.Context, op string, chatID int64) error {
	_, err := c.invoke(ctx, op, map[string]any{"chat_id": chatID})
	if err != nil {
		return err
	}
	c.cache.DeleteChat(chatID)
	c.bus.Publish(bus.KindChatDeleted, chatID)
	return nil
}

// MarkRead advances the chat's read marker to messageID.
func (c *Client) MarkRead(ctx context.Context, chatID int64, messageID string) error {
	_, err := c.invoke(ctx, OpReadMessage, map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}

// RegisterEventCallbacks points the runtime's push notifications at
// eventsDir. The runtime confirms the directory it will write to; a missing
// confirmation means events would be lost silently, so it is an error.
func (c *Client) RegisterEventCallbacks(ctx context.Context, eventsDir string) (string, error) {
	env, err := c.invoke(ctx, OpRegisterEventCallbacks, map[string]any{
		"events_dir": eventsDir,
	})
	if err != nil {
		return "", err
	}
	dir := env.str("events_dir")
	if dir == "" {
		return "", &MissingFieldError{Op: OpRegisterEventCallbacks, Field: "events_dir"}
	}
	return dir, nil
}

// DirectChat returns the one-to-one chat with peer. The id is derived, not
// asked of the server: selfID XOR peer id. Cache first, then the live chat
// list; when neither knows the chat yet a provisional value is returned and
// deliberately not cached, so the first real payload is not shadowed.
func (c *Client) DirectChat(ctx context.Context, peer model.User) (model.Chat, error) {
	self := c.selfID.Load()
	if self == 0 {
		return model.Chat{}, ErrNotInitialized
	}
	id := model.DirectChatID(self, peer.ID)

	if chat, ok := c.cache.Chat(id); ok {
		return chat, nil
	}
	chats, err := c.ListChats(ctx)
	if err != nil {
		return model.Chat{}, err
	}
	for _, chat := range chats {
		if chat.ID == id {
			return chat, nil
		}
	}
	return model.Chat{
		ID:    id,
		Kind:  model.Dialog,
		Title: peer.DisplayName,
	}, nil
}
