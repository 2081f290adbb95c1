package foundry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"github.com/tevino/abool"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/vincent-petithory/dataurl"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
)

// DefaultCallTimeout bounds a single relay call.
const DefaultCallTimeout = 30 * time.Second

// Relay message types.
const (
	msgSessions     = "sessions"
	msgQueryEntry   = "query-entry"
	msgCreateEntry  = "create-entry"
	msgUpdateEntry  = "update-entry"
	msgListEntries  = "list-entries"
	msgUploadFile   = "upload-file"
	msgInstallMacro = "install-macro"
	msgError        = "error"
)

// Client is a websocket client for the Foundry relay. Calls are correlated
// by frame id, so callers may issue them from multiple goroutines.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	timeout   time.Duration

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan []byte

	closing *abool.AtomicBool
	done    chan struct{}
}

var _ RemoteStore = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSession preselects the world session calls are routed to.
func WithSession(id string) ClientOption {
	return func(c *Client) { c.sessionID = id }
}

// WithCallTimeout overrides the default per-call deadline.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Dial connects to the relay and starts the reader. The context bounds the
// handshake only; the connection itself lives until Close.
func Dial(ctx context.Context, relayURL, apiKey string, opts ...ClientOption) (*Client, error) {
	header := http.Header{}
	if apiKey != "" {
		header.Set("X-Api-Key", apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, relayURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay dial %s: %w (status %d)", relayURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("relay dial %s: %w", relayURL, err)
	}

	c := &Client{
		conn:    conn,
		timeout: DefaultCallTimeout,
		pending: make(map[string]chan []byte),
		closing: abool.NewBool(false),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	logger.Debug("relay connected", "url", relayURL, "session", c.sessionID)
	return c, nil
}

// UseSession switches the world session for subsequent calls. Not safe to
// race with in-flight calls.
func (c *Client) UseSession(id string) {
	c.sessionID = id
}

// Close sends a close frame and tears the connection down. Pending calls
// fail with ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown(nil)
	return nil
}

func (c *Client) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		id := gjson.GetBytes(msg, "id").String()
		if id == "" {
			logger.Debug("relay push ignored", "type", gjson.GetBytes(msg, "type").String())
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
		if !ok {
			logger.Debug("relay reply without caller", "id", id)
			continue
		}
		ch <- msg
	}
}

func (c *Client) shutdown(err error) {
	if !c.closing.SetToIf(false, true) {
		return
	}
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Warn("relay connection lost", "error", err)
	}
	close(c.done)
	_ = c.conn.Close()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.pendingMu.Unlock()
}

// call sends one frame and waits for the matching reply.
func (c *Client) call(ctx context.Context, msgType string, data any) (json.RawMessage, error) {
	if c.closing.IsSet() {
		return nil, ErrClosed
	}

	id := uuid.Must(uuid.NewV4()).String()
	frame := map[string]any{"id": id, "type": msgType}
	if c.sessionID != "" {
		frame["sessionId"] = c.sessionID
	}
	if data != nil {
		frame["data"] = data
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}

	ch := make(chan []byte, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if gjson.GetBytes(msg, "type").String() == msgError {
			return nil, fmt.Errorf("relay %s: %s", msgType, gjson.GetBytes(msg, "error").String())
		}
		return json.RawMessage(gjson.GetBytes(msg, "data").Raw), nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", msgType, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// ListSessions returns the worlds currently reachable through the relay.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	data, err := c.call(ctx, msgSessions, nil)
	if err != nil {
		return nil, err
	}
	var sessions []Session
	gjson.GetBytes(data, "sessions").ForEach(func(_, v gjson.Result) bool {
		sessions = append(sessions, Session{
			ID:    v.Get("id").String(),
			World: v.Get("world").String(),
		})
		return true
	})
	return sessions, nil
}

// Query looks a journal entry up by identity. ErrNotFound means the store
// holds no matching record.
func (c *Client) Query(ctx context.Context, id Identity) (*EntryRecord, error) {
	data, err := c.call(ctx, msgQueryEntry, id)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(data, "found").Bool() {
		return nil, ErrNotFound
	}
	entry := parseEntry(gjson.GetBytes(data, "entry"))
	return &entry, nil
}

// Upload creates a new journal entry and returns its remote id.
func (c *Client) Upload(ctx context.Context, entry *EntryRecord) (string, error) {
	payload, err := entryPayload(entry)
	if err != nil {
		return "", err
	}
	data, err := c.call(ctx, msgCreateEntry, payload)
	if err != nil {
		return "", err
	}
	remoteID := gjson.GetBytes(data, "id").String()
	if remoteID == "" {
		return "", fmt.Errorf("relay %s: reply carries no id", msgCreateEntry)
	}
	return remoteID, nil
}

// Update overwrites an existing entry in place.
func (c *Client) Update(ctx context.Context, remoteID string, entry *EntryRecord) error {
	payload, err := entryPayload(entry)
	if err != nil {
		return err
	}
	payload, err = sjson.SetBytes(payload, "id", remoteID)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgUpdateEntry, err)
	}
	_, err = c.call(ctx, msgUpdateEntry, json.RawMessage(payload))
	return err
}

// Entries lists every journal entry of the active session.
func (c *Client) Entries(ctx context.Context) ([]EntryRecord, error) {
	data, err := c.call(ctx, msgListEntries, nil)
	if err != nil {
		return nil, err
	}
	var entries []EntryRecord
	gjson.GetBytes(data, "entries").ForEach(func(_, v gjson.Result) bool {
		entries = append(entries, parseEntry(v))
		return true
	})
	return entries, nil
}

// UploadFile pushes an attachment to the world's data directory. The bytes
// travel as a data URI so the relay does not need a second channel.
func (c *Client) UploadFile(ctx context.Context, remotePath string, data []byte) error {
	payload := map[string]string{
		"path": remotePath,
		"uri":  dataurl.EncodeBytes(data),
	}
	_, err := c.call(ctx, msgUploadFile, payload)
	return err
}

// InstallMacro creates or replaces a named script macro in the world.
func (c *Client) InstallMacro(ctx context.Context, name, source string) error {
	_, err := c.call(ctx, msgInstallMacro, map[string]string{
		"name":   name,
		"source": source,
	})
	return err
}

func parseEntry(v gjson.Result) EntryRecord {
	return EntryRecord{
		ID:       v.Get("id").String(),
		Name:     v.Get("name").String(),
		Journal:  v.Get("journal").String(),
		Folder:   v.Get("folder").String(),
		Content:  v.Get("content").String(),
		UUID:     v.Get("flags.markdowntofoundry.uuid").String(),
		NotePath: v.Get("flags.markdowntofoundry.path").String(),
		Raw:      json.RawMessage(v.Raw),
	}
}

// entryPayload builds the wire form of an entry. Identity flags are
// grafted on with sjson so absent values leave no empty flag objects.
func entryPayload(entry *EntryRecord) (json.RawMessage, error) {
	b, err := json.Marshal(map[string]string{
		"name":    entry.Name,
		"journal": entry.Journal,
		"folder":  entry.Folder,
		"content": entry.Content,
	})
	if err != nil {
		return nil, err
	}
	if entry.UUID != "" {
		if b, err = sjson.SetBytes(b, "flags.markdowntofoundry.uuid", entry.UUID); err != nil {
			return nil, err
		}
	}
	if entry.NotePath != "" {
		if b, err = sjson.SetBytes(b, "flags.markdowntofoundry.path", entry.NotePath); err != nil {
			return nil, err
		}
	}
	return b, nil
}
