// Package session implements the collaborative-editing core: one
// participant's live view of a shared multi-file document set, kept in sync
// with the other members of a room through a message relay.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"colabx-sync/internal/snapshot"
	"colabx-sync/pkg/textop"
	"colabx-sync/pkg/wire"
)

// After this many consecutive failed applies on one file the session stops
// trusting its copy and asks the relay for the authoritative content.
const resyncThreshold = 3

// Inbound tasks yield this long between drains so a burst of remote
// operations cannot starve everything else.
const defaultQueueYield = 10 * time.Millisecond

// Cursor colors, assigned once at session start and stable for the session.
var palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#FFA07A",
}

// NewUser mints a participant identity with a palette color.
func NewUser(name string) wire.User {
	id := uuid.New().String()[:8]
	if name == "" {
		name = "User-" + id[:4]
	}
	return wire.User{
		ID:    id,
		Name:  name,
		Color: palette[time.Now().UnixNano()%int64(len(palette))],
	}
}

// Options configure a Session.
type Options struct {
	// RelayURL is the websocket endpoint of the room relay.
	RelayURL string

	// RoomID names the collaboration session to join.
	RoomID string

	// User is the local identity; see NewUser.
	User wire.User

	// Surface, when set, is the editor this session drives. A nil surface
	// runs the session headless.
	Surface Surface

	// Snapshots, when set, persists the last synced document set per room.
	Snapshots *snapshot.Store

	// ReconnectDelay, QueueYield and SuppressWindow default to 3s, 10ms and
	// 100ms when zero; tests shrink them. A negative QueueYield disables
	// the inter-task yield entirely.
	ReconnectDelay time.Duration
	QueueYield     time.Duration
	SuppressWindow time.Duration

	Logger *slog.Logger
}

// relayLink is the slice of Conn the session drives; tests substitute it.
type relayLink interface {
	Connect()
	Close()
	Send(wire.Message) error
}

// Session owns all client-side collaboration state for one room: the
// document store, the presence set, the inbound queue, the editor binding
// and the relay connection.
type Session struct {
	self      wire.User
	roomID    string
	logger    *slog.Logger
	link      relayLink
	queue     *taskQueue
	docs      *DocumentStore
	presence  *Presence
	binding   *Binding
	snapshots *snapshot.Store
	metrics   *Metrics

	mu         sync.Mutex
	activeFile string
	connState  ConnState
	lastError  string
	failed     map[string]int
	closed     bool
}

// New assembles a session. The relay is not dialed until Connect; if a
// snapshot store is configured, the cached document set for the room is
// loaded immediately so there is something on screen before the first sync.
func New(opts Options) (*Session, error) {
	if opts.RelayURL == "" {
		return nil, fmt.Errorf("session: relay URL is required")
	}
	if opts.RoomID == "" {
		return nil, fmt.Errorf("session: room id is required")
	}
	if opts.User.ID == "" {
		opts.User = NewUser(opts.User.Name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("room", opts.RoomID, "user", opts.User.ID)

	yield := opts.QueueYield
	if yield == 0 {
		yield = defaultQueueYield
	}

	s := &Session{
		self:      opts.User,
		roomID:    opts.RoomID,
		logger:    logger,
		docs:      NewDocumentStore(),
		presence:  NewPresence(opts.User.ID),
		snapshots: opts.Snapshots,
		metrics:   &Metrics{},
		failed:    make(map[string]int),
	}
	s.queue = newTaskQueue(yield, logger)
	s.binding = newBinding(opts.Surface, opts.SuppressWindow, logger)
	s.binding.onLocalEdit = s.localEdit
	s.binding.onCursor = s.localCursor
	s.link = NewConn(
		ConnConfig{URL: opts.RelayURL, ReconnectDelay: opts.ReconnectDelay},
		opts.User, opts.RoomID,
		s.handleRaw, s.handleStatus,
		logger,
	)

	if s.snapshots != nil {
		if files, err := s.snapshots.LoadRoom(s.roomID); err != nil {
			logger.Warn("snapshot load failed", "err", err)
		} else if len(files) > 0 {
			s.docs.ReplaceAll(files)
			s.ensureActiveFile()
			logger.Info("restored cached document set", "files", len(files))
		}
	}
	return s, nil
}

// Connect dials the relay and joins the room.
func (s *Session) Connect() {
	s.link.Connect()
}

// Close tears the session down: leave + normal close on the transport,
// pending reconnect and suppression timers cancelled, queue drained, and a
// final snapshot written. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.link.Close()
	s.queue.Close()
	s.binding.Close()
	s.persistSnapshot()
	s.logger.Info("session closed", "stats", s.metrics.Snapshot())
}

// Binding returns the editor binding for the host to feed surface events.
func (s *Session) Binding() *Binding { return s.binding }

// User returns the local identity.
func (s *Session) User() wire.User { return s.self }

// Stats returns the session counters.
func (s *Session) Stats() Stats { return s.metrics.Snapshot() }

// Status returns the connection state and the last user-visible error.
func (s *Session) Status() (ConnState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState, s.lastError
}

// Participants returns the room members in arrival order.
func (s *Session) Participants() []Participant { return s.presence.List() }

// Files returns the filenames of the shared set in order.
func (s *Session) Files() []string { return s.docs.List() }

// FileContent returns the local copy of filename.
func (s *Session) FileContent(filename string) (string, bool) {
	return s.docs.Get(filename)
}

// ActiveFile returns the file currently bound to the editor surface.
func (s *Session) ActiveFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeFile
}

// --- inbound path -------------------------------------------------------

// handleRaw receives every frame from the connection. Parse failures are
// logged and dropped; echoes of our own messages are discarded before they
// can mutate anything; everything else is queued for serial dispatch.
func (s *Session) handleRaw(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.logger.Warn("dropping malformed relay message", "err", err)
		s.metrics.add(func(st *Stats) { st.MessagesDropped++ })
		return
	}
	s.metrics.add(func(st *Stats) { st.MessagesReceived++ })

	if msg.UserID != "" && msg.UserID == s.self.ID {
		// Local echo: the sender already applied its own change.
		return
	}
	if msg.User != nil && msg.User.ID == s.self.ID && msg.Type == wire.KindUserJoined {
		return
	}

	s.queue.Enqueue(func() { s.dispatch(msg) })
}

func (s *Session) handleStatus(state ConnState, detail string) {
	s.mu.Lock()
	s.connState = state
	if detail != "" {
		s.lastError = detail
	} else if state == StateConnected {
		s.lastError = ""
	}
	s.mu.Unlock()

	if state == StateConnected {
		s.metrics.add(func(st *Stats) { st.Connects++ })
	}
}

// dispatch routes one inbound message. The switch covers every protocol
// kind; anything else is logged and ignored, never fatal.
func (s *Session) dispatch(msg wire.Message) {
	switch msg.Type {
	case wire.KindUserJoined:
		if msg.User != nil {
			s.presence.Join(*msg.User)
		}

	case wire.KindUserLeft:
		s.presence.Leave(msg.UserID)

	case wire.KindUsersList:
		s.presence.ReplaceAll(msg.Users)

	case wire.KindFileList:
		s.applyFileList(msg.Files)

	case wire.KindFileCreated:
		if _, exists := s.docs.Get(msg.Filename); !exists {
			s.docs.Set(msg.Filename, msg.Content)
			s.ensureActiveFile()
		}

	case wire.KindFileDeleted:
		s.applyFileDeleted(msg.Filename)

	case wire.KindFileContent:
		s.applyFileContent(msg.Filename, msg.Content)

	case wire.KindFileOperation:
		s.applyRemoteOperation(msg)

	case wire.KindCursorPosition:
		if msg.Position != nil {
			s.presence.Cursor(msg.UserID, *msg.Position, msg.Filename)
		}

	case wire.KindError:
		s.logger.Warn("relay reported error", "error", msg.Error)
		s.mu.Lock()
		s.lastError = msg.Error
		s.mu.Unlock()

	case wire.KindJoin, wire.KindLeave, wire.KindRequestFileContent:
		// Outbound-only kinds a dumb relay may bounce back from peers.
		s.logger.Debug("ignoring rebroadcast control message", "type", msg.Type)

	default:
		s.logger.Warn("ignoring message of unknown type", "type", msg.Type)
	}
}

// applyFileList installs a full resync of the document set.
func (s *Session) applyFileList(files map[string]string) {
	s.docs.ReplaceAll(files)
	s.clearFailedAll()
	s.ensureActiveFile()

	s.mu.Lock()
	active := s.activeFile
	s.mu.Unlock()
	if content, ok := s.docs.Get(active); ok {
		s.binding.ApplyRemote(active, content)
	}
	s.persistSnapshot()
}

func (s *Session) applyFileDeleted(filename string) {
	if !s.docs.Delete(filename) {
		return
	}
	s.mu.Lock()
	wasActive := s.activeFile == filename
	if wasActive {
		s.activeFile = ""
	}
	s.mu.Unlock()

	if wasActive {
		s.ensureActiveFile()
		s.mu.Lock()
		next := s.activeFile
		s.mu.Unlock()
		if content, ok := s.docs.Get(next); ok {
			s.binding.ApplyRemote(next, content)
		}
	}
}

// applyFileContent handles the response to a request-file-content round
// trip. It is applied only when it differs from the cached copy, with
// suppression engaged, and never re-broadcast.
func (s *Session) applyFileContent(filename, content string) {
	cached, ok := s.docs.Get(filename)
	if ok && cached == content {
		return
	}
	s.docs.Set(filename, content)
	s.clearFailed(filename)
	if s.ActiveFile() == filename {
		s.binding.ApplyRemote(filename, content)
	}
}

func (s *Session) applyRemoteOperation(msg wire.Message) {
	if msg.Op == nil {
		s.logger.Warn("file-operation without operation payload", "file", msg.Filename)
		return
	}
	content, exists := s.docs.Get(msg.Filename)
	if !exists {
		// An edit for a file we never received; fetch it instead of
		// guessing at a base.
		s.requestFileContent(msg.Filename)
		return
	}

	applied, ok := textop.Apply(content, *msg.Op)
	if !ok {
		s.metrics.add(func(st *Stats) { st.FailedApplies++ })
		if s.bumpFailed(msg.Filename) >= resyncThreshold {
			s.logger.Warn("suspected divergence, requesting resync", "file", msg.Filename)
			s.clearFailed(msg.Filename)
			s.requestFileContent(msg.Filename)
		}
		return
	}

	s.clearFailed(msg.Filename)
	s.docs.Set(msg.Filename, applied)
	s.metrics.add(func(st *Stats) { st.OpsApplied++ })
	if s.ActiveFile() == msg.Filename {
		s.binding.ApplyRemote(msg.Filename, applied)
	}
}

// --- outbound path ------------------------------------------------------

// localEdit is the binding's report of a genuine user edit: apply it to the
// store (the origin applies its own change exactly once) and broadcast it.
func (s *Session) localEdit(filename string, op textop.Operation) {
	content, exists := s.docs.Get(filename)
	if !exists {
		s.logger.Warn("edit on unknown file", "file", filename)
		return
	}
	applied, ok := textop.Apply(content, op)
	if !ok {
		s.logger.Warn("local edit did not apply cleanly", "file", filename)
		return
	}
	s.docs.Set(filename, applied)
	s.send(wire.FileOperation(op, filename, s.self.ID, s.roomID))
}

func (s *Session) localCursor(filename string, pos textop.Position) {
	s.send(wire.CursorPosition(pos, filename, s.self.ID, s.roomID))
}

// CreateFile adds a file locally and announces it to the room.
func (s *Session) CreateFile(filename, content string) error {
	if _, exists := s.docs.Get(filename); exists {
		return fmt.Errorf("create %s: file already exists", filename)
	}
	s.docs.Set(filename, content)
	s.ensureActiveFile()
	s.send(wire.FileCreated(filename, content, s.self.ID, s.roomID))
	return nil
}

// DeleteFile removes a file locally and announces the removal. If the
// active file goes away the session falls back to the next one.
func (s *Session) DeleteFile(filename string) error {
	if !s.docs.Delete(filename) {
		return fmt.Errorf("delete %s: no such file", filename)
	}
	s.send(wire.FileDeleted(filename, s.self.ID, s.roomID))

	s.mu.Lock()
	wasActive := s.activeFile == filename
	if wasActive {
		s.activeFile = ""
	}
	s.mu.Unlock()
	if wasActive {
		s.ensureActiveFile()
		s.mu.Lock()
		next := s.activeFile
		s.mu.Unlock()
		if content, ok := s.docs.Get(next); ok {
			s.binding.ApplyRemote(next, content)
		}
	}
	return nil
}

// SwitchFile makes filename the active file. The cached copy goes on
// screen immediately, but it may be stale relative to edits made while the
// file was inactive, so the authoritative content is requested as well.
func (s *Session) SwitchFile(filename string) error {
	content, exists := s.docs.Get(filename)
	if !exists {
		return fmt.Errorf("switch to %s: no such file", filename)
	}
	s.mu.Lock()
	s.activeFile = filename
	s.mu.Unlock()

	s.binding.ApplyRemote(filename, content)
	s.requestFileContent(filename)
	return nil
}

func (s *Session) requestFileContent(filename string) {
	s.send(wire.RequestFileContent(filename, s.self.ID, s.roomID))
}

func (s *Session) send(msg wire.Message) {
	if err := s.link.Send(msg); err != nil {
		s.logger.Warn("send failed", "type", msg.Type, "err", err)
		s.metrics.add(func(st *Stats) { st.MessagesDropped++ })
		return
	}
	s.metrics.add(func(st *Stats) { st.MessagesSent++ })
}

// --- helpers ------------------------------------------------------------

// ensureActiveFile picks the first file in order when nothing is active or
// the active file no longer exists.
func (s *Session) ensureActiveFile() {
	names := s.docs.List()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeFile != "" {
		for _, name := range names {
			if name == s.activeFile {
				return
			}
		}
	}
	if len(names) > 0 {
		s.activeFile = names[0]
	} else {
		s.activeFile = ""
	}
}

func (s *Session) bumpFailed(filename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[filename]++
	return s.failed[filename]
}

func (s *Session) clearFailed(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, filename)
}

func (s *Session) clearFailedAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = make(map[string]int)
}

func (s *Session) persistSnapshot() {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SaveRoom(s.roomID, s.docs.All()); err != nil {
		s.logger.Warn("snapshot save failed", "err", err)
	}
}
