package session

import (
	"log/slog"
	"sync"
	"time"

	"colabx-sync/pkg/textop"
)

// Default delay before the suppression guard releases, long enough for the
// surface's own change events for a programmatic edit to finish firing.
const defaultSuppressWindow = 100 * time.Millisecond

// Surface is the visual text-editing component the session keeps in sync.
// The session pushes content into it; the host pushes the surface's edit
// and caret events back through the Binding.
type Surface interface {
	// SetContent replaces the buffer displayed for filename.
	SetContent(filename, content string)
}

// Binding synchronizes the document store with a Surface. Remote changes
// are applied under a suppression guard so the surface's resulting
// "content changed" event is not re-broadcast as a fresh local edit, which
// would echo forever between peers.
type Binding struct {
	surface Surface
	window  time.Duration
	logger  *slog.Logger

	// onLocalEdit and onCursor forward genuine user activity to the session.
	onLocalEdit func(filename string, op textop.Operation)
	onCursor    func(filename string, pos textop.Position)

	mu       sync.Mutex
	suppress int
	timers   map[*time.Timer]struct{}
	closed   bool
}

func newBinding(surface Surface, window time.Duration, logger *slog.Logger) *Binding {
	if window <= 0 {
		window = defaultSuppressWindow
	}
	return &Binding{
		surface: surface,
		window:  window,
		logger:  logger.With("component", "binding"),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// ApplyRemote pushes content into the surface with suppression engaged for
// the duration of the edit's synchronous effects.
func (b *Binding) ApplyRemote(filename, content string) {
	if b == nil || b.surface == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.suppress++
	var timer *time.Timer
	timer = time.AfterFunc(b.window, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.timers, timer)
		if b.suppress > 0 {
			b.suppress--
		}
	})
	b.timers[timer] = struct{}{}
	b.mu.Unlock()

	b.surface.SetContent(filename, content)
}

// Suppressed reports whether a programmatic edit is still settling.
func (b *Binding) Suppressed() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suppress > 0
}

// NotifyEdit is called by the host whenever the surface's content changes.
// Changes observed while suppression is engaged came from ApplyRemote and
// are swallowed here.
func (b *Binding) NotifyEdit(filename string, op textop.Operation) {
	if b == nil {
		return
	}
	if b.Suppressed() {
		b.logger.Debug("suppressed echo of remote edit", "file", filename)
		return
	}
	if b.onLocalEdit != nil {
		b.onLocalEdit(filename, op)
	}
}

// NotifyCursor is called by the host whenever the caret moves in the
// active file. Cursor traffic is not suppressed; only content changes are.
func (b *Binding) NotifyCursor(filename string, pos textop.Position) {
	if b == nil {
		return
	}
	if b.onCursor != nil {
		b.onCursor(filename, pos)
	}
}

// Close stops every pending suppression timer deterministically.
func (b *Binding) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for timer := range b.timers {
		timer.Stop()
		delete(b.timers, timer)
	}
	b.suppress = 0
}
