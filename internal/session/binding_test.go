package session

import (
	"sync"
	"testing"
	"time"

	"colabx-sync/pkg/textop"
)

type fakeSurface struct {
	mu       sync.Mutex
	contents map[string]string
	sets     int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{contents: make(map[string]string)}
}

func (f *fakeSurface) SetContent(filename, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents[filename] = content
	f.sets++
}

func (f *fakeSurface) get(filename string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents[filename]
}

func (f *fakeSurface) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func TestBindingSuppressesEchoOfRemoteApply(t *testing.T) {
	surface := newFakeSurface()
	b := newBinding(surface, 50*time.Millisecond, newTestLogger())
	defer b.Close()

	var edits []textop.Operation
	b.onLocalEdit = func(_ string, op textop.Operation) { edits = append(edits, op) }

	b.ApplyRemote("main.go", "hello")
	if surface.get("main.go") != "hello" {
		t.Fatal("remote content did not reach the surface")
	}
	if !b.Suppressed() {
		t.Fatal("suppression not engaged during remote apply window")
	}

	// The surface's change event for that programmatic edit fires now and
	// must be swallowed.
	b.NotifyEdit("main.go", textop.NewInsert(1, 0, "hello"))
	if len(edits) != 0 {
		t.Fatalf("suppressed edit was forwarded: %+v", edits)
	}

	// After the window clears, genuine edits flow again.
	waitFor(t, "suppression to clear", func() bool { return !b.Suppressed() })
	b.NotifyEdit("main.go", textop.NewInsert(1, 5, "!"))
	if len(edits) != 1 {
		t.Fatalf("genuine edit not forwarded, got %d", len(edits))
	}
}

func TestBindingCursorNotSuppressed(t *testing.T) {
	b := newBinding(newFakeSurface(), 50*time.Millisecond, newTestLogger())
	defer b.Close()

	var cursors []textop.Position
	b.onCursor = func(_ string, pos textop.Position) { cursors = append(cursors, pos) }

	b.ApplyRemote("main.go", "x")
	b.NotifyCursor("main.go", textop.Position{Line: 1, Column: 1})
	if len(cursors) != 1 {
		t.Fatalf("cursor report dropped during suppression, got %d", len(cursors))
	}
}

func TestBindingCloseStopsPendingClears(t *testing.T) {
	b := newBinding(newFakeSurface(), time.Hour, newTestLogger())
	b.ApplyRemote("a.go", "x")
	b.ApplyRemote("a.go", "y")
	b.Close()

	if b.Suppressed() {
		t.Error("Close left suppression engaged")
	}
	// No timer should fire later and underflow the counter.
	time.Sleep(20 * time.Millisecond)
	if b.Suppressed() {
		t.Error("a timer fired after Close")
	}
}

func TestNilBindingIsInert(t *testing.T) {
	var b *Binding
	b.ApplyRemote("a.go", "x")
	b.NotifyEdit("a.go", textop.NewInsert(1, 0, "x"))
	b.NotifyCursor("a.go", textop.Position{Line: 1, Column: 0})
	b.Close()
	if b.Suppressed() {
		t.Error("nil binding reported suppression")
	}
}
