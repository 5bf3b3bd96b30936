package session

import (
	"testing"

	"colabx-sync/pkg/textop"
	"colabx-sync/pkg/wire"
)

func TestPresenceArrivalOrder(t *testing.T) {
	p := NewPresence("self")
	p.Join(wire.User{ID: "a", Name: "Ada"})
	p.Join(wire.User{ID: "b", Name: "Bob"})
	p.Join(wire.User{ID: "c", Name: "Cyd"})
	p.Join(wire.User{ID: "a", Name: "Ada II"}) // rejoin keeps position

	list := p.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(list))
	}
	wantOrder := []string{"a", "b", "c"}
	for i, id := range wantOrder {
		if list[i].User.ID != id {
			t.Errorf("position %d: got %s, want %s", i, list[i].User.ID, id)
		}
	}
	if list[0].User.Name != "Ada II" {
		t.Errorf("rejoin did not refresh identity: %q", list[0].User.Name)
	}
}

func TestPresenceLeave(t *testing.T) {
	p := NewPresence("self")
	p.Join(wire.User{ID: "a"})
	p.Join(wire.User{ID: "b"})

	p.Leave("a")
	p.Leave("ghost") // unknown id is fine

	if p.Len() != 1 {
		t.Fatalf("expected 1 participant, got %d", p.Len())
	}
	if _, ok := p.Get("a"); ok {
		t.Error("left participant still tracked")
	}
}

func TestPresenceReplaceAll(t *testing.T) {
	p := NewPresence("self")
	p.Join(wire.User{ID: "old"})

	p.ReplaceAll([]wire.User{{ID: "x"}, {ID: "y"}})

	if _, ok := p.Get("old"); ok {
		t.Error("ReplaceAll kept a stale participant")
	}
	list := p.List()
	if len(list) != 2 || list[0].User.ID != "x" || list[1].User.ID != "y" {
		t.Errorf("ReplaceAll order wrong: %+v", list)
	}
}

func TestPresenceCursorIgnoresSelf(t *testing.T) {
	p := NewPresence("self")
	p.Join(wire.User{ID: "self"})
	p.Join(wire.User{ID: "peer"})

	p.Cursor("self", textop.Position{Line: 5, Column: 2}, "main.go")
	p.Cursor("peer", textop.Position{Line: 3, Column: 1}, "main.go")
	p.Cursor("stranger", textop.Position{Line: 1, Column: 1}, "main.go")

	me, _ := p.Get("self")
	if me.Cursor != nil {
		t.Error("self cursor was recorded")
	}
	peer, _ := p.Get("peer")
	if peer.Cursor == nil || peer.Cursor.Line != 3 || peer.Filename != "main.go" {
		t.Errorf("peer cursor not recorded: %+v", peer)
	}
}
