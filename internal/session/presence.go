package session

import (
	"sync"

	"colabx-sync/pkg/textop"
	"colabx-sync/pkg/wire"
)

// Participant is one member of the room as the local session sees them:
// identity plus, when known, their caret location and the file it is in.
type Participant struct {
	User     wire.User
	Cursor   *textop.Position
	Filename string
}

// Presence tracks room participants in arrival order. It does not expire
// stale entries on its own; the relay owns expiry and signals it with
// user-left or a fresh users-list.
type Presence struct {
	mu      sync.RWMutex
	selfID  string
	order   []string
	members map[string]*Participant
}

// NewPresence returns a tracker that ignores cursor updates for selfID.
func NewPresence(selfID string) *Presence {
	return &Presence{
		selfID:  selfID,
		members: make(map[string]*Participant),
	}
}

// Join records a participant. Rejoining refreshes identity but keeps the
// original arrival position and any known cursor.
func (p *Presence) Join(user wire.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.members[user.ID]; ok {
		existing.User = user
		return
	}
	p.order = append(p.order, user.ID)
	p.members[user.ID] = &Participant{User: user}
}

// Leave removes a participant. Unknown ids are ignored.
func (p *Presence) Leave(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.members[userID]; !ok {
		return
	}
	delete(p.members, userID)
	for i, id := range p.order {
		if id == userID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// ReplaceAll swaps the tracked set for users, in the order given. Used
// right after join to establish ground truth.
func (p *Presence) ReplaceAll(users []wire.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = p.order[:0]
	p.members = make(map[string]*Participant, len(users))
	for _, u := range users {
		if _, dup := p.members[u.ID]; dup {
			continue
		}
		p.order = append(p.order, u.ID)
		p.members[u.ID] = &Participant{User: u}
	}
}

// Cursor records a participant's caret location and active file. Updates
// for the local session's own id are ignored.
func (p *Presence) Cursor(userID string, pos textop.Position, filename string) {
	if userID == p.selfID {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	member, ok := p.members[userID]
	if !ok {
		return
	}
	c := pos
	member.Cursor = &c
	member.Filename = filename
}

// List returns the participants in arrival order.
func (p *Presence) List() []Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Participant, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.members[id])
	}
	return out
}

// Get returns the participant with the given id.
func (p *Presence) Get(userID string) (Participant, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	member, ok := p.members[userID]
	if !ok {
		return Participant{}, false
	}
	return *member, true
}

// Len returns the number of tracked participants.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}
