package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/forcerank/internal/game"
	"github.com/kiliankoe/forcerank/internal/storage/memory"
)

type sent struct {
	ToRoom  bool
	Target  string
	Event   string
	Payload any
}

// recorder is a Broadcaster that remembers everything it was asked to send.
type recorder struct {
	mu    sync.Mutex
	msgs  []sent
	rooms map[string]map[string]bool
}

func newRecorder() *recorder {
	return &recorder{rooms: make(map[string]map[string]bool)}
}

func (r *recorder) Join(room, participant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]bool)
	}
	r.rooms[room][participant] = true
}

func (r *recorder) Leave(room, participant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[room], participant)
}

func (r *recorder) CloseRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
}

func (r *recorder) SendToRoom(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{ToRoom: true, Target: room, Event: event, Payload: payload})
}

func (r *recorder) SendToParticipant(participant, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{Target: participant, Event: event, Payload: payload})
}

func (r *recorder) inRoom(room, participant string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[room][participant]
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

func (r *recorder) count(event string) int {
	n := 0
	for _, m := range r.all() {
		if m.Event == event {
			n++
		}
	}
	return n
}

func (r *recorder) roomCount() int {
	n := 0
	for _, m := range r.all() {
		if m.ToRoom {
			n++
		}
	}
	return n
}

// last returns the most recent message with the given event name.
func (r *recorder) last(t *testing.T, event string) sent {
	t.Helper()
	msgs := r.all()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event == event {
			return msgs[i]
		}
	}
	t.Fatalf("no %s message was sent", event)
	return sent{}
}

var testTerms = []game.Term{
	{ID: 1, Most: "Clean", Least: "Dirty"},
	{ID: 2, Most: "Buff", Least: "Weak"},
	{ID: 3, Most: "Funny", Least: "Serious"},
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store, *recorder) {
	t.Helper()
	store := memory.New()
	if err := store.SetTerms(context.Background(), testTerms); err != nil {
		t.Fatalf("seed terms: %v", err)
	}
	rec := newRecorder()
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(store, store, rec, opts...), store, rec
}

func ranking(names ...string) []game.RankEntry {
	out := make([]game.RankEntry, len(names))
	for i, n := range names {
		out[i] = game.RankEntry{Name: n, Rank: i + 1}
	}
	return out
}

// startedGame creates ABC with creator alice plus the given players and starts round one.
func startedGame(t *testing.T, e *Engine, players ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.CreateSession(ctx, "ABC", []string{"A", "B", "C"}, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range players {
		if _, err := e.JoinSession(ctx, "ABC", p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	if _, err := e.StartRound(ctx, "ABC", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
}
