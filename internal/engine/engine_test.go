package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kiliankoe/forcerank/internal/game"
	"golang.org/x/sync/errgroup"
)

func TestCreateSession(t *testing.T) {
	e, store, rec := newTestEngine(t)
	ctx := context.Background()

	sess, err := e.CreateSession(ctx, "ABC", []string{" A ", "B", "", "C"}, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reflect.DeepEqual(sess.Names, []string{"A", "B", "C"}) {
		t.Fatalf("names not cleaned: %v", sess.Names)
	}
	stored, err := store.GetSession(ctx, "ABC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != game.StateWaiting || stored.PlayersCount != 1 || !stored.IsMember("alice") {
		t.Fatalf("unexpected stored session: %+v", stored)
	}
	if !rec.inRoom("ABC", "alice") {
		t.Fatalf("creator should have joined the room")
	}
	wr := rec.last(t, EventJoinedWaitingRoom)
	if wr.ToRoom || wr.Target != "alice" || !wr.Payload.(WaitingRoom).IsCreator {
		t.Fatalf("unexpected waiting room message: %+v", wr)
	}
	if rec.count(EventGameJoined) != 1 {
		t.Fatalf("gameJoined should be broadcast once")
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.CreateSession(ctx, "ABC", []string{"A", "B"}, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.CreateSession(ctx, "ABC", []string{"X", "Y"}, "bob"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if _, err := e.CreateSession(ctx, "NEW", []string{"only"}, "bob"); !errors.Is(err, game.ErrTooFewNames) {
		t.Fatalf("expected ErrTooFewNames, got %v", err)
	}
	if _, err := e.CreateSession(ctx, "NEW", []string{"A", "B"}, " "); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	if _, err := e.CreateSession(ctx, e.DemoCode(), []string{"A", "B"}, "bob"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("demo code must not be claimable, got %v", err)
	}
}

func TestCreateSessionGeneratesCode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sess, err := e.CreateSession(context.Background(), "", []string{"A", "B"}, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(sess.Code) != codeLength {
		t.Fatalf("expected a %d character code, got %q", codeLength, sess.Code)
	}
}

func TestJoinSession(t *testing.T) {
	e, _, rec := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.CreateSession(ctx, "ABC", []string{"A", "B", "C"}, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}

	sess, err := e.JoinSession(ctx, "ABC", "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if sess.PlayersCount != 2 || sess.Players["bob"].State != game.PlayerWaiting {
		t.Fatalf("unexpected session after join: %+v", sess)
	}
	if rec.count(EventPlayerJoined) != 1 {
		t.Fatalf("expected one playerJoined broadcast")
	}
	wr := rec.last(t, EventJoinedWaitingRoom)
	if wr.Target != "bob" || wr.Payload.(WaitingRoom).IsCreator {
		t.Fatalf("bob should get a non-creator waiting room view: %+v", wr)
	}

	// Joining twice only resyncs.
	sess, err = e.JoinSession(ctx, "ABC", "bob")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if sess.PlayersCount != 2 || rec.count(EventPlayerJoined) != 1 {
		t.Fatalf("second join should not add a player: count=%d", sess.PlayersCount)
	}
}

func TestJoinMissingSession(t *testing.T) {
	e, _, rec := newTestEngine(t)
	_, err := e.JoinSession(context.Background(), "NOPE", "bob")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if rec.count(EventGameNotFound) != 1 || rec.count(EventClearLocalStorage) != 1 {
		t.Fatalf("expected gameNotFound and clearLocalStorage, got %+v", rec.all())
	}
}

func TestJoinDuringVoting(t *testing.T) {
	e, _, rec := newTestEngine(t)
	startedGame(t, e, "bob")

	sess, err := e.JoinSession(context.Background(), "ABC", "carol")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if sess.Players["carol"].State != game.PlayerVoting {
		t.Fatalf("latecomer should be voting, got %s", sess.Players["carol"].State)
	}
	if !reflect.DeepEqual(sess.Rankings["carol"], ranking("A", "B", "C")) {
		t.Fatalf("latecomer should start from identity ranking: %v", sess.Rankings["carol"])
	}
	if m := rec.last(t, EventStartGame); m.ToRoom || m.Target != "carol" {
		t.Fatalf("latecomer should get the round view: %+v", m)
	}
}

func TestStartRound(t *testing.T) {
	e, store, rec := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.CreateSession(ctx, "ABC", []string{"A", "B", "C"}, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.JoinSession(ctx, "ABC", "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	rec.reset()
	if _, err := e.StartRound(ctx, "ABC", "bob"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if rec.roomCount() != 0 {
		t.Fatalf("rejected start must not broadcast")
	}

	sess, err := e.StartRound(ctx, "ABC", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.State != game.StateVoting || sess.RankingTerm != testTerms[0] {
		t.Fatalf("unexpected round state %s term %v", sess.State, sess.RankingTerm)
	}
	for id, p := range sess.Players {
		if p.State != game.PlayerVoting {
			t.Fatalf("%s should be voting", id)
		}
		if !reflect.DeepEqual(sess.Rankings[id], ranking("A", "B", "C")) {
			t.Fatalf("%s should have identity ranking: %v", id, sess.Rankings[id])
		}
	}
	m := rec.last(t, EventStartGame)
	if !m.ToRoom || m.Payload.(RoundStarted).RankingTerm != testTerms[0] {
		t.Fatalf("unexpected startGame message: %+v", m)
	}

	if _, err := e.StartRound(ctx, "ABC", "alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("starting twice should fail, got %v", err)
	}
	stored, _ := store.GetSession(ctx, "ABC")
	if stored.State != game.StateVoting {
		t.Fatalf("state changed by rejected start: %s", stored.State)
	}
}

func TestUpdateRanking(t *testing.T) {
	e, store, rec := newTestEngine(t)
	startedGame(t, e, "bob")
	ctx := context.Background()
	rec.reset()

	if err := e.UpdateRanking(ctx, "ABC", "bob", ranking("C", "A", "B")); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, _ := store.GetSession(ctx, "ABC")
	if !reflect.DeepEqual(stored.Rankings["bob"], ranking("C", "A", "B")) {
		t.Fatalf("ranking not stored: %v", stored.Rankings["bob"])
	}
	if len(rec.all()) != 0 {
		t.Fatalf("updates are not broadcast")
	}

	bad := []game.RankEntry{{Name: "A", Rank: 1}, {Name: "B", Rank: 1}, {Name: "C", Rank: 3}}
	if err := e.UpdateRanking(ctx, "ABC", "bob", bad); !errors.Is(err, game.ErrInvalidRanking) {
		t.Fatalf("expected ErrInvalidRanking, got %v", err)
	}
	missing := []game.RankEntry{{Name: "A", Rank: 1}, {Name: "B", Rank: 2}}
	if err := e.UpdateRanking(ctx, "ABC", "bob", missing); !errors.Is(err, game.ErrInvalidRanking) {
		t.Fatalf("expected ErrInvalidRanking for a partial ranking, got %v", err)
	}
	stored, _ = store.GetSession(ctx, "ABC")
	if !reflect.DeepEqual(stored.Rankings["bob"], ranking("C", "A", "B")) {
		t.Fatalf("invalid rankings must not be stored: %v", stored.Rankings["bob"])
	}

	if err := e.UpdateRanking(ctx, "ABC", "mallory", ranking("A", "B", "C")); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	if err := e.UpdateRanking(ctx, "", "bob", ranking("A", "B", "C")); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestLockRankingCompletesRound(t *testing.T) {
	e, store, rec := newTestEngine(t)
	startedGame(t, e, "bob")
	ctx := context.Background()

	if _, err := e.LockRanking(ctx, "ABC", "alice", ranking("A", "B", "C")); err != nil {
		t.Fatalf("alice lock: %v", err)
	}
	lc := rec.last(t, EventUpdateLockCount).Payload.(LockCount)
	if lc.LockedCount != 1 || lc.PlayersCount != 2 || lc.Creator != "alice" {
		t.Fatalf("unexpected lock count: %+v", lc)
	}
	if rec.count(EventDisplayFinalResults) != 0 {
		t.Fatalf("round completed too early")
	}

	if err := e.UpdateRanking(ctx, "ABC", "alice", ranking("C", "B", "A")); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("locked players cannot update, got %v", err)
	}
	if _, err := e.LockRanking(ctx, "ABC", "alice", ranking("A", "B", "C")); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}

	// A and B tie on 3; alice created the game and put A first.
	if _, err := e.LockRanking(ctx, "ABC", "bob", ranking("B", "A", "C")); err != nil {
		t.Fatalf("bob lock: %v", err)
	}
	m := rec.last(t, EventDisplayFinalResults)
	if !m.ToRoom {
		t.Fatalf("final results go to the room")
	}
	res := m.Payload.(FinalResults)
	if !reflect.DeepEqual(res.GroupRanking, ranking("A", "B", "C")) {
		t.Fatalf("unexpected group ranking: %v", res.GroupRanking)
	}
	if len(res.PlayerVotes) != 2 || res.RankingTerm != testTerms[0] {
		t.Fatalf("unexpected results payload: %+v", res)
	}

	stored, _ := store.GetSession(ctx, "ABC")
	if stored.State != game.StateCompleted || stored.Completed != 2 {
		t.Fatalf("unexpected stored session: state=%s completed=%d", stored.State, stored.Completed)
	}
	if _, err := e.LockRanking(ctx, "ABC", "bob", ranking("A", "B", "C")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("a completed round accepts no locks, got %v", err)
	}
}

func TestLockRankingCompletesExactlyOnce(t *testing.T) {
	e, store, rec := newTestEngine(t)
	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	startedGame(t, e, players...)
	ctx := context.Background()
	rec.reset()

	var g errgroup.Group
	for _, id := range append([]string{"alice"}, players...) {
		id := id
		g.Go(func() error {
			_, err := e.LockRanking(ctx, "ABC", id, ranking("A", "B", "C"))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent locks: %v", err)
	}

	if n := rec.count(EventDisplayFinalResults); n != 1 {
		t.Fatalf("expected exactly one completion broadcast, got %d", n)
	}
	if n := rec.count(EventUpdateLockCount); n != len(players) {
		t.Fatalf("expected %d lock count broadcasts, got %d", len(players), n)
	}
	stored, _ := store.GetSession(ctx, "ABC")
	if stored.Completed != len(players)+1 || stored.State != game.StateCompleted {
		t.Fatalf("unexpected final state: completed=%d state=%s", stored.Completed, stored.State)
	}
}

func TestLockRankingUnknownPlayer(t *testing.T) {
	e, store, rec := newTestEngine(t)
	startedGame(t, e, "bob")
	ctx := context.Background()
	before, _ := store.GetSession(ctx, "ABC")
	rec.reset()

	if _, err := e.LockRanking(ctx, "ABC", "mallory", ranking("A", "B", "C")); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	after, _ := store.GetSession(ctx, "ABC")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected lock mutated the session")
	}
	if len(rec.all()) != 0 {
		t.Fatalf("rejected lock sent messages: %+v", rec.all())
	}
}

func TestAdvanceRound(t *testing.T) {
	e, _, rec := newTestEngine(t)
	startedGame(t, e, "bob")
	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		if _, err := e.LockRanking(ctx, "ABC", id, ranking("A", "B", "C")); err != nil {
			t.Fatalf("lock %s: %v", id, err)
		}
	}

	for round := 1; round <= 4; round++ {
		sess, err := e.AdvanceRound(ctx, "ABC", "alice")
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if sess.Version != round || sess.Completed != 0 || len(sess.Rankings) != 0 {
			t.Fatalf("round %d not reset: %+v", round, sess)
		}
		if sess.State != game.StateVoting {
			t.Fatalf("round %d should be voting, got %s", round, sess.State)
		}
		for id, p := range sess.Players {
			if p.State != game.PlayerVoting {
				t.Fatalf("%s should be voting", id)
			}
		}
		want := game.TermAt(testTerms, round)
		if sess.RankingTerm != want {
			t.Fatalf("round %d term = %v, want %v", round, sess.RankingTerm, want)
		}
		if got := rec.last(t, EventStartNewRound).Payload.(NewRound).RankingTerm; got != want {
			t.Fatalf("broadcast term = %v, want %v", got, want)
		}
	}
}

func TestCreatorOnlyOperations(t *testing.T) {
	e, store, rec := newTestEngine(t)
	startedGame(t, e, "bob")
	ctx := context.Background()
	before, _ := store.GetSession(ctx, "ABC")
	rec.reset()

	if err := e.EndSession(ctx, "ABC", "bob"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator from end, got %v", err)
	}
	if _, err := e.AdvanceRound(ctx, "ABC", "bob"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator from advance, got %v", err)
	}
	if _, err := e.ForceComplete(ctx, "ABC", "bob"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator from force complete, got %v", err)
	}

	after, err := store.GetSession(ctx, "ABC")
	if err != nil {
		t.Fatalf("session should still exist: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected creator operations mutated the session")
	}
	if len(rec.all()) != 0 {
		t.Fatalf("rejected creator operations sent messages: %+v", rec.all())
	}
}

func TestEndSession(t *testing.T) {
	e, store, rec := newTestEngine(t)
	startedGame(t, e, "bob")
	ctx := context.Background()

	if err := e.EndSession(ctx, "ABC", "alice"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := store.GetSession(ctx, "ABC"); err == nil {
		t.Fatalf("session should be deleted")
	}
	if m := rec.last(t, EventGameEnded); !m.ToRoom || m.Payload.(GameEnded).GameCode != "ABC" {
		t.Fatalf("unexpected gameEnded: %+v", m)
	}
	if rec.inRoom("ABC", "bob") {
		t.Fatalf("room should be closed")
	}
	if err := e.EndSession(ctx, "ABC", "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestForceCompleteCountsOnlyLockedVotes(t *testing.T) {
	e, store, rec := newTestEngine(t)
	startedGame(t, e, "bob", "carol")
	ctx := context.Background()

	if _, err := e.LockRanking(ctx, "ABC", "bob", ranking("C", "B", "A")); err != nil {
		t.Fatalf("lock: %v", err)
	}
	// alice moved her cards around but never locked in.
	if err := e.UpdateRanking(ctx, "ABC", "alice", ranking("A", "B", "C")); err != nil {
		t.Fatalf("update: %v", err)
	}

	sess, err := e.ForceComplete(ctx, "ABC", "alice")
	if err != nil {
		t.Fatalf("force complete: %v", err)
	}
	if sess.State != game.StateCompleted {
		t.Fatalf("expected completed, got %s", sess.State)
	}
	res := rec.last(t, EventDisplayFinalResults).Payload.(FinalResults)
	if len(res.PlayerVotes) != 1 || res.PlayerVotes["bob"] == nil {
		t.Fatalf("only bob's vote should count: %v", res.PlayerVotes)
	}
	if !reflect.DeepEqual(res.GroupRanking, ranking("C", "B", "A")) {
		t.Fatalf("unexpected group ranking: %v", res.GroupRanking)
	}
	if !res.IsCreator {
		t.Fatalf("forced results are addressed to the creator")
	}

	stored, _ := store.GetSession(ctx, "ABC")
	if _, err := e.ForceComplete(ctx, "ABC", "alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("completed round cannot be forced again, got %v", err)
	}
	if !reflect.DeepEqual(stored.GroupRanking, res.GroupRanking) {
		t.Fatalf("group ranking not cached on the session")
	}
}

func TestRejoinIsIdempotent(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.CreateSession(ctx, "ABC", []string{"A", "B", "C"}, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.JoinSession(ctx, "ABC", "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	check := func(want string) {
		t.Helper()
		before, _ := store.GetSession(ctx, "ABC")
		first, err := e.RejoinSession(ctx, "ABC", "bob")
		if err != nil {
			t.Fatalf("rejoin: %v", err)
		}
		second, err := e.RejoinSession(ctx, "ABC", "bob")
		if err != nil {
			t.Fatalf("rejoin: %v", err)
		}
		if first.Name != want {
			t.Fatalf("expected %s, got %s", want, first.Name)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("rejoin is not idempotent:\n%+v\n%+v", first, second)
		}
		after, _ := store.GetSession(ctx, "ABC")
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("rejoin mutated the session")
		}
	}

	check(EventJoinedWaitingRoom)
	if _, err := e.StartRound(ctx, "ABC", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	check(EventStartGame)
	for _, id := range []string{"alice", "bob"} {
		if _, err := e.LockRanking(ctx, "ABC", id, ranking("A", "B", "C")); err != nil {
			t.Fatalf("lock: %v", err)
		}
	}
	check(EventDisplayFinalResults)

	if _, err := e.RejoinSession(ctx, "GONE", "bob"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestQuitSession(t *testing.T) {
	e, store, rec := newTestEngine(t)
	startedGame(t, e, "bob", "carol")
	ctx := context.Background()

	if _, err := e.QuitSession(ctx, "ABC", "alice"); !errors.Is(err, ErrCreatorCannotQuit) {
		t.Fatalf("expected ErrCreatorCannotQuit, got %v", err)
	}
	for _, id := range []string{"alice", "bob"} {
		if _, err := e.LockRanking(ctx, "ABC", id, ranking("A", "B", "C")); err != nil {
			t.Fatalf("lock %s: %v", id, err)
		}
	}

	sess, err := e.QuitSession(ctx, "ABC", "carol")
	if err != nil {
		t.Fatalf("quit: %v", err)
	}
	if sess.PlayersCount != 2 || sess.IsMember("carol") {
		t.Fatalf("carol should be gone: %+v", sess)
	}
	if sess.State != game.StateCompleted {
		t.Fatalf("everyone left has locked in, expected completed, got %s", sess.State)
	}
	if m := rec.last(t, EventQuitGameSuccess); m.Target != "carol" {
		t.Fatalf("quit confirmation goes to carol: %+v", m)
	}
	if rec.count(EventPlayerLeft) != 1 || rec.count(EventDisplayFinalResults) != 1 {
		t.Fatalf("expected playerLeft and final results")
	}
	if rec.inRoom("ABC", "carol") {
		t.Fatalf("carol should have left the room")
	}
	if _, err := store.GetSession(ctx, "ABC"); err != nil {
		t.Fatalf("session should remain: %v", err)
	}
}

func TestQuitAfterLockingReleasesCount(t *testing.T) {
	e, _, rec := newTestEngine(t)
	startedGame(t, e, "bob", "carol")
	ctx := context.Background()

	if _, err := e.LockRanking(ctx, "ABC", "bob", ranking("A", "B", "C")); err != nil {
		t.Fatalf("lock: %v", err)
	}
	sess, err := e.QuitSession(ctx, "ABC", "bob")
	if err != nil {
		t.Fatalf("quit: %v", err)
	}
	if sess.Completed != 0 || sess.PlayersCount != 2 || sess.State != game.StateVoting {
		t.Fatalf("unexpected session: completed=%d players=%d state=%s", sess.Completed, sess.PlayersCount, sess.State)
	}
	if lc := rec.last(t, EventUpdateLockCount).Payload.(LockCount); lc.LockedCount != 0 || lc.PlayersCount != 2 {
		t.Fatalf("unexpected lock count: %+v", lc)
	}
}

func TestCheckGameExists(t *testing.T) {
	e, _, rec := newTestEngine(t)
	ctx := context.Background()

	out, err := e.CheckGameExists(ctx, "ABC", "bob")
	if err != nil || out.Exists {
		t.Fatalf("expected missing game, got %+v %v", out, err)
	}
	if rec.count(EventClearLocalStorage) != 1 {
		t.Fatalf("missing game should clear local storage")
	}

	startedGame(t, e, "bob")
	out, err = e.CheckGameExists(ctx, "ABC", "bob")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !out.Exists || !out.UserExists || out.State != game.StateVoting {
		t.Fatalf("unexpected answer: %+v", out)
	}
	if out.RankingCriteria == nil || *out.RankingCriteria != testTerms[0] {
		t.Fatalf("unexpected criteria: %v", out.RankingCriteria)
	}
	out, _ = e.CheckGameExists(ctx, "ABC", "stranger")
	if out.UserExists {
		t.Fatalf("stranger is not a member")
	}
}

func TestPersonalTermsAreUsed(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := e.InitUser(ctx, "alice")
	if err != nil || !created {
		t.Fatalf("init user: %v %v", created, err)
	}
	mine, err := store.UserTerms(ctx, "alice")
	if err != nil || !reflect.DeepEqual(mine, testTerms) {
		t.Fatalf("personal copy should match global list: %v %v", mine, err)
	}
	created, err = e.InitUser(ctx, "alice")
	if err != nil || created {
		t.Fatalf("second init should be a no-op: %v %v", created, err)
	}

	custom := []game.Term{{ID: 9, Most: "Tall", Least: "Short"}}
	if err := store.SetUserTerms(ctx, "alice", custom); err != nil {
		t.Fatalf("set user terms: %v", err)
	}
	sess, err := func() (*game.Session, error) {
		if _, err := e.CreateSession(ctx, "ABC", []string{"A", "B"}, "alice"); err != nil {
			return nil, err
		}
		return e.StartRound(ctx, "ABC", "alice")
	}()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.RankingTerm != custom[0] {
		t.Fatalf("expected personal term, got %v", sess.RankingTerm)
	}
}

func TestCompletedRoundsAreExported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rounds.txt")
	e, _, _ := newTestEngine(t, WithExport(path))
	startedGame(t, e, "bob")
	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		if _, err := e.LockRanking(ctx, "ABC", id, ranking("A", "B", "C")); err != nil {
			t.Fatalf("lock %s: %v", id, err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	for _, want := range []string{"ABC", testTerms[0].Most, "alice (creator)", "bob"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("export is missing %q:\n%s", want, b)
		}
	}
}

func TestRandomCodeAlphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		c := randomCode(codeLength)
		if len(c) != codeLength {
			t.Fatalf("bad length: %q", c)
		}
		if strings.ContainsAny(c, "01IO") {
			t.Fatalf("code uses ambiguous characters: %q", c)
		}
	}
}
