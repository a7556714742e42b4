package router

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/history"
	"github.com/diffduel/internal/matchmaking"
	"github.com/diffduel/internal/protocol"
	"github.com/diffduel/internal/ranking"
	rankingredis "github.com/diffduel/internal/redis"
	"github.com/diffduel/internal/session"
	"github.com/diffduel/internal/validation"
)

// fakeHub resolves groups like the websocket hub and records what every
// connection received
type fakeHub struct {
	conns  map[string]bool
	groups map[string]map[string]bool
	inbox  map[string][]protocol.Message
}

func newFakeHub(conns ...string) *fakeHub {
	h := &fakeHub{
		conns:  make(map[string]bool),
		groups: make(map[string]map[string]bool),
		inbox:  make(map[string][]protocol.Message),
	}
	for _, c := range conns {
		h.conns[c] = true
	}
	return h
}

func (h *fakeHub) SendToConnection(id string, msg protocol.Message) {
	if h.conns[id] {
		h.inbox[id] = append(h.inbox[id], msg)
	}
}

func (h *fakeHub) SendToGroup(group, except string, msg protocol.Message) {
	for id := range h.groups[group] {
		if id != except {
			h.SendToConnection(id, msg)
		}
	}
}

func (h *fakeHub) SendToAll(msg protocol.Message) {
	for id := range h.conns {
		h.SendToConnection(id, msg)
	}
}

func (h *fakeHub) JoinGroup(id, group string) {
	if !h.conns[id] {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]bool)
	}
	h.groups[group][id] = true
}

func (h *fakeHub) LeaveGroup(id, group string) {
	delete(h.groups[group], id)
}

func (h *fakeHub) CloseGroup(group string) {
	delete(h.groups, group)
}

func (h *fakeHub) drop(id string) {
	delete(h.conns, id)
	for _, members := range h.groups {
		delete(members, id)
	}
}

func (h *fakeHub) types(id string) []protocol.MessageType {
	var out []protocol.MessageType
	for _, m := range h.inbox[id] {
		out = append(out, m.Type)
	}
	return out
}

func (h *fakeHub) last(id string) protocol.Message {
	msgs := h.inbox[id]
	if len(msgs) == 0 {
		return protocol.Message{}
	}
	return msgs[len(msgs)-1]
}

func (h *fakeHub) reset() {
	h.inbox = make(map[string][]protocol.Message)
}

type memoryHistory struct {
	records []domain.HistoryRecord
}

func (m *memoryHistory) InsertHistory(_ context.Context, record domain.HistoryRecord) (int64, error) {
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return record.ID, nil
}

func (m *memoryHistory) ListHistory(_ context.Context) ([]domain.HistoryRecord, error) {
	return append([]domain.HistoryRecord(nil), m.records...), nil
}

func (m *memoryHistory) DeleteHistory(_ context.Context) error {
	m.records = nil
	return nil
}

type mockRankings struct {
	mock.Mock
}

func (m *mockRankings) GameExists(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	args := m.Called(ctx, gameID)
	rec, _ := args.Get(0).(*domain.RankingRecord)
	return rec, args.Error(1)
}

func (m *mockRankings) GetScores(ctx context.Context, gameID string, mode domain.PlayMode) (domain.Top3, error) {
	args := m.Called(ctx, gameID, mode)
	return args.Get(0).(domain.Top3), args.Error(1)
}

func (m *mockRankings) UpdateRanking(ctx context.Context, gameID string, mode domain.PlayMode, candidate domain.UsersScore) (domain.Top3, int, error) {
	args := m.Called(ctx, gameID, mode, candidate)
	return args.Get(0).(domain.Top3), args.Int(1), args.Error(2)
}

func (m *mockRankings) AllScores(ctx context.Context) ([]domain.RankingRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.RankingRecord), args.Error(1)
}

func (m *mockRankings) ResetGameScores(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	args := m.Called(ctx, gameID)
	rec, _ := args.Get(0).(*domain.RankingRecord)
	return rec, args.Error(1)
}

func (m *mockRankings) ResetAll(ctx context.Context) ([]domain.RankingRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.RankingRecord), args.Error(1)
}

func (m *mockRankings) GameIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

type harness struct {
	t        *testing.T
	router   *Router
	hub      *fakeHub
	sessions *session.Registry
	queue    *matchmaking.Queue
	names    *matchmaking.UsernameRegistry
	store    *ranking.Store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, conns ...string) *harness {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := testLogger()
	cfg := config.DefaultConfig()
	store := ranking.NewStore(rankingredis.NewRankingRepositoryWithClient(client, logger), logger)

	h := &harness{
		t:        t,
		hub:      newFakeHub(conns...),
		sessions: session.NewRegistry(&cfg.Game, logger),
		queue:    matchmaking.NewQueue(logger),
		names:    matchmaking.NewUsernameRegistry(),
		store:    store,
	}
	h.router = NewRouter(Deps{
		Sessions:  h.sessions,
		Queue:     h.queue,
		Pool:      matchmaking.NewTimedPool(),
		Usernames: h.names,
		Rankings:  store,
		History:   history.NewService(&memoryHistory{}, logger),
		Validator: validation.NewValidator(),
	}, h.hub, logger)
	h.router.pick = func(int) int { return 0 }
	h.router.newRoomID = func() string { return "room-1" }
	return h
}

func (h *harness) send(conn string, eventType protocol.EventType, payload interface{}) []Effect {
	h.t.Helper()
	ev, err := protocol.NewEvent(eventType, conn, payload)
	require.NoError(h.t, err)
	effects := h.router.Handle(context.Background(), ev)
	Deliver(h.hub, effects)
	return effects
}

func (h *harness) disconnect(conn string) {
	h.hub.drop(conn)
	h.send(conn, protocol.EventDisconnect, nil)
}

func TestRouter_CreateLobbyBroadcastsToAll(t *testing.T) {
	h := newHarness(t, "creator", "watcher")

	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})

	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyCreated}, h.hub.types("creator"))
	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyCreated}, h.hub.types("watcher"))
	assert.Equal(t, 1, h.queue.Len())

	h.hub.reset()
	h.send("watcher", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r2"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageError}, h.hub.types("watcher"))
	assert.Empty(t, h.hub.types("creator"))
}

func TestRouter_JoinLobbyNotifiesCreatorOnlyForFirstCandidate(t *testing.T) {
	h := newHarness(t, "creator", "alice", "bob")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.hub.reset()

	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyJoined}, h.hub.types("alice"))
	assert.Equal(t, []protocol.MessageType{protocol.MessageNextCandidate}, h.hub.types("creator"))
	assert.Equal(t, protocol.CandidateData{GameID: "g1", Username: "alice"}, h.hub.last("creator").Data)

	h.hub.reset()
	h.send("bob", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "bob"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyJoined}, h.hub.types("bob"))
	assert.Empty(t, h.hub.types("creator"))
}

func TestRouter_JoinLobbyGoneAndTakenUsername(t *testing.T) {
	h := newHarness(t, "creator", "alice", "mallory")

	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "nope", Username: "alice"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyGone}, h.hub.types("alice"))
	assert.False(t, h.names.IsReserved("nope", "alice"))

	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.hub.reset()

	h.send("mallory", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	require.Equal(t, []protocol.MessageType{protocol.MessageUsernameStatus}, h.hub.types("mallory"))
	assert.False(t, h.hub.last("mallory").Data.(protocol.UsernameStatusData).Available)
}

func TestRouter_RejectWalksTheLine(t *testing.T) {
	h := newHarness(t, "creator", "alice", "bob")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.send("bob", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "bob"})
	h.hub.reset()

	h.send("creator", protocol.EventRejectCandidate, protocol.LobbyPayload{GameID: "g1"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageCandidateRejected}, h.hub.types("alice"))
	assert.Equal(t, protocol.CandidateData{GameID: "g1", Username: "bob"}, h.hub.last("creator").Data)
	assert.False(t, h.names.IsReserved("g1", "alice"))

	h.hub.reset()
	h.send("creator", protocol.EventRejectCandidate, protocol.LobbyPayload{GameID: "g1"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageCandidateRejected}, h.hub.types("bob"))
	assert.Equal(t, []protocol.MessageType{protocol.MessageLineEmpty}, h.hub.types("creator"))

	h.hub.reset()
	effects := h.send("creator", protocol.EventRejectCandidate, protocol.LobbyPayload{GameID: "g1"})
	assert.Empty(t, effects)
}

func TestRouter_AcceptHandsOutAddresses(t *testing.T) {
	h := newHarness(t, "creator", "alice", "bob", "watcher")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.send("bob", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "bob"})
	h.hub.reset()

	h.send("creator", protocol.EventAcceptCandidate, protocol.AcceptCandidatePayload{
		DestinationPrefix: "/game",
		GameID:            "g1",
		Username:          "host",
	})

	assert.Equal(t, []protocol.MessageType{
		protocol.MessageCandidateAccepted,
		protocol.MessageLobbyDeleted,
		protocol.MessageLobbyClosed,
	}, h.hub.types("creator"))
	assert.Equal(t, protocol.AcceptedData{GameID: "g1", Room: 1, Address: "/game/multiPlayer/g1/1/host"}, h.hub.inbox["creator"][0].Data)
	assert.Equal(t, protocol.AcceptedData{GameID: "g1", Room: 1, Address: "/game/multiPlayer/g1/1/alice"}, h.hub.inbox["alice"][0].Data)
	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyDeleted, protocol.MessageLobbyClosed}, h.hub.types("bob"))
	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyDeleted, protocol.MessageLobbyClosed}, h.hub.types("watcher"))

	assert.Equal(t, 0, h.queue.Len())
	assert.False(t, h.names.IsReserved("g1", "bob"))
	assert.Empty(t, h.hub.groups[lobbyGroup("g1")])
}

func TestRouter_RejectAndAcceptOnlyByCreator(t *testing.T) {
	h := newHarness(t, "creator", "alice", "mallory")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.hub.reset()

	effects := h.send("mallory", protocol.EventRejectCandidate, protocol.LobbyPayload{GameID: "g1"})
	assert.Empty(t, effects)
	effects = h.send("mallory", protocol.EventAcceptCandidate, protocol.AcceptCandidatePayload{
		DestinationPrefix: "/game",
		GameID:            "g1",
		Username:          "mallory",
	})
	assert.Empty(t, effects)

	ticket, ok := h.queue.Ticket("g1")
	require.True(t, ok)
	require.Len(t, ticket.WaitingLine, 1)
	assert.Equal(t, "alice", ticket.WaitingLine[0].Username)
	assert.True(t, h.names.IsReserved("g1", "alice"))
	assert.Empty(t, h.hub.types("alice"))
}

func TestRouter_RepeatedJoinLobbyQueuesOnce(t *testing.T) {
	h := newHarness(t, "creator", "x", "y")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.hub.reset()

	h.send("x", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.send("x", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.send("x", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alias"})

	ticket, ok := h.queue.Ticket("g1")
	require.True(t, ok)
	assert.Len(t, ticket.WaitingLine, 1)
	assert.Equal(t, []protocol.MessageType{protocol.MessageNextCandidate}, h.hub.types("creator"))
	assert.Equal(t, protocol.CandidateData{GameID: "g1", Username: "alice"}, h.hub.last("x").Data)
	assert.False(t, h.names.IsReserved("g1", "alias"))

	h.hub.reset()
	h.send("creator", protocol.EventRejectCandidate, protocol.LobbyPayload{GameID: "g1"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageLineEmpty}, h.hub.types("creator"))
	assert.False(t, h.names.IsReserved("g1", "alice"))

	h.send("y", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	assert.Equal(t, protocol.MessageLobbyJoined, h.hub.last("y").Type)
}

func TestRouter_QuitLobbyFromHead(t *testing.T) {
	h := newHarness(t, "creator", "alice", "bob")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.send("bob", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "bob"})
	h.hub.reset()

	h.send("bob", protocol.EventQuitLobby, protocol.LobbyPayload{GameID: "g1"})
	assert.Empty(t, h.hub.types("creator"))

	h.send("alice", protocol.EventQuitLobby, protocol.LobbyPayload{GameID: "g1"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageLineEmpty}, h.hub.types("creator"))
	assert.False(t, h.names.IsReserved("g1", "alice"))
}

func TestRouter_DeleteLobbyOnlyByCreator(t *testing.T) {
	h := newHarness(t, "creator", "alice", "watcher")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})

	effects := h.send("alice", protocol.EventDeleteLobby, protocol.LobbyPayload{GameID: "g1"})
	assert.Empty(t, effects)
	assert.Equal(t, 1, h.queue.Len())

	h.hub.reset()
	h.send("creator", protocol.EventDeleteLobby, protocol.LobbyPayload{GameID: "g1"})
	assert.Equal(t, []protocol.MessageType{
		protocol.MessageLobbyDeleted,
		protocol.MessageLobbyClosed,
		protocol.MessageCreatorLeft,
	}, h.hub.types("alice"))
	assert.Equal(t, []protocol.MessageType{protocol.MessageLobbyClosed, protocol.MessageCreatorLeft}, h.hub.types("watcher"))
	assert.Equal(t, 0, h.queue.Len())
}

func TestRouter_CreatorDisconnectReachesEveryCandidate(t *testing.T) {
	h := newHarness(t, "creator", "c1", "c2", "c3")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	for _, c := range []string{"c1", "c2", "c3"} {
		h.send(c, protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: c})
	}
	h.hub.reset()

	h.disconnect("creator")

	for _, c := range []string{"c1", "c2", "c3"} {
		assert.Contains(t, h.hub.types(c), protocol.MessageLobbyClosed, c)
		assert.False(t, h.names.IsReserved("g1", c))
	}
	_, ok := h.queue.Ticket("g1")
	assert.False(t, ok)
}

func TestRouter_CandidateDisconnectMovesHead(t *testing.T) {
	h := newHarness(t, "creator", "alice", "bob")
	h.send("creator", protocol.EventCreateLobby, protocol.CreateLobbyPayload{GameID: "g1", Room: "r1"})
	h.send("alice", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "alice"})
	h.send("bob", protocol.EventJoinLobby, protocol.JoinLobbyPayload{GameID: "g1", Username: "bob"})
	h.hub.reset()

	h.disconnect("alice")

	assert.Equal(t, []protocol.MessageType{protocol.MessageNextCandidate}, h.hub.types("creator"))
	assert.Equal(t, protocol.CandidateData{GameID: "g1", Username: "bob"}, h.hub.last("creator").Data)
	assert.False(t, h.names.IsReserved("g1", "alice"))
}

func TestRouter_JoinSessionRejectsThirdPlayer(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	join := func(conn, username string) {
		h.send(conn, protocol.EventJoinSession, protocol.JoinSessionPayload{
			Username: username, Room: "r1", GameID: "g1", Mode: domain.ModeClassic,
		})
	}

	join("a", "alice")
	join("b", "bob")
	require.Equal(t, protocol.MessageRosterUpdated, h.hub.last("a").Type)
	roster := h.hub.last("a").Data.(protocol.RosterData)
	assert.Len(t, roster.Players, 2)

	h.hub.reset()
	join("c", "carol")
	assert.Equal(t, []protocol.MessageType{protocol.MessageSessionFull}, h.hub.types("c"))
	assert.Empty(t, h.hub.types("a"))

	sess, ok := h.sessions.Get("r1", "g1", domain.ModeClassic)
	require.True(t, ok)
	assert.False(t, sess.HasUsername("carol"))
}

func TestRouter_JoinSessionRejectsUnknownMode(t *testing.T) {
	h := newHarness(t, "a")

	ev := protocol.Event{
		Type:         protocol.EventJoinSession,
		ConnectionID: "a",
		Payload:      []byte(`{"username":"alice","room":"r1","gameId":"g1","mode":"blitz"}`),
	}
	Deliver(h.hub, h.router.Handle(context.Background(), ev))

	assert.Equal(t, []protocol.MessageType{protocol.MessageError}, h.hub.types("a"))
	assert.Equal(t, 0, h.sessions.Len())
}

func TestRouter_ChatSkipsSender(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.send("a", protocol.EventJoinSession, protocol.JoinSessionPayload{Username: "alice", Room: "r1", GameID: "g1", Mode: domain.ModeClassic})
	h.send("b", protocol.EventJoinSession, protocol.JoinSessionPayload{Username: "bob", Room: "r1", GameID: "g1", Mode: domain.ModeClassic})
	h.hub.reset()

	h.send("a", protocol.EventChatMessage, protocol.ChatPayload{Message: "hi", Username: "alice", Room: "r1", GameID: "g1"})

	assert.Empty(t, h.hub.types("a"))
	require.Equal(t, []protocol.MessageType{protocol.MessageChat}, h.hub.types("b"))
	assert.Equal(t, protocol.ChatData{Username: "alice", Message: "hi"}, h.hub.last("b").Data)
}

func TestRouter_TickBroadcastsTimer(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.send("a", protocol.EventJoinSession, protocol.JoinSessionPayload{Username: "alice", Room: "r1", GameID: "g1", Mode: domain.ModeClassic})
	h.send("b", protocol.EventJoinSession, protocol.JoinSessionPayload{Username: "bob", Room: "r1", GameID: "g1", Mode: domain.ModeClassic})
	h.hub.reset()

	h.send("", protocol.EventTick, nil)
	h.send("", protocol.EventTick, nil)

	for _, c := range []string{"a", "b"} {
		require.Equal(t, []protocol.MessageType{protocol.MessageTimer, protocol.MessageTimer}, h.hub.types(c))
		assert.Equal(t, protocol.TimerData{Elapsed: 2, IsActive: true}, h.hub.last(c).Data)
	}

	h.send("a", protocol.EventStopTimer, protocol.TimerPayload{Room: "r1", GameID: "g1", Mode: domain.ModeClassic})
	h.hub.reset()
	h.send("", protocol.EventTick, nil)
	assert.Empty(t, h.hub.types("a"))
}

func TestRouter_LeaveSessionNotifiesPeer(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.send("a", protocol.EventJoinSession, protocol.JoinSessionPayload{Username: "alice", Room: "r1", GameID: "g1", Mode: domain.ModeClassic})
	h.send("b", protocol.EventJoinSession, protocol.JoinSessionPayload{Username: "bob", Room: "r1", GameID: "g1", Mode: domain.ModeClassic})
	h.hub.reset()

	h.send("a", protocol.EventLeaveSession, protocol.RoomPayload{Room: "r1", GameID: "g1"})

	assert.Equal(t, []protocol.MessageType{protocol.MessageLeft}, h.hub.types("a"))
	assert.Equal(t, []protocol.MessageType{protocol.MessagePeerLeft}, h.hub.types("b"))
	assert.Equal(t, protocol.PeerData{Username: "alice"}, h.hub.last("b").Data)

	h.disconnect("b")
	assert.Equal(t, 0, h.sessions.Len())
}

func TestRouter_TimedMatchPairsTwoPlayers(t *testing.T) {
	h := newHarness(t, "a", "b")
	_, err := h.store.RegisterGame(context.Background(), "g1")
	require.NoError(t, err)

	effects := h.send("a", protocol.EventFindTimedMatch, protocol.UsernamePayload{Username: "alice"})
	assert.Empty(t, effects)

	h.send("b", protocol.EventFindTimedMatch, protocol.UsernamePayload{Username: "bob"})

	require.Equal(t, []protocol.MessageType{protocol.MessageTimedMatchFound}, h.hub.types("a"))
	assert.Equal(t, protocol.TimedMatchData{GameID: "g1", Room: "room-1", Username: "alice", Opponent: "bob"}, h.hub.last("a").Data)
	assert.Equal(t, protocol.TimedMatchData{GameID: "g1", Room: "room-1", Username: "bob", Opponent: "alice"}, h.hub.last("b").Data)

	sess, ok := h.sessions.Get("room-1", "", domain.ModeTimed)
	require.True(t, ok)
	assert.Len(t, sess.Roster, 2)

	h.hub.reset()
	h.send("a", protocol.EventLoadNextRound, protocol.RoomPayload{Room: "room-1", GameID: "g2"})
	require.Equal(t, []protocol.MessageType{protocol.MessageNextRound}, h.hub.types("b"))
	assert.Equal(t, protocol.NextRoundData{GameID: "g2", Elapsed: 35}, h.hub.last("b").Data)

	h.hub.reset()
	h.send("a", protocol.EventTimedSessionEnded, protocol.RoomPayload{Room: "room-1"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageLeft}, h.hub.types("a"))
	assert.Equal(t, []protocol.MessageType{protocol.MessageSessionEnded}, h.hub.types("b"))
	assert.Equal(t, 0, h.sessions.Len())
	assert.False(t, h.names.IsReserved(matchmaking.TimedScope, "bob"))
}

func TestRouter_TimedMatchNeedsAGame(t *testing.T) {
	h := newHarness(t, "a")

	h.send("a", protocol.EventFindTimedMatch, protocol.UsernamePayload{Username: "alice"})

	assert.Equal(t, []protocol.MessageType{protocol.MessageError}, h.hub.types("a"))
	assert.False(t, h.names.IsReserved(matchmaking.TimedScope, "alice"))
}

func TestRouter_AbandonTimedMatch(t *testing.T) {
	h := newHarness(t, "a", "b")
	_, err := h.store.RegisterGame(context.Background(), "g1")
	require.NoError(t, err)

	h.send("a", protocol.EventFindTimedMatch, protocol.UsernamePayload{Username: "alice"})
	h.send("a", protocol.EventAbandonTimedMatch, protocol.UsernamePayload{Username: "alice"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageTimedMatchAbandoned}, h.hub.types("a"))

	effects := h.send("b", protocol.EventFindTimedMatch, protocol.UsernamePayload{Username: "bob"})
	assert.Empty(t, effects)
}

func TestRouter_AbandonKeepsAnotherConnectionsName(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	_, err := h.store.RegisterGame(context.Background(), "g1")
	require.NoError(t, err)

	h.send("a", protocol.EventFindTimedMatch, protocol.UsernamePayload{Username: "bob"})
	h.send("b", protocol.EventAbandonTimedMatch, protocol.UsernamePayload{Username: "bob"})
	assert.True(t, h.names.IsReserved(matchmaking.TimedScope, "bob"))

	h.send("c", protocol.EventFindTimedMatch, protocol.UsernamePayload{Username: "bob"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageUsernameStatus}, h.hub.types("c"))
	assert.Equal(t, protocol.UsernameStatusData{Username: "bob", Available: false}, h.hub.last("c").Data)
	assert.Empty(t, h.hub.types("a"))
}

func TestRouter_SubmitScore(t *testing.T) {
	h := newHarness(t, "a", "b")
	ctx := context.Background()
	_, err := h.store.RegisterGame(ctx, "g1")
	require.NoError(t, err)

	h.send("a", protocol.EventSubmitScore, protocol.SubmitScorePayload{
		GameID:   "g1",
		Mode:     domain.SinglePlayer,
		Score:    domain.UsersScore{Username: "alice", Time: 100},
		GameName: "Garden",
	})

	assert.Equal(t, []protocol.MessageType{protocol.MessageNewRecord, protocol.MessageChat}, h.hub.types("b"))
	record := h.hub.inbox["b"][0].Data.(protocol.NewRecordData)
	assert.Equal(t, 1, record.Rank)
	assert.Equal(t, domain.UsersScore{Username: "alice", Time: 100}, record.Scores[0])

	top, err := h.store.GetScores(ctx, "g1", domain.SinglePlayer)
	require.NoError(t, err)
	assert.Equal(t, "alice", top[0].Username)

	h.hub.reset()
	h.send("a", protocol.EventSubmitScore, protocol.SubmitScorePayload{
		GameID: "g1",
		Mode:   domain.SinglePlayer,
		Score:  domain.UsersScore{Username: "slow", Time: 9999},
	})
	assert.Equal(t, []protocol.MessageType{protocol.MessageNewRecord}, h.hub.types("b"))
	assert.Equal(t, ranking.NotRanked, h.hub.last("b").Data.(protocol.NewRecordData).Rank)

	h.hub.reset()
	effects := h.send("a", protocol.EventSubmitScore, protocol.SubmitScorePayload{
		GameID: "deleted",
		Mode:   domain.SinglePlayer,
		Score:  domain.UsersScore{Username: "alice", Time: 1},
	})
	assert.Empty(t, effects)
}

func TestRouter_PersistenceFailureReportsGenericError(t *testing.T) {
	h := newHarness(t, "a")
	rankings := &mockRankings{}
	rankings.On("GameExists", mock.Anything, "g1").Return(nil, domain.ErrPersistence)
	h.router.rankings = rankings

	h.send("a", protocol.EventSubmitScore, protocol.SubmitScorePayload{
		GameID: "g1",
		Mode:   domain.MultiPlayer,
		Score:  domain.UsersScore{Username: "alice", Time: 1},
	})

	require.Equal(t, []protocol.MessageType{protocol.MessageError}, h.hub.types("a"))
	assert.Equal(t, domain.ErrInternalError.Error(), h.hub.last("a").Data.(protocol.ErrorData).Error)
	rankings.AssertExpectations(t)
}

func TestRouter_ScoresQueries(t *testing.T) {
	h := newHarness(t, "a", "b")
	ctx := context.Background()
	_, err := h.store.RegisterGame(ctx, "g1")
	require.NoError(t, err)

	h.send("a", protocol.EventGetScores, protocol.ScoresQueryPayload{GameID: "g1", Mode: domain.MultiPlayer})
	require.Equal(t, []protocol.MessageType{protocol.MessageScores}, h.hub.types("a"))
	assert.Equal(t, ranking.DefaultScores, h.hub.last("a").Data.(protocol.ScoresData).Scores)
	assert.Empty(t, h.hub.types("b"))

	effects := h.send("a", protocol.EventGetScores, protocol.ScoresQueryPayload{GameID: "missing", Mode: domain.MultiPlayer})
	assert.Empty(t, effects)

	h.hub.reset()
	h.send("a", protocol.EventResetGameScores, protocol.LobbyPayload{GameID: "g1"})
	assert.Equal(t, []protocol.MessageType{protocol.MessageScoresReset}, h.hub.types("b"))

	h.hub.reset()
	h.send("a", protocol.EventResetAllScores, nil)
	assert.Equal(t, []protocol.MessageType{protocol.MessageAllScores}, h.hub.types("b"))

	h.hub.reset()
	h.send("a", protocol.EventGetAllScores, nil)
	assert.Equal(t, []protocol.MessageType{protocol.MessageAllScores}, h.hub.types("a"))
	assert.Empty(t, h.hub.types("b"))
}

func TestRouter_HistoryDedupe(t *testing.T) {
	h := newHarness(t, "a", "b")
	rec := domain.HistoryRecord{
		Duration: 90,
		Mode:     "classic",
		Player1:  domain.HistoryPlayer{Name: "alice", IsWinner: true},
		Player2:  domain.HistoryPlayer{Name: "bob"},
	}

	h.send("a", protocol.EventAddHistory, rec)
	h.send("b", protocol.EventAddHistory, rec)

	assert.Equal(t, []protocol.MessageType{protocol.MessageHistoryUpdated}, h.hub.types("a"))

	h.hub.reset()
	h.send("a", protocol.EventGetHistory, nil)
	require.Equal(t, []protocol.MessageType{protocol.MessageHistory}, h.hub.types("a"))
	assert.Len(t, h.hub.last("a").Data.([]domain.HistoryRecord), 1)

	h.hub.reset()
	h.send("a", protocol.EventDeleteHistory, nil)
	assert.Equal(t, []protocol.MessageType{protocol.MessageHistoryUpdated}, h.hub.types("b"))
}

func TestRouter_UnknownEvent(t *testing.T) {
	h := newHarness(t, "a")

	effects := h.router.Handle(context.Background(), protocol.Event{Type: "dance", ConnectionID: "a"})

	require.Len(t, effects, 1)
	assert.Equal(t, protocol.MessageError, effects[0].Message.Type)
	assert.Equal(t, "a", effects[0].ConnectionID)
}

func TestRouter_RunDeliversDispatchedEvents(t *testing.T) {
	h := newHarness(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := &recordingBroadcaster{sent: make(chan protocol.Message, 1)}
	h.router.broadcaster = recorder
	go h.router.Run(ctx)

	ev, err := protocol.NewEvent(protocol.EventCheckUsername, "a", protocol.UsernamePayload{Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, h.router.Dispatch(ctx, ev))

	msg := <-recorder.sent
	assert.Equal(t, protocol.MessageUsernameStatus, msg.Type)
	assert.True(t, msg.Data.(protocol.UsernameStatusData).Available)
}

type recordingBroadcaster struct {
	sent chan protocol.Message
}

func (r *recordingBroadcaster) SendToConnection(_ string, msg protocol.Message) { r.sent <- msg }
func (r *recordingBroadcaster) SendToGroup(_, _ string, msg protocol.Message) { r.sent <- msg }
func (r *recordingBroadcaster) SendToAll(msg protocol.Message) { r.sent <- msg }
func (r *recordingBroadcaster) JoinGroup(_, _ string) {}
func (r *recordingBroadcaster) LeaveGroup(_, _ string) {}
func (r *recordingBroadcaster) CloseGroup(_ string) {}
