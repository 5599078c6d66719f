package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connecthub/backend/internal/models"
)

type storedMessage struct {
	senderID   string
	receiverID string
	body       string
}

type mockMessageStore struct {
	mu    sync.Mutex
	calls []storedMessage
	err   error
	done  chan struct{}
}

func (m *mockMessageStore) CreateMessage(ctx context.Context, senderID, receiverID, body string) (*models.ChatMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, storedMessage{senderID, receiverID, body})
	err := m.err
	m.mu.Unlock()

	if m.done != nil {
		m.done <- struct{}{}
	}
	if err != nil {
		return nil, err
	}
	return &models.ChatMessage{SenderID: senderID, ReceiverID: receiverID, Body: body}, nil
}

func (m *mockMessageStore) stored() []storedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storedMessage(nil), m.calls...)
}

type mockMeetingStore struct {
	meeting *models.Meeting
	done    chan string
}

func (m *mockMeetingStore) GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error) {
	if m.done != nil {
		m.done <- meetingID
	}
	if m.meeting == nil {
		return nil, errors.New("not found")
	}
	return m.meeting, nil
}

func newTestHub(messages MessageStore, meetings MeetingStore) *Hub {
	h := New(messages, meetings, nil)
	go h.Run()
	return h
}

func connect(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := newClient(h, nil)
	h.register <- c
	return c
}

func emit(t *testing.T, h *Hub, c *Client, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	h.inbound <- inbound{client: c, env: models.Envelope{Type: event, Data: data}}
}

func receive(t *testing.T, c *Client) models.Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env models.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return models.Envelope{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

// barrier waits until the hub's loop has drained every event emitted
// before the call.
func barrier(h *Hub) {
	h.Stats()
}

func TestJoinChatSharesRoomAcrossDirections(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)
	b := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})

	// A was already in the room, so it is told about the join; B gets no
	// notice of its own arrival.
	env := receive(t, a)
	assert.Equal(t, EventUserJoined, env.Type)
	var joined models.UserJoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, "u2", joined.UserID)
	assertSilent(t, b)

	s := h.Stats()
	assert.Equal(t, 1, s.Rooms)
	assert.Equal(t, 2, s.Clients)
}

func TestSendMessageFanOut(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)
	b := connect(t, h)
	outsider := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	emit(t, h, outsider, EventJoinChat, models.JoinChatPayload{UserID: "u3", ReceiverID: "u4"})
	receive(t, a) // user_joined for b

	msg := models.SendMessagePayload{SenderID: "u1", ReceiverID: "u2", Message: "hello", Timestamp: "2026-08-28T10:00:00Z"}
	emit(t, h, a, EventSendMessage, msg)

	env := receive(t, b)
	assert.Equal(t, EventReceiveMessage, env.Type)
	var got models.SendMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, msg, got)

	// The sender has already rendered its own message; no echo.
	assertSilent(t, a)
	// A different room never sees it.
	assertSilent(t, outsider)
}

func TestSendMessageOrderingPreserved(t *testing.T) {
	h := newTestHub(nil, nil)
	x := connect(t, h)
	y := connect(t, h)

	emit(t, h, x, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, y, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	receive(t, x)

	for _, body := range []string{"m1", "m2", "m3"} {
		emit(t, h, x, EventSendMessage, models.SendMessagePayload{SenderID: "u1", ReceiverID: "u2", Message: body})
	}

	for _, want := range []string{"m1", "m2", "m3"} {
		env := receive(t, y)
		require.Equal(t, EventReceiveMessage, env.Type)
		var got models.SendMessagePayload
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, want, got.Message)
	}
}

func TestThirdConnectionInSameDerivedRoom(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)
	b := connect(t, h)
	c := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	emit(t, h, c, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	receive(t, a) // b joined
	receive(t, a) // c joined
	receive(t, b) // c joined

	emit(t, h, b, EventSendMessage, models.SendMessagePayload{SenderID: "u2", ReceiverID: "u1", Message: "hi"})

	assert.Equal(t, EventReceiveMessage, receive(t, a).Type)
	assert.Equal(t, EventReceiveMessage, receive(t, c).Type)
	assertSilent(t, b)
}

func TestDisconnectCleanup(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)
	b := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	emit(t, h, b, EventJoinMeeting, models.JoinMeetingPayload{UserID: "u2", MeetingID: "m-123"})
	receive(t, a)

	h.unregister <- b
	barrier(h)

	// Every room b had joined no longer lists it; the meeting room is
	// gone entirely because b was its only member.
	s := h.Stats()
	assert.Equal(t, 1, s.Rooms)
	assert.Equal(t, 1, s.Clients)

	// A relay into the room after the disconnect must not fail; it just
	// has nobody left to reach.
	emit(t, h, a, EventSendMessage, models.SendMessagePayload{SenderID: "u1", ReceiverID: "u2", Message: "anyone?"})
	barrier(h)
	assertSilent(t, a)
}

func TestMeetingJoinPresence(t *testing.T) {
	h := newTestHub(nil, nil)
	host := connect(t, h)
	guest := connect(t, h)

	emit(t, h, host, EventJoinMeeting, models.JoinMeetingPayload{UserID: "host", MeetingID: "m-123"})
	emit(t, h, guest, EventJoinMeeting, models.JoinMeetingPayload{UserID: "guest", MeetingID: "m-123"})

	env := receive(t, host)
	assert.Equal(t, EventUserJoined, env.Type)
	var joined models.UserJoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, "guest", joined.UserID)

	// The joiner never receives its own join notice.
	assertSilent(t, guest)
}

func TestSignalRelayedVerbatimToOtherMembersOnly(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)
	b := connect(t, h)
	c := connect(t, h)

	emit(t, h, a, EventJoinMeeting, models.JoinMeetingPayload{UserID: "host", MeetingID: "m-123"})
	emit(t, h, b, EventJoinMeeting, models.JoinMeetingPayload{UserID: "guest", MeetingID: "m-123"})
	emit(t, h, c, EventJoinMeeting, models.JoinMeetingPayload{UserID: "other", MeetingID: "m-999"})
	receive(t, a)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1"}`)
	emit(t, h, a, EventOffer, models.SignalPayload{MeetingID: "m-123", Offer: offer})

	env := receive(t, b)
	assert.Equal(t, EventOffer, env.Type)
	assert.JSONEq(t, string(offer), string(env.Data))

	assertSilent(t, a)
	assertSilent(t, c)
}

func TestSignalOrderingPerRoom(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)
	b := connect(t, h)

	emit(t, h, a, EventJoinMeeting, models.JoinMeetingPayload{UserID: "host", MeetingID: "m-123"})
	emit(t, h, b, EventJoinMeeting, models.JoinMeetingPayload{UserID: "guest", MeetingID: "m-123"})
	receive(t, a)

	emit(t, h, a, EventOffer, models.SignalPayload{MeetingID: "m-123", Offer: json.RawMessage(`{"sdp":"offer"}`)})
	emit(t, h, a, EventICECandidate, models.SignalPayload{MeetingID: "m-123", Candidate: json.RawMessage(`{"candidate":"c1"}`)})
	emit(t, h, a, EventICECandidate, models.SignalPayload{MeetingID: "m-123", Candidate: json.RawMessage(`{"candidate":"c2"}`)})

	// Offer before candidates, candidates in send order: the WebRTC
	// negotiation above this layer depends on that sequencing.
	assert.Equal(t, EventOffer, receive(t, b).Type)

	env := receive(t, b)
	assert.Equal(t, EventICECandidate, env.Type)
	assert.JSONEq(t, `{"candidate":"c1"}`, string(env.Data))

	env = receive(t, b)
	assert.Equal(t, EventICECandidate, env.Type)
	assert.JSONEq(t, `{"candidate":"c2"}`, string(env.Data))
}

func TestMessagePersistedFireAndForget(t *testing.T) {
	store := &mockMessageStore{done: make(chan struct{}, 1)}
	h := newTestHub(store, nil)
	a := connect(t, h)
	b := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	receive(t, a)

	emit(t, h, a, EventSendMessage, models.SendMessagePayload{SenderID: "u1", ReceiverID: "u2", Message: "save me"})

	assert.Equal(t, EventReceiveMessage, receive(t, b).Type)

	select {
	case <-store.done:
	case <-time.After(time.Second):
		t.Fatal("message was never persisted")
	}
	calls := store.stored()
	require.Len(t, calls, 1)
	assert.Equal(t, storedMessage{"u1", "u2", "save me"}, calls[0])
}

func TestPersistenceFailureDoesNotSuppressDelivery(t *testing.T) {
	store := &mockMessageStore{err: errors.New("db down"), done: make(chan struct{}, 1)}
	h := newTestHub(store, nil)
	a := connect(t, h)
	b := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	receive(t, a)

	emit(t, h, a, EventSendMessage, models.SendMessagePayload{SenderID: "u1", ReceiverID: "u2", Message: "still delivered"})

	env := receive(t, b)
	assert.Equal(t, EventReceiveMessage, env.Type)

	select {
	case <-store.done:
	case <-time.After(time.Second):
		t.Fatal("persistence was never attempted")
	}
}

func TestMeetingTitleResolvedOffTheRelayPath(t *testing.T) {
	store := &mockMeetingStore{
		meeting: &models.Meeting{MeetingID: "m-123", Title: "Roadmap review"},
		done:    make(chan string, 1),
	}
	h := newTestHub(nil, store)
	a := connect(t, h)

	emit(t, h, a, EventJoinMeeting, models.JoinMeetingPayload{UserID: "host", MeetingID: "m-123"})

	select {
	case id := <-store.done:
		assert.Equal(t, "m-123", id)
	case <-time.After(time.Second):
		t.Fatal("meeting was never resolved")
	}
}

func TestMalformedJoinRejectedLocally(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: ""})

	env := receive(t, a)
	assert.Equal(t, EventError, env.Type)

	s := h.Stats()
	assert.Equal(t, 0, s.Rooms)
}

func TestEmptySignalRejected(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)

	emit(t, h, a, EventOffer, models.SignalPayload{MeetingID: ""})
	assert.Equal(t, EventError, receive(t, a).Type)

	emit(t, h, a, EventOffer, models.SignalPayload{MeetingID: "m-123"})
	assert.Equal(t, EventError, receive(t, a).Type)
}

func TestUnknownConnectionIsNoOp(t *testing.T) {
	h := newTestHub(nil, nil)
	stranger := newClient(h, nil) // never registered

	emit(t, h, stranger, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	barrier(h)

	s := h.Stats()
	assert.Equal(t, 0, s.Rooms)
	assertSilent(t, stranger)
}

func TestRejoinIsIdempotent(t *testing.T) {
	h := newTestHub(nil, nil)
	a := connect(t, h)
	b := connect(t, h)

	emit(t, h, a, EventJoinChat, models.JoinChatPayload{UserID: "u1", ReceiverID: "u2"})
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	receive(t, a)

	// Joining the same room again announces nothing and adds nothing.
	emit(t, h, b, EventJoinChat, models.JoinChatPayload{UserID: "u2", ReceiverID: "u1"})
	barrier(h)
	assertSilent(t, a)

	s := h.Stats()
	assert.Equal(t, 1, s.Rooms)
	assert.Equal(t, 2, s.Clients)
}
