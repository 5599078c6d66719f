// Package hub is the in-memory broker behind the realtime endpoint. It
// multiplexes chat relay, WebRTC signaling and presence events across
// rooms keyed by canonical identifiers derived in the rooms package.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/connecthub/backend/internal/models"
	"github.com/connecthub/backend/internal/rooms"
)

// Event names carried in the websocket envelope.
const (
	EventJoinChat       = "join_chat"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventJoinMeeting    = "join_meeting"
	EventUserJoined     = "user_joined"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventICECandidate   = "ice_candidate"
	EventError          = "error"
)

// MessageStore persists relayed chat messages. Writes are issued
// fire-and-forget off the event loop; a failure is logged and never
// affects live delivery.
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID, receiverID, body string) (*models.ChatMessage, error)
}

// MeetingStore resolves meeting metadata. The hub only reads from it, and
// only to resolve a display title for logging; it never enforces
// scheduling invariants.
type MeetingStore interface {
	GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error)
}

// PresenceTracker records which declared identities are currently
// connected. Best-effort: calls are issued off the event loop and errors
// are the tracker's problem.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string)
	SetOffline(ctx context.Context, userID string)
}

type inbound struct {
	client *Client
	env    models.Envelope
}

// Stats is a point-in-time snapshot of broker occupancy.
type Stats struct {
	Rooms   int `json:"rooms"`
	Clients int `json:"clients"`
}

// Hub owns the connection table and the session registry. All mutation
// happens inside Run's loop, one event at a time, so handlers never race
// and per-room delivery order follows event arrival order. Handlers must
// not block; external I/O goes through goroutines.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	stats      chan chan Stats

	clients  map[string]*Client
	registry *registry

	messages MessageStore
	meetings MeetingStore
	presence PresenceTracker

	storeTimeout time.Duration
}

// New creates a hub wired to its collaborators. Any of them may be nil,
// which disables that concern; the relay paths do not depend on them.
func New(messages MessageStore, meetings MeetingStore, presence PresenceTracker) *Hub {
	return &Hub{
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbound:      make(chan inbound),
		stats:        make(chan chan Stats),
		clients:      make(map[string]*Client),
		registry:     newRegistry(),
		messages:     messages,
		meetings:     meetings,
		presence:     presence,
		storeTimeout: 5 * time.Second,
	}
}

// HandleConn registers an upgraded websocket connection and starts its
// pumps. The connection enters the broker in the Connected state; identity
// and room membership arrive with join events.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	c := newClient(h, conn)
	h.register <- c
	go c.writePump()
	go c.readPump()
}

// Run is the hub's event loop. It must be running before HandleConn is
// called and is intended to run for the life of the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c.ID] = c
			log.Printf("[Hub] connection %s opened", c.ID)

		case c := <-h.unregister:
			h.removeClient(c)

		case in := <-h.inbound:
			h.dispatch(in.client, in.env)

		case reply := <-h.stats:
			var s Stats
			s.Rooms, s.Clients = h.registry.counts()
			reply <- s
		}
	}
}

// Stats reports current room and member counts. Safe to call from any
// goroutine while Run is active.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	h.stats <- reply
	return <-reply
}

func (h *Hub) dispatch(c *Client, env models.Envelope) {
	if _, ok := h.clients[c.ID]; !ok {
		// Connection already torn down; drop the event.
		log.Printf("[Hub] ignoring %s from unknown connection %s", env.Type, c.ID)
		return
	}

	switch env.Type {
	case EventJoinChat:
		h.handleJoinChat(c, env.Data)
	case EventSendMessage:
		h.handleSendMessage(c, env.Data)
	case EventJoinMeeting:
		h.handleJoinMeeting(c, env.Data)
	case EventOffer, EventAnswer, EventICECandidate:
		h.handleSignal(c, env)
	default:
		log.Printf("[Hub] unknown event %q from connection %s", env.Type, c.ID)
	}
}

func (h *Hub) handleJoinChat(c *Client, data json.RawMessage) {
	var p models.JoinChatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(c, "malformed join_chat payload")
		return
	}

	key, err := rooms.ChatKey(p.UserID, p.ReceiverID)
	if err != nil {
		h.sendError(c, "join_chat requires userId and receiverId")
		return
	}

	h.identify(c, p.UserID)
	h.joinRoom(c, key, p.UserID)
}

func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) {
	var p models.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(c, "malformed send_message payload")
		return
	}

	key, err := rooms.ChatKey(p.SenderID, p.ReceiverID)
	if err != nil {
		h.sendError(c, "send_message requires senderId and receiverId")
		return
	}

	// Forward the payload as received; the sender has already rendered
	// its own copy, so it is excluded from the fan-out.
	h.broadcast(key, EventReceiveMessage, data, c)

	if h.messages != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
			defer cancel()
			if _, err := h.messages.CreateMessage(ctx, p.SenderID, p.ReceiverID, p.Message); err != nil {
				log.Printf("[Hub] failed to persist message %s -> %s: %v", p.SenderID, p.ReceiverID, err)
			}
		}()
	}
}

func (h *Hub) handleJoinMeeting(c *Client, data json.RawMessage) {
	var p models.JoinMeetingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(c, "malformed join_meeting payload")
		return
	}
	if p.UserID == "" {
		h.sendError(c, "join_meeting requires userId")
		return
	}

	key, err := rooms.MeetingKey(p.MeetingID)
	if err != nil {
		h.sendError(c, "join_meeting requires meetingId")
		return
	}

	h.identify(c, p.UserID)
	h.joinRoom(c, key, p.UserID)
	h.resolveMeeting(p.MeetingID, p.UserID)
}

func (h *Hub) handleSignal(c *Client, env models.Envelope) {
	var p models.SignalPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		h.sendError(c, "malformed "+env.Type+" payload")
		return
	}

	key, err := rooms.MeetingKey(p.MeetingID)
	if err != nil {
		h.sendError(c, env.Type+" requires meetingId")
		return
	}

	var body json.RawMessage
	switch env.Type {
	case EventOffer:
		body = p.Offer
	case EventAnswer:
		body = p.Answer
	case EventICECandidate:
		body = p.Candidate
	}
	if len(body) == 0 {
		h.sendError(c, env.Type+" payload is empty")
		return
	}

	// The body is opaque SDP or ICE material; forward it verbatim.
	h.broadcast(key, env.Type, body, c)
}

// identify records the connection's declared identity. Idempotent; only
// the first declaration flips the connection to Identified and announces
// presence.
func (h *Hub) identify(c *Client, userID string) {
	if c.UserID != "" {
		return
	}
	c.UserID = userID
	if h.presence != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
			defer cancel()
			h.presence.SetOnline(ctx, userID)
		}()
	}
}

// joinRoom adds the connection to the room and announces the join to the
// members that were already there. Re-joining a room is a no-op.
func (h *Hub) joinRoom(c *Client, key, userID string) {
	if c.joined[key] {
		return
	}

	existing := h.registry.members(key)
	h.registry.join(key, c)
	c.joined[key] = true
	log.Printf("[Hub] connection %s (%s) joined room %s", c.ID, userID, key)

	h.notifyJoined(existing, userID, c)
}

// notifyJoined emits a single user_joined event to each existing member,
// excluding the joiner itself. Best-effort, no acknowledgment.
func (h *Hub) notifyJoined(members []*Client, joinerID string, exclude *Client) {
	if len(members) == 0 {
		return
	}
	frame, err := marshalEnvelope(EventUserJoined, models.UserJoinedPayload{UserID: joinerID})
	if err != nil {
		log.Printf("[Hub] failed to marshal user_joined: %v", err)
		return
	}
	for _, m := range members {
		if m == exclude {
			continue
		}
		h.deliver(m, frame)
	}
}

// broadcast fans a frame out to every current member of the room except
// the excluded connection. Members that vanished since the membership
// snapshot simply miss the frame.
func (h *Hub) broadcast(key, event string, data json.RawMessage, exclude *Client) {
	members := h.registry.members(key)
	if len(members) == 0 {
		return
	}
	frame, err := marshalEnvelope(event, data)
	if err != nil {
		log.Printf("[Hub] failed to marshal %s: %v", event, err)
		return
	}
	for _, m := range members {
		if m == exclude {
			continue
		}
		h.deliver(m, frame)
	}
}

// deliver enqueues a frame for one connection without blocking the event
// loop. A full send buffer drops the frame for that member only.
func (h *Hub) deliver(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Printf("[Hub] send buffer full, dropping frame for connection %s", c.ID)
	}
}

// removeClient tears down a disconnected connection: leave every joined
// room, forget the connection, stop its write pump. Runs synchronously in
// the event loop, so no later fan-out can observe the stale membership.
func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		log.Printf("[Hub] ignoring disconnect of unknown connection %s", c.ID)
		return
	}

	delete(h.clients, c.ID)
	for key := range c.joined {
		h.registry.leave(key, c)
	}
	close(c.send)
	log.Printf("[Hub] connection %s closed", c.ID)

	if c.UserID != "" && h.presence != nil {
		userID := c.UserID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
			defer cancel()
			h.presence.SetOffline(ctx, userID)
		}()
	}
}

// resolveMeeting looks the meeting up off the event loop, purely to put a
// human-readable title in the log. A miss is not an error: the room works
// regardless of what the scheduling store knows.
func (h *Hub) resolveMeeting(meetingID, userID string) {
	if h.meetings == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
		defer cancel()
		m, err := h.meetings.GetMeeting(ctx, meetingID)
		if err != nil {
			log.Printf("[Hub] meeting %s not resolved: %v", meetingID, err)
			return
		}
		log.Printf("[Hub] %s joined meeting %q (%s)", userID, m.Title, meetingID)
	}()
}

func (h *Hub) sendError(c *Client, msg string) {
	frame, err := marshalEnvelope(EventError, models.ErrorPayload{Error: msg})
	if err != nil {
		return
	}
	h.deliver(c, frame)
}

func marshalEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Envelope{Type: event, Data: raw})
}
