package hub

// registry is the session registry: canonical room key -> current member
// connections. It is confined to the hub's event loop and therefore needs
// no locking. Rooms are created implicitly on first join and deleted
// eagerly when the last member leaves; a missing room is equivalent to an
// empty one.
type registry struct {
	rooms map[string]map[string]*Client
}

func newRegistry() *registry {
	return &registry{rooms: make(map[string]map[string]*Client)}
}

func (r *registry) join(key string, c *Client) {
	room, ok := r.rooms[key]
	if !ok {
		room = make(map[string]*Client)
		r.rooms[key] = room
	}
	room[c.ID] = c
}

func (r *registry) leave(key string, c *Client) {
	room, ok := r.rooms[key]
	if !ok {
		return
	}
	delete(room, c.ID)
	if len(room) == 0 {
		delete(r.rooms, key)
	}
}

func (r *registry) members(key string) []*Client {
	room := r.rooms[key]
	if len(room) == 0 {
		return nil
	}
	members := make([]*Client, 0, len(room))
	for _, c := range room {
		members = append(members, c)
	}
	return members
}

func (r *registry) isEmpty(key string) bool {
	return len(r.rooms[key]) == 0
}

func (r *registry) counts() (rooms, clients int) {
	rooms = len(r.rooms)
	for _, room := range r.rooms {
		clients += len(room)
	}
	return rooms, clients
}
