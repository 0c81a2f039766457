package game

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrRoomExists    = errors.New("room already exists for given players")
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadyInRoom = errors.New("connection is already in a room")
)

type waitItem struct {
	PlayerNumber PlayerNumber `json:"playerNumber"`
	Score        Score        `json:"score"`
}

//Room is the authoritative state of a single match.
//Every field below mu must only be touched while holding it.
type Room struct {
	ID        string
	Mode      string
	CreatedAt time.Time

	mu          sync.Mutex
	player1     Player
	player2     Player
	score       Score
	ball        BallInfo
	waitList    []waitItem
	subscribers map[string]struct{}
	lastActive  time.Time
}

//Snapshot is the serializable copy of a room, sent with game-disconnect
type Snapshot struct {
	RoomName string `json:"roomName"`
	Mode     string `json:"mode"`
	Score    Score  `json:"score"`
	Nickname struct {
		P1 string `json:"p1"`
		P2 string `json:"p2"`
	} `json:"nickname"`
	Players  [2]Player  `json:"players"`
	WaitList []waitItem `json:"waitList"`
	BallInfo BallInfo   `json:"ballInfo"`
}

func newRoom(mode string, player1 Player, player2 Player, now time.Time) *Room {
	return &Room{
		ID:        RoomKey(player1.Nickname, player2.Nickname),
		Mode:      mode,
		CreatedAt: now,
		player1:   player1,
		player2:   player2,
		waitList:  make([]waitItem, 0, 2),
		subscribers: map[string]struct{}{
			player1.ConnectionID: {},
			player2.ConnectionID: {},
		},
		lastActive: now,
	}
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		RoomName: r.ID,
		Mode:     r.Mode,
		Score:    r.score,
		Players:  [2]Player{r.player1, r.player2},
		WaitList: append(make([]waitItem, 0, len(r.waitList)), r.waitList...),
		BallInfo: r.ball,
	}
	s.Nickname.P1 = r.player1.Nickname
	s.Nickname.P2 = r.player2.Nickname
	return s
}

func (r *Room) Score() Score {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.score
}

func (r *Room) Ball() BallInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ball
}

func (r *Room) Players() (Player, Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.player1, r.player2
}

//Subscribers returns the connection ids of the broadcast group, sorted for stable delivery order
func (r *Room) Subscribers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscriberList()
}

func (r *Room) subscriberList() []string {
	ids := make([]string, 0, len(r.subscribers))
	for id := range r.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

//slotOf returns the slot currently bound to the connection
func (r *Room) slotOf(connectionID string) (PlayerNumber, bool) {
	switch connectionID {
	case r.player1.ConnectionID:
		return Player1, true
	case r.player2.ConnectionID:
		return Player2, true
	}
	return "", false
}

func (r *Room) playerOf(slot PlayerNumber) Player {
	if slot == Player1 {
		return r.player1
	}
	return r.player2
}

func (r *Room) touch(now time.Time) {
	r.lastActive = now
}

//Store holds one room per active match and an explicit index of connection -> room id
type Store struct {
	sync.RWMutex
	rooms       map[string]*Room
	connections map[string]string
}

func NewStore() *Store {
	return &Store{
		rooms:       make(map[string]*Room),
		connections: make(map[string]string),
	}
}

//Create allocates a new room with zeroed score and ball for the given players
func (s *Store) Create(mode string, player1 Player, player2 Player, now time.Time) (*Room, error) {
	room := newRoom(mode, player1, player2, now)

	s.Lock()
	defer s.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return nil, ErrRoomExists
	}
	for _, p := range []Player{player1, player2} {
		if _, ok := s.connections[p.ConnectionID]; ok {
			return nil, ErrAlreadyInRoom
		}
	}

	s.rooms[room.ID] = room
	s.connections[player1.ConnectionID] = room.ID
	s.connections[player2.ConnectionID] = room.ID
	return room, nil
}

//Get resolves a room by its id or by a connection id subscribed to it
func (s *Store) Get(roomIDOrConnection string) (*Room, bool) {
	s.RLock()
	defer s.RUnlock()

	if room, ok := s.rooms[roomIDOrConnection]; ok {
		return room, true
	}
	if roomID, ok := s.connections[roomIDOrConnection]; ok {
		room, ok := s.rooms[roomID]
		return room, ok
	}
	return nil, false
}

func (s *Store) RoomOf(connectionID string) (string, bool) {
	s.RLock()
	defer s.RUnlock()
	roomID, ok := s.connections[connectionID]
	return roomID, ok
}

//Subscribe binds a connection to the room's broadcast group.
//If the nickname belongs to one of the slots, the slot follows the new connection.
func (s *Store) Subscribe(roomID string, connectionID string, nickname string, now time.Time) (*Room, error) {
	s.Lock()
	defer s.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if current, ok := s.connections[connectionID]; ok && current != roomID {
		return nil, ErrAlreadyInRoom
	}

	room.mu.Lock()
	switch nickname {
	case room.player1.Nickname:
		room.player1.ConnectionID = connectionID
	case room.player2.Nickname:
		room.player2.ConnectionID = connectionID
	}
	room.subscribers[connectionID] = struct{}{}
	room.touch(now)
	room.mu.Unlock()

	s.connections[connectionID] = roomID
	return room, nil
}

//Unsubscribe removes the connection from its room's broadcast group.
//It returns the room and the number of subscribers left.
func (s *Store) Unsubscribe(connectionID string) (*Room, int, bool) {
	s.Lock()
	defer s.Unlock()

	roomID, ok := s.connections[connectionID]
	if !ok {
		return nil, 0, false
	}
	delete(s.connections, connectionID)

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, 0, false
	}

	room.mu.Lock()
	delete(room.subscribers, connectionID)
	left := len(room.subscribers)
	room.mu.Unlock()

	return room, left, true
}

//Remove deletes the room and its index entries. Derived caches are cleared by the caller.
func (s *Store) Remove(roomID string) (*Room, bool) {
	s.Lock()
	defer s.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	delete(s.rooms, roomID)
	for connID, rID := range s.connections {
		if rID == roomID {
			delete(s.connections, connID)
		}
	}
	return room, true
}

//Idle returns ids of rooms without activity since the deadline
func (s *Store) Idle(deadline time.Time) []string {
	s.RLock()
	defer s.RUnlock()

	ids := make([]string, 0)
	for id, room := range s.rooms {
		room.mu.Lock()
		if room.lastActive.Before(deadline) {
			ids = append(ids, id)
		}
		room.mu.Unlock()
	}
	return ids
}

func (s *Store) List() []Snapshot {
	s.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.RUnlock()

	snapshots := make([]Snapshot, 0, len(rooms))
	for _, room := range rooms {
		snapshots = append(snapshots, room.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].RoomName < snapshots[j].RoomName })
	return snapshots
}

func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.rooms)
}

func (s *Store) Clear() {
	s.Lock()
	s.rooms = make(map[string]*Room)
	s.connections = make(map[string]string)
	s.Unlock()
}
