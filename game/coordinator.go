package game

import (
	"sync"
	"time"
)

type Options struct {
	WinScore      int
	BallTolerance float64
	Now           func() time.Time
}

//Match is the result of a successful pairing
type Match struct {
	Room    *Room
	Player1 Player
	Player2 Player
}

//Teardown describes a room that was removed from the store
type Teardown struct {
	Snapshot Snapshot
	Reason   string
}

const (
	TeardownWinner    = "winner"
	TeardownAbandoned = "abandoned"
	TeardownIdle      = "idle"
)

//Coordinator owns the queue, the room store and the per-room caches.
//It turns inbound events into outbound events and never touches the transport.
type Coordinator struct {
	matchMu    sync.Mutex
	queue      *Queue
	store      *Store
	arbiter    *Arbiter
	reconciler *Reconciler
	now        func() time.Time
}

func NewCoordinator(opts Options) *Coordinator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		queue:      NewQueue(),
		store:      NewStore(),
		arbiter:    NewArbiter(opts.WinScore),
		reconciler: NewReconciler(opts.BallTolerance),
		now:        now,
	}
}

func (c *Coordinator) Queue() *Queue {
	return c.queue
}

func (c *Coordinator) Store() *Store {
	return c.store
}

func (c *Coordinator) Reconciler() *Reconciler {
	return c.reconciler
}

//StartRandom queues the connection for a random match.
//Without an opponent the requester receives game-loading.
func (c *Coordinator) StartRandom(connectionID string, identity Identity) (*Match, []Outbound, error) {
	c.matchMu.Lock()
	defer c.matchMu.Unlock()

	if _, ok := c.store.RoomOf(connectionID); ok {
		return nil, nil, ErrAlreadyInRoom
	}

	entry := QueueEntry{
		ConnectionID: connectionID,
		Nickname:     identity.Nickname,
		IntraID:      identity.IntraID,
		QueuedAt:     c.now(),
	}
	e1, e2, ok := c.queue.EnqueueRandom(entry)
	if !ok {
		return nil, loading(connectionID), nil
	}
	return c.form(ModeRank, EventRandomStart, connectionID, e1, e2)
}

//StartFriend pairs the connection with the queued entry of the friend, or queues it
func (c *Coordinator) StartFriend(connectionID string, identity Identity, friendNickname string) (*Match, []Outbound, error) {
	c.matchMu.Lock()
	defer c.matchMu.Unlock()

	if _, ok := c.store.RoomOf(connectionID); ok {
		return nil, nil, ErrAlreadyInRoom
	}

	entry := QueueEntry{
		ConnectionID:   connectionID,
		Nickname:       identity.Nickname,
		IntraID:        identity.IntraID,
		TargetNickname: friendNickname,
		QueuedAt:       c.now(),
	}
	e1, e2, ok := c.queue.EnqueueFriend(entry)
	if !ok {
		return nil, loading(connectionID), nil
	}
	return c.form(ModeFriend, EventFriendStart, connectionID, e1, e2)
}

func (c *Coordinator) form(mode string, event string, requester string, e1 QueueEntry, e2 QueueEntry) (*Match, []Outbound, error) {
	room, err := c.store.Create(mode, e1.player(), e2.player(), c.now())
	if err != nil {
		//Pair stays queued until the stale room is gone
		c.queue.PushFront(e1, e2)
		return nil, loading(requester), err
	}

	match := &Match{Room: room, Player1: e1.player(), Player2: e2.player()}
	out := []Outbound{{
		Event: event,
		Data: MatchStarted{
			Player1ID: e1.ConnectionID,
			Player2ID: e2.ConnectionID,
		},
		To: room.Subscribers(),
	}}
	return match, out, nil
}

//Dequeue drops the connection from the matchmaking queue
func (c *Coordinator) Dequeue(connectionID string) bool {
	return c.queue.Dequeue(connectionID) > 0
}

//KeyEvent relays a paddle input to the opponent. If the named opponent is no longer
//subscribed to the sender's room, the other subscribers of the room receive it.
func (c *Coordinator) KeyEvent(connectionID string, event KeyEvent) []Outbound {
	room, ok := c.store.Get(connectionID)
	if !ok {
		return nil
	}

	room.mu.Lock()
	room.touch(c.now())
	to := make([]string, 0, 1)
	if _, ok := room.subscribers[event.OpponentID]; ok && event.OpponentID != connectionID {
		to = append(to, event.OpponentID)
	} else {
		for _, id := range room.subscriberList() {
			if id != connectionID {
				to = append(to, id)
			}
		}
	}
	room.mu.Unlock()

	if len(to) == 0 {
		return nil
	}
	return []Outbound{{
		Event: EventKeyEvent,
		Data: KeyEventRelay{
			OpponentNumber: event.PlayerNumber,
			Message:        event.Message,
			Step:           event.Step,
			Velocity:       event.Velocity,
		},
		To: to,
	}}
}

//ReportScore feeds the arbiter. A report for a slot the connection doesn't own is dropped.
//When a winner is declared the room is torn down and the teardown is returned.
func (c *Coordinator) ReportScore(connectionID string, report ScoreReport) (*Resolution, *Teardown, []Outbound) {
	if !report.PlayerNumber.Valid() {
		return nil, nil, nil
	}
	room, ok := c.store.Get(connectionID)
	if !ok {
		return nil, nil, nil
	}

	room.mu.Lock()
	slot, ok := room.slotOf(connectionID)
	if !ok || slot != report.PlayerNumber {
		room.mu.Unlock()
		return nil, nil, nil
	}
	room.touch(c.now())
	res, resolved := c.arbiter.report(room, slot, report.Score)
	to := room.subscriberList()
	room.mu.Unlock()

	if !resolved {
		return nil, nil, nil
	}

	out := []Outbound{{
		Event: EventScore,
		Data: ScoreResult{
			RealScore:      res.Score,
			WinnerNickname: res.WinnerNickname,
		},
		To: to,
	}}

	var teardown *Teardown
	if res.HasWinner() {
		teardown = c.teardown(room.ID, TeardownWinner)
	}
	return &res, teardown, out
}

//Ball runs the sample through the reconciler and broadcasts corrections to the room
func (c *Coordinator) Ball(connectionID string, ball BallInfo) []Outbound {
	room, ok := c.store.Get(connectionID)
	if !ok {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	room.touch(c.now())
	_, seen := c.reconciler.Recent(room.ID)
	corrected, ok := c.reconciler.Reconcile(room.ID, ball)
	if !seen {
		room.ball = ball
	}
	if !ok {
		return nil
	}
	room.ball = corrected
	return []Outbound{{
		Event: EventBall,
		Data:  corrected,
		To:    room.subscriberList(),
	}}
}

//Rejoin subscribes a reconnecting connection to its room. Returns false when the room is gone.
func (c *Coordinator) Rejoin(connectionID string, roomID string, nickname string) bool {
	_, err := c.store.Subscribe(roomID, connectionID, nickname, c.now())
	return err == nil
}

//Room returns the snapshot of a live room
func (c *Coordinator) Room(roomID string) (Snapshot, bool) {
	room, ok := c.store.Get(roomID)
	if !ok {
		return Snapshot{}, false
	}
	return room.Snapshot(), true
}

//Disconnect broadcasts game-disconnect to the rest of the room and leaves it.
//The room is torn down once its last subscriber is gone.
func (c *Coordinator) Disconnect(connectionID string, roomID string, nickname string) (*Teardown, []Outbound) {
	room, ok := c.store.Get(roomID)
	if !ok {
		return nil, nil
	}

	room.mu.Lock()
	snapshot := room.snapshot()
	to := make([]string, 0, 1)
	for _, id := range room.subscriberList() {
		if id != connectionID {
			to = append(to, id)
		}
	}
	room.mu.Unlock()

	var out []Outbound
	if len(to) > 0 {
		out = []Outbound{{
			Event: EventDisconnect,
			Data: Disconnected{
				DisconnectNickname: nickname,
				GameInfo:           snapshot,
			},
			To: to,
		}}
	}

	if current, ok := c.store.RoomOf(connectionID); !ok || current != roomID {
		return nil, out
	}
	left, remaining, ok := c.store.Unsubscribe(connectionID)
	if !ok || remaining > 0 {
		return nil, out
	}
	return c.teardown(left.ID, TeardownAbandoned), out
}

//ExpireIdle removes rooms without activity for longer than maxIdle
func (c *Coordinator) ExpireIdle(maxIdle time.Duration) []Teardown {
	if maxIdle <= 0 {
		return nil
	}
	teardowns := make([]Teardown, 0)
	for _, roomID := range c.store.Idle(c.now().Add(-maxIdle)) {
		if t := c.teardown(roomID, TeardownIdle); t != nil {
			teardowns = append(teardowns, *t)
		}
	}
	return teardowns
}

func (c *Coordinator) teardown(roomID string, reason string) *Teardown {
	room, ok := c.store.Remove(roomID)
	if !ok {
		return nil
	}
	c.reconciler.Forget(roomID)
	return &Teardown{Snapshot: room.Snapshot(), Reason: reason}
}

//Reset drops every queued entry, room and cache
func (c *Coordinator) Reset() {
	c.matchMu.Lock()
	defer c.matchMu.Unlock()
	c.queue.Clear()
	c.store.Clear()
	c.reconciler.Clear()
}

func loading(connectionID string) []Outbound {
	return []Outbound{{Event: EventLoading, To: []string{connectionID}}}
}
