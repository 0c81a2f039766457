package server

import (
	"sync"
	"time"

	"cirello.io/goherokuname"

	"pnpong/game"
)

//Connected tells a client which connection id and room belong to it
type Connected struct {
	ConnectionID string `json:"connectionId"`
	Nickname     string `json:"nickname"`
	GameRoom     string `json:"gameRoom"`
}

//guestNickname names users whose token carries no nickname
func (p *Pipeline) guestNickname(intraID int64) string {
	if user, err := p.directory.Get(intraID); err == nil && user != nil && user.Nickname != "" {
		return user.Nickname
	}
	return goherokuname.HaikunateCustom("-", 4, "DfWx9873214560jzrl")
}

//Connect registers the user and puts a reconnecting player back into its room
func (p *Pipeline) Connect(session Session) {
	if !p.authorized(session) {
		return
	}

	connectionID := session.ID().String()
	user, err := p.directory.Register(session.IntraID(), session.Nickname())
	if err != nil || user == nil {
		p.logger.Errorw("Could not register user", "intraID", session.IntraID(), "error", err)
		return
	}

	gameRoom := ""
	if user.InRoom() {
		if p.coordinator.Rejoin(connectionID, user.GameRoom, session.Nickname()) {
			gameRoom = user.GameRoom
			p.logger.Infow("Connection rejoined its room", "id", connectionID, "room", gameRoom)
		} else if _, err := p.directory.ClearRoom(user.IntraID, user.GameRoom); err != nil {
			p.logger.Errorw("Could not clear stale room assignment", "intraID", user.IntraID, "error", err)
		}
	}

	if err := session.Send(game.EventConnected, Connected{
		ConnectionID: connectionID,
		Nickname:     session.Nickname(),
		GameRoom:     gameRoom,
	}); err != nil {
		p.logger.Warnw("Could not send connected event", "id", connectionID, "error", err)
	}
}

//Disconnect leaves the queue or the room of the connection
func (p *Pipeline) Disconnect(session Session) {
	connectionID := session.ID().String()

	roomID := p.assignedRoom(session)
	if roomID == "" {
		p.coordinator.Dequeue(connectionID)
		return
	}

	if _, ok := p.coordinator.Room(roomID); !ok {
		p.coordinator.Dequeue(connectionID)
		if _, err := p.directory.ClearRoom(session.IntraID(), roomID); err != nil {
			p.logger.Errorw("Could not clear stale room assignment", "intraID", session.IntraID(), "error", err)
		}
		return
	}

	teardown, out := p.coordinator.Disconnect(connectionID, roomID, session.Nickname())
	p.send(out)
	if teardown != nil {
		p.finish(teardown, nil)
	}
}

//assignedRoom prefers the local room index, which is written together with the room,
//and falls back to the directory for connections that were never subscribed
func (p *Pipeline) assignedRoom(session Session) string {
	if roomID, ok := p.coordinator.Store().RoomOf(session.ID().String()); ok {
		return roomID
	}
	if session.IntraID() == 0 {
		return ""
	}
	user, err := p.directory.Get(session.IntraID())
	if err != nil {
		p.logger.Errorw("Could not read user on disconnect", "intraID", session.IntraID(), "error", err)
		return ""
	}
	if user == nil {
		return ""
	}
	return user.GameRoom
}

//ExpireIdle removes rooms idle for longer than RoomIdleTimeout
func (p *Pipeline) ExpireIdle() int {
	maxIdle := time.Duration(p.config.GameConfig.RoomIdleTimeout) * time.Second
	teardowns := p.coordinator.ExpireIdle(maxIdle)
	for i := range teardowns {
		p.finish(&teardowns[i], nil)
	}
	return len(teardowns)
}

//Sweeper runs ExpireIdle periodically until stopped
type Sweeper struct {
	pipeline *Pipeline
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewSweeper(config *Config, pipeline *Pipeline) *Sweeper {
	interval := time.Duration(config.GameConfig.SweepInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		pipeline: pipeline,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

//Start is a no-op when idle expiry is disabled
func (s *Sweeper) Start() {
	if s.pipeline.config.GameConfig.RoomIdleTimeout <= 0 {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.pipeline.ExpireIdle(); n > 0 {
				s.pipeline.logger.Infow("Expired idle rooms", "count", n)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
