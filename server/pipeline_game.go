package server

import (
	"encoding/json"

	"pnpong/game"
	"pnpong/model"
)

var teardownRoutingKeys = map[string]string{
	game.TeardownWinner:    "game.finished",
	game.TeardownAbandoned: "game.abandoned",
	game.TeardownIdle:      "game.expired",
}

//RoomEvent is published to the event exchange when a room is formed or removed
type RoomEvent struct {
	RoomName       string         `json:"roomName"`
	Mode           string         `json:"mode"`
	Reason         string         `json:"reason,omitempty"`
	Players        [2]game.Player `json:"players"`
	Score          game.Score     `json:"score"`
	WinnerNickname string         `json:"winnerNickname,omitempty"`
}

func identityOf(session Session) game.Identity {
	return game.Identity{IntraID: session.IntraID(), Nickname: session.Nickname()}
}

func (p *Pipeline) gameStart(session Session) {
	match, out, err := p.coordinator.StartRandom(session.ID().String(), identityOf(session))
	if err == game.ErrAlreadyInRoom {
		p.logger.Debugw("Start ignored, connection is already in a room", "id", session.ID().String())
		return
	}
	if err != nil {
		p.logger.Warnw("Could not form random match", "id", session.ID().String(), "error", err)
	}
	p.matched(match)
	p.send(out)
}

func (p *Pipeline) gameFriendStart(session Session, envelope *Envelope) {
	request := &game.FriendStart{}
	if !p.decode(session, envelope, request) || request.FriendNickname == "" {
		return
	}

	match, out, err := p.coordinator.StartFriend(session.ID().String(), identityOf(session), request.FriendNickname)
	if err == game.ErrAlreadyInRoom {
		p.logger.Debugw("Friend start ignored, connection is already in a room", "id", session.ID().String())
		return
	}
	if err != nil {
		p.logger.Warnw("Could not form friend match", "id", session.ID().String(), "error", err)
	}
	p.matched(match)
	p.send(out)

	if match == nil && err == nil && request.FriendNickname != session.Nickname() {
		p.invite(session.Nickname(), request.FriendNickname)
	}
}

//invite tells the friend's sessions on any node that a match request is waiting
func (p *Pipeline) invite(fromNickname string, friendNickname string) {
	data, err := json.Marshal(game.Invite{FromNickname: fromNickname})
	if err != nil {
		p.logger.Errorw("Could not marshal invite", "error", err)
		return
	}

	err = p.pubSub.Send(&PubSubMessage{
		Nicknames: []string{friendNickname},
		Event:     game.EventInvite,
		Data:      data,
	})
	if err != nil {
		p.logger.Warnw("Could not deliver invite", "from", fromNickname, "to", friendNickname, "error", err)
	}

	go p.notification.SendInvite(fromNickname, friendNickname)
}

func (p *Pipeline) matched(match *game.Match) {
	if match == nil {
		return
	}

	for _, player := range []game.Player{match.Player1, match.Player2} {
		if err := p.directory.AssignRoom(player.IntraID, match.Room.ID); err != nil {
			p.logger.Errorw("Could not assign room", "intraID", player.IntraID, "room", match.Room.ID, "error", err)
		}
	}

	p.stats.IncrMatch(match.Room.Mode)
	p.stats.SetActiveRooms(p.coordinator.Store().Len())
	p.logger.Infow("Match formed", "room", match.Room.ID, "mode", match.Room.Mode)

	err := p.pubSub.PublishEvent("game.matched", RoomEvent{
		RoomName: match.Room.ID,
		Mode:     match.Room.Mode,
		Players:  [2]game.Player{match.Player1, match.Player2},
	})
	if err != nil {
		p.logger.Warnw("Could not publish match event", "room", match.Room.ID, "error", err)
	}
}

func (p *Pipeline) gameKeyEvent(session Session, envelope *Envelope) {
	event := &game.KeyEvent{}
	if !p.decode(session, envelope, event) {
		return
	}
	p.send(p.coordinator.KeyEvent(session.ID().String(), *event))
}

func (p *Pipeline) gameScore(session Session, envelope *Envelope) {
	report := &game.ScoreReport{}
	if !p.decode(session, envelope, report) {
		return
	}

	res, teardown, out := p.coordinator.ReportScore(session.ID().String(), *report)
	if res != nil {
		p.stats.IncrScoreResolution()
	}
	p.send(out)
	if teardown != nil {
		p.finish(teardown, res)
	}
}

func (p *Pipeline) gameBall(session Session, envelope *Envelope) {
	ball := &game.BallInfo{}
	if !p.decode(session, envelope, ball) {
		return
	}

	out := p.coordinator.Ball(session.ID().String(), *ball)
	if len(out) > 0 {
		p.stats.IncrBallCorrection()
	}
	p.send(out)
}

//finish runs the side effects of a removed room: directory cleanup, result record and domain event
func (p *Pipeline) finish(teardown *game.Teardown, res *game.Resolution) {
	snapshot := teardown.Snapshot

	for _, player := range snapshot.Players {
		if _, err := p.directory.ClearRoom(player.IntraID, snapshot.RoomName); err != nil {
			p.logger.Errorw("Could not clear room assignment", "intraID", player.IntraID, "room", snapshot.RoomName, "error", err)
		}
	}

	p.stats.IncrTeardown(teardown.Reason)
	p.stats.SetActiveRooms(p.coordinator.Store().Len())

	event := RoomEvent{
		RoomName: snapshot.RoomName,
		Mode:     snapshot.Mode,
		Reason:   teardown.Reason,
		Players:  snapshot.Players,
		Score:    snapshot.Score,
	}

	if res != nil && res.HasWinner() {
		event.WinnerNickname = res.WinnerNickname
		result := model.GameResult{
			RoomName:       snapshot.RoomName,
			Mode:           snapshot.Mode,
			WinnerIntraID:  res.Winner.IntraID,
			WinnerNickname: res.Winner.Nickname,
			LoserIntraID:   res.Loser.IntraID,
			LoserNickname:  res.Loser.Nickname,
			Player1Score:   res.Score.P1,
			Player2Score:   res.Score.P2,
			CreatedAt:      p.now().Unix(),
		}
		if err := p.results.Record(result); err != nil {
			p.logger.Errorw("Could not record game result", "room", snapshot.RoomName, "error", err)
		}
	}

	p.logger.Infow("Room removed", "room", snapshot.RoomName, "reason", teardown.Reason)

	if err := p.pubSub.PublishEvent(teardownRoutingKeys[teardown.Reason], event); err != nil {
		p.logger.Warnw("Could not publish room event", "room", snapshot.RoomName, "error", err)
	}
}
