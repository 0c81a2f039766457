package server

import (
	"encoding/json"
	"time"

	"pnpong/game"
)

//Envelope is the wire frame in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoingEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

func encodeEnvelope(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outgoingEnvelope{Event: event, Data: data})
}

type Pipeline struct {
	config        *Config
	coordinator   *game.Coordinator
	sessionHolder *SessionHolder
	directory     Directory
	results       ResultStore
	pubSub        *PubSub
	notification  *Notification
	stats         *Stats
	logger        *Logger
	now           func() time.Time
}

func NewPipeline(config *Config, coordinator *game.Coordinator, sessionHolder *SessionHolder, directory Directory, results ResultStore, pubSub *PubSub, notification *Notification, stats *Stats, logger *Logger) *Pipeline {
	return &Pipeline{
		config:        config,
		coordinator:   coordinator,
		sessionHolder: sessionHolder,
		directory:     directory,
		results:       results,
		pubSub:        pubSub,
		notification:  notification,
		stats:         stats,
		logger:        logger,
		now:           time.Now,
	}
}

//authorized is false for anonymous sessions and once the token has expired
func (p *Pipeline) authorized(session Session) bool {
	if session.IntraID() == 0 {
		return false
	}
	return p.now().Unix() < session.Expiry()
}

func (p *Pipeline) handleSocketRequests(session Session, envelope *Envelope) bool {

	//Identity errors are dropped without a reply
	if !p.authorized(session) {
		return true
	}

	switch envelope.Event {
	case game.EventStart:
		p.gameStart(session)
	case game.EventFriendStart:
		p.gameFriendStart(session, envelope)
	case game.EventKeyEvent:
		p.gameKeyEvent(session, envelope)
	case game.EventScore:
		p.gameScore(session, envelope)
	case game.EventBall:
		p.gameBall(session, envelope)
	default:
		p.logger.Debugw("Unrecognizable event received", "id", session.ID().String(), "event", envelope.Event)
	}

	return true

}

//decode reads the payload of the envelope, malformed payloads are logged and dropped
func (p *Pipeline) decode(session Session, envelope *Envelope, v interface{}) bool {
	if len(envelope.Data) == 0 {
		p.logger.Debugw("Missing payload", "id", session.ID().String(), "event", envelope.Event)
		return false
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		p.logger.Debugw("Malformed payload", "id", session.ID().String(), "event", envelope.Event, "error", err)
		return false
	}
	return true
}

//send delivers each outbound event to the live sessions of its connection ids
func (p *Pipeline) send(out []game.Outbound) {
	for _, o := range out {
		payload, err := encodeEnvelope(o.Event, o.Data)
		if err != nil {
			p.logger.Errorw("Could not marshal outbound event", "event", o.Event, "error", err)
			continue
		}
		for _, connectionID := range o.To {
			session := p.sessionHolder.GetByConnectionID(connectionID)
			if session == nil {
				continue
			}
			if err := session.SendBytes(payload); err != nil {
				p.logger.Warnw("Could not send event", "event", o.Event, "id", connectionID, "error", err)
			}
		}
	}
}

//Overview is the payload of the stats endpoint
type Overview struct {
	QueueLength int             `json:"queueLength"`
	ActiveRooms int             `json:"activeRooms"`
	Connections int             `json:"connections"`
	Rooms       []game.Snapshot `json:"rooms"`
}

func (p *Pipeline) Overview() Overview {
	rooms := p.coordinator.Store().List()
	return Overview{
		QueueLength: p.coordinator.Queue().Len(),
		ActiveRooms: len(rooms),
		Connections: p.sessionHolder.Count(),
		Rooms:       rooms,
	}
}
