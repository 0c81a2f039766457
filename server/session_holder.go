package server

import (
	"sync"

	"github.com/satori/go.uuid"
)

type Session interface {
	ID() uuid.UUID
	ClientIP() string
	ClientPort() string

	//Identity bound from the token at connect. IntraID is 0 for anonymous sessions.
	IntraID() int64
	Nickname() string
	Expiry() int64

	Consume(handlerFunc func(session Session, envelope *Envelope) bool)

	Send(event string, data interface{}) error
	SendBytes(payload []byte) error

	Close()
}

//SessionHolder is the connection registry: connection id -> live session and its bound identity
type SessionHolder struct {
	sync.RWMutex
	sessions   map[uuid.UUID]Session
	byIntraID  map[int64]map[uuid.UUID]Session
	byNickname map[string]map[uuid.UUID]Session
}

func NewSessionHolder() *SessionHolder {
	return &SessionHolder{
		sessions:   make(map[uuid.UUID]Session),
		byIntraID:  make(map[int64]map[uuid.UUID]Session),
		byNickname: make(map[string]map[uuid.UUID]Session),
	}
}

func (r *SessionHolder) Get(sessionID uuid.UUID) Session {
	var s Session
	r.RLock()
	s = r.sessions[sessionID]
	r.RUnlock()
	return s
}

//GetByConnectionID resolves the string form used by rooms and the queue
func (r *SessionHolder) GetByConnectionID(connectionID string) Session {
	sessionID, err := uuid.FromString(connectionID)
	if err != nil {
		return nil
	}
	return r.Get(sessionID)
}

//ByIntraID returns every live session of the user
func (r *SessionHolder) ByIntraID(intraID int64) []Session {
	r.RLock()
	defer r.RUnlock()
	return collect(r.byIntraID[intraID])
}

func (r *SessionHolder) ByNickname(nickname string) []Session {
	r.RLock()
	defer r.RUnlock()
	return collect(r.byNickname[nickname])
}

func (r *SessionHolder) Count() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.sessions)
}

func (r *SessionHolder) add(s Session) {
	r.Lock()
	r.sessions[s.ID()] = s
	if s.IntraID() != 0 {
		index(r.byIntraID, s.IntraID(), s)
		index(r.byNickname, s.Nickname(), s)
	}
	r.Unlock()
}

func (r *SessionHolder) remove(sessionID uuid.UUID) {
	r.Lock()
	if s, ok := r.sessions[sessionID]; ok {
		delete(r.sessions, sessionID)
		unindex(r.byIntraID, s.IntraID(), sessionID)
		unindex(r.byNickname, s.Nickname(), sessionID)
	}
	r.Unlock()
}

func index[K comparable](m map[K]map[uuid.UUID]Session, key K, s Session) {
	sessions, ok := m[key]
	if !ok {
		sessions = make(map[uuid.UUID]Session)
		m[key] = sessions
	}
	sessions[s.ID()] = s
}

func unindex[K comparable](m map[K]map[uuid.UUID]Session, key K, sessionID uuid.UUID) {
	if sessions, ok := m[key]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m, key)
		}
	}
}

func collect(sessions map[uuid.UUID]Session) []Session {
	result := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s)
	}
	return result
}
