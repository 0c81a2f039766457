package server

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/satori/go.uuid"
	"go.uber.org/atomic"
)

type session struct {
	sync.Mutex
	id         uuid.UUID
	intraID    int64
	nickname   string
	expiry     int64
	clientIP   string
	clientPort string

	pingPeriodTime time.Duration
	pongWaitTime   time.Duration
	writeWaitTime  time.Duration

	sessionHolder *SessionHolder
	config        *Config
	stats         *Stats
	logger        *Logger
	conn          *websocket.Conn

	receivedMsgDecrement int
	pingTimer            *time.Timer
	pingTimerCas         *atomic.Uint32

	outgoingCh chan []byte

	closed bool
}

func NewSession(identity *tokenIdentity, clientIP string, clientPort string, conn *websocket.Conn, config *Config, sessionHolder *SessionHolder, stats *Stats, logger *Logger) Session {

	sessionID := uuid.NewV4()

	stats.IncrSocketConnection()

	s := &session{
		id:         sessionID,
		clientIP:   clientIP,
		clientPort: clientPort,

		pingPeriodTime: time.Duration(config.SocketConfig.PingPeriodTime) * time.Millisecond,
		pongWaitTime:   time.Duration(config.SocketConfig.PongWaitTime) * time.Millisecond,
		writeWaitTime:  time.Duration(config.SocketConfig.WriteWaitTime) * time.Millisecond,

		config:        config,
		conn:          conn,
		sessionHolder: sessionHolder,
		stats:         stats,
		logger:        logger,

		receivedMsgDecrement: config.SocketConfig.ReceivedMessageDecrementCount,
		pingTimer:            time.NewTimer(time.Duration(config.SocketConfig.PingPeriodTime) * time.Millisecond),
		pingTimerCas:         atomic.NewUint32(1),

		outgoingCh: make(chan []byte, config.SocketConfig.OutgoingQueueSize),

		closed: false,
	}

	if identity != nil {
		s.intraID = identity.IntraID
		s.nickname = identity.Nickname
		s.expiry = identity.Expiry
	}

	return s

}

func (s *session) ID() uuid.UUID {
	return s.id
}

func (s *session) ClientIP() string {
	return s.clientIP
}

func (s *session) ClientPort() string {
	return s.clientPort
}

func (s *session) IntraID() int64 {
	return s.intraID
}

func (s *session) Nickname() string {
	return s.nickname
}

func (s *session) Expiry() int64 {
	return s.expiry
}

func (s *session) Consume(handlerFunc func(session Session, envelope *Envelope) bool) {
	defer s.Close()
	s.conn.SetReadLimit(s.config.SocketConfig.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.pongWaitTime)); err != nil {
		s.logger.Infow("Error occured while trying to set read deadline", "error", err)
		return
	}
	//When pong message is received from client for this session, we can reset ping timer
	s.conn.SetPongHandler(func(string) error {
		s.resetPingTimer()
		return nil
	})

	go s.processOutgoing()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Infow("Socket connection was closed", "id", s.id.String())
			} else if e, ok := err.(*net.OpError); ok && e.Err.Error() == "use of closed network connection" {
				s.logger.Infow("Socket connection was closed", "id", s.id.String())
			} else {
				s.logger.Debugw("Error occured while reading message on socket connection", "id", s.id.String(), "error", err)
			}
			break
		}
		s.stats.IncrSocketRequest()

		//If enough message was received in reset period, timer can be reset
		//Because we know the connection is open, no need to send ping to keep alive
		s.receivedMsgDecrement--
		if s.receivedMsgDecrement < 1 {
			s.receivedMsgDecrement = s.config.SocketConfig.ReceivedMessageDecrementCount
			if !s.resetPingTimer() {
				return
			}
		}

		request := &Envelope{}
		if err := json.Unmarshal(data, request); err != nil || request.Event == "" {
			//Malformed frames are dropped, the connection stays open
			s.logger.Debugw("Dropping unreadable message", "id", s.id.String(), "error", err)
			continue
		}

		if !handlerFunc(s, request) {
			break
		}
	}

}

func (s *session) resetPingTimer() bool {

	if !s.pingTimerCas.CAS(1, 0) {
		return true
	}
	defer s.pingTimerCas.CAS(0, 1)

	s.Lock()
	if s.closed {
		s.Unlock()
		return false
	}

	if !s.pingTimer.Stop() {
		select {
		case <-s.pingTimer.C:
		default:
		}
	}

	s.pingTimer.Reset(s.pingPeriodTime)
	err := s.conn.SetReadDeadline(time.Now().Add(s.pongWaitTime))
	s.Unlock()
	if err != nil {
		s.logger.Errorw("Error while trying to set read deadline on socket connection", "error", err)
		s.Close()
		return false
	}
	return true
}

func (s *session) processOutgoing() {
	defer s.Close()
	for {
		select {
		case <-s.pingTimer.C:
			if !s.pingNow() {
				return
			}
		case payload := <-s.outgoingCh:
			s.Lock()

			if s.closed {
				s.Unlock()
				return
			}

			s.conn.SetWriteDeadline(time.Now().Add(s.writeWaitTime))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Unlock()
				s.logger.Errorw("Could not write message", "id", s.id.String(), "error", err)
				return
			}
			s.Unlock()
		}
	}

}

func (s *session) pingNow() bool {
	s.Lock()
	if s.closed {
		s.Unlock()
		return false
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWaitTime)); err != nil {
		s.Unlock()
		s.logger.Errorw("Could not set write deadline to ping", "error", err)
		return false
	}
	err := s.conn.WriteMessage(websocket.PingMessage, []byte{})
	s.Unlock()
	if err != nil {
		s.logger.Errorw("Could not send ping", "error", err)
		return false
	}

	return true
}

func (s *session) Send(event string, data interface{}) error {
	payload, err := encodeEnvelope(event, data)
	if err != nil {
		s.logger.Errorw("Could not marshal envelope", "event", event, "error", err)
		return err
	}
	return s.SendBytes(payload)
}

func (s *session) SendBytes(payload []byte) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return nil
	}

	select {
	case s.outgoingCh <- payload:
		s.Unlock()
		return nil
	default:
		//The outgoing queue is full, the client can't keep up. Dropping frames would desync
		//the game, so the connection is closed instead.
		s.Unlock()
		s.logger.Warnw("Could not write message, session outgoing queue full", "id", s.id.String())
		s.Close()
		return errors.New("outgoing queue full")
	}
}

func (s *session) Close() {

	s.Lock()
	//Close can be triggered from the read loop, the writer and the pipeline
	if s.closed {
		s.Unlock()
		return
	}
	s.closed = true
	s.Unlock()

	s.stats.DecrSocketConnection()

	s.sessionHolder.remove(s.id)

	s.pingTimer.Stop()
	close(s.outgoingCh)

	if err := s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(s.writeWaitTime)); err != nil {
		s.logger.Debugw("Couldn't send close message to client", "id", s.id.String(), "error", err)
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Errorw("Couldn't close socket connection", "id", s.id.String(), "error", err)
	}

}
