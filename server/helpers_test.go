package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/satori/go.uuid"
	"github.com/stretchr/testify/require"

	"pnpong/game"
)

var testStats = NewStatsHolder(NewNopLogger())

type fakeSession struct {
	sync.Mutex
	id       uuid.UUID
	intraID  int64
	nickname string
	expiry   int64
	frames   []Envelope
	closed   bool
}

func newFakeSession(intraID int64, nickname string) *fakeSession {
	return &fakeSession{
		id:       uuid.NewV4(),
		intraID:  intraID,
		nickname: nickname,
		expiry:   time.Now().Add(time.Hour).Unix(),
	}
}

func (f *fakeSession) ID() uuid.UUID      { return f.id }
func (f *fakeSession) ClientIP() string   { return "127.0.0.1" }
func (f *fakeSession) ClientPort() string { return "0" }
func (f *fakeSession) IntraID() int64     { return f.intraID }
func (f *fakeSession) Nickname() string   { return f.nickname }
func (f *fakeSession) Expiry() int64      { return f.expiry }

func (f *fakeSession) Consume(func(session Session, envelope *Envelope) bool) {}

func (f *fakeSession) Send(event string, data interface{}) error {
	payload, err := encodeEnvelope(event, data)
	if err != nil {
		return err
	}
	return f.SendBytes(payload)
}

func (f *fakeSession) SendBytes(payload []byte) error {
	envelope := Envelope{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return err
	}
	f.Lock()
	f.frames = append(f.frames, envelope)
	f.Unlock()
	return nil
}

func (f *fakeSession) Close() {
	f.Lock()
	f.closed = true
	f.Unlock()
}

func (f *fakeSession) connectionID() string {
	return f.id.String()
}

//events returns the names of received frames in order
func (f *fakeSession) events() []string {
	f.Lock()
	defer f.Unlock()
	names := make([]string, 0, len(f.frames))
	for _, frame := range f.frames {
		names = append(names, frame.Event)
	}
	return names
}

//last decodes the payload of the latest frame with the given event name
func (f *fakeSession) last(t *testing.T, event string, v interface{}) {
	t.Helper()
	f.Lock()
	defer f.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Event == event {
			require.NoError(t, json.Unmarshal(f.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %s frame received, got %v", event, f.frames)
}

func (f *fakeSession) reset() {
	f.Lock()
	f.frames = nil
	f.Unlock()
}

type testEnv struct {
	config      *Config
	pipeline    *Pipeline
	holder      *SessionHolder
	directory   *LocalDirectory
	results     *LocalResultStore
	coordinator *game.Coordinator
}

func newTestEnv(t *testing.T, opts game.Options) *testEnv {
	t.Helper()

	config, err := LoadConfig()
	require.NoError(t, err)
	config.AuthConfig.JWTSecret = "test-secret"

	logger := NewNopLogger()
	holder := NewSessionHolder()
	directory := NewLocalDirectory()
	results := NewLocalResultStore()
	if opts.WinScore == 0 {
		opts.WinScore = config.GameConfig.WinScore
	}
	if opts.BallTolerance == 0 {
		opts.BallTolerance = config.GameConfig.BallTolerance
	}
	coordinator := game.NewCoordinator(opts)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pipeline := NewPipeline(
		config,
		coordinator,
		holder,
		directory,
		results,
		NewPubSub(config, holder, logger, ctx),
		NewNotificationService(nil, config, directory, logger),
		testStats,
		logger,
	)

	return &testEnv{
		config:      config,
		pipeline:    pipeline,
		holder:      holder,
		directory:   directory,
		results:     results,
		coordinator: coordinator,
	}
}

//connect registers the session the way the socket acceptor does
func (e *testEnv) connect(s Session) {
	e.holder.add(s)
	e.pipeline.Connect(s)
}

func (e *testEnv) disconnect(s Session) {
	e.holder.remove(s.ID())
	e.pipeline.Disconnect(s)
}

func (e *testEnv) emit(t *testing.T, s Session, event string, data interface{}) {
	t.Helper()
	envelope := &Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		envelope.Data = raw
	}
	require.True(t, e.pipeline.handleSocketRequests(s, envelope))
}

//matchAliceBob connects two users and pairs them through random matching
func (e *testEnv) matchAliceBob(t *testing.T) (*fakeSession, *fakeSession) {
	t.Helper()
	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	e.connect(alice)
	e.connect(bob)
	e.emit(t, alice, game.EventStart, struct{}{})
	e.emit(t, bob, game.EventStart, struct{}{})
	require.Contains(t, alice.events(), game.EventRandomStart)
	require.Contains(t, bob.events(), game.EventRandomStart)
	alice.reset()
	bob.reset()
	return alice, bob
}
