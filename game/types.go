package game

import (
	"sort"
	"strings"
)

//Inbound event names
const (
	EventStart       = "game-start"
	EventFriendStart = "game-friendStart"
	EventKeyEvent    = "game-keyEvent"
	EventScore       = "game-score"
	EventBall        = "game-ball"
)

//Outbound event names. game-friendStart, game-keyEvent, game-score and game-ball are reused as is.
const (
	EventLoading     = "game-loading"
	EventRandomStart = "game-randomStart-rank-pn"
	EventDisconnect  = "game-disconnect"
	EventConnected   = "game-connected"
	EventInvite      = "game-invite"
)

const (
	ModeRank   = "rank"
	ModeFriend = "friend"
)

const roomPrefix = "game-"

type PlayerNumber string

const (
	Player1 PlayerNumber = "player1"
	Player2 PlayerNumber = "player2"
)

func (p PlayerNumber) Valid() bool {
	return p == Player1 || p == Player2
}

type Score struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type BallInfo struct {
	Position Vector `json:"position"`
	Velocity Vector `json:"velocity"`
}

//Identity is the authenticated user bound to a connection
type Identity struct {
	IntraID  int64
	Nickname string
}

//Player occupies one slot of a room
type Player struct {
	ConnectionID string `json:"connectionId"`
	Nickname     string `json:"nickname"`
	IntraID      int64  `json:"intraId"`
}

type ScoreReport struct {
	PlayerNumber PlayerNumber `json:"playerNumber"`
	Score        Score        `json:"score"`
}

type KeyEvent struct {
	OpponentID   string       `json:"opponentId"`
	PlayerNumber PlayerNumber `json:"playerNumber"`
	Message      string       `json:"message"`
	Step         float64      `json:"step"`
	Velocity     float64      `json:"velocity"`
}

type FriendStart struct {
	FriendNickname string `json:"friendNickname"`
}

//Outgoing payloads

type MatchStarted struct {
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
}

type KeyEventRelay struct {
	OpponentNumber PlayerNumber `json:"opponentNumber"`
	Message        string       `json:"message"`
	Step           float64      `json:"step"`
	Velocity       float64      `json:"velocity"`
}

type ScoreResult struct {
	RealScore      Score  `json:"realScore"`
	WinnerNickname string `json:"winnerNickname"`
}

type Disconnected struct {
	DisconnectNickname string   `json:"disconnectNickname"`
	GameInfo           Snapshot `json:"gameInfo"`
}

type Invite struct {
	FromNickname string `json:"fromNickname"`
}

//Outbound is a single event the transport layer has to deliver to the listed connections
type Outbound struct {
	Event string
	Data  interface{}
	To    []string
}

//RoomKey builds the room id of two nicknames. The order of arguments doesn't matter.
func RoomKey(nickname1, nickname2 string) string {
	names := []string{nickname1, nickname2}
	sort.Strings(names)
	return roomPrefix + names[0] + ":" + names[1]
}

func IsRoomID(id string) bool {
	return strings.HasPrefix(id, roomPrefix)
}
