package server

import (
	"strconv"

	"github.com/kayalardanmehmet/redsync-radix"
	"github.com/mediocregopher/radix/v3"
	"github.com/pkg/errors"

	"pnpong/model"
)

//RedisDirectory keeps users as hashes so every node sees the same room assignments
type RedisDirectory struct {
	redis  radix.Client
	logger *Logger
}

func NewRedisDirectory(redis radix.Client, logger *Logger) *RedisDirectory {
	return &RedisDirectory{
		redis:  redis,
		logger: logger,
	}
}

func userKey(intraID int64) string {
	return "user|" + strconv.FormatInt(intraID, 10)
}

func nicknameKey(nickname string) string {
	return "nickname|" + nickname
}

func (d *RedisDirectory) Get(intraID int64) (*model.UserInfo, error) {
	fields := make(map[string]string)
	if err := d.redis.Do(radix.Cmd(&fields, "HGETALL", userKey(intraID))); err != nil {
		return nil, errors.Wrap(err, "could not read user")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &model.UserInfo{
		IntraID:  intraID,
		Nickname: fields["nickname"],
		GameRoom: fields["gameRoom"],
	}, nil
}

func (d *RedisDirectory) FindByNickname(nickname string) (*model.UserInfo, error) {
	var id string
	if err := d.redis.Do(radix.Cmd(&id, "GET", nicknameKey(nickname))); err != nil {
		return nil, errors.Wrap(err, "could not read nickname index")
	}
	if id == "" {
		return nil, nil
	}
	intraID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt nickname index for %s", nickname)
	}
	return d.Get(intraID)
}

func (d *RedisDirectory) Register(intraID int64, nickname string) (*model.UserInfo, error) {
	err := d.redis.Do(radix.FlatCmd(nil, "HMSET", userKey(intraID), "intraId", intraID, "nickname", nickname))
	if err != nil {
		return nil, errors.Wrap(err, "could not register user")
	}
	if err := d.redis.Do(radix.FlatCmd(nil, "SET", nicknameKey(nickname), intraID)); err != nil {
		return nil, errors.Wrap(err, "could not index nickname")
	}
	return d.Get(intraID)
}

//clearRoomScript empties gameRoom only while it still holds the expected room
var clearRoomScript = radix.NewEvalScript(1, `
if redis.call("HGET", KEYS[1], "gameRoom") == ARGV[1] then
	redis.call("HSET", KEYS[1], "gameRoom", "")
	return 1
end
return 0
`)

func userLockKey(intraID int64) string {
	return "lock|" + userKey(intraID)
}

//lockUser serializes room assignment changes of a user across nodes.
//The returned func releases the lock.
func (d *RedisDirectory) lockUser(intraID int64) func() {
	rs := redsyncradix.New([]radix.Client{d.redis})
	mutex := rs.NewMutex(userLockKey(intraID))
	if err := mutex.Lock(); err != nil {
		d.logger.Warnw("Could not lock user", "intraID", intraID, "error", err)
		return func() {}
	}
	return func() {
		mutex.Unlock()
	}
}

func (d *RedisDirectory) AssignRoom(intraID int64, roomID string) error {
	unlock := d.lockUser(intraID)
	defer unlock()

	err := d.redis.Do(radix.FlatCmd(nil, "HMSET", userKey(intraID), "intraId", intraID, "gameRoom", roomID))
	return errors.Wrap(err, "could not assign room")
}

func (d *RedisDirectory) ClearRoom(intraID int64, roomID string) (bool, error) {
	unlock := d.lockUser(intraID)
	defer unlock()

	var cleared int
	if err := d.redis.Do(clearRoomScript.Cmd(&cleared, userKey(intraID), roomID)); err != nil {
		return false, errors.Wrap(err, "could not clear room assignment")
	}
	return cleared == 1, nil
}
