package server

import (
	"sync"

	"pnpong/model"
)

//Directory is the user store the game side depends on: identity and the assigned room of each user
type Directory interface {
	//Get returns nil without error for unknown users
	Get(intraID int64) (*model.UserInfo, error)
	FindByNickname(nickname string) (*model.UserInfo, error)
	//Register creates the user if missing and refreshes the nickname, keeping the room assignment
	Register(intraID int64, nickname string) (*model.UserInfo, error)
	AssignRoom(intraID int64, roomID string) error
	//ClearRoom clears the assignment only while it still equals roomID
	ClearRoom(intraID int64, roomID string) (bool, error)
}

type LocalDirectory struct {
	sync.RWMutex
	users     map[int64]*model.UserInfo
	nicknames map[string]int64
}

func NewLocalDirectory() *LocalDirectory {
	return &LocalDirectory{
		users:     make(map[int64]*model.UserInfo),
		nicknames: make(map[string]int64),
	}
}

func (d *LocalDirectory) Get(intraID int64) (*model.UserInfo, error) {
	d.RLock()
	defer d.RUnlock()
	if user, ok := d.users[intraID]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

func (d *LocalDirectory) FindByNickname(nickname string) (*model.UserInfo, error) {
	d.RLock()
	intraID, ok := d.nicknames[nickname]
	d.RUnlock()
	if !ok {
		return nil, nil
	}
	return d.Get(intraID)
}

func (d *LocalDirectory) Register(intraID int64, nickname string) (*model.UserInfo, error) {
	d.Lock()
	defer d.Unlock()

	user, ok := d.users[intraID]
	if !ok {
		user = &model.UserInfo{IntraID: intraID}
		d.users[intraID] = user
	}
	if user.Nickname != nickname {
		delete(d.nicknames, user.Nickname)
		user.Nickname = nickname
	}
	d.nicknames[nickname] = intraID

	copied := *user
	return &copied, nil
}

func (d *LocalDirectory) AssignRoom(intraID int64, roomID string) error {
	d.Lock()
	defer d.Unlock()

	user, ok := d.users[intraID]
	if !ok {
		user = &model.UserInfo{IntraID: intraID}
		d.users[intraID] = user
	}
	user.GameRoom = roomID
	return nil
}

func (d *LocalDirectory) ClearRoom(intraID int64, roomID string) (bool, error) {
	d.Lock()
	defer d.Unlock()

	user, ok := d.users[intraID]
	if !ok || user.GameRoom != roomID {
		return false, nil
	}
	user.GameRoom = ""
	return true, nil
}
