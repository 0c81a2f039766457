package model

//UserInfo is the directory record of a user. GameRoom is empty when the user has no room assigned.
type UserInfo struct {
	IntraID  int64  `json:"intraId"`
	Nickname string `json:"nickname"`
	GameRoom string `json:"gameRoom"`
}

func (u UserInfo) InRoom() bool {
	return u.GameRoom != ""
}
