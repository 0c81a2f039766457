package model

import (
	"github.com/globalsign/mgo/bson"
)

//GameResult is the record of a finished match
type GameResult struct {
	Id             bson.ObjectId `bson:"_id,omitempty" json:"-"`
	RoomName       string        `bson:"room_name" json:"roomName"`
	Mode           string        `bson:"mode" json:"mode"`
	WinnerIntraID  int64         `bson:"winner_intra_id" json:"winnerIntraId"`
	WinnerNickname string        `bson:"winner_nickname" json:"winnerNickname"`
	LoserIntraID   int64         `bson:"loser_intra_id" json:"loserIntraId"`
	LoserNickname  string        `bson:"loser_nickname" json:"loserNickname"`
	Player1Score   int           `bson:"player1_score" json:"player1Score"`
	Player2Score   int           `bson:"player2_score" json:"player2Score"`
	CreatedAt      int64         `bson:"created_at" json:"createdAt"`
}

func (gr GameResult) Involves(intraID int64) bool {
	return gr.WinnerIntraID == intraID || gr.LoserIntraID == intraID
}

func (gr GameResult) GetCollectionName() string {
	return "games"
}
