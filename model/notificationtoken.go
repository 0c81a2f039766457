package model

import (
	"github.com/globalsign/mgo/bson"
)

type NotificationToken struct {
	Id      bson.ObjectId `bson:"_id,omitempty"`
	IntraID int64         `bson:"intraId"`
	Token   string        `bson:"token"`
}

func (n NotificationToken) GetCollectionName() string {
	return "notificationTokens"
}
