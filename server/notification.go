package server

import (
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/tbalthazar/onesignal-go"

	"pnpong/model"
)

const notificationBatchSize = 2000

type Notification struct {
	db        *mgo.Session
	config    *Config
	directory Directory
	client    *onesignal.Client
	logger    *Logger
}

func NewNotificationService(db *mgo.Session, config *Config, directory Directory, logger *Logger) *Notification {

	client := onesignal.NewClient(nil)
	client.AppKey = config.NotificationConfig.AppKey

	return &Notification{
		db:        db,
		config:    config,
		directory: directory,
		client:    client,
		logger:    logger,
	}

}

//Enabled is false without a token store or a onesignal app
func (n Notification) Enabled() bool {
	return n.db != nil && n.config.NotificationConfig.AppID != ""
}

//SendInvite pushes a friend match request to the devices of the friend
func (n Notification) SendInvite(fromNickname string, friendNickname string) {
	if !n.Enabled() {
		return
	}

	friend, err := n.directory.FindByNickname(friendNickname)
	if err != nil {
		n.logger.Errorw("Error while looking up invited friend", "nickname", friendNickname, "error", err)
		return
	}
	if friend == nil {
		return
	}

	n.SendNotificationWithIntraIDs(
		map[string]string{"en": "Game invite"},
		map[string]string{"en": fromNickname + " wants to play pong with you"},
		friend.IntraID,
	)
}

func (n Notification) SendNotificationWithIntraIDs(headings map[string]string, body map[string]string, intraIDs ...int64) {

	conn := n.db.Copy()
	defer conn.Close()
	db := conn.DB(n.config.DBConfig.Database)

	notificationTokens := make([]model.NotificationToken, 0)

	err := db.C(model.NotificationToken{}.GetCollectionName()).Find(bson.M{
		"intraId": bson.M{
			"$in": intraIDs,
		},
	}).All(&notificationTokens)
	if err != nil {
		n.logger.Errorw("Error while fetching all notification tokens belongs to given users", "intraIDs", intraIDs, "error", err)
		return
	}

	tokens := make([]string, 0, len(notificationTokens))
	for _, token := range notificationTokens {
		tokens = append(tokens, token.Token)
	}

	n.SendNotificationWithTokens(headings, body, tokens)

}

func (n Notification) SendNotificationWithTokens(headings map[string]string, body map[string]string, tokens []string) {

	for _, batch := range tokenBatches(tokens, notificationBatchSize) {
		notificationReq := &onesignal.NotificationRequest{
			AppID:            n.config.NotificationConfig.AppID,
			Headings:         headings,
			Contents:         body,
			IncludePlayerIDs: batch,
		}

		_, _, err := n.client.Notifications.Create(notificationReq)
		if err != nil {
			n.logger.Errorw("Error while creating notification request", "headings", headings, "contents", body, "error", err)
			return
		}
	}

}

//tokenBatches splits tokens into onesignal sized requests
func tokenBatches(tokens []string, size int) [][]string {
	batches := make([][]string, 0, (len(tokens)+size-1)/size)
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches
}
