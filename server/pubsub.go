package server

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

//PubSubMessage carries an outbound event to the sessions of the given nicknames on any node
type PubSubMessage struct {
	Nicknames []string        `json:"nicknames"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type PubSub struct {
	isEnabled     bool
	pubChan       *amqp.Channel
	subChan       *amqp.Channel
	exchange      string
	eventExchange string
	sessionHolder *SessionHolder
	logger        *Logger
	context       context.Context
}

func NewPubSub(config *Config, sessionHolder *SessionHolder, logger *Logger, ctx context.Context) *PubSub {

	ps := &PubSub{
		isEnabled:     false,
		exchange:      config.RabbitMQ.Exchange,
		eventExchange: config.RabbitMQ.EventExchange,
		sessionHolder: sessionHolder,
		logger:        logger,
		context:       ctx,
	}

	if config.RabbitMQ.ConnectionString == "" {
		return ps
	}

	conn, err := amqp.Dial(config.RabbitMQ.ConnectionString)
	if err != nil {
		logger.Fatalw("Error while trying to connect amqp server", "error", err)
	}

	pubChan, err := conn.Channel()
	if err != nil {
		logger.Fatalw("Error while trying to open a channel for publish over amqp connection", "error", err)
	}

	subChan, err := conn.Channel()
	if err != nil {
		logger.Fatalw("Error while trying to open a channel for subscibe over amqp connection", "error", err)
	}

	//Session messages fan out to every node, domain events are routed by kind
	for _, ch := range []*amqp.Channel{pubChan, subChan} {
		if err := ch.ExchangeDeclare(ps.exchange, "fanout", true, false, false, false, nil); err != nil {
			logger.Fatalw("Error while trying to define message exchange", "exchange", ps.exchange, "error", err)
		}
	}
	if err := pubChan.ExchangeDeclare(ps.eventExchange, "topic", true, false, false, false, nil); err != nil {
		logger.Fatalw("Error while trying to define event exchange", "exchange", ps.eventExchange, "error", err)
	}

	q, err := subChan.QueueDeclare(
		"",
		false,
		false,
		true,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to define queue over subscribe channel", "error", err)
	}

	err = subChan.QueueBind(
		q.Name,
		"",
		ps.exchange,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while binding queue to subscribe channel", "error", err)
	}

	msgs, err := subChan.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to create consumer channel on subscribe channel", "error", err)
	}

	go func() {

		defer conn.Close()

		for {

			select {
			case <-ctx.Done():
				logger.Info("Exiting from subscribe routine")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("Subscribe channel was closed")
					return
				}
				ps.deliver(msg)
			}

		}

	}()

	ps.isEnabled = true
	ps.pubChan = pubChan
	ps.subChan = subChan
	return ps

}

func (ps *PubSub) deliver(msg amqp.Delivery) {
	if msg.ContentType != "application/json" {
		ps.logger.Errorw("Unrecognized content type received", "content-type", msg.ContentType)
		return
	}

	message := &PubSubMessage{}
	if err := json.Unmarshal(msg.Body, message); err != nil {
		ps.logger.Errorw("Error while unmarshal pub sub message data", "error", err)
		return
	}

	ps.sendLocal(message)
}

//sendLocal delivers to sessions of this node and returns the nicknames that had none
func (ps *PubSub) sendLocal(message *PubSubMessage) []string {
	payload, err := encodeEnvelope(message.Event, message.Data)
	if err != nil {
		ps.logger.Errorw("Error while encoding pub sub message", "event", message.Event, "error", err)
		return nil
	}

	missing := make([]string, 0)
	for _, nickname := range message.Nicknames {
		sessions := ps.sessionHolder.ByNickname(nickname)
		if len(sessions) == 0 {
			missing = append(missing, nickname)
			continue
		}
		for _, session := range sessions {
			_ = session.SendBytes(payload)
		}
	}
	return missing
}

//Send delivers to local sessions directly and publishes the rest to the other nodes
func (ps *PubSub) Send(message *PubSubMessage) error {

	publishNicknames := ps.sendLocal(message)

	if ps.isEnabled && len(publishNicknames) > 0 {

		message.Nicknames = publishNicknames
		data, err := json.Marshal(message)
		if err != nil {
			ps.logger.Errorw("Error while trying to marshal message in send method of pubsub module", "error", err)
			return errors.WithStack(err)
		}

		err = ps.pubChan.Publish(
			ps.exchange,
			"",
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        data,
			})

		if err != nil {
			ps.logger.Errorw("Error while trying to publish data in send method of pubsub module", "error", err)
			return errors.WithStack(err)
		}
	}

	return nil

}

//PublishEvent emits a domain event such as game.finished. No-op without a broker.
func (ps *PubSub) PublishEvent(routingKey string, payload interface{}) error {
	if !ps.isEnabled {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "could not marshal domain event")
	}

	err = ps.pubChan.Publish(
		ps.eventExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Type:        routingKey,
			Body:        data,
		})
	return errors.Wrap(err, "could not publish domain event")
}
