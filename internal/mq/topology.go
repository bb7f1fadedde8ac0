package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeExecutions    Exchange = "operato.executions"
	ExchangeEvents        Exchange = "operato.events"
	ExchangeNotifications Exchange = "operato.notifications"
	ExchangeDLQ           Exchange = "operato.dlq"
)

// Queues — имена очередей.
const (
	QueueExecutionsPending     Queue = "executions.pending"
	QueueEventsAudit           Queue = "events.audit"
	QueueNotificationsOutbound Queue = "notifications.outbound"
	QueueDLQExecutions         Queue = "dlq.executions"
)

// Routing keys.
const (
	RoutingKeyPending       RoutingKey = "pending"
	RoutingKeySend          RoutingKey = "send"
	RoutingKeyDLQExecutions RoutingKey = "executions"

	// RoutingKeyEventPrefix — префикс ключей событий workflow;
	// полный ключ "event.<type>" (например, "event.step_completed").
	RoutingKeyEventPrefix = "event."
)

// SetupTopology создаёт обменники, очереди и привязки.
// Идемпотентна: повторное объявление существующей топологии безвредно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeExecutions, "direct"},
		// События маршрутизируются по типу: подписчик может слушать
		// "event.#" целиком или отдельные "event.workflow_failed"
		{ExchangeEvents, "topic"},
		{ExchangeNotifications, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQExecutions),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// executions.pending — с DLQ (активация может навсегда падать
		// на битом шаблоне)
		{QueueExecutionsPending, dlqArgs},

		// events.audit — без DLQ (поток событий только для чтения)
		{QueueEventsAudit, nil},

		// notifications.outbound — без DLQ (доставку ретраит notifier)
		{QueueNotificationsOutbound, nil},

		// dlq.executions — сама DLQ очередь
		{QueueDLQExecutions, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueExecutionsPending, RoutingKeyPending, ExchangeExecutions},
		{QueueEventsAudit, RoutingKey(RoutingKeyEventPrefix + "#"), ExchangeEvents},
		{QueueNotificationsOutbound, RoutingKeySend, ExchangeNotifications},
		{QueueDLQExecutions, RoutingKeyDLQExecutions, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Operato RabbitMQ Topology:

    operato.executions (direct)
    └── executions.pending [routing: pending]
            Consumer: Engine
            DLQ: dlq.executions

    operato.events (topic)
    └── events.audit [routing: event.#]
            Consumer: audit / dashboards

    operato.notifications (direct)
    └── notifications.outbound [routing: send]
            Consumer: notification service

    operato.dlq (direct)
    └── dlq.executions [routing: executions]
            Manual processing
  `
}
