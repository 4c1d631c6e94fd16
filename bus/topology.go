package bus

import amqp "github.com/rabbitmq/amqp091-go"

// topicExchanges are the four domain exchanges the platform publishes
// events to. Each is declared durable/topic; the router binds one queue to
// all of them with a wildcard routing key.
var topicExchanges = []string{
	"link.events",
	"click.events",
	"campaign.events",
	"user.events",
}

const (
	queueName        = "webhook.all.events"
	deadLetterExchange = "dead.letter"
	deadLetterRouting  = "webhook.events"
)

// declareTopology declares the exchanges, the dead-letter exchange, the main
// consumption queue (with dead-letter arguments), and the bindings from
// every topic exchange into that queue.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(deadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	for _, ex := range topicExchanges {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}

	if _, err := ch.QueueDeclare(queueName+".dead", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(queueName+".dead", deadLetterRouting, deadLetterExchange, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": deadLetterRouting,
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		return err
	}

	for _, ex := range topicExchanges {
		if err := ch.QueueBind(queueName, "#", ex, false, nil); err != nil {
			return err
		}
	}

	return nil
}
