package integration

import (
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"flowjs-works/aslcompiler/internal/graph"
)

// rabbitmqHook lowers rabbitmq.publish(config) to a Task state, building
// the same amqp.Publishing value the teacher's own rabbitmq activity
// constructs before Channel.Publish, to validate content-type/delivery-
// mode/payload shape at compile time — never dialing amqp.Dial
// (spec.md §5, §4.10).
type rabbitmqHook struct{}

func newRabbitMQHook() *rabbitmqHook { return &rabbitmqHook{} }

func (h *rabbitmqHook) Name() string { return "rabbitmq" }

func (h *rabbitmqHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	urlAMQP, err := constString(call, m, "url_amqp")
	if err != nil {
		return nil, err
	}
	routingKey, err := constString(call, m, "routing_key")
	if err != nil {
		return nil, err
	}
	exchange := optString(m, "exchange")

	contentType := "application/json"
	var deliveryMode uint8 = 1
	if props, ok := m["properties"].(map[string]interface{}); ok {
		if ct, ok := props["content_type"].(string); ok {
			contentType = ct
		}
		switch v := props["delivery_mode"].(type) {
		case int:
			deliveryMode = uint8(v)
		case float64:
			deliveryMode = uint8(v)
		}
	}

	payloadBytes, err := json.Marshal(m["payload"])
	if err != nil {
		return nil, configErr(call, "rabbitmq.%s: payload must be JSON-serializable: %v", call.Method, err)
	}
	_ = amqp.Publishing{ContentType: contentType, DeliveryMode: deliveryMode, Body: payloadBytes}

	return &graph.NodeState{
		Type:     graph.TypeTask,
		Resource: "arn:flowjs-works:integration:::rabbitmq:" + call.Method,
		Parameters: toParams(map[string]interface{}{
			"UrlAmqp":      urlAMQP,
			"Exchange":     exchange,
			"RoutingKey":   routingKey,
			"Payload":      m["payload"],
			"ContentType":  contentType,
			"DeliveryMode": deliveryMode,
		}),
	}, nil
}
