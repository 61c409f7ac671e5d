package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectionManager handles MQTT connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetClient() mqtt.Client
}

// SubscriptionManager handles topic subscriptions and message reception
type SubscriptionManager interface {
	Subscribe(topics []string) error
	Unsubscribe(topics []string) error
	HandleMessage(client mqtt.Client, msg mqtt.Message)
	ResubscribeAll() error
	GetSubscribedTopics() []string
	IsSubscribed() bool
}
