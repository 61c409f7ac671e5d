package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mqtt-alert-bridge/internal/broker"
)

func TestToNATSSubject(t *testing.T) {
	tests := []struct {
		topic    string
		expected string
	}{
		{"home/temp", "home.temp"},
		{"home/temp/#", "home.temp.>"},
		{"home/+/temp", "home.*.temp"},
		{"temperature", "temperature"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ToNATSSubject(tt.topic))
	}
}

func TestToMQTTTopic(t *testing.T) {
	tests := []struct {
		subject  string
		expected string
	}{
		{"home.temp", "home/temp"},
		{"home.temp.>", "home/temp/#"},
		{"home.*.temp", "home/+/temp"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ToMQTTTopic(tt.subject))
	}
}

func TestWidenedTopicSubject(t *testing.T) {
	assert.Equal(t, "home.temp.>", ToNATSSubject(broker.WidenTopic("home/temp")))
}
