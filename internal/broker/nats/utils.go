package nats

import (
	"strings"
)

// ToNATSSubject converts an MQTT topic format to NATS subject format.
// MQTT uses / as separators and +/# as wildcards; NATS uses . and */>.
func ToNATSSubject(mqttTopic string) string {
	subject := strings.ReplaceAll(mqttTopic, "+", "*")
	subject = strings.ReplaceAll(subject, "#", ">")
	subject = strings.ReplaceAll(subject, "/", ".")
	return subject
}

// ToMQTTTopic converts a NATS subject format to MQTT topic format.
// This is the reverse of ToNATSSubject.
func ToMQTTTopic(natsSubject string) string {
	topic := strings.ReplaceAll(natsSubject, "*", "+")
	topic = strings.ReplaceAll(topic, ">", "#")
	topic = strings.ReplaceAll(topic, ".", "/")
	return topic
}
