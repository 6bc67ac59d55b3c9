package kafka

import "fmt"

const (
	// TopicPrefix is prepended to every storefront topic.
	TopicPrefix = "storefront"
	// DLQTopicPrefix is prepended to the source topic of dead-lettered messages.
	DLQTopicPrefix = TopicPrefix + ".dlq"
)

// Topic returns "storefront.<domain>.<action>".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

// DLQTopic returns the dead-letter topic for a source topic.
func DLQTopic(topic string) string {
	return DLQTopicPrefix + "." + topic
}
