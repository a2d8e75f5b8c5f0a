package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicEventsConversation(conversationID string) string {
	return fmt.Sprintf("events.chat.%s", conversationID)
}

func TopicEventsDelegation(runID string) string {
	return fmt.Sprintf("events.delegation.%s", runID)
}

// TopicEventsAll matches every event the gateway publishes.
const TopicEventsAll = "events.>"
