package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicCheckoutCompleted = "checkout.completed"
	TopicCheckoutFailed    = "checkout.failed"
	TopicCartCleared       = "cart.cleared"
)

// DefaultTopics returns the topics forwarded to push subscribers.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutCompleted,
		TopicCheckoutFailed,
		TopicCartCleared,
	}
}

// Subscribed reports whether topic is one of the push topics.
func Subscribed(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
