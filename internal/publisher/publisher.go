// Package publisher defines the abstract sink the session runtime uses to
// fan out payloads to subscribers, implemented by the transport layer.
package publisher

// Publisher accepts a (topic, payload) pair for best-effort, non-blocking
// (from the caller's perspective) delivery to every subscriber of topic.
// Duplicates are tolerated; ordering is guaranteed only per-topic from a
// single producer. The core does not maintain subscriber lists — that is
// the transport's responsibility.
type Publisher interface {
	Publish(topic string, payload any)
}
