// Package domain contains core concepts of the relay.
// No runtime, network, or UI logic should be added here.
package domain

// Topic identifies a broadcast group. Membership is held by the registry,
// never by the topic itself.
type Topic string

const (
	// TopicGlobalChat is the single shared chat room.
	TopicGlobalChat Topic = "global_chat"
	// TopicUserStatus carries presence and typing updates for every client.
	TopicUserStatus Topic = "user_status"
)

// WellKnown topics survive an empty membership set; dynamic topics are
// discarded once their last member leaves.
func (t Topic) WellKnown() bool {
	return t == TopicGlobalChat || t == TopicUserStatus
}
