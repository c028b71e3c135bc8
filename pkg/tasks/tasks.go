// Package tasks defines the messages exchanged over Kafka.
package tasks

const (
	IndexActionUpsert = "upsert"
	IndexActionDelete = "delete"
)

// ConversationIndexTask asks the indexing pipeline to refresh or remove the
// search projection of one conversation.
type ConversationIndexTask struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
	Shop           string `json:"shop"`
	UserID         string `json:"user_id"`
}
