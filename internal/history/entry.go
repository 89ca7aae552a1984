package history

import "time"

// Entry is one flat row of the durable log. Payload is either raw text or a
// serialized batch record (see codec.go); the store never interprets it.
type Entry struct {
	SequenceID     int64     `json:"sequence_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Payload        string    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// Record is an entry before the store has assigned it a sequence id.
type Record struct {
	Role    string
	Payload string
}
