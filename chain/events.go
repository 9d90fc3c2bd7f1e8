package chain

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Event is printed by a contract during a call
type Event struct {
	Id       uuid.UUID       `json:"id"`
	Contract Principal       `json:"contract"`
	Name     string          `json:"name"`
	Height   uint64          `json:"height"`
	Sender   Principal       `json:"sender"`
	Data     json.RawMessage `json:"data"`
}

// Sink receives the events of every committed call, in emission order
type Sink interface {
	Publish(ctx context.Context, events []Event) (err error)
}
