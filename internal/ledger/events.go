package ledger

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fund-ledger/internal/types"
)

// Event is a ledger state transition published for off-chain indexers.
type Event struct {
	Type       types.EventType   `json:"type"`
	Fund       common.Address    `json:"fund"`
	Timestamp  int64             `json:"timestamp"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventEmitter receives events as operations commit. Emitters must not
// mutate the event.
type EventEmitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements EventEmitter.
func (NoopEmitter) Emit(Event) {}

func (e *Engine) emit(eventType types.EventType, attrs map[string]string) {
	e.emitter.Emit(Event{
		Type:       eventType,
		Fund:       e.state.Config.Address,
		Timestamp:  e.now(),
		Attributes: attrs,
	})
}

func attrAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func attrID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
