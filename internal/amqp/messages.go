package amqp

import (
	"encoding/json"
	"time"
)

// MonthComputedMessage announces that a month's flows were (re)computed and
// persisted. Consumers re-read the database; the message carries only the
// headline figures.
type MonthComputedMessage struct {
	MonthEnd       string    `json:"month_end"`
	Schemes        int       `json:"schemes"`
	TotalNetFlowCr float64   `json:"total_net_flow_cr"`
	TotalAUMCr     float64   `json:"total_aum_cr"`
	ComputedAt     time.Time `json:"computed_at"`
}

// NewMonthComputedMessage creates a month-computed event for the given month.
func NewMonthComputedMessage(monthEnd string, schemes int, totalNetFlowCr, totalAUMCr float64) *MonthComputedMessage {
	return &MonthComputedMessage{
		MonthEnd:       monthEnd,
		Schemes:        schemes,
		TotalNetFlowCr: totalNetFlowCr,
		TotalAUMCr:     totalAUMCr,
		ComputedAt:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MonthComputedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MonthComputedMessageFromJSON creates a message from JSON bytes
func MonthComputedMessageFromJSON(data []byte) (*MonthComputedMessage, error) {
	var msg MonthComputedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
