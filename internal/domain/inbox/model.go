package inbox

import "time"

// Record is the per-event bookkeeping row (Inbox pattern).
// Exactly one of ProcessedAt/ParkedAt is set once the event is terminal;
// both nil means the event is still pending. Attempts only increases.
type Record struct {
	ID          int64      `json:"id"`
	EventID     string     `json:"event_id"`
	Subject     string     `json:"subject"`
	Source      string     `json:"source"`
	Stream      string     `json:"stream"`
	Consumer    string     `json:"consumer"`
	Payload     []byte     `json:"payload"`
	ProcessedAt *time.Time `json:"processed_at"`
	Attempts    int        `json:"attempts"`
	ParkedAt    *time.Time `json:"parked_at"`
	LastError   string     `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Pending reports whether the event still needs processing.
func (r *Record) Pending() bool {
	return r.ProcessedAt == nil && r.ParkedAt == nil
}

// Decision is the outcome of recording a failed handling attempt.
type Decision int

const (
	// DecisionRetry asks the broker to redeliver the event later.
	DecisionRetry Decision = iota
	// DecisionPark gives up on the event permanently.
	DecisionPark
)

func (d Decision) String() string {
	if d == DecisionPark {
		return "park"
	}
	return "retry"
}
