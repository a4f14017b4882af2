package types

import "time"

// Alert kinds
const (
	KindNearAlarm     = "near_alarm"
	KindAlarmExceeded = "alarm_exceeded"
	KindRecovered     = "recovered"
)

// Message is a single outbound alert. It is built by the dispatcher and
// handed to the transport exactly once.
type Message struct {
	ID        string
	Metric    string // "temperature" or "humidity"; empty for state-level messages
	Kind      string
	Subject   string
	Body      string
	Value     float64
	Threshold float64
	CreatedAt time.Time
}
