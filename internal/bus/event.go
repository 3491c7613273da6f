package bus

import "time"

// Event is a single notification. Kind is a dot-separated name
// ("bridge.connected", "session.state_changed"); Payload is a
// publisher-defined struct.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
