package transfer

import "time"

// State is the lifecycle position of one reassembly slot.
type State uint8

const (
	StateEmpty State = iota
	StateReceiving
	StateComplete
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReceiving:
		return "receiving"
	case StateComplete:
		return "complete"
	case StateDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Completed is one reassembled payload handed to the next stage. The
// receiver takes ownership of Data.
type Completed struct {
	Source    string
	Forwarder string
	Data      []byte
}

// SlotStatus is a point-in-time view of one slot for the status server.
type SlotStatus struct {
	Slot      int    `json:"slot"`
	State     string `json:"state"`
	Source    string `json:"source,omitempty"`
	Forwarder string `json:"forwarder,omitempty"`
	Received  int    `json:"received"`
	Total     int    `json:"total"`
	AgeMS     int64  `json:"age_ms"`
}

// flow tracks one in-flight transfer. The buffer is allocated exactly
// once when the slot is claimed and released exactly once on
// completion, discard, or timeout.
type flow struct {
	identity  string
	source    string
	forwarder string

	fragSize int
	total    int
	received int
	lastLen  int

	presence []uint64
	buf      []byte

	state        State
	lastActivity time.Time
}

func newFlow(identity, source, forwarder string, total, fragSize int, now time.Time) *flow {
	return &flow{
		identity:     identity,
		source:       source,
		forwarder:    forwarder,
		fragSize:     fragSize,
		total:        total,
		lastLen:      -1,
		presence:     make([]uint64, (total+63)/64),
		buf:          make([]byte, total*fragSize),
		state:        StateReceiving,
		lastActivity: now,
	}
}

// markPresent sets the presence bit for index and reports whether it
// was newly set.
func (f *flow) markPresent(index int) bool {
	word, bit := index/64, uint(index%64)
	if f.presence[word]&(1<<bit) != 0 {
		return false
	}
	f.presence[word] |= 1 << bit
	return true
}

// firstMissing scans the bitmap and returns the lowest unset index, or
// -1 when every fragment is present. This is the completeness audit:
// counter equality alone is never trusted.
func (f *flow) firstMissing() int {
	for i := 0; i < f.total; i++ {
		if f.presence[i/64]&(1<<uint(i%64)) == 0 {
			return i
		}
	}
	return -1
}

// release frees the buffer and returns the slot to empty.
func (f *flow) release() {
	f.buf = nil
	f.presence = nil
	f.state = StateEmpty
}
