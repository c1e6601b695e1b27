// Package cycle implements the wake-cycle core: which uplinks a cycle owes,
// how the episode's radio exchanges are sequenced, and how long the node
// sleeps afterwards.
package cycle

// ScheduleEntry maps an uplink port to its cycle multiplier. The entry is due
// in cycle c when the multiplier is non-zero and evenly divides c. A zero
// multiplier disables the entry.
type ScheduleEntry struct {
	Port       uint8  `yaml:"port" json:"port"`
	Multiplier uint32 `yaml:"multiplier" json:"multiplier"`
}

func (e ScheduleEntry) due(cycle uint32) bool {
	return e.Multiplier != 0 && cycle%e.Multiplier == 0
}

// Scheduler dispenses the uplink ports due in one wake cycle, in table order.
// It holds no durable state; Begin recomputes everything from the cycle
// number.
type Scheduler struct {
	table     []ScheduleEntry
	cycle     uint32
	next      int
	due       int
	remaining int
}

// NewScheduler returns a scheduler over a copy of table.
func NewScheduler(table []ScheduleEntry) *Scheduler {
	return &Scheduler{table: append([]ScheduleEntry(nil), table...)}
}

// Begin resets the cursor for a new cycle and precomputes the due count.
func (s *Scheduler) Begin(cycle uint32) {
	s.cycle = cycle
	s.next = 0
	s.due = 0
	for _, e := range s.table {
		if e.due(cycle) {
			s.due++
		}
	}
	s.remaining = s.due
}

// DueCount returns how many ports are due in the current cycle.
func (s *Scheduler) DueCount() int {
	return s.due
}

// HasUplinks reports whether due ports remain undispensed.
func (s *Scheduler) HasUplinks() bool {
	return s.remaining > 0
}

// PeekPort returns the next due port without consuming it, 0 when exhausted.
func (s *Scheduler) PeekPort() uint8 {
	for i := s.next; i < len(s.table); i++ {
		if s.table[i].due(s.cycle) {
			return s.table[i].Port
		}
	}
	return 0
}

// NextPort returns the next due port in table order and advances the cursor.
// Past exhaustion it keeps returning 0.
func (s *Scheduler) NextPort() uint8 {
	for s.next < len(s.table) {
		e := s.table[s.next]
		s.next++
		if e.due(s.cycle) {
			s.remaining--
			return e.Port
		}
	}
	return 0
}
