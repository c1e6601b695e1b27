package cycle

import (
	"testing"

	"gotest.tools/v3/assert"
)

func collectPorts(s *Scheduler) []uint8 {
	var ports []uint8
	for s.HasUplinks() {
		ports = append(ports, s.NextPort())
	}
	return ports
}

func TestSchedulerTableOrder(t *testing.T) {
	s := NewScheduler([]ScheduleEntry{{Port: 1, Multiplier: 1}, {Port: 2, Multiplier: 3}})

	s.Begin(3)
	assert.Equal(t, s.DueCount(), 2)
	assert.DeepEqual(t, collectPorts(s), []uint8{1, 2})

	s.Begin(2)
	assert.Equal(t, s.DueCount(), 1)
	assert.DeepEqual(t, collectPorts(s), []uint8{1})
}

func TestSchedulerExhaustion(t *testing.T) {
	s := NewScheduler([]ScheduleEntry{{Port: 1, Multiplier: 1}})

	s.Begin(1)
	assert.Equal(t, s.NextPort(), uint8(1))
	assert.Equal(t, s.NextPort(), uint8(0))
	assert.Equal(t, s.NextPort(), uint8(0))
	assert.Assert(t, !s.HasUplinks())
}

func TestSchedulerZeroMultiplierNeverDue(t *testing.T) {
	s := NewScheduler([]ScheduleEntry{{Port: 7, Multiplier: 0}, {Port: 8, Multiplier: 2}})

	// cycle 0 is divisible by everything; a zero multiplier still must not fire
	s.Begin(0)
	assert.Equal(t, s.DueCount(), 1)
	assert.DeepEqual(t, collectPorts(s), []uint8{8})
}

func TestSchedulerDeterminism(t *testing.T) {
	table := []ScheduleEntry{{Port: 1, Multiplier: 2}, {Port: 2, Multiplier: 5}, {Port: 3, Multiplier: 1}}

	for cycle := uint32(0); cycle < 30; cycle++ {
		a := NewScheduler(table)
		b := NewScheduler(table)
		a.Begin(cycle)
		b.Begin(cycle)
		assert.DeepEqual(t, collectPorts(a), collectPorts(b))
	}
}

func TestSchedulerPeekDoesNotConsume(t *testing.T) {
	s := NewScheduler([]ScheduleEntry{{Port: 1, Multiplier: 1}, {Port: 2, Multiplier: 1}})

	s.Begin(4)
	assert.Equal(t, s.PeekPort(), uint8(1))
	assert.Equal(t, s.PeekPort(), uint8(1))
	assert.Equal(t, s.DueCount(), 2)

	assert.Equal(t, s.NextPort(), uint8(1))
	assert.Equal(t, s.PeekPort(), uint8(2))
}

func TestSchedulerBeginResets(t *testing.T) {
	s := NewScheduler([]ScheduleEntry{{Port: 1, Multiplier: 1}})

	s.Begin(1)
	s.NextPort()
	assert.Assert(t, !s.HasUplinks())

	s.Begin(2)
	assert.Assert(t, s.HasUplinks())
	assert.Equal(t, s.NextPort(), uint8(1))
}
