package sandbox

import "time"

// Stats is a point-in-time snapshot of the sandbox's resource accounting,
// for telemetry collaborators to poll.
type Stats struct {
	MemoryUsed       uint64
	MaxMemory        uint64
	FuelConsumed     uint64
	MaxFuel          uint64
	ExecutionTime    time.Duration
	MaxExecutionTime time.Duration
	ViolationCount   int
	Running          bool
}

// MemoryPercent returns memory usage as a percentage of the ceiling.
func (s Stats) MemoryPercent() float64 {
	if s.MaxMemory == 0 {
		return 0
	}
	return float64(s.MemoryUsed) / float64(s.MaxMemory) * 100
}

// FuelPercent returns fuel usage as a percentage of the ceiling. Because
// fuel is consumed before the limit check, this can read above 100 after a
// detected overshoot.
func (s Stats) FuelPercent() float64 {
	if s.MaxFuel == 0 {
		return 0
	}
	return float64(s.FuelConsumed) / float64(s.MaxFuel) * 100
}

// TimePercent returns elapsed time as a percentage of the ceiling.
func (s Stats) TimePercent() float64 {
	if s.MaxExecutionTime == 0 {
		return 0
	}
	return float64(s.ExecutionTime) / float64(s.MaxExecutionTime) * 100
}

// Stats snapshots the sandbox's counters.
func (s *Sandbox) Stats() Stats {
	elapsed, _ := s.ExecutionTime()
	return Stats{
		MemoryUsed:       s.memoryUsed,
		MaxMemory:        s.cfg.MaxMemory,
		FuelConsumed:     s.fuelConsumed,
		MaxFuel:          s.cfg.MaxFuel,
		ExecutionTime:    elapsed,
		MaxExecutionTime: s.cfg.MaxExecutionTime,
		ViolationCount:   len(s.violations),
		Running:          s.running,
	}
}
