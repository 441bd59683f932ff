package sandbox

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/caplock-dev/caplock/internal/capability"
)

// wasmMagic is the fixed module preamble: "\0asm".
var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6d}

// supportedWasmVersion is the only binary-format version accepted.
const supportedWasmVersion = 1

// ImportFunction records one host function registered into the sandbox,
// with the capabilities it requires and a call counter the host bumps via
// RecordCall.
type ImportFunction struct {
	Name         string
	Module       string
	Capabilities []capability.Capability
	CallCount    uint64
}

// QualifiedName returns "module.name".
func (f *ImportFunction) QualifiedName() string {
	return f.Module + "." + f.Name
}

// ValidationResult reports the outcome of the conservative header pre-check.
// Valid=true means the header and the gross-size estimate passed; it is not
// a security guarantee beyond those checks.
type ValidationResult struct {
	Valid          bool
	Version        uint32
	EstimatedPages uint32
	Issues         []string
}

// Option configures a Sandbox at construction time.
type Option func(*Sandbox)

// WithClock injects the wall-clock source used for start-time capture and
// violation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sandbox) {
		s.now = now
	}
}

// Sandbox governs one module execution: it validates the module header,
// meters memory, fuel and wall-clock time against its Config, gates import
// registration, and records every breach. One sandbox belongs to exactly
// one execution at a time (Reset between runs); it is not safe for
// concurrent mutation.
type Sandbox struct {
	cfg Config
	now func() time.Time

	memoryUsed   uint64
	fuelConsumed uint64
	startTime    *time.Time
	running      bool
	imports      map[string]*ImportFunction
	violations   []Violation
}

// NewSandbox builds an idle sandbox from an immutable config.
func NewSandbox(cfg Config, opts ...Option) *Sandbox {
	s := &Sandbox{
		cfg:     cfg,
		now:     time.Now,
		imports: make(map[string]*ImportFunction),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the sandbox's resource ceilings.
func (s *Sandbox) Config() Config {
	return s.cfg
}

// record appends a violation and logs it.
func (s *Sandbox) record(kind ViolationKind, description string, blocked bool) {
	s.violations = append(s.violations, Violation{
		Kind:        kind,
		Description: description,
		Timestamp:   s.now(),
		Blocked:     blocked,
	})
	slog.Warn("sandbox violation",
		"kind", kind.String(),
		"description", description,
		"blocked", blocked)
}

// ValidateModule performs the conservative pre-execution check: minimum
// length, magic preamble, binary-format version, and a gross memory
// estimate of len/65536+1 pages against MaxMemory. It does not parse the
// memory section; the estimate is a heuristic, not a guarantee.
func (s *Sandbox) ValidateModule(module []byte) (*ValidationResult, error) {
	if len(module) < 8 {
		err := newViolationError(InvalidModule, "module too short: %d bytes", len(module))
		s.record(InvalidModule, err.Description, true)
		return nil, err
	}
	if [4]byte(module[:4]) != wasmMagic {
		err := newViolationError(InvalidModule, "bad magic number: % x", module[:4])
		s.record(InvalidModule, err.Description, true)
		return nil, err
	}

	result := &ValidationResult{
		Valid:          true,
		Version:        binary.LittleEndian.Uint32(module[4:8]),
		EstimatedPages: uint32(len(module)/wasmPageSize) + 1,
	}

	if result.Version != supportedWasmVersion {
		result.Valid = false
		result.Issues = append(result.Issues, "unsupported binary format version")
		s.record(InvalidModule, "unsupported binary format version", true)
	}

	if estimated := uint64(result.EstimatedPages) * wasmPageSize; estimated > s.cfg.MaxMemory {
		result.Valid = false
		result.Issues = append(result.Issues, "estimated memory footprint exceeds limit")
		s.record(MemoryLimit, "estimated module memory exceeds limit", true)
	}

	return result, nil
}

// RegisterImport gates one host function behind the allow-list and the
// configured trust level, then records it. An allow-list miss is a logged
// violation; a missing capability is an error without a violation record
// (the import was legitimately listed, the trust tier is just too low).
// Re-registering a qualified name overwrites the previous definition.
func (s *Sandbox) RegisterImport(module, name string, required []capability.Capability) error {
	qualified := module + "." + name

	if !s.cfg.importAllowed(module, name) {
		err := newViolationError(ImportDenied, "import %s not in allow-list", qualified)
		s.record(ImportDenied, err.Description, true)
		return err
	}

	implicit := s.cfg.TrustLevel.Capabilities()
	for _, c := range required {
		if !implicit.Has(c) {
			return newViolationError(ImportDenied,
				"import %s requires capability %s beyond trust level %s",
				qualified, c, s.cfg.TrustLevel)
		}
	}

	s.imports[qualified] = &ImportFunction{
		Name:         name,
		Module:       module,
		Capabilities: required,
	}
	return nil
}

// CheckExport gates one module export against the allow-list.
func (s *Sandbox) CheckExport(name string) error {
	if s.cfg.exportAllowed(name) {
		return nil
	}
	err := newViolationError(ExportDenied, "export %s not in allow-list", name)
	s.record(ExportDenied, err.Description, true)
	return err
}

// Import returns a registered import function by qualified name.
func (s *Sandbox) Import(qualified string) (*ImportFunction, bool) {
	f, ok := s.imports[qualified]
	return f, ok
}

// Imports returns every registered import function.
func (s *Sandbox) Imports() []*ImportFunction {
	out := make([]*ImportFunction, 0, len(s.imports))
	for _, f := range s.imports {
		out = append(out, f)
	}
	return out
}

// RecordCall bumps the call counter of a registered import. It reports
// whether the qualified name was known.
func (s *Sandbox) RecordCall(module, name string) bool {
	f, ok := s.imports[module+"."+name]
	if !ok {
		return false
	}
	f.CallCount++
	return true
}

// Start begins metering wall-clock time. Starting a running sandbox is a
// hard error: silently restarting would reset the elapsed-time accounting.
// The error is a lifecycle misuse, not a *ViolationError, and nothing is
// recorded.
func (s *Sandbox) Start() error {
	if s.running {
		return errors.New("sandbox already running")
	}
	now := s.now()
	s.startTime = &now
	s.running = true
	return nil
}

// Stop ends the execution. Idempotent.
func (s *Sandbox) Stop() {
	s.running = false
}

// CheckLimits verifies elapsed time, fuel and memory against the config, in
// that order. Every breached ceiling is recorded; the first breach found is
// returned.
func (s *Sandbox) CheckLimits() error {
	var first *ViolationError

	if s.startTime != nil && s.running {
		if elapsed := s.now().Sub(*s.startTime); elapsed > s.cfg.MaxExecutionTime {
			err := newViolationError(TimeLimit,
				"execution time %v exceeds limit %v", elapsed, s.cfg.MaxExecutionTime)
			s.record(TimeLimit, err.Description, true)
			first = err
		}
	}

	if s.fuelConsumed > s.cfg.MaxFuel {
		err := newViolationError(FuelLimit,
			"fuel consumed %d exceeds limit %d", s.fuelConsumed, s.cfg.MaxFuel)
		s.record(FuelLimit, err.Description, true)
		if first == nil {
			first = err
		}
	}

	if s.memoryUsed > s.cfg.MaxMemory {
		err := newViolationError(MemoryLimit,
			"memory used %d exceeds limit %d", s.memoryUsed, s.cfg.MaxMemory)
		s.record(MemoryLimit, err.Description, true)
		if first == nil {
			first = err
		}
	}

	if first != nil {
		return first
	}
	return nil
}

// Allocate accounts bytes of linear memory. The allocation is all-or-
// nothing: a request that would cross MaxMemory is refused outright and
// recorded. The bound is checked without computing memoryUsed+bytes, which
// could wrap for a huge request.
func (s *Sandbox) Allocate(bytes uint64) error {
	if bytes > s.cfg.MaxMemory || s.memoryUsed > s.cfg.MaxMemory-bytes {
		err := newViolationError(MemoryLimit,
			"allocation of %d bytes would exceed limit %d (used %d)",
			bytes, s.cfg.MaxMemory, s.memoryUsed)
		s.record(MemoryLimit, err.Description, true)
		return err
	}
	s.memoryUsed += bytes
	return nil
}

// Free returns bytes to the accounting, saturating at zero.
func (s *Sandbox) Free(bytes uint64) {
	if bytes > s.memoryUsed {
		s.memoryUsed = 0
		return
	}
	s.memoryUsed -= bytes
}

// ConsumeFuel applies the increment first and checks limits second, so the
// counter can overshoot MaxFuel by up to one increment before the breach is
// reported. The overshoot stays visible in FuelConsumed and Stats. The
// addition saturates at the uint64 ceiling so a huge amount cannot wrap the
// counter back under MaxFuel.
func (s *Sandbox) ConsumeFuel(amount uint64) error {
	if amount > math.MaxUint64-s.fuelConsumed {
		s.fuelConsumed = math.MaxUint64
	} else {
		s.fuelConsumed += amount
	}
	return s.CheckLimits()
}

// Violations returns the accumulated violation log.
func (s *Sandbox) Violations() []Violation {
	return s.violations
}

// MemoryUsed returns the currently accounted linear memory, in bytes.
func (s *Sandbox) MemoryUsed() uint64 {
	return s.memoryUsed
}

// FuelConsumed returns the fuel spent so far.
func (s *Sandbox) FuelConsumed() uint64 {
	return s.fuelConsumed
}

// Running reports whether the sandbox is between Start and Stop.
func (s *Sandbox) Running() bool {
	return s.running
}

// ExecutionTime returns the elapsed wall-clock time since Start, or false
// if the sandbox never started.
func (s *Sandbox) ExecutionTime() (time.Duration, bool) {
	if s.startTime == nil {
		return 0, false
	}
	return s.now().Sub(*s.startTime), true
}

// Reset zeroes the runtime counters, clears the violation log and the
// running flag, and zeroes each import's call counter. The config and the
// import registrations themselves survive, so one sandbox can govern
// successive runs of the same module.
func (s *Sandbox) Reset() {
	s.memoryUsed = 0
	s.fuelConsumed = 0
	s.startTime = nil
	s.running = false
	s.violations = nil
	for _, f := range s.imports {
		f.CallCount = 0
	}
}
