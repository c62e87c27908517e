// Package inference owns the pool of transformer sessions and the permit
// gate that bounds how many of them may run concurrently. It is the
// resource manager spec.md §4.1 calls C1: every bi-encoder and
// cross-encoder call is a lease borrowed from a Manager.
//
// The transformer kernel itself — "run(session, inputs) → logits" — is
// treated as an opaque function (spec.md §1): Manager only knows how to
// hand a [Runner] out and take it back. Production builds plug in a real
// ONNX- or similar-backed Runner per session; this package never imports
// a model runtime.
package inference

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/dannyavrs/encapure/encerr"
)

// Inputs are the token-level tensors a Runner consumes, shaped
// (batch, seqLen). All three slices have the same outer and inner
// dimensions.
type Inputs struct {
	InputIDs      [][]int64
	AttentionMask [][]int64
	TokenTypeIDs  [][]int64
}

// Outputs is the raw tensor a Runner produces. Values is row-major over
// Shape; callers (bi-encoder, cross-encoder) know how to interpret it —
// Manager never inspects the contents.
type Outputs struct {
	Shape  []int
	Values []float32
}

// Runner executes one inference call on a bound transformer graph. It is
// the opaque "run(session, inputs) → logits" function from spec.md §1.
type Runner interface {
	Run(ctx context.Context, in Inputs) (Outputs, error)
}

// Session is one transformer graph instance bound to a set of worker
// threads (spec.md §3). Sessions are not moved between requests after
// acquisition completes; the Manager serializes access externally.
type Session interface {
	Runner
	// Close releases any native resources held by the session.
	Close() error
}

// SessionFactory constructs one Session bound to threads intra-op
// threads. Supplied by the caller (biencoder/crossencoder engine setup);
// Manager never knows how a session is built.
type SessionFactory func(intraOpThreads int) (Session, error)

// Preset names the three configuration dials spec.md §4.1 recognizes.
type Preset string

const (
	PresetSingleRequest  Preset = "single-request"
	PresetHighThroughput Preset = "high-throughput"
	PresetCustom         Preset = "custom"
)

// Config configures a Manager: number of sessions S, number of permits P,
// and per-session intra-op threads T (spec.md §4.1).
type Config struct {
	Sessions       int
	Permits        int
	IntraOpThreads int
	// MaxConsecutiveFailures is the number of consecutive failed
	// inferences on one session before it is removed from the free set
	// (spec.md §4.1 "Failure semantics"). Default 3.
	MaxConsecutiveFailures int
}

// ResolvePreset fills in S/P/T for the three recognized presets
// (spec.md §4.1 table). cores is the physical core count used for the
// "all cores" / "≈ C/P" defaults; pass runtime.NumCPU() in production.
func ResolvePreset(preset Preset, cores int, custom Config) Config {
	switch preset {
	case PresetSingleRequest:
		return Config{Sessions: 1, Permits: 1, IntraOpThreads: cores, MaxConsecutiveFailures: 3}
	case PresetHighThroughput:
		t := cores / 6
		if t < 1 {
			t = 1
		}
		return Config{Sessions: 10, Permits: 6, IntraOpThreads: t, MaxConsecutiveFailures: 3}
	default:
		if custom.MaxConsecutiveFailures == 0 {
			custom.MaxConsecutiveFailures = 3
		}
		return custom
	}
}

// Manager lends a (session, permit) pair to each inference and enforces
// the P×T≤C thread budget (spec.md §5). It is a process-lifetime
// singleton: constructed once at startup, released at shutdown.
type Manager struct {
	cfg         Config
	logger      *slog.Logger
	gate        *semaphore.Weighted
	freePermits atomic.Int64
	free        chan int // lock-free-ish free-slot queue of session indices
	slots       []sessionSlot
	ready       atomic.Bool
	mu          sync.Mutex // guards failure bookkeeping only
}

type sessionSlot struct {
	session  Session
	failures int
	retired  bool
}

// New builds a Manager, constructing S sessions via factory and
// initializing a permit gate of capacity P. It does not warm up or mark
// the pool ready — call Warmup for that.
//
// Per spec.md §4.1 "custom" preset: a configuration that would
// oversubscribe the machine (P×T>C) is honored, not rejected; New only
// logs a warning.
func New(cfg Config, cores int, factory SessionFactory, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sessions < cfg.Permits {
		return nil, encerr.Resourcef(nil, "inference: pool size S=%d must be >= permits P=%d", cfg.Sessions, cfg.Permits)
	}
	if budget := cfg.Permits * cfg.IntraOpThreads; budget > cores {
		logger.Warn("inference: permits × intra-op threads exceeds physical cores, oversubscribing",
			"permits", cfg.Permits, "intra_op_threads", cfg.IntraOpThreads, "cores", cores, "budget", budget)
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		gate:   semaphore.NewWeighted(int64(cfg.Permits)),
		free:   make(chan int, cfg.Sessions),
		slots:  make([]sessionSlot, cfg.Sessions),
	}
	m.freePermits.Store(int64(cfg.Permits))

	for i := 0; i < cfg.Sessions; i++ {
		sess, err := factory(cfg.IntraOpThreads)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = m.slots[j].session.Close()
			}
			return nil, encerr.Modelf(err, "inference: failed to build session %d", i)
		}
		m.slots[i].session = sess
		m.free <- i
	}

	return m, nil
}

// Lease is a borrowed (session, permit) pair. Callers must call Release
// exactly once, including on cancellation/timeout unwind (spec.md §5).
type Lease struct {
	idx     int
	Session Session
}

// Acquire blocks (suspending at an I/O-like boundary, not inside any CPU
// work) until both a permit and a session are available, or ctx is
// cancelled. Waiters are served FIFO by the underlying semaphore.
//
// Cancellation while waiting releases nothing — no permit is ever taken
// (spec.md §4.1 "Permit semantics").
func (m *Manager) Acquire(ctx context.Context) (Lease, error) {
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return Lease{}, encerr.Resourcef(err, "inference: timed out waiting for a permit")
	}
	m.freePermits.Add(-1)

	select {
	case idx := <-m.free:
		return Lease{idx: idx, Session: m.slots[idx].session}, nil
	case <-ctx.Done():
		// Release the permit we already hold — never leak it on
		// cancellation while holding a permit but no session yet.
		m.gate.Release(1)
		m.freePermits.Add(1)
		return Lease{}, encerr.Resourcef(ctx.Err(), "inference: timed out waiting for a session")
	}
}

// Release returns both the session and the permit to the pool. success
// reports whether the inference that held the lease completed without
// error; consecutive failures retire a session from the free set
// (spec.md §4.1 "Failure semantics").
func (m *Manager) Release(lease Lease, success bool) {
	m.mu.Lock()
	slot := &m.slots[lease.idx]
	if success {
		slot.failures = 0
	} else {
		slot.failures++
		if slot.failures >= m.cfg.MaxConsecutiveFailures {
			slot.retired = true
			m.logger.Error("inference: retiring session after consecutive failures",
				"session", lease.idx, "failures", slot.failures)
		}
	}
	retired := slot.retired
	m.mu.Unlock()

	if !retired {
		m.free <- lease.idx
	}
	m.gate.Release(1)
	m.freePermits.Add(1)
}

// Execute runs one inference through a freshly acquired lease, releasing
// it (and recording success/failure) before returning. This is the
// common path biencoder/crossencoder engines use instead of calling
// Acquire/Release directly.
func (m *Manager) Execute(ctx context.Context, in Inputs) (Outputs, error) {
	lease, err := m.Acquire(ctx)
	if err != nil {
		return Outputs{}, err
	}

	out, err := lease.Session.Run(ctx, in)
	m.Release(lease, err == nil)
	if err != nil {
		return Outputs{}, encerr.Modelf(err, "inference: session %d run failed", lease.idx)
	}
	return out, nil
}

// Warmup runs one dummy inference through every session, discarding the
// result, so lazy graph optimizations complete before Ready is set
// (spec.md §4.1 "Warmup"). Warmup failures are fatal at startup
// (spec.md §7).
func (m *Manager) Warmup(ctx context.Context, dummy Inputs) error {
	for i := range m.slots {
		if _, err := m.slots[i].session.Run(ctx, dummy); err != nil {
			return encerr.Modelf(err, "inference: warmup failed on session %d", i)
		}
	}
	m.ready.Store(true)
	return nil
}

// Ready reports whether Warmup has completed successfully.
func (m *Manager) Ready() bool { return m.ready.Load() }

// FreeSessions returns the number of sessions currently idle in the free
// queue — an observability gauge that makes the P×T≤C invariant
// (spec.md §5) directly measurable.
func (m *Manager) FreeSessions() int { return len(m.free) }

// FreePermits returns the number of permits not currently held. Exact —
// Manager tracks it with its own counter alongside every Acquire/Release,
// since semaphore.Weighted does not expose remaining capacity.
func (m *Manager) FreePermits() int { return int(m.freePermits.Load()) }

// Close releases every session. Call once during graceful shutdown.
func (m *Manager) Close() error {
	var firstErr error
	for i := range m.slots {
		if err := m.slots[i].session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NumCPU is the default physical-core probe used by the single-request
// and high-throughput presets. Exposed as a variable so tests can pin it.
var NumCPU = runtime.NumCPU
