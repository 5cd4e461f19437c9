package livesync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/rules"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("live sync manager is closed")

// Deriver turns a complaint and its predictions into alerts.
type Deriver interface {
	Derive(c domain.Complaint, preds []domain.RiskPrediction) ([]domain.Alert, error)
}

// Config holds manager settings.
type Config struct {
	// MaxConcurrent bounds in-flight prediction requests per push.
	MaxConcurrent int
	Logger        *slog.Logger
}

// Manager owns the live alert set. All state changes happen on one loop
// goroutine; prediction requests run on a bounded pool and report back
// through the same mailbox as source pushes.
type Manager struct {
	source    domain.ComplaintSource
	predictor domain.Predictor
	deriver   Deriver
	rules     *rules.Engine
	logger    *slog.Logger
	limit     int

	ctx    context.Context
	cancel context.CancelFunc

	// mailbox
	mu     sync.Mutex
	queue  []Message
	wake   chan struct{}
	closed bool

	loopDone chan struct{}
	inflight sync.WaitGroup

	// subscription management
	watchMu     sync.Mutex
	generation  uint64
	selector    *rules.Selector
	unsubscribe func()

	stateMu   sync.RWMutex
	state     State
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewManager creates a manager and starts its loop. Call Watch to begin
// receiving complaints.
func NewManager(source domain.ComplaintSource, predictor domain.Predictor, deriver Deriver, engine *rules.Engine, cfg Config) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		source:    source,
		predictor: predictor,
		deriver:   deriver,
		rules:     engine,
		logger:    cfg.Logger,
		limit:     cfg.MaxConcurrent,
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		loopDone:  make(chan struct{}),
		listeners: make(map[int]func(Snapshot)),
	}

	go m.loop()
	return m
}

// Watch (re)subscribes to the source, keeping only complaints the selector
// expression matches. Each call starts a new generation; results still in
// flight for earlier generations are discarded.
func (m *Manager) Watch(ctx context.Context, expr string) error {
	sel, err := m.compile(expr)
	if err != nil {
		return err
	}

	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if m.isClosed() {
		return ErrClosed
	}

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}

	m.generation++
	gen := m.generation
	m.selector = sel
	m.post(Subscribe{Generation: gen})

	m.logger.Info("watching complaints",
		"generation", gen,
		"selector", sel.Expression(),
	)

	unsubscribe, err := m.source.Subscribe(context.WithoutCancel(ctx), func(cs []domain.Complaint) {
		m.post(Push{Generation: gen, Complaints: m.filter(sel, cs)})
	})
	if err != nil {
		m.post(SourceFailed{Generation: gen, Err: err})
		return err
	}
	m.unsubscribe = unsubscribe
	return nil
}

// Refresh performs a one-shot read of the source into the current
// generation. On failure the error is returned and the state is untouched.
func (m *Manager) Refresh(ctx context.Context) error {
	m.watchMu.Lock()
	gen, sel := m.generation, m.selector
	m.watchMu.Unlock()

	if gen == 0 {
		return errors.New("no active subscription")
	}

	cs, err := m.source.FetchAll(ctx)
	if err != nil {
		return err
	}
	m.post(Push{Generation: gen, Complaints: m.filter(sel, cs)})
	return nil
}

// Selector returns the active selector expression.
func (m *Manager) Selector() string {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	return m.selector.Expression()
}

// Snapshot returns a copy of the current state. It reports false once the
// manager is closed.
func (m *Manager) Snapshot() (Snapshot, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	if m.state.Status == Unsubscribed {
		return Snapshot{}, false
	}
	return m.state.Snapshot(), true
}

// Subscribe registers fn to receive a snapshot after every applied change.
// fn runs on the manager loop and must not block. The returned function
// removes fn and is safe to call more than once.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.stateMu.Lock()
		defer m.stateMu.Unlock()
		delete(m.listeners, id)
	}
}

// Close tears down the subscription and stops the loop. No listener is
// called after Close returns.
func (m *Manager) Close() error {
	m.watchMu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.watchMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	close(m.wake)
	<-m.loopDone
	m.inflight.Wait()

	m.stateMu.Lock()
	m.state, _, _ = Reduce(m.state, Teardown{})
	m.listeners = make(map[int]func(Snapshot))
	m.stateMu.Unlock()

	m.logger.Info("live sync stopped")
	return nil
}

func (m *Manager) compile(expr string) (*rules.Selector, error) {
	if m.rules == nil {
		return &rules.Selector{}, nil
	}
	return m.rules.Compile(expr)
}

func (m *Manager) filter(sel *rules.Selector, cs []domain.Complaint) []domain.Complaint {
	return sel.Select(cs, func(c domain.Complaint, err error) {
		m.logger.Warn("selector failed, complaint skipped",
			"complaint_id", c.ComplaintID,
			"error", err,
		)
	})
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// post enqueues msg without blocking. Messages after Close are dropped.
func (m *Manager) post(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, msg)

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) loop() {
	defer close(m.loopDone)

	for range m.wake {
		m.mu.Lock()
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()

		changed := false
		for _, msg := range batch {
			if m.ctx.Err() != nil {
				return
			}
			if m.apply(msg) {
				changed = true
			}
		}
		if changed {
			m.notify()
		}
	}
}

func (m *Manager) apply(msg Message) bool {
	m.stateMu.RLock()
	cur := m.state
	m.stateMu.RUnlock()

	next, effects, err := Reduce(cur, msg)
	if errors.Is(err, domain.ErrStaleGeneration) {
		m.logger.Debug("discarding stale message",
			"message", messageName(msg),
			"generation", cur.Generation,
		)
		return false
	}
	if err != nil {
		m.logger.Error("failed to apply message", "error", err)
		return false
	}

	m.stateMu.Lock()
	m.state = next
	m.stateMu.Unlock()

	switch v := msg.(type) {
	case Derived:
		if v.Err != nil {
			m.logger.Warn("derivation failed, keeping last alerts",
				"complaint_id", v.ComplaintID,
				"cycle", v.Cycle,
				"error", v.Err,
			)
		}
	case SourceFailed:
		m.logger.Error("complaint source failed",
			"generation", v.Generation,
			"error", v.Err,
		)
	}

	m.run(effects)
	return true
}

// run executes derivation effects on a bounded pool. Results come back
// as Derived messages.
func (m *Manager) run(effects []Effect) {
	if len(effects) == 0 {
		return
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		var g errgroup.Group
		g.SetLimit(m.limit)
		for _, eff := range effects {
			d, ok := eff.(Derive)
			if !ok {
				continue
			}
			g.Go(func() error {
				m.post(m.derive(d))
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (m *Manager) derive(d Derive) Derived {
	out := Derived{
		Generation:  d.Generation,
		ComplaintID: d.Complaint.ComplaintID,
		Cycle:       d.Cycle,
	}

	preds, err := m.predictor.Predict(m.ctx, d.Complaint)
	if err != nil {
		out.Err = err
		return out
	}

	out.Alerts, out.Err = m.deriver.Derive(d.Complaint, preds)
	return out
}

func (m *Manager) notify() {
	m.stateMu.RLock()
	snap := m.state.Snapshot()
	fns := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.stateMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func messageName(msg Message) string {
	switch msg.(type) {
	case Subscribe:
		return "subscribe"
	case Push:
		return "push"
	case Derived:
		return "derived"
	case SourceFailed:
		return "source_failed"
	case Teardown:
		return "teardown"
	default:
		return "unknown"
	}
}
