package livesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/cipher/internal/derive"
	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/rules"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSource lets a test push complaint sets by hand.
type fakeSource struct {
	mu           sync.Mutex
	onUpdate     func([]domain.Complaint)
	subscribes   int
	unsubscribes atomic.Int32
	fetch        []domain.Complaint
	fetchErr     error
	subErr       error
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]domain.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetch, f.fetchErr
}

func (f *fakeSource) Subscribe(ctx context.Context, onUpdate func([]domain.Complaint)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.onUpdate = onUpdate
	f.subscribes++

	var once sync.Once
	return func() {
		once.Do(func() { f.unsubscribes.Add(1) })
	}, nil
}

func (f *fakeSource) push(cs ...domain.Complaint) {
	f.mu.Lock()
	fn := f.onUpdate
	f.mu.Unlock()
	fn(cs)
}

// fakePredictor returns one prediction per complaint, optionally waiting
// for a release signal keyed by complaint id and urgency.
type fakePredictor struct {
	mu    sync.Mutex
	gates map[float64]chan struct{}
	fail  map[string]error
	calls atomic.Int32
}

func (p *fakePredictor) gate(urgency float64) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gates == nil {
		p.gates = map[float64]chan struct{}{}
	}
	ch, ok := p.gates[urgency]
	if !ok {
		ch = make(chan struct{})
		p.gates[urgency] = ch
	}
	return ch
}

func (p *fakePredictor) Predict(ctx context.Context, c domain.Complaint) ([]domain.RiskPrediction, error) {
	p.calls.Add(1)

	p.mu.Lock()
	ch := p.gates[c.UrgencyScore]
	err := p.fail[c.ComplaintID]
	p.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	atm := "ATM-" + c.ComplaintID
	if c.UrgencyScore > 0 {
		atm += "-hot"
	}
	return []domain.RiskPrediction{{
		ATMID:         domain.ATMID(atm),
		Rank:          1,
		RiskScoreNorm: 0.93,
		Lat:           13.06,
		Lon:           80.26,
	}}, nil
}

func newTestManager(t *testing.T, src *fakeSource, pred *fakePredictor) *Manager {
	t.Helper()
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("rules engine: %v", err)
	}
	m := NewManager(src, pred, derive.NewEngine("UTC"), engine, Config{MaxConcurrent: 2, Logger: quiet})
	t.Cleanup(func() { m.Close() })
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func alertIDs(m *Manager) []string {
	snap, ok := m.Snapshot()
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(snap.Alerts))
	for _, a := range snap.Alerts {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestManagerSync(t *testing.T) {
	src := &fakeSource{}
	pred := &fakePredictor{}
	m := newTestManager(t, src, pred)

	var notified atomic.Int32
	cancel := m.Subscribe(func(Snapshot) { notified.Add(1) })
	defer cancel()

	if err := m.Watch(context.Background(), ""); err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	src.push(complaint("CMP-1", 0), complaint("CMP-2", time.Minute))

	waitFor(t, func() bool { return len(alertIDs(m)) == 2 })

	ids := alertIDs(m)
	if ids[0] != "CMP-2-ATM-CMP-2" || ids[1] != "CMP-1-ATM-CMP-1" {
		t.Errorf("unexpected alert order %v", ids)
	}

	snap, _ := m.Snapshot()
	if snap.Status != Synced {
		t.Errorf("expected synced, got %s", snap.Status)
	}
	if snap.Alerts[0].Priority != domain.SeverityVeryCritical {
		t.Errorf("expected very critical, got %s", snap.Alerts[0].Priority)
	}
	if notified.Load() == 0 {
		t.Error("expected listener notifications")
	}

	src.push(complaint("CMP-2", time.Minute))
	waitFor(t, func() bool { return len(alertIDs(m)) == 1 })
	if pred.calls.Load() != 2 {
		t.Errorf("unchanged complaint should not be re-predicted, got %d calls", pred.calls.Load())
	}
}

func TestManagerDiscardsStaleGeneration(t *testing.T) {
	src := &fakeSource{}
	pred := &fakePredictor{}
	slow := pred.gate(0.1)
	m := newTestManager(t, src, pred)

	if err := m.Watch(context.Background(), ""); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	old := complaint("CMP-1", 0)
	old.UrgencyScore = 0.1
	src.push(old)

	// Restart the channel while generation 1's prediction is still blocked.
	waitFor(t, func() bool { return pred.calls.Load() == 1 })
	if err := m.Watch(context.Background(), ""); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	fresh := complaint("CMP-1", 0)
	fresh.UrgencyScore = 0.2
	src.push(fresh)

	waitFor(t, func() bool {
		ids := alertIDs(m)
		return len(ids) == 1 && ids[0] == "CMP-1-ATM-CMP-1-hot"
	})

	close(slow)
	time.Sleep(50 * time.Millisecond)

	snap, _ := m.Snapshot()
	if snap.Generation != 2 {
		t.Errorf("expected generation 2, got %d", snap.Generation)
	}
	if len(snap.Alerts) != 1 || snap.Complaints[0].UrgencyScore != 0.2 {
		t.Errorf("stale result overwrote state: %+v", snap)
	}
	if src.unsubscribes.Load() != 1 {
		t.Errorf("expected previous subscription to be cancelled once, got %d", src.unsubscribes.Load())
	}
}

func TestManagerSelector(t *testing.T) {
	src := &fakeSource{}
	m := newTestManager(t, src, &fakePredictor{})

	if err := m.Watch(context.Background(), "not valid !!!"); err == nil {
		t.Fatal("expected compile error")
	}

	if err := m.Watch(context.Background(), `fraud_type == "Vishing"`); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if m.Selector() != `fraud_type == "Vishing"` {
		t.Errorf("unexpected selector %q", m.Selector())
	}

	vishing := complaint("CMP-V", 0)
	vishing.FraudType = "Vishing"
	src.push(complaint("CMP-P", 0), vishing)

	waitFor(t, func() bool { return len(alertIDs(m)) == 1 })
	snap, _ := m.Snapshot()
	if snap.Complaints[0].ComplaintID != "CMP-V" {
		t.Errorf("expected only CMP-V, got %+v", snap.Complaints)
	}
}

func TestManagerFailedDerivation(t *testing.T) {
	src := &fakeSource{}
	pred := &fakePredictor{}
	m := newTestManager(t, src, pred)

	if err := m.Watch(context.Background(), ""); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	src.push(complaint("CMP-1", 0))
	waitFor(t, func() bool { return len(alertIDs(m)) == 1 })

	pred.mu.Lock()
	pred.fail = map[string]error{"CMP-1": &domain.TransportError{Op: "atm hotspots", StatusCode: 502}}
	pred.mu.Unlock()

	changed := complaint("CMP-1", 0)
	changed.Status = "Investigating"
	src.push(changed)

	waitFor(t, func() bool {
		snap, _ := m.Snapshot()
		return snap.Errors["CMP-1"] != ""
	})
	if ids := alertIDs(m); len(ids) != 1 {
		t.Errorf("expected last good alert kept, got %v", ids)
	}
}

func TestManagerRefresh(t *testing.T) {
	src := &fakeSource{}
	m := newTestManager(t, src, &fakePredictor{})

	if err := m.Refresh(context.Background()); err == nil {
		t.Error("expected error without an active subscription")
	}

	if err := m.Watch(context.Background(), ""); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	src.push(complaint("CMP-1", 0))
	waitFor(t, func() bool { return len(alertIDs(m)) == 1 })

	src.mu.Lock()
	src.fetchErr = &domain.TransportError{Op: "list complaints", Err: errors.New("refused")}
	src.mu.Unlock()

	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if ids := alertIDs(m); len(ids) != 1 {
		t.Errorf("failed refresh changed state: %v", ids)
	}

	src.mu.Lock()
	src.fetchErr = nil
	src.fetch = []domain.Complaint{complaint("CMP-1", 0), complaint("CMP-2", time.Hour)}
	src.mu.Unlock()

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	waitFor(t, func() bool { return len(alertIDs(m)) == 2 })
}

func TestManagerSubscribeError(t *testing.T) {
	src := &fakeSource{subErr: errors.New("store offline")}
	m := newTestManager(t, src, &fakePredictor{})

	if err := m.Watch(context.Background(), ""); err == nil {
		t.Fatal("expected subscribe error")
	}
	waitFor(t, func() bool {
		snap, _ := m.Snapshot()
		return snap.Status == Error
	})
}

func TestManagerClose(t *testing.T) {
	src := &fakeSource{}
	m := newTestManager(t, src, &fakePredictor{})

	var after atomic.Int32
	var closed atomic.Bool
	m.Subscribe(func(Snapshot) {
		if closed.Load() {
			after.Add(1)
		}
	})

	if err := m.Watch(context.Background(), ""); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	src.push(complaint("CMP-1", 0))
	waitFor(t, func() bool { return len(alertIDs(m)) == 1 })

	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	closed.Store(true)

	if err := m.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
	if _, ok := m.Snapshot(); ok {
		t.Error("snapshot should report false after close")
	}
	if src.unsubscribes.Load() != 1 {
		t.Errorf("expected one unsubscribe, got %d", src.unsubscribes.Load())
	}

	src.push(complaint("CMP-2", 0))
	time.Sleep(30 * time.Millisecond)
	if after.Load() != 0 {
		t.Error("listener called after close")
	}
	if err := m.Watch(context.Background(), ""); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
