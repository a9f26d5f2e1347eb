package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/helpdesk/internal/agent"
	"github.com/linnemanlabs/helpdesk/internal/enrich"
	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
	"github.com/linnemanlabs/helpdesk/internal/helpdesk/memstore"
)

// mock effectors counting invocations.
type mockMailer struct {
	calls int
	err   error
}

func (m *mockMailer) Send(_ context.Context, _ *helpdesk.Request, _ helpdesk.EnrichedView) error {
	m.calls++
	return m.err
}

type mockTasks struct {
	calls int
	err   error
}

func (m *mockTasks) Create(_ context.Context, _ *helpdesk.Request) error {
	m.calls++
	return m.err
}

type mockFlow struct {
	calls int
	err   error
}

func (m *mockFlow) Trigger(_ context.Context, _ *helpdesk.Request) error {
	m.calls++
	return m.err
}

type mockNotifier struct {
	calls int
	err   error
}

func (m *mockNotifier) Send(_ context.Context, _ helpdesk.EnrichedView, _ *helpdesk.Request) error {
	m.calls++
	return m.err
}

// fixedDecider returns a preset decision.
type fixedDecider struct {
	decision helpdesk.Decision
}

func (d *fixedDecider) Decide(_ context.Context, _ *helpdesk.Request) helpdesk.Decision {
	return d.decision
}

type fixture struct {
	pipeline *Pipeline
	store    *memstore.Store
	notifier *mockNotifier
	mail     *mockMailer
	tasks    *mockTasks
	flow     *mockFlow
}

// newFixture wires a pipeline with real enricher/decider (unconfigured, so
// deterministic) and mock effectors.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	f := &fixture{
		store:    store,
		notifier: &mockNotifier{},
		mail:     &mockMailer{},
		tasks:    &mockTasks{},
		flow:     &mockFlow{},
	}
	f.pipeline = New(
		store,
		enrich.New(nil, log.Nop(), nil),
		agent.New(nil, log.Nop(), nil),
		f.notifier,
		Effectors{Mail: f.mail, Tasks: f.tasks, Flow: f.flow},
		log.Nop(),
		nil,
	)
	return f
}

func storedRequest(t *testing.T, s *memstore.Store, hint string) *helpdesk.Request {
	t.Helper()
	r := &helpdesk.Request{
		Category:    "IT",
		ID:          "r1",
		Title:       "Disk full",
		Description: "Build server disk at 100%.",
		Priority:    "High",
		ActionHint:  hint,
	}
	if err := s.Put(context.Background(), r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return r
}

func envelopeBody(t *testing.T, category, id, hint string) []byte {
	t.Helper()
	body, err := json.Marshal(helpdesk.Envelope{
		TablePartition: category,
		TableRow:       id,
		Category:       category,
		ActionHint:     hint,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func TestProcess_UnparsableEnvelope_Abandons(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.pipeline.Process(context.Background(), []byte("not json"))
	if err == nil {
		t.Fatal("expected error for unparsable envelope")
	}
	if f.notifier.calls != 0 || f.mail.calls != 0 || f.tasks.calls != 0 || f.flow.calls != 0 {
		t.Error("no stage should run for an unparsable envelope")
	}
}

func TestProcess_MissingRecord_AcksWithoutEffectors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.pipeline.Process(context.Background(), envelopeBody(t, "IT", "does-not-exist", ""))
	if err != nil {
		t.Fatalf("Process = %v, want nil (terminal-missing is acknowledged)", err)
	}
	if f.notifier.calls != 0 {
		t.Errorf("notifier calls = %d, want 0", f.notifier.calls)
	}
	if f.mail.calls+f.tasks.calls+f.flow.calls != 0 {
		t.Error("no effector should run when the record is missing")
	}
}

func TestProcess_EmptyKeys_AcksWithoutEffectors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.pipeline.Process(context.Background(), []byte(`{"title":"stray"}`))
	if err != nil {
		t.Fatalf("Process = %v, want nil", err)
	}
	if f.mail.calls+f.tasks.calls+f.flow.calls != 0 {
		t.Error("no effector should run without partition and row keys")
	}
}

func TestProcess_StoreError_TreatedAsMissing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pipeline.store = &failingStore{err: errors.New("store unreachable")}

	err := f.pipeline.Process(context.Background(), envelopeBody(t, "IT", "r1", ""))
	if err != nil {
		t.Fatalf("Process = %v, want nil (store errors ack as missing)", err)
	}
	if f.mail.calls+f.tasks.calls+f.flow.calls != 0 {
		t.Error("no effector should run on store error")
	}
}

type failingStore struct{ err error }

func (s *failingStore) Get(_ context.Context, _, _ string) (*helpdesk.Request, bool, error) {
	return nil, false, s.err
}
func (s *failingStore) Put(_ context.Context, _ *helpdesk.Request) error { return s.err }

func TestProcess_HintRouting_TaskBoardOnce(t *testing.T) {
	t.Parallel()

	// Model unconfigured: the create-task hint must route to the task
	// board exactly once, no other effector.
	f := newFixture(t)
	storedRequest(t, f.store, "create-task")

	err := f.pipeline.Process(context.Background(), envelopeBody(t, "IT", "r1", "create-task"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if f.tasks.calls != 1 {
		t.Errorf("taskboard calls = %d, want 1", f.tasks.calls)
	}
	if f.mail.calls != 0 {
		t.Errorf("email calls = %d, want 0", f.mail.calls)
	}
	if f.flow.calls != 0 {
		t.Errorf("workflow calls = %d, want 0", f.flow.calls)
	}
	if f.notifier.calls != 1 {
		t.Errorf("notifier calls = %d, want 1", f.notifier.calls)
	}
}

func TestProcess_NotifierFailure_Continues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.notifier.err = errors.New("webhook down")
	storedRequest(t, f.store, "create-ticket")

	err := f.pipeline.Process(context.Background(), envelopeBody(t, "IT", "r1", "create-ticket"))
	if err != nil {
		t.Fatalf("Process = %v, want nil despite notifier failure", err)
	}
	if f.flow.calls != 1 {
		t.Errorf("workflow calls = %d, want 1 (pipeline must continue)", f.flow.calls)
	}
}

func TestProcess_EffectorFailure_StillAcks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mail.err = errors.New("mail api 500")
	storedRequest(t, f.store, "notify-team")

	err := f.pipeline.Process(context.Background(), envelopeBody(t, "IT", "r1", "notify-team"))
	if err != nil {
		t.Fatalf("Process = %v, want nil despite effector failure", err)
	}
	if f.mail.calls != 1 {
		t.Errorf("email calls = %d, want 1", f.mail.calls)
	}
}

func TestDispatch_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action    helpdesk.Action
		wantMail  int
		wantTasks int
		wantFlow  int
	}{
		{helpdesk.ActionNotifyTeam, 1, 0, 0},
		{helpdesk.ActionCreateTask, 0, 1, 0},
		{helpdesk.ActionCreateTicket, 0, 0, 1},
		{helpdesk.ActionStoreOnly, 0, 0, 0},
		{helpdesk.Action("summon-wizard"), 0, 0, 0},
		{helpdesk.Action(""), 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			storedRequest(t, f.store, string(tt.action))
			f.pipeline.decider = &fixedDecider{decision: helpdesk.Decision{Action: tt.action, Source: helpdesk.SourceModel}}

			err := f.pipeline.Process(context.Background(), envelopeBody(t, "IT", "r1", ""))
			if err != nil {
				t.Fatalf("Process: %v", err)
			}

			if f.mail.calls != tt.wantMail {
				t.Errorf("email calls = %d, want %d", f.mail.calls, tt.wantMail)
			}
			if f.tasks.calls != tt.wantTasks {
				t.Errorf("taskboard calls = %d, want %d", f.tasks.calls, tt.wantTasks)
			}
			if f.flow.calls != tt.wantFlow {
				t.Errorf("workflow calls = %d, want %d", f.flow.calls, tt.wantFlow)
			}
		})
	}
}

type panickyMailer struct{}

func (panickyMailer) Send(_ context.Context, _ *helpdesk.Request, _ helpdesk.EnrichedView) error {
	panic("mailer exploded")
}

func TestDispatch_EffectorPanic_DoesNotEscape(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pipeline.effectors.Mail = panickyMailer{}
	storedRequest(t, f.store, "notify-team")

	err := f.pipeline.Process(context.Background(), envelopeBody(t, "IT", "r1", "notify-team"))
	if err != nil {
		t.Fatalf("Process = %v, want nil despite effector panic", err)
	}
}

func TestProcess_NilNotifier(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	req := &helpdesk.Request{Category: "it-support", ID: "r1", Title: "vpn down", Priority: "Normal"}
	if err := store.Put(context.Background(), req); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	mail := &mockMailer{}
	p := New(store, enrich.New(nil, log.Nop(), nil), agent.New(nil, log.Nop(), nil), nil,
		Effectors{Mail: mail, Tasks: &mockTasks{}, Flow: &mockFlow{}}, nil, nil)

	body, _ := json.Marshal(helpdesk.NewEnvelope(req))
	if err := p.Process(context.Background(), body); err != nil {
		t.Fatalf("Process with nil notifier = %v, want nil", err)
	}
	if mail.calls != 1 {
		t.Errorf("mail calls = %d, want 1 (notify-team fallback)", mail.calls)
	}
}

func TestProcess_UnknownActionClampedInMetrics(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	req := &helpdesk.Request{Category: "it-support", ID: "r1", Title: "vpn down", Priority: "Normal"}
	if err := store.Put(context.Background(), req); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	metrics := helpdesk.NewMetrics(prometheus.NewRegistry())
	decider := &fixedDecider{decision: helpdesk.Decision{Action: "summon-wizard", Source: helpdesk.SourceModel}}
	p := New(store, enrich.New(nil, log.Nop(), nil), decider, &mockNotifier{},
		Effectors{Mail: &mockMailer{}, Tasks: &mockTasks{}, Flow: &mockFlow{}}, nil, metrics)

	body, _ := json.Marshal(helpdesk.NewEnvelope(req))
	if err := p.Process(context.Background(), body); err != nil {
		t.Fatalf("Process = %v, want nil", err)
	}

	if got := testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues("other", "model")); got != 1 {
		t.Errorf("decisions{other,model} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues("summon-wizard", "model")); got != 0 {
		t.Errorf("decisions{summon-wizard,model} = %v, want 0 (label must be clamped)", got)
	}
}
