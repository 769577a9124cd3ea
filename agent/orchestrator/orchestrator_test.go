package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/saralytics/saralytics/agent/contract"
)

type appendRecord struct {
	sessionID string
	turns     []contract.Turn
}

type fakeStore struct {
	history   []contract.Turn
	listErr   error
	appendErr error
	appends   []appendRecord
}

func (f *fakeStore) List(ctx context.Context, sessionID string) ([]contract.Turn, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]contract.Turn, len(f.history))
	copy(out, f.history)
	return out, nil
}

func (f *fakeStore) Append(ctx context.Context, sessionID string, turns ...contract.Turn) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, appendRecord{sessionID: sessionID, turns: turns})
	f.history = append(f.history, turns...)
	return nil
}

type fakeRouter struct {
	decision contract.RoutingDecision
	err      error

	lastQuery   string
	lastHistory []contract.Turn
}

func (f *fakeRouter) Route(ctx context.Context, query string, history []contract.Turn) (contract.RoutingDecision, error) {
	f.lastQuery = query
	f.lastHistory = history
	if f.err != nil {
		return contract.RoutingDecision{}, f.err
	}
	return f.decision, nil
}

type fakeSpecialist struct {
	id     contract.SpecialistID
	deltas []string
	resp   contract.AgentResponse
	err    error
	hook   func(ctx context.Context, emit contract.EmitFunc) error

	calls       int
	lastHistory []contract.Turn
}

func (f *fakeSpecialist) ID() contract.SpecialistID { return f.id }

func (f *fakeSpecialist) Respond(ctx context.Context, query string, history []contract.Turn, emit contract.EmitFunc) (contract.AgentResponse, error) {
	f.calls++
	f.lastHistory = history
	if f.hook != nil {
		if err := f.hook(ctx, emit); err != nil {
			return contract.AgentResponse{}, err
		}
	}
	for _, d := range f.deltas {
		if emit != nil {
			if err := emit(d); err != nil {
				return contract.AgentResponse{}, err
			}
		}
	}
	if f.err != nil {
		return contract.AgentResponse{}, f.err
	}
	resp := f.resp
	resp.Specialist = f.id
	if resp.Text == "" {
		resp.Text = strings.Join(f.deltas, "")
	}
	return resp, nil
}

type fakeRegistry struct {
	router contract.Router
	specs  map[contract.SpecialistID]contract.Specialist
}

func (f *fakeRegistry) Router() contract.Router { return f.router }

func (f *fakeRegistry) Specialist(id contract.SpecialistID) (contract.Specialist, bool) {
	s, ok := f.specs[id]
	return s, ok
}

func readAll(t *testing.T, reader *schema.StreamReader[contract.Fragment]) []contract.Fragment {
	t.Helper()
	defer reader.Close()

	var out []contract.Fragment
	for {
		frag, err := reader.Recv()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		out = append(out, frag)
	}
}

func newTestOrchestrator(t *testing.T, store contract.SessionStore, registry contract.Registry, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(store, registry, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestHandleTurnStreamsAndPersists(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	sales := &fakeSpecialist{id: contract.SpecialistSales, deltas: []string{"Classic Widget ", "leads sales."}}
	registry := &fakeRegistry{
		router: &fakeRouter{decision: contract.RoutingDecision{Specialist: contract.SpecialistSales}},
		specs:  map[contract.SpecialistID]contract.Specialist{contract.SpecialistSales: sales},
	}
	o := newTestOrchestrator(t, store, registry, Config{})

	reader, err := o.HandleTurn(context.Background(), "s1", "what sells best?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	frags := readAll(t, reader)

	if len(frags) != 3 {
		t.Fatalf("expected 2 text + 1 done fragment, got %#v", frags)
	}
	for _, f := range frags[:2] {
		if f.Kind != contract.FragmentText || f.Specialist != contract.SpecialistSales {
			t.Fatalf("unexpected text fragment: %#v", f)
		}
	}
	done := frags[2]
	if done.Kind != contract.FragmentDone || done.Specialist != contract.SpecialistSales || done.Degraded {
		t.Fatalf("unexpected done fragment: %#v", done)
	}

	if len(store.appends) != 1 {
		t.Fatalf("expected exactly 1 append, got %d", len(store.appends))
	}
	turns := store.appends[0].turns
	if len(turns) != 2 {
		t.Fatalf("expected user+agent pair in one append, got %d turns", len(turns))
	}
	if turns[0].Role != contract.RoleUser || turns[0].Content != "what sells best?" {
		t.Fatalf("unexpected user turn: %#v", turns[0])
	}
	if turns[1].Role != contract.RoleAgent || turns[1].Content != "Classic Widget leads sales." {
		t.Fatalf("unexpected agent turn: %#v", turns[1])
	}
	if turns[1].Specialist != contract.SpecialistSales {
		t.Fatalf("agent turn missing specialist attribution: %#v", turns[1])
	}
	if turns[0].ID == "" || turns[0].ID == turns[1].ID {
		t.Fatalf("turn ids must be unique and non-empty: %q / %q", turns[0].ID, turns[1].ID)
	}
}

func TestHandleTurnRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{router: &fakeRouter{}, specs: map[contract.SpecialistID]contract.Specialist{}}
	o := newTestOrchestrator(t, &fakeStore{}, registry, Config{})

	if _, err := o.HandleTurn(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected error for empty session id")
	}
	if _, err := o.HandleTurn(context.Background(), "s1", "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestHandleTurnUnroutableAsksForClarification(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	registry := &fakeRegistry{
		router: &fakeRouter{err: fmt.Errorf("%w: classifier chose none", contract.ErrUnroutableQuery)},
		specs:  map[contract.SpecialistID]contract.Specialist{},
	}
	o := newTestOrchestrator(t, store, registry, Config{})

	reader, err := o.HandleTurn(context.Background(), "s1", "tell me a joke")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	frags := readAll(t, reader)

	if len(frags) != 2 || frags[0].Kind != contract.FragmentText || frags[1].Kind != contract.FragmentDone {
		t.Fatalf("expected clarification text + done, got %#v", frags)
	}
	if !strings.Contains(frags[0].Text, "rephrase") {
		t.Fatalf("expected a clarification request, got %q", frags[0].Text)
	}

	// The exchange is still recorded so a rephrased follow-up has context.
	if len(store.appends) != 1 || len(store.appends[0].turns) != 2 {
		t.Fatalf("clarification exchange not persisted: %#v", store.appends)
	}
	if store.appends[0].turns[1].Specialist != "" {
		t.Fatalf("clarification turn must not claim a specialist: %#v", store.appends[0].turns[1])
	}
}

func TestHandleTurnFallbackSpecialist(t *testing.T) {
	t.Parallel()

	for _, routeErr := range []error{
		fmt.Errorf("%w: classifier chose marketing", contract.ErrUnroutableQuery),
		fmt.Errorf("%w: upstream timeout", contract.ErrRoutingUnavailable),
	} {
		store := &fakeStore{}
		sales := &fakeSpecialist{id: contract.SpecialistSales, deltas: []string{"Here is a general sales view."}}
		registry := &fakeRegistry{
			router: &fakeRouter{err: routeErr},
			specs:  map[contract.SpecialistID]contract.Specialist{contract.SpecialistSales: sales},
		}
		o := newTestOrchestrator(t, store, registry, Config{FallbackSpecialist: contract.SpecialistSales})

		reader, err := o.HandleTurn(context.Background(), "s1", "hmm")
		if err != nil {
			t.Fatalf("HandleTurn() error = %v", err)
		}
		frags := readAll(t, reader)

		last := frags[len(frags)-1]
		if last.Kind != contract.FragmentDone || last.Specialist != contract.SpecialistSales {
			t.Fatalf("route error %v: expected fallback done fragment, got %#v", routeErr, last)
		}
		if sales.calls != 1 {
			t.Fatalf("route error %v: fallback specialist not invoked", routeErr)
		}
	}
}

func TestHandleTurnRoutingUnavailableWithoutFallback(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	registry := &fakeRegistry{
		router: &fakeRouter{err: fmt.Errorf("%w: upstream timeout", contract.ErrRoutingUnavailable)},
		specs:  map[contract.SpecialistID]contract.Specialist{},
	}
	o := newTestOrchestrator(t, store, registry, Config{})

	reader, err := o.HandleTurn(context.Background(), "s1", "top sellers?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	frags := readAll(t, reader)

	if len(frags) != 1 || frags[0].Kind != contract.FragmentError {
		t.Fatalf("expected single error fragment, got %#v", frags)
	}
	if frags[0].ErrKind != "routing_unavailable" {
		t.Fatalf("unexpected error kind: %q", frags[0].ErrKind)
	}
	if len(store.appends) != 0 {
		t.Fatalf("failed turn must not be persisted: %#v", store.appends)
	}
}

func TestHandleTurnSpecialistFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	sales := &fakeSpecialist{
		id:  contract.SpecialistSales,
		err: fmt.Errorf("%w: connection refused", contract.ErrSourceUnavailable),
	}
	registry := &fakeRegistry{
		router: &fakeRouter{decision: contract.RoutingDecision{Specialist: contract.SpecialistSales}},
		specs:  map[contract.SpecialistID]contract.Specialist{contract.SpecialistSales: sales},
	}
	o := newTestOrchestrator(t, store, registry, Config{})

	reader, err := o.HandleTurn(context.Background(), "s1", "top sellers?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	frags := readAll(t, reader)

	last := frags[len(frags)-1]
	if last.Kind != contract.FragmentError || last.ErrKind != "source_unavailable" {
		t.Fatalf("expected source_unavailable error fragment, got %#v", last)
	}
	if len(store.appends) != 0 {
		t.Fatalf("failed turn must not be persisted: %#v", store.appends)
	}
}

func TestHandleTurnCancelledMidStreamPersistsNothing(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	sales := &fakeSpecialist{
		id: contract.SpecialistSales,
		hook: func(ctx context.Context, emit contract.EmitFunc) error {
			if err := emit("partial "); err != nil {
				return err
			}
			cancel()
			return ctx.Err()
		},
	}
	registry := &fakeRegistry{
		router: &fakeRouter{decision: contract.RoutingDecision{Specialist: contract.SpecialistSales}},
		specs:  map[contract.SpecialistID]contract.Specialist{contract.SpecialistSales: sales},
	}
	o := newTestOrchestrator(t, store, registry, Config{})

	reader, err := o.HandleTurn(ctx, "s1", "top sellers?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	// Drain until the writer side closes; only the partial text may appear.
	for {
		frag, err := reader.Recv()
		if err != nil {
			break
		}
		if frag.Kind != contract.FragmentText {
			t.Fatalf("cancelled turn must not produce a terminal fragment, got %#v", frag)
		}
	}
	reader.Close()

	if len(store.appends) != 0 {
		t.Fatalf("cancelled turn must not be persisted: %#v", store.appends)
	}
}

func TestHandleTurnAppendFailureSurfaces(t *testing.T) {
	t.Parallel()

	store := &fakeStore{appendErr: fmt.Errorf("%w: wrongtype", contract.ErrSessionStoreConflict)}
	sales := &fakeSpecialist{id: contract.SpecialistSales, deltas: []string{"answer"}}
	registry := &fakeRegistry{
		router: &fakeRouter{decision: contract.RoutingDecision{Specialist: contract.SpecialistSales}},
		specs:  map[contract.SpecialistID]contract.Specialist{contract.SpecialistSales: sales},
	}
	o := newTestOrchestrator(t, store, registry, Config{})

	reader, err := o.HandleTurn(context.Background(), "s1", "top sellers?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	frags := readAll(t, reader)

	last := frags[len(frags)-1]
	if last.Kind != contract.FragmentError {
		t.Fatalf("expected error fragment when persistence fails, got %#v", last)
	}
}

func TestHandleTurnDegradedFlagPropagates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	finance := &fakeSpecialist{
		id:     contract.SpecialistFinance,
		deltas: []string{"Partial: margin looks near 30%."},
		resp:   contract.AgentResponse{Degraded: true},
	}
	registry := &fakeRegistry{
		router: &fakeRouter{decision: contract.RoutingDecision{Specialist: contract.SpecialistFinance}},
		specs:  map[contract.SpecialistID]contract.Specialist{contract.SpecialistFinance: finance},
	}
	o := newTestOrchestrator(t, store, registry, Config{})

	reader, err := o.HandleTurn(context.Background(), "s1", "margins?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	frags := readAll(t, reader)

	done := frags[len(frags)-1]
	if done.Kind != contract.FragmentDone || !done.Degraded {
		t.Fatalf("expected degraded done fragment, got %#v", done)
	}
}

func TestHandleTurnUnknownFallbackRejected(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{router: &fakeRouter{}, specs: map[contract.SpecialistID]contract.Specialist{}}
	if _, err := New(&fakeStore{}, registry, Config{FallbackSpecialist: contract.SpecialistSales}); err == nil {
		t.Fatal("expected error for unregistered fallback specialist")
	}
}

// Two turns through one session: a sales ranking, then a finance follow-up
// that needs the first answer from history to resolve "that".
func TestTwoTurnHistoryCarriesContext(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	sales := &fakeSpecialist{id: contract.SpecialistSales, deltas: []string{"Your best seller is the Classic Widget."}}
	finance := &fakeSpecialist{id: contract.SpecialistFinance, deltas: []string{"The Classic Widget margin is 30%."}}
	router := &fakeRouter{decision: contract.RoutingDecision{Specialist: contract.SpecialistSales}}
	registry := &fakeRegistry{
		router: router,
		specs: map[contract.SpecialistID]contract.Specialist{
			contract.SpecialistSales:   sales,
			contract.SpecialistFinance: finance,
		},
	}
	o := newTestOrchestrator(t, store, registry, Config{})
	ctx := context.Background()

	reader, err := o.HandleTurn(ctx, "s1", "what is my best seller?")
	if err != nil {
		t.Fatalf("turn 1: HandleTurn() error = %v", err)
	}
	readAll(t, reader)

	router.decision = contract.RoutingDecision{Specialist: contract.SpecialistFinance}
	reader, err = o.HandleTurn(ctx, "s1", "what's the margin on that?")
	if err != nil {
		t.Fatalf("turn 2: HandleTurn() error = %v", err)
	}
	readAll(t, reader)

	if len(router.lastHistory) != 2 {
		t.Fatalf("router should see both turns of the first exchange, got %d", len(router.lastHistory))
	}
	if len(finance.lastHistory) != 2 {
		t.Fatalf("finance specialist should see the prior exchange, got %d", len(finance.lastHistory))
	}
	if !strings.Contains(finance.lastHistory[1].Content, "Classic Widget") {
		t.Fatalf("prior answer missing from history: %#v", finance.lastHistory[1])
	}

	turns, _ := store.List(ctx, "s1")
	if len(turns) != 4 {
		t.Fatalf("expected 4 persisted turns after two exchanges, got %d", len(turns))
	}
}
