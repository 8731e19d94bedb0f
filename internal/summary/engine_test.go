package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/events"
	"voice-receptionist/internal/prompts"
)

type fakeModel struct {
	out    string
	err    error
	prompt string
}

func (f *fakeModel) GenerateText(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

type capturePublisher struct{ got []events.Event }

func (c *capturePublisher) Publish(_ context.Context, e events.Event) error {
	c.got = append(c.got, e)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func seed(t *testing.T) (*calls.MemoryRepo, calls.Call) {
	t.Helper()
	repo := calls.NewMemoryRepo()
	c, err := repo.UpsertCall(context.Background(), calls.Call{ProviderCallID: "CA1", From: "+15551234567", Status: calls.CallStatusCompleted})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return repo, c
}

func TestSummarize_StoresSummaryAndLead(t *testing.T) {
	repo, call := seed(t)
	model := &fakeModel{out: `{"summary":"Leaking pipe.","intent":"support","urgency":"high","lead":{"name":"Ana","needs_follow_up":true}}`}
	pub := &capturePublisher{}
	e := &Engine{Model: model, Store: repo, Events: pub, Instruction: prompts.Default().SummaryInstruction}

	if err := e.Summarize(context.Background(), call, "My pipe is leaking"); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.HasSuffix(model.prompt, "Transcript:\nMy pipe is leaking") {
		t.Fatalf("transcript not appended to instruction: %q", model.prompt)
	}

	s, ok := repo.Summary(call.ID)
	if !ok || s.Urgency != calls.UrgencyHigh || s.Intent != calls.IntentSupport {
		t.Fatalf("unexpected summary %+v", s)
	}
	l, ok := repo.Lead(call.ID)
	if !ok {
		t.Fatalf("expected lead")
	}
	if l.Status != calls.LeadStatusNew || l.Urgency != calls.UrgencyHigh {
		t.Fatalf("unexpected lead %+v", l)
	}
	if l.Phone == nil || *l.Phone != "+15551234567" {
		t.Fatalf("expected caller number fallback, got %v", l.Phone)
	}
	if len(pub.got) != 2 || pub.got[0].Type != events.TypeCallSummarized || pub.got[1].Type != events.TypeLeadUpserted {
		t.Fatalf("unexpected events %+v", pub.got)
	}
}

func TestSummarize_UnparseableIsNotAnError(t *testing.T) {
	repo, call := seed(t)
	e := &Engine{Model: &fakeModel{out: "not json"}, Store: repo}

	r, err := e.Generate(context.Background(), "hello")
	if err != nil || r != nil {
		t.Fatalf("expected no result and no error, got %v %v", r, err)
	}
	if err := e.Summarize(context.Background(), call, "hello"); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if _, ok := repo.Summary(call.ID); ok {
		t.Fatalf("expected no summary row")
	}
	if _, ok := repo.Lead(call.ID); ok {
		t.Fatalf("expected no lead row")
	}
}

func TestSummarize_TransportErrorPropagates(t *testing.T) {
	repo, call := seed(t)
	boom := errors.New("connection reset")
	e := &Engine{Model: &fakeModel{err: boom}, Store: repo}

	if err := e.Summarize(context.Background(), call, "hello"); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestSummarize_RerunOverwrites(t *testing.T) {
	repo, call := seed(t)
	model := &fakeModel{out: `{"summary":"first","intent":"info","urgency":"low"}`}
	e := &Engine{Model: model, Store: repo}

	if err := e.Summarize(context.Background(), call, "hello"); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	model.out = `{"summary":"second","intent":"sales","urgency":"medium"}`
	if err := e.Summarize(context.Background(), call, "hello"); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	s, _ := repo.Summary(call.ID)
	if s.Summary != "second" || s.Intent != calls.IntentSales {
		t.Fatalf("expected overwritten summary, got %+v", s)
	}
}

func TestSummarize_RerunRederivesLeadStatus(t *testing.T) {
	repo, call := seed(t)
	model := &fakeModel{out: `{"summary":"first","intent":"sales","urgency":"low","lead":{"needs_follow_up":true}}`}
	e := &Engine{Model: model, Store: repo}

	if err := e.Summarize(context.Background(), call, "hello"); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if l, _ := repo.Lead(call.ID); l.Status != calls.LeadStatusNew {
		t.Fatalf("expected new lead, got %q", l.Status)
	}

	model.out = `{"summary":"second","intent":"sales","urgency":"low","lead":{"needs_follow_up":false}}`
	if err := e.Summarize(context.Background(), call, "hello"); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if l, _ := repo.Lead(call.ID); l.Status != calls.LeadStatusClosed {
		t.Fatalf("expected closed after rerun, got %q", l.Status)
	}
}
