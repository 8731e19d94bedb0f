package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingPublisher struct{ got []Event }

func (f *failingPublisher) Publish(_ context.Context, e Event) error {
	f.got = append(f.got, e)
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestEmit_SwallowsErrorsAndStamps(t *testing.T) {
	p := &failingPublisher{}
	Emit(context.Background(), p, Event{Type: TypeCallSummarized, Key: "call-1"})
	if len(p.got) != 1 {
		t.Fatalf("expected publish attempt")
	}
	if p.got[0].OccurredAt.IsZero() {
		t.Fatalf("expected timestamp")
	}
	Emit(context.Background(), nil, Event{Type: TypeCallSummarized})
}

func TestNew_SelectsDriver(t *testing.T) {
	p, err := New(Config{Driver: "none"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := p.(Nop); !ok {
		t.Fatalf("expected Nop, got %T", p)
	}

	p, err = New(Config{Driver: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, nil)
	if err != nil {
		t.Fatalf("new kafka: %v", err)
	}
	if _, ok := p.(*KafkaPublisher); !ok {
		t.Fatalf("expected KafkaPublisher, got %T", p)
	}
	_ = p.Close()

	if _, err := New(Config{Driver: "smoke-signals"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("receptionist", TypeLeadUpserted); got != "receptionist.lead.upserted" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := Subject("", TypeLeadUpserted); got != "lead.upserted" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestKafkaPublisher_FlushesWithoutBatchWait(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "calls")
	defer p.Close()
	if p.writer.BatchTimeout <= 0 || p.writer.BatchTimeout > 50*time.Millisecond {
		t.Fatalf("batch timeout %v would delay webhook responses", p.writer.BatchTimeout)
	}
	if p.writer.WriteTimeout <= 0 {
		t.Fatalf("expected bounded write timeout")
	}
}
