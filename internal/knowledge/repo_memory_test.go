package knowledge

import (
	"context"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestMemoryRepo_ForwardingNumberLookup(t *testing.T) {
	r := NewMemoryRepo()
	r.AddBot(Bot{ID: "bot-1", Name: "A", ForwardingNumber: strPtr("+15559999999")})
	ctx := context.Background()

	id, err := r.BotIDByForwardingNumber(ctx, "+15559999999")
	if err != nil || id != "bot-1" {
		t.Fatalf("got %q %v", id, err)
	}
	id, err = r.BotIDByForwardingNumber(ctx, "+10000000000")
	if err != nil || id != "" {
		t.Fatalf("expected no match, got %q %v", id, err)
	}
}

func TestMemoryRepo_SetBotStoreIDKeepsFirst(t *testing.T) {
	r := NewMemoryRepo()
	r.AddBot(Bot{ID: "bot-1", Name: "A"})
	ctx := context.Background()

	_ = r.SetBotStoreID(ctx, "bot-1", "fileSearchStores/first")
	_ = r.SetBotStoreID(ctx, "bot-1", "fileSearchStores/second")
	b, _ := r.GetBot(ctx, "bot-1")
	if b.FileSearchStoreID == nil || *b.FileSearchStoreID != "fileSearchStores/first" {
		t.Fatalf("unexpected store %v", b.FileSearchStoreID)
	}
}

func TestMemoryRepo_ListBotsForUser(t *testing.T) {
	r := NewMemoryRepo()
	r.AddBot(Bot{ID: "bot-2", Name: "Zeta"})
	r.AddBot(Bot{ID: "bot-1", Name: "Alpha"})
	r.AddBot(Bot{ID: "bot-3", Name: "Hidden"})
	r.AddMember("u1", "bot-1")
	r.AddMember("u1", "bot-2")
	ctx := context.Background()

	f, err := r.InsertFile(ctx, File{BotID: "bot-1", StoragePath: "bot-1/1-a.txt", MIMEType: "text/plain", SizeBytes: 1})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if f.Status != FileStatusProcessing {
		t.Fatalf("expected processing, got %q", f.Status)
	}

	bots, err := r.ListBotsForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bots) != 2 || bots[0].Name != "Alpha" || bots[1].Name != "Zeta" {
		t.Fatalf("unexpected bots %+v", bots)
	}
	if len(bots[0].Files) != 1 || len(bots[1].Files) != 0 {
		t.Fatalf("unexpected files %+v", bots)
	}
}

func TestMemoryRepo_MarkFile(t *testing.T) {
	r := NewMemoryRepo()
	r.AddBot(Bot{ID: "bot-1", Name: "A"})
	ctx := context.Background()

	if _, err := r.MarkFileReady(ctx, "missing", "files/x"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	f, _ := r.InsertFile(ctx, File{BotID: "bot-1", StoragePath: "p"})
	failed, err := r.MarkFileFailed(ctx, f.ID, "boom")
	if err != nil || failed.Status != FileStatusFailed || *failed.ErrorMessage != "boom" {
		t.Fatalf("unexpected %+v %v", failed, err)
	}
	ready, err := r.MarkFileReady(ctx, f.ID, "files/x")
	if err != nil || ready.Status != FileStatusReady || ready.ErrorMessage != nil {
		t.Fatalf("unexpected %+v %v", ready, err)
	}
}
