package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu      sync.Mutex
	bots    map[string]Bot
	members map[string]map[string]bool // user id -> bot ids
	files   map[string]File
	clock   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		bots:    map[string]Bot{},
		members: map[string]map[string]bool{},
		files:   map[string]File{},
		clock:   time.Now,
	}
}

func (r *MemoryRepo) AddBot(b Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.clock().UTC()
	}
	r.bots[b.ID] = b
}

func (r *MemoryRepo) AddMember(userID, botID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[userID] == nil {
		r.members[userID] = map[string]bool{}
	}
	r.members[userID][botID] = true
}

// Files returns the bot's files, newest first.
func (r *MemoryRepo) Files(botID string) []File {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filesFor(botID)
}

func (r *MemoryRepo) filesFor(botID string) []File {
	out := []File{}
	for _, f := range r.files {
		if f.BotID == botID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}

func (r *MemoryRepo) GetBot(_ context.Context, botID string) (Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[botID]
	if !ok {
		return Bot{}, ErrBotNotFound
	}
	return b, nil
}

func (r *MemoryRepo) SetBotStoreID(_ context.Context, botID, storeName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[botID]
	if !ok || b.FileSearchStoreID != nil {
		return nil
	}
	b.FileSearchStoreID = &storeName
	r.bots[botID] = b
	return nil
}

func (r *MemoryRepo) IsMember(_ context.Context, userID, botID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[userID][botID], nil
}

func (r *MemoryRepo) BotIDByForwardingNumber(_ context.Context, number string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var match Bot
	for _, b := range r.bots {
		if b.ForwardingNumber == nil || *b.ForwardingNumber != number {
			continue
		}
		if match.ID == "" || b.CreatedAt.Before(match.CreatedAt) {
			match = b
		}
	}
	return match.ID, nil
}

func (r *MemoryRepo) ListBotsForUser(_ context.Context, userID string) ([]BotWithFiles, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []BotWithFiles{}
	for botID := range r.members[userID] {
		b, ok := r.bots[botID]
		if !ok {
			continue
		}
		out = append(out, BotWithFiles{Bot: b, Files: r.filesFor(botID)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) InsertFile(_ context.Context, f File) (File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[f.BotID]; !ok {
		return File{}, ErrBotNotFound
	}
	for _, existing := range r.files {
		if existing.StoragePath == f.StoragePath {
			return File{}, ErrDuplicateFile
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = FileStatusProcessing
	}
	now := r.clock().UTC()
	f.UploadedAt = now
	f.UpdatedAt = now
	r.files[f.ID] = f
	return f, nil
}

func (r *MemoryRepo) MarkFileReady(_ context.Context, fileID, geminiFileID string) (File, error) {
	return r.update(fileID, func(f *File) {
		f.Status = FileStatusReady
		f.GeminiFileID = &geminiFileID
		f.ErrorMessage = nil
	})
}

func (r *MemoryRepo) MarkFileFailed(_ context.Context, fileID, message string) (File, error) {
	return r.update(fileID, func(f *File) {
		f.Status = FileStatusFailed
		f.ErrorMessage = &message
	})
}

func (r *MemoryRepo) update(fileID string, fn func(*File)) (File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fileID]
	if !ok {
		return File{}, ErrFileNotFound
	}
	fn(&f)
	f.UpdatedAt = r.clock().UTC()
	r.files[fileID] = f
	return f, nil
}
