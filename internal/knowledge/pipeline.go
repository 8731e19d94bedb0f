package knowledge

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"voice-receptionist/internal/audit"
	"voice-receptionist/internal/events"
	"voice-receptionist/internal/gemini"
	"voice-receptionist/internal/storage"
	"voice-receptionist/pkg/logger"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// Indexer is the search-index capability files are submitted to.
type Indexer interface {
	EnsureStore(ctx context.Context, displayName string) (gemini.Store, error)
	UploadFile(ctx context.Context, storeName string, in gemini.UploadInput) (gemini.Operation, error)
	GetOperation(ctx context.Context, name string) (gemini.Operation, error)
}

// Upload is one file handed in by a dashboard user.
type Upload struct {
	BotID    string
	FileName string
	MIMEType string
	Data     []byte
}

// Pipeline stores a document and indexes it into its bot's search store.
type Pipeline struct {
	Repo    Repository
	Objects storage.ObjectStore
	Index   Indexer
	Limiter Limiter // optional
	Events  events.Publisher
	Audit   *audit.Service

	PollInterval time.Duration
	PollTimeout  time.Duration
	Clock        func() time.Time
}

// ValidateUpload rejects uploads before anything is written.
func ValidateUpload(u Upload) error {
	switch {
	case strings.TrimSpace(u.BotID) == "":
		return &ValidationError{Message: "Missing bot id."}
	case len(u.Data) == 0:
		return &ValidationError{Message: "Please select a file."}
	case len(u.Data) >= MaxFileBytes:
		return &ValidationError{Message: "File size must be under 4 MB."}
	}
	return nil
}

// StoreID is the deterministic index store name for a bot, so every upload
// for the bot resolves to the same store.
func StoreID(botID string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, botID)
	return "bot-" + id
}

// Ingest runs the upload through validation, membership, store setup,
// object storage and indexing. On failures after the file row exists it
// returns the failed File along with an error matching ErrIngestFailed.
func (p *Pipeline) Ingest(ctx context.Context, actor audit.Actor, u Upload) (File, error) {
	if err := ValidateUpload(u); err != nil {
		return File{}, err
	}
	log := logger.From(ctx).With("bot_id", u.BotID)

	bot, err := p.Repo.GetBot(ctx, u.BotID)
	if err != nil {
		return File{}, err
	}
	member, err := p.Repo.IsMember(ctx, actor.UserID, bot.ID)
	if err != nil {
		return File{}, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return File{}, ErrForbidden
	}

	if p.Limiter != nil {
		release, err := p.Limiter.Acquire(ctx, bot.ID)
		if err != nil {
			return File{}, err
		}
		defer release()
	}

	storeName, err := p.ensureStore(ctx, bot)
	if err != nil {
		return File{}, fmt.Errorf("%w: set up search store: %w", ErrIngestFailed, err)
	}

	name := cleanFileName(u.FileName)
	mime := u.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	f, err := p.Repo.InsertFile(ctx, File{
		BotID:       bot.ID,
		StoragePath: fmt.Sprintf("%s/%d-%s", bot.ID, p.now().UnixMilli(), name),
		Status:      FileStatusProcessing,
		MIMEType:    mime,
		SizeBytes:   int64(len(u.Data)),
	})
	if err != nil {
		return File{}, fmt.Errorf("record file metadata: %w", err)
	}
	log = log.With("kb_file_id", f.ID)

	geminiFileID, procErr := p.process(ctx, f, storeName, name, u.Data)

	// The request may already be cancelled; the row must still leave processing.
	finalCtx := context.WithoutCancel(ctx)
	if procErr != nil {
		log.Error("knowledge ingestion failed", "err", procErr)
		failed, err := p.Repo.MarkFileFailed(finalCtx, f.ID, procErr.Error())
		if err != nil {
			log.Error("mark kb file failed", "err", err)
			failed = f
			failed.Status = FileStatusFailed
		}
		p.record(finalCtx, actor, failed, events.TypeKnowledgeFileFail)
		return failed, fmt.Errorf("%w: %w", ErrIngestFailed, procErr)
	}

	ready, err := p.Repo.MarkFileReady(finalCtx, f.ID, geminiFileID)
	if err != nil {
		return f, fmt.Errorf("mark kb file ready: %w", err)
	}
	log.Info("knowledge file indexed", "gemini_file_id", geminiFileID)
	p.record(finalCtx, actor, ready, events.TypeKnowledgeFileReady)
	return ready, nil
}

func (p *Pipeline) ensureStore(ctx context.Context, bot Bot) (string, error) {
	if bot.FileSearchStoreID != nil && *bot.FileSearchStoreID != "" {
		return *bot.FileSearchStoreID, nil
	}
	store, err := p.Index.EnsureStore(ctx, StoreID(bot.ID))
	if err != nil {
		return "", err
	}
	if err := p.Repo.SetBotStoreID(ctx, bot.ID, store.Name); err != nil {
		logger.From(ctx).Warn("persist search store failed", "bot_id", bot.ID, "store", store.Name, "err", err)
	}
	return store.Name, nil
}

func (p *Pipeline) process(ctx context.Context, f File, storeName, name string, data []byte) (string, error) {
	if err := p.Objects.Put(ctx, f.StoragePath, f.MIMEType, data); err != nil {
		return "", fmt.Errorf("store file: %w", err)
	}
	op, err := p.Index.UploadFile(ctx, storeName, gemini.UploadInput{
		FileName: name,
		MIMEType: f.MIMEType,
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("submit to index: %w", err)
	}
	op, err = p.await(ctx, op)
	if err != nil {
		return "", err
	}
	if op.Error != nil {
		return "", errors.New(op.Error.Message)
	}
	id := op.FileID()
	if id == "" {
		return "", errors.New("upload succeeded but no file name returned")
	}
	return id, nil
}

// await polls op until it is done or the poll timeout passes.
func (p *Pipeline) await(ctx context.Context, op gemini.Operation) (gemini.Operation, error) {
	if op.Done {
		return op, nil
	}
	timeout := p.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return op, fmt.Errorf("indexing timed out: %w", ctx.Err())
		case <-ticker.C:
		}
		next, err := p.Index.GetOperation(ctx, op.Name)
		if err != nil {
			return op, fmt.Errorf("poll operation %s: %w", op.Name, err)
		}
		op = next
	}
	return op, nil
}

func (p *Pipeline) record(ctx context.Context, actor audit.Actor, f File, eventType string) {
	data := map[string]any{"bot_id": f.BotID, "status": f.Status, "storage_path": f.StoragePath}
	if f.ErrorMessage != nil {
		data["error"] = *f.ErrorMessage
	}
	events.Emit(ctx, p.Events, events.Event{Type: eventType, Key: f.ID, Data: data})

	if p.Audit == nil {
		return
	}
	if err := p.Audit.LogKnowledgeUpload(ctx, actor, f.BotID, f.ID, string(f.Status)); err != nil {
		logger.From(ctx).Warn("audit knowledge upload failed", "kb_file_id", f.ID, "err", err)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
