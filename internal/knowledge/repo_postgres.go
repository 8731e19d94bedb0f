package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voice-receptionist/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo implements Repository on bots, bot_members and kb_files.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const botColumns = `b.id, b.name, b.description, b.forwarding_number, b.default_language,
       b.file_search_store_id, b.created_at`

const fileColumns = `f.id, f.bot_id, f.storage_path, f.status, f.mime_type, f.size_bytes,
       f.gemini_file_id, f.error_message, f.uploaded_at, f.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (Bot, error) {
	var (
		b                    Bot
		desc, fwd, lang, sid sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Name, &desc, &fwd, &lang, &sid, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bot{}, ErrBotNotFound
		}
		return Bot{}, err
	}
	b.Description = utils.StringPtr(desc)
	b.ForwardingNumber = utils.StringPtr(fwd)
	b.DefaultLanguage = utils.StringPtr(lang)
	b.FileSearchStoreID = utils.StringPtr(sid)
	return b, nil
}

func scanFile(row rowScanner) (File, error) {
	var (
		f             File
		geminiID, msg sql.NullString
	)
	err := row.Scan(&f.ID, &f.BotID, &f.StoragePath, &f.Status, &f.MIMEType, &f.SizeBytes,
		&geminiID, &msg, &f.UploadedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, ErrFileNotFound
		}
		return File{}, err
	}
	f.GeminiFileID = utils.StringPtr(geminiID)
	f.ErrorMessage = utils.StringPtr(msg)
	return f, nil
}

func (r *PostgresRepo) GetBot(ctx context.Context, botID string) (Bot, error) {
	if _, err := uuid.Parse(botID); err != nil {
		return Bot{}, ErrBotNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots b WHERE b.id = $1`, botID)
	return scanBot(row)
}

func (r *PostgresRepo) SetBotStoreID(ctx context.Context, botID, storeName string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE bots SET file_search_store_id = $2
WHERE id = $1 AND file_search_store_id IS NULL`, botID, storeName)
	return err
}

func (r *PostgresRepo) IsMember(ctx context.Context, userID, botID string) (bool, error) {
	if _, err := uuid.Parse(botID); err != nil {
		return false, nil
	}
	var ok bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM bot_members WHERE bot_id = $1 AND user_id = $2)`, botID, userID).Scan(&ok)
	return ok, err
}

func (r *PostgresRepo) BotIDByForwardingNumber(ctx context.Context, number string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
SELECT id FROM bots WHERE forwarding_number = $1 ORDER BY created_at LIMIT 1`, number).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (r *PostgresRepo) ListBotsForUser(ctx context.Context, userID string) ([]BotWithFiles, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+botColumns+`,
       f.id, f.storage_path, f.status, f.mime_type, f.size_bytes,
       f.gemini_file_id, f.error_message, f.uploaded_at, f.updated_at
FROM bots b
JOIN bot_members m ON m.bot_id = b.id AND m.user_id = $1
LEFT JOIN kb_files f ON f.bot_id = b.id
ORDER BY b.name ASC, b.id, f.uploaded_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BotWithFiles{}
	for rows.Next() {
		var (
			b                    Bot
			desc, fwd, lang, sid sql.NullString
			fileID, path, status sql.NullString
			mime, geminiID, msg  sql.NullString
			size                 sql.NullInt64
			uploaded, updated    sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.Name, &desc, &fwd, &lang, &sid, &b.CreatedAt,
			&fileID, &path, &status, &mime, &size, &geminiID, &msg, &uploaded, &updated); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != b.ID {
			b.Description = utils.StringPtr(desc)
			b.ForwardingNumber = utils.StringPtr(fwd)
			b.DefaultLanguage = utils.StringPtr(lang)
			b.FileSearchStoreID = utils.StringPtr(sid)
			out = append(out, BotWithFiles{Bot: b, Files: []File{}})
		}
		if !fileID.Valid {
			continue
		}
		last := &out[len(out)-1]
		last.Files = append(last.Files, File{
			ID:           fileID.String,
			BotID:        b.ID,
			StoragePath:  path.String,
			Status:       FileStatus(status.String),
			MIMEType:     mime.String,
			SizeBytes:    size.Int64,
			GeminiFileID: utils.StringPtr(geminiID),
			ErrorMessage: utils.StringPtr(msg),
			UploadedAt:   uploaded.Time,
			UpdatedAt:    updated.Time,
		})
	}
	return out, rows.Err()
}

func (r *PostgresRepo) InsertFile(ctx context.Context, f File) (File, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = FileStatusProcessing
	}
	now := r.clock().UTC()
	row := r.db.QueryRowContext(ctx, `
INSERT INTO kb_files AS f (id, bot_id, storage_path, status, mime_type, size_bytes, uploaded_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING `+fileColumns,
		f.ID, f.BotID, f.StoragePath, f.Status, f.MIMEType, f.SizeBytes, now)
	out, err := scanFile(row)
	if utils.IsUniqueViolation(err) {
		return File{}, ErrDuplicateFile
	}
	if err != nil {
		return File{}, fmt.Errorf("insert kb file: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) MarkFileReady(ctx context.Context, fileID, geminiFileID string) (File, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE kb_files AS f
SET status = $2, gemini_file_id = $3, error_message = NULL, updated_at = $4
WHERE f.id = $1
RETURNING `+fileColumns,
		fileID, FileStatusReady, geminiFileID, r.clock().UTC())
	return scanFile(row)
}

func (r *PostgresRepo) MarkFileFailed(ctx context.Context, fileID, message string) (File, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE kb_files AS f
SET status = $2, error_message = $3, updated_at = $4
WHERE f.id = $1
RETURNING `+fileColumns,
		fileID, FileStatusFailed, message, r.clock().UTC())
	return scanFile(row)
}
