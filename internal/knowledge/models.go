package knowledge

import "time"

// MaxFileBytes is the upload ceiling. Files of this size or larger are rejected.
const MaxFileBytes = 4 << 20

type FileStatus string

const (
	FileStatusProcessing FileStatus = "processing"
	FileStatusReady      FileStatus = "ready"
	FileStatusFailed     FileStatus = "failed"
)

// Bot is a business the receptionist answers for.
type Bot struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       *string   `json:"description,omitempty"`
	ForwardingNumber  *string   `json:"forwarding_number,omitempty"`
	DefaultLanguage   *string   `json:"default_language,omitempty"`
	FileSearchStoreID *string   `json:"file_search_store_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// File is an uploaded knowledge document. It starts in processing and ends
// in ready or failed.
type File struct {
	ID           string     `json:"id"`
	BotID        string     `json:"bot_id"`
	StoragePath  string     `json:"storage_path"`
	Status       FileStatus `json:"status"`
	MIMEType     string     `json:"mime_type"`
	SizeBytes    int64      `json:"size_bytes"`
	GeminiFileID *string    `json:"gemini_file_id,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type BotWithFiles struct {
	Bot
	Files []File `json:"kb_files"`
}
