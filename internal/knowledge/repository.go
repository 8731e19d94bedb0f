package knowledge

import "context"

type Repository interface {
	GetBot(ctx context.Context, botID string) (Bot, error)
	// SetBotStoreID records the index store for a bot unless one is already set.
	SetBotStoreID(ctx context.Context, botID, storeName string) error
	IsMember(ctx context.Context, userID, botID string) (bool, error)
	ListBotsForUser(ctx context.Context, userID string) ([]BotWithFiles, error)

	// BotIDByForwardingNumber returns "" when no bot owns number.
	BotIDByForwardingNumber(ctx context.Context, number string) (string, error)

	InsertFile(ctx context.Context, f File) (File, error)
	MarkFileReady(ctx context.Context, fileID, geminiFileID string) (File, error)
	MarkFileFailed(ctx context.Context, fileID, message string) (File, error)
}
