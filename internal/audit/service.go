package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Actor identifies who performed an action.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.TargetType == "" || e.TargetID == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogLeadStatus records an operator moving a lead between statuses.
func (s *Service) LogLeadStatus(ctx context.Context, actor Actor, botID, leadID, status string) error {
	meta, _ := json.Marshal(map[string]string{"status": status})
	return s.Append(ctx, Event{
		Type:        EventTypeLeadStatusChanged,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		BotID:       botID,
		TargetType:  "lead",
		TargetID:    leadID,
		Message:     "lead status set to " + status,
		Metadata:    string(meta),
	})
}

// LogKnowledgeUpload records a knowledge file upload and its outcome.
func (s *Service) LogKnowledgeUpload(ctx context.Context, actor Actor, botID, fileID, status string) error {
	meta, _ := json.Marshal(map[string]string{"status": status})
	return s.Append(ctx, Event{
		Type:        EventTypeKnowledgeUploaded,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		BotID:       botID,
		TargetType:  "kb_file",
		TargetID:    fileID,
		Message:     "knowledge file " + status,
		Metadata:    string(meta),
	})
}
