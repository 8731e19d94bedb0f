package calls

import (
	"context"
	"strings"

	"voice-receptionist/internal/audit"
	"voice-receptionist/pkg/logger"
)

const (
	DefaultCallLimit = 25
	MaxCallLimit     = 100
	DefaultLeadLimit = 50
	MaxLeadLimit     = 200
)

// Service backs the dashboard: listing calls and leads, and lead triage.
type Service struct {
	repo  Reader
	audit *audit.Service
}

func NewService(repo Reader, auditSvc *audit.Service) *Service {
	return &Service{repo: repo, audit: auditSvc}
}

func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Service) ListCalls(ctx context.Context, userID string, limit int) ([]CallListItem, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListCalls(ctx, userID, clampLimit(limit, DefaultCallLimit, MaxCallLimit))
}

func (s *Service) GetCall(ctx context.Context, userID, callID string) (CallDetail, error) {
	if userID == "" || strings.TrimSpace(callID) == "" {
		return CallDetail{}, ErrInvalidArgument
	}
	return s.repo.GetCallDetail(ctx, userID, callID)
}

func (s *Service) ListLeads(ctx context.Context, userID string, limit int) ([]LeadListItem, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListLeads(ctx, userID, clampLimit(limit, DefaultLeadLimit, MaxLeadLimit))
}

// UpdateLeadStatus changes a lead's status and records who did it.
func (s *Service) UpdateLeadStatus(ctx context.Context, actor audit.Actor, leadID string, status LeadStatus) (Lead, error) {
	if actor.UserID == "" || strings.TrimSpace(leadID) == "" || !status.Valid() {
		return Lead{}, ErrInvalidArgument
	}
	l, err := s.repo.UpdateLeadStatus(ctx, actor.UserID, leadID, status)
	if err != nil {
		return Lead{}, err
	}

	botID := ""
	if l.BotID != nil {
		botID = *l.BotID
	}
	if err := s.audit.LogLeadStatus(ctx, actor, botID, l.ID, string(l.Status)); err != nil {
		logger.From(ctx).Warn("audit append failed", "lead_id", l.ID, "err", err)
	}
	return l, nil
}
