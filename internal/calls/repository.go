package calls

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Repository is the call record store used by the webhook pipeline.
type Repository interface {
	// UpsertCall inserts or updates by ProviderCallID and returns the stored row.
	// A stored terminal status is never replaced.
	UpsertCall(ctx context.Context, c Call) (Call, error)
	GetCallByProviderID(ctx context.Context, providerCallID string) (Call, error)
	UpdateCallStatus(ctx context.Context, callID string, status CallStatus) error

	InsertTranscript(ctx context.Context, t Transcript) (Transcript, error)
	// LatestTranscript returns ErrNotFound when the call has none.
	LatestTranscript(ctx context.Context, callID string) (Transcript, error)

	// UpsertSummaryAndLead writes both rows atomically, keyed by call.
	// Every write re-derives the lead status from the new summary.
	UpsertSummaryAndLead(ctx context.Context, s Summary, l Lead) (Summary, Lead, error)
}

// Reader backs the dashboard. Results are limited to bots userID is a member of.
type Reader interface {
	ListCalls(ctx context.Context, userID string, limit int) ([]CallListItem, error)
	GetCallDetail(ctx context.Context, userID, callID string) (CallDetail, error)
	ListLeads(ctx context.Context, userID string, limit int) ([]LeadListItem, error)
	UpdateLeadStatus(ctx context.Context, userID, leadID string, status LeadStatus) (Lead, error)
}
