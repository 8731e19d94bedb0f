package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository and Reader for tests and local runs.
// It mirrors the Postgres conflict rules.
type MemoryRepo struct {
	mu sync.Mutex

	calls       map[string]Call // by id
	bySid       map[string]string
	transcripts []Transcript
	summaries   map[string]Summary // by call id
	leads       map[string]Lead    // by call id

	botNames map[string]string
	members  map[string]map[string]bool // user id -> bot ids

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:     map[string]Call{},
		bySid:     map[string]string{},
		summaries: map[string]Summary{},
		leads:     map[string]Lead{},
		botNames:  map[string]string{},
		members:   map[string]map[string]bool{},
		clock:     time.Now,
	}
}

// AddMember grants userID dashboard visibility of botID.
func (r *MemoryRepo) AddMember(userID, botID, botName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[userID] == nil {
		r.members[userID] = map[string]bool{}
	}
	r.members[userID][botID] = true
	r.botNames[botID] = botName
}

func (r *MemoryRepo) now() time.Time {
	return r.clock().UTC()
}

func (r *MemoryRepo) UpsertCall(_ context.Context, c Call) (Call, error) {
	if c.ProviderCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id, ok := r.bySid[c.ProviderCallID]
	if !ok {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.StartedAt = now
		c.UpdatedAt = now
		r.calls[c.ID] = c
		r.bySid[c.ProviderCallID] = c.ID
		return c, nil
	}

	existing := r.calls[id]
	if c.BotID == nil {
		c.BotID = existing.BotID
	}
	if existing.Status.IsTerminal() {
		c.Status = existing.Status
	}
	c.ID = existing.ID
	c.StartedAt = existing.StartedAt
	c.UpdatedAt = now
	r.calls[id] = c
	return c, nil
}

func (r *MemoryRepo) GetCallByProviderID(_ context.Context, providerCallID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySid[providerCallID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return r.calls[id], nil
}

func (r *MemoryRepo) UpdateCallStatus(_ context.Context, callID string, status CallStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = r.now()
	r.calls[callID] = c
	return nil
}

func (r *MemoryRepo) InsertTranscript(_ context.Context, t Transcript) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[t.CallID]; !ok {
		return Transcript{}, ErrNotFound
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	r.transcripts = append(r.transcripts, t)
	return t, nil
}

func (r *MemoryRepo) LatestTranscript(_ context.Context, callID string) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latestTranscriptLocked(callID)
}

func (r *MemoryRepo) latestTranscriptLocked(callID string) (Transcript, error) {
	var (
		latest Transcript
		found  bool
	)
	for _, t := range r.transcripts {
		if t.CallID != callID {
			continue
		}
		// Ties go to the later insert.
		if !found || !t.CreatedAt.Before(latest.CreatedAt) {
			latest, found = t, true
		}
	}
	if !found {
		return Transcript{}, ErrNotFound
	}
	return latest, nil
}

// Transcripts returns every transcript for callID in insert order.
func (r *MemoryRepo) Transcripts(callID string) []Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transcript
	for _, t := range r.transcripts {
		if t.CallID == callID {
			out = append(out, t)
		}
	}
	return out
}

func (r *MemoryRepo) UpsertSummaryAndLead(_ context.Context, s Summary, l Lead) (Summary, Lead, error) {
	if s.CallID == "" || l.CallID != s.CallID {
		return Summary{}, Lead{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[s.CallID]; !ok {
		return Summary{}, Lead{}, ErrNotFound
	}

	now := r.now()
	if prev, ok := r.summaries[s.CallID]; ok {
		s.ID = prev.ID
		s.CreatedAt = prev.CreatedAt
	} else {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.CreatedAt = now
	}

	if prev, ok := r.leads[l.CallID]; ok {
		l.ID = prev.ID
		l.CreatedAt = prev.CreatedAt
	} else {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	r.summaries[s.CallID] = s
	r.leads[l.CallID] = l
	return s, l, nil
}

// Summary returns the stored summary for callID.
func (r *MemoryRepo) Summary(callID string) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[callID]
	return s, ok
}

// Lead returns the stored lead for callID.
func (r *MemoryRepo) Lead(callID string) (Lead, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[callID]
	return l, ok
}

// CallCount is the number of distinct call rows.
func (r *MemoryRepo) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *MemoryRepo) visibleLocked(userID string, botID *string) bool {
	return botID != nil && r.members[userID][*botID]
}

func (r *MemoryRepo) listItemLocked(c Call) CallListItem {
	item := CallListItem{Call: c}
	if c.BotID != nil {
		if name, ok := r.botNames[*c.BotID]; ok {
			item.BotName = &name
		}
	}
	if s, ok := r.summaries[c.ID]; ok {
		intent, urgency := s.Intent, s.Urgency
		item.Intent = &intent
		item.Urgency = &urgency
	}
	return item
}

func (r *MemoryRepo) ListCalls(_ context.Context, userID string, limit int) ([]CallListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CallListItem, 0)
	for _, c := range r.calls {
		if r.visibleLocked(userID, c.BotID) {
			out = append(out, r.listItemLocked(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) GetCallDetail(_ context.Context, userID, callID string) (CallDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok || !r.visibleLocked(userID, c.BotID) {
		return CallDetail{}, ErrNotFound
	}
	d := CallDetail{CallListItem: r.listItemLocked(c)}
	if t, err := r.latestTranscriptLocked(callID); err == nil {
		d.Transcript = &t
	}
	if s, ok := r.summaries[callID]; ok {
		d.Summary = &s
	}
	return d, nil
}

func (r *MemoryRepo) ListLeads(_ context.Context, userID string, limit int) ([]LeadListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]LeadListItem, 0)
	for _, l := range r.leads {
		if !r.visibleLocked(userID, l.BotID) {
			continue
		}
		item := LeadListItem{Lead: l}
		if c, ok := r.calls[l.CallID]; ok {
			started := c.StartedAt
			item.CallStartedAt = &started
		}
		if s, ok := r.summaries[l.CallID]; ok {
			intent := s.Intent
			item.Intent = &intent
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpdateLeadStatus(_ context.Context, userID, leadID string, status LeadStatus) (Lead, error) {
	if !status.Valid() {
		return Lead{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for callID, l := range r.leads {
		if l.ID != leadID {
			continue
		}
		if !r.visibleLocked(userID, l.BotID) {
			return Lead{}, ErrNotFound
		}
		l.Status = status
		l.UpdatedAt = r.now()
		r.leads[callID] = l
		return l, nil
	}
	return Lead{}, ErrNotFound
}
