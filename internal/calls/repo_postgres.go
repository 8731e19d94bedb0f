package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voice-receptionist/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo implements Repository and Reader on the tables in db/schema.sql.
// Conflict targets (calls.twilio_sid, call_summaries.call_id, leads.call_id)
// are the idempotency keys.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `c.id, c.bot_id, c.twilio_sid, c.from_number, c.to_number, c.forwarded_from,
       c.routed_via, c.status, c.raw_payload, c.started_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner, extra ...any) (Call, error) {
	var (
		c                   Call
		botID, from, to, fw sql.NullString
		raw                 []byte
	)
	dest := append([]any{
		&c.ID, &botID, &c.ProviderCallID, &from, &to, &fw,
		&c.RoutedVia, &c.Status, &raw, &c.StartedAt, &c.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	c.BotID = utils.StringPtr(botID)
	c.From = from.String
	c.To = to.String
	c.ForwardedFrom = utils.StringPtr(fw)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.RawPayload); err != nil {
			return Call{}, fmt.Errorf("decode raw_payload: %w", err)
		}
	}
	return c, nil
}

func (r *PostgresRepo) UpsertCall(ctx context.Context, c Call) (Call, error) {
	if c.ProviderCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	raw, err := json.Marshal(c.RawPayload)
	if err != nil {
		return Call{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := r.clock().UTC()

	// Terminal statuses survive a late or retried initiation webhook.
	const q = `
INSERT INTO calls AS c (id, bot_id, twilio_sid, from_number, to_number, forwarded_from,
                        routed_via, status, raw_payload, started_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $10)
ON CONFLICT (twilio_sid) DO UPDATE SET
  bot_id         = COALESCE(EXCLUDED.bot_id, c.bot_id),
  from_number    = EXCLUDED.from_number,
  to_number      = EXCLUDED.to_number,
  forwarded_from = EXCLUDED.forwarded_from,
  routed_via     = EXCLUDED.routed_via,
  status         = CASE WHEN c.status IN ('completed', 'busy', 'no-answer', 'canceled', 'failed')
                        THEN c.status ELSE EXCLUDED.status END,
  raw_payload    = EXCLUDED.raw_payload,
  updated_at     = EXCLUDED.updated_at
RETURNING ` + callColumns
	return scanCall(r.db.QueryRowContext(ctx, q,
		c.ID,
		utils.NullString(c.BotID),
		c.ProviderCallID,
		c.From,
		c.To,
		utils.NullString(c.ForwardedFrom),
		c.RoutedVia,
		c.Status,
		raw,
		now,
	))
}

func (r *PostgresRepo) GetCallByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls c WHERE c.twilio_sid = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresRepo) UpdateCallStatus(ctx context.Context, callID string, status CallStatus) error {
	const q = `UPDATE calls SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, callID, status, r.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) InsertTranscript(ctx context.Context, t Transcript) (Transcript, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock().UTC()
	}
	const q = `
INSERT INTO call_transcripts (id, call_id, transcript, source, created_at)
VALUES ($1, $2, $3, $4, $5)
`
	if _, err := r.db.ExecContext(ctx, q, t.ID, t.CallID, t.Text, t.Source, t.CreatedAt); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func (r *PostgresRepo) LatestTranscript(ctx context.Context, callID string) (Transcript, error) {
	const q = `
SELECT id, call_id, transcript, source, created_at
FROM call_transcripts
WHERE call_id = $1
ORDER BY created_at DESC
LIMIT 1
`
	var t Transcript
	if err := r.db.QueryRowContext(ctx, q, callID).Scan(&t.ID, &t.CallID, &t.Text, &t.Source, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcript{}, ErrNotFound
		}
		return Transcript{}, err
	}
	return t, nil
}

func (r *PostgresRepo) UpsertSummaryAndLead(ctx context.Context, s Summary, l Lead) (Summary, Lead, error) {
	if s.CallID == "" || l.CallID != s.CallID {
		return Summary{}, Lead{}, ErrInvalidArgument
	}
	now := r.clock().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	var leadJSON any
	if len(s.LeadJSON) > 0 {
		leadJSON = []byte(s.LeadJSON)
	}

	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const qs = `
INSERT INTO call_summaries AS cs (id, call_id, summary, intent, urgency, lead_json, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (call_id) DO UPDATE SET
  summary    = EXCLUDED.summary,
  intent     = EXCLUDED.intent,
  urgency    = EXCLUDED.urgency,
  lead_json  = EXCLUDED.lead_json,
  updated_at = EXCLUDED.updated_at
RETURNING cs.id, cs.created_at
`
		if err := tx.QueryRowContext(ctx, qs, s.ID, s.CallID, s.Summary, s.Intent, s.Urgency, leadJSON, now).
			Scan(&s.ID, &s.CreatedAt); err != nil {
			return fmt.Errorf("upsert call_summaries: %w", err)
		}

		const ql = `
INSERT INTO leads AS l (id, call_id, bot_id, name, phone, reason, urgency, next_step, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (call_id) DO UPDATE SET
  bot_id     = EXCLUDED.bot_id,
  name       = EXCLUDED.name,
  phone      = EXCLUDED.phone,
  reason     = EXCLUDED.reason,
  urgency    = EXCLUDED.urgency,
  next_step  = EXCLUDED.next_step,
  status     = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at
RETURNING l.id, l.status, l.created_at, l.updated_at
`
		if err := tx.QueryRowContext(ctx, ql,
			l.ID,
			l.CallID,
			utils.NullString(l.BotID),
			utils.NullString(l.Name),
			utils.NullString(l.Phone),
			utils.NullString(l.Reason),
			l.Urgency,
			utils.NullString(l.NextStep),
			l.Status,
			now,
		).Scan(&l.ID, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return fmt.Errorf("upsert leads: %w", err)
		}
		return nil
	})
	if err != nil {
		return Summary{}, Lead{}, err
	}
	return s, l, nil
}

// memberBots restricts dashboard reads to the caller's businesses.
const memberBots = `SELECT bot_id FROM bot_members WHERE user_id = $1`

func (r *PostgresRepo) ListCalls(ctx context.Context, userID string, limit int) ([]CallListItem, error) {
	q := `
SELECT ` + callColumns + `, b.name, cs.intent, cs.urgency
FROM calls c
LEFT JOIN bots b ON b.id = c.bot_id
LEFT JOIN call_summaries cs ON cs.call_id = c.id
WHERE c.bot_id IN (` + memberBots + `)
ORDER BY c.started_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallListItem, 0, limit)
	for rows.Next() {
		item, err := scanCallListItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanCallListItem(row rowScanner, extra ...any) (CallListItem, error) {
	var botName, intent, urgency sql.NullString
	c, err := scanCall(row, append([]any{&botName, &intent, &urgency}, extra...)...)
	if err != nil {
		return CallListItem{}, err
	}
	item := CallListItem{Call: c, BotName: utils.StringPtr(botName)}
	if intent.Valid {
		v := Intent(intent.String)
		item.Intent = &v
	}
	if urgency.Valid {
		v := Urgency(urgency.String)
		item.Urgency = &v
	}
	return item, nil
}

func (r *PostgresRepo) GetCallDetail(ctx context.Context, userID, callID string) (CallDetail, error) {
	if _, err := uuid.Parse(callID); err != nil {
		return CallDetail{}, ErrNotFound
	}
	q := `
SELECT ` + callColumns + `, b.name, cs.intent, cs.urgency,
       cs.id, cs.summary, cs.lead_json, cs.created_at
FROM calls c
LEFT JOIN bots b ON b.id = c.bot_id
LEFT JOIN call_summaries cs ON cs.call_id = c.id
WHERE c.id = $2 AND c.bot_id IN (` + memberBots + `)
`
	var (
		summaryID, summaryText sql.NullString
		leadJSON               []byte
		summaryAt              sql.NullTime
	)
	item, err := scanCallListItem(r.db.QueryRowContext(ctx, q, userID, callID),
		&summaryID, &summaryText, &leadJSON, &summaryAt)
	if err != nil {
		return CallDetail{}, err
	}
	d := CallDetail{CallListItem: item}
	if summaryID.Valid {
		d.Summary = &Summary{
			ID:        summaryID.String,
			CallID:    item.ID,
			Summary:   summaryText.String,
			LeadJSON:  json.RawMessage(leadJSON),
			CreatedAt: summaryAt.Time,
		}
		if item.Intent != nil {
			d.Summary.Intent = *item.Intent
		}
		if item.Urgency != nil {
			d.Summary.Urgency = *item.Urgency
		}
	}

	t, err := r.LatestTranscript(ctx, item.ID)
	switch {
	case err == nil:
		d.Transcript = &t
	case !errors.Is(err, ErrNotFound):
		return CallDetail{}, err
	}
	return d, nil
}

const leadColumns = `l.id, l.call_id, l.bot_id, l.name, l.phone, l.reason, l.urgency, l.next_step,
       l.status, l.created_at, l.updated_at`

func scanLead(row rowScanner, extra ...any) (Lead, error) {
	var (
		l                                    Lead
		botID, name, phone, reason, nextStep sql.NullString
		urgency                              sql.NullString
	)
	dest := append([]any{
		&l.ID, &l.CallID, &botID, &name, &phone, &reason, &urgency, &nextStep,
		&l.Status, &l.CreatedAt, &l.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	l.BotID = utils.StringPtr(botID)
	l.Name = utils.StringPtr(name)
	l.Phone = utils.StringPtr(phone)
	l.Reason = utils.StringPtr(reason)
	l.NextStep = utils.StringPtr(nextStep)
	l.Urgency = Urgency(urgency.String)
	return l, nil
}

func (r *PostgresRepo) ListLeads(ctx context.Context, userID string, limit int) ([]LeadListItem, error) {
	q := `
SELECT ` + leadColumns + `, c.started_at, cs.intent
FROM leads l
LEFT JOIN calls c ON c.id = l.call_id
LEFT JOIN call_summaries cs ON cs.call_id = l.call_id
WHERE l.bot_id IN (` + memberBots + `)
ORDER BY l.created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LeadListItem, 0, limit)
	for rows.Next() {
		var (
			startedAt sql.NullTime
			intent    sql.NullString
		)
		l, err := scanLead(rows, &startedAt, &intent)
		if err != nil {
			return nil, err
		}
		item := LeadListItem{Lead: l}
		if startedAt.Valid {
			ts := startedAt.Time
			item.CallStartedAt = &ts
		}
		if intent.Valid {
			v := Intent(intent.String)
			item.Intent = &v
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateLeadStatus(ctx context.Context, userID, leadID string, status LeadStatus) (Lead, error) {
	if !status.Valid() {
		return Lead{}, ErrInvalidArgument
	}
	if _, err := uuid.Parse(leadID); err != nil {
		return Lead{}, ErrNotFound
	}
	q := `
UPDATE leads AS l SET status = $3, updated_at = $4
WHERE l.id = $2 AND l.bot_id IN (` + memberBots + `)
RETURNING ` + leadColumns
	return scanLead(r.db.QueryRowContext(ctx, q, userID, leadID, status, r.clock().UTC()))
}
