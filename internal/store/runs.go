package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type DelegationRun struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Category       string          `json:"category"`
	Steps          json.RawMessage `json:"steps"`
	Status         string          `json:"status"`
	DurationMs     int64           `json:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (s *Store) SaveDelegationRun(r *DelegationRun) error {
	_, err := s.db.Exec(`
		INSERT INTO delegation_runs (id, conversation_id, category, steps, status, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			duration_ms = excluded.duration_ms`,
		r.ID, r.ConversationID, r.Category, string(r.Steps), r.Status, r.DurationMs)
	if err != nil {
		return fmt.Errorf("save delegation run: %w", err)
	}
	return nil
}

func (s *Store) GetDelegationRun(id string) (*DelegationRun, error) {
	r := &DelegationRun{}
	var steps string
	var duration sql.NullInt64
	err := s.db.QueryRow(`
		SELECT id, conversation_id, category, steps, status, duration_ms, created_at
		FROM delegation_runs WHERE id = ?`, id).
		Scan(&r.ID, &r.ConversationID, &r.Category, &steps, &r.Status, &duration, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delegation run: %w", err)
	}
	r.Steps = json.RawMessage(steps)
	r.DurationMs = duration.Int64
	return r, nil
}

func (s *Store) ListDelegationRuns(conversationID string, limit int) ([]DelegationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, conversation_id, category, steps, status, duration_ms, created_at
		FROM delegation_runs
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list delegation runs: %w", err)
	}
	defer rows.Close()

	var runs []DelegationRun
	for rows.Next() {
		var r DelegationRun
		var steps string
		var duration sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Category, &steps, &r.Status, &duration, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delegation run: %w", err)
		}
		r.Steps = json.RawMessage(steps)
		r.DurationMs = duration.Int64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type ResponderUsage struct {
	Responder string `json:"responder"`
	Calls     int64  `json:"calls"`
	TokensIn  int64  `json:"tokens_in"`
	TokensOut int64  `json:"tokens_out"`
}

func (s *Store) AddResponderUsage(responder string, tokensIn, tokensOut int64) error {
	_, err := s.db.Exec(`
		INSERT INTO responder_usage (responder, calls, tokens_in, tokens_out)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(responder) DO UPDATE SET
			calls = calls + 1,
			tokens_in = tokens_in + excluded.tokens_in,
			tokens_out = tokens_out + excluded.tokens_out,
			updated_at = CURRENT_TIMESTAMP`,
		responder, tokensIn, tokensOut)
	if err != nil {
		return fmt.Errorf("add responder usage: %w", err)
	}
	return nil
}

func (s *Store) ListResponderUsage() ([]ResponderUsage, error) {
	rows, err := s.db.Query(`SELECT responder, calls, tokens_in, tokens_out FROM responder_usage ORDER BY responder`)
	if err != nil {
		return nil, fmt.Errorf("list responder usage: %w", err)
	}
	defer rows.Close()

	var out []ResponderUsage
	for rows.Next() {
		var u ResponderUsage
		if err := rows.Scan(&u.Responder, &u.Calls, &u.TokensIn, &u.TokensOut); err != nil {
			return nil, fmt.Errorf("scan responder usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
