// Package postgres persists completed conversation turns as an audit log.
// Persistence is best-effort: the in-memory session window is authoritative
// for prompting, the table is for inspection and replay.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

type TurnLog struct {
	db *sql.DB
}

func NewTurnLog(db *sql.DB) *TurnLog {
	return &TurnLog{db: db}
}

func (r *TurnLog) AppendTurn(ctx context.Context, sessionID string, turn domain.ConversationTurn) error {
	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now().UTC()
	}
	citations, err := json.Marshal(turn.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO conversation_turns (id, session_id, question, rewritten_query, answer, citations, confidence, sources_used, asked_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, uuid.NewString(), sessionID, turn.Question, turn.RewrittenQuery, turn.Answer, citations, string(turn.Confidence), turn.SourcesUsed, turn.AskedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// RecentTurns returns the newest turns of a session in chronological order.
func (r *TurnLog) RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT question, rewritten_query, answer, citations, confidence, sources_used, asked_at
FROM conversation_turns
WHERE session_id = $1
ORDER BY asked_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationTurn, 0, limit)
	for rows.Next() {
		var (
			turn       domain.ConversationTurn
			citations  []byte
			confidence string
		)
		if err := rows.Scan(
			&turn.Question,
			&turn.RewrittenQuery,
			&turn.Answer,
			&citations,
			&confidence,
			&turn.SourcesUsed,
			&turn.AskedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &turn.Citations); err != nil {
				return nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		turn.Confidence, _ = domain.ParseConfidence(confidence)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	// SQL returns newest first; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteSession removes the persisted history of one session.
func (r *TurnLog) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session turns: %w", err)
	}
	return nil
}
