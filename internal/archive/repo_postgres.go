package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/pkg/utils"
)

// PostgresRepo stores calls in the calls and call_turns tables.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (p *PostgresRepo) Save(ctx context.Context, r Record) error {
	if r.CallID == "" {
		return errors.New("archive: call_id required")
	}
	r = r.normalize()

	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calls (call_id, from_number, to_number, language, reason, turn_count,
				notified, notify_error, summary, started_at, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
			r.CallID, r.From, r.To, r.Language, r.Reason, r.TurnCount,
			r.Notified, r.NotifyError, r.Summary, r.StartedAt, r.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("insert call: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO call_turns (call_id, seq, speaker, text, spoken_at)
			VALUES ($1, $2, $3, $4, $5)`)
		if err != nil {
			return fmt.Errorf("prepare turns: %w", err)
		}
		defer stmt.Close()

		for i, t := range r.Turns {
			if _, err := stmt.ExecContext(ctx, r.CallID, i, string(t.Speaker), t.Text, t.At); err != nil {
				return fmt.Errorf("insert turn %d: %w", i, err)
			}
		}
		return nil
	})
	if utils.IsUniqueViolation(err) {
		// Already archived; the first record wins.
		return nil
	}
	return err
}

func (p *PostgresRepo) Get(ctx context.Context, callID string) (Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT call_id, from_number, to_number, language, reason, turn_count,
			notified, COALESCE(notify_error, ''), COALESCE(summary, ''), started_at, ended_at
		FROM calls WHERE call_id = $1`, callID)

	var r Record
	if err := scanRecord(row, &r); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("select call: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT speaker, text, spoken_at FROM call_turns WHERE call_id = $1 ORDER BY seq`, callID)
	if err != nil {
		return Record{}, fmt.Errorf("select turns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t       session.Turn
			speaker string
		)
		if err := rows.Scan(&speaker, &t.Text, &t.At); err != nil {
			return Record{}, fmt.Errorf("scan turn: %w", err)
		}
		t.Speaker = session.Speaker(speaker)
		r.Turns = append(r.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (p *PostgresRepo) List(ctx context.Context, from, to time.Time) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT call_id, from_number, to_number, language, reason, turn_count,
			notified, COALESCE(notify_error, ''), COALESCE(summary, ''), started_at, ended_at
		FROM calls
		WHERE ended_at >= $1 AND ended_at < $2
		ORDER BY ended_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := scanRecord(rows, &r); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, r *Record) error {
	return s.Scan(&r.CallID, &r.From, &r.To, &r.Language, &r.Reason, &r.TurnCount,
		&r.Notified, &r.NotifyError, &r.Summary, &r.StartedAt, &r.EndedAt)
}
