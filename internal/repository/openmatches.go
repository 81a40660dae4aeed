package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

// Интервал открытого матча — интервал бронирования-якоря, поэтому выборка
// всегда идёт с соединением на bookings.
const openMatchColumns = `m.id, m.booking_id, m.creator_id, m.sport_type, m.slots_needed, m.status, b.start_time, b.end_time, m.created_at`

func scanOpenMatch(row pgx.Row) (*model.OpenMatch, error) {
	var m model.OpenMatch
	err := row.Scan(
		&m.ID, &m.BookingID, &m.CreatorID, &m.SportType, &m.SlotsNeeded,
		&m.Status, &m.Window.Start, &m.Window.End, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateOpenMatch сохраняет новый открытый матч.
func (r *PostgresRepository) CreateOpenMatch(ctx context.Context, m *model.OpenMatch) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO open_matches (id, booking_id, creator_id, sport_type, slots_needed, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.BookingID, m.CreatorID, m.SportType, m.SlotsNeeded, string(m.Status),
	)
	if err != nil {
		return mapConstraintError(fmt.Errorf("insert open match: %w", err))
	}
	return nil
}

// GetOpenMatchByID возвращает открытый матч по идентификатору.
func (r *PostgresRepository) GetOpenMatchByID(ctx context.Context, id uuid.UUID) (*model.OpenMatch, error) {
	m, err := scanOpenMatch(r.pool.QueryRow(ctx,
		`SELECT `+openMatchColumns+`
		 FROM open_matches m
		 JOIN bookings b ON b.id = m.booking_id
		 WHERE m.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: open match %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get open match: %w", err)
	}
	return m, nil
}

// ListParticipants возвращает участников открытого матча.
func (r *PostgresRepository) ListParticipants(ctx context.Context, matchID uuid.UUID) ([]model.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT open_match_id, user_id, joined_at
		 FROM open_participants
		 WHERE open_match_id = $1
		 ORDER BY joined_at`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	var res []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.OpenMatchID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func lockOpenMatch(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.OpenMatch, error) {
	// FOR UPDATE OF m: блокируется строка матча, бронирование не трогаем.
	m, err := scanOpenMatch(tx.QueryRow(ctx,
		`SELECT `+openMatchColumns+`
		 FROM open_matches m
		 JOIN bookings b ON b.id = m.booking_id
		 WHERE m.id = $1
		 FOR UPDATE OF m`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: open match %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("lock open match: %w", err)
	}
	return m, nil
}

func countParticipants(ctx context.Context, tx pgx.Tx, matchID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM open_participants WHERE open_match_id = $1`,
		matchID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func setOpenMatchStatus(ctx context.Context, tx pgx.Tx, matchID uuid.UUID, status model.OpenMatchStatus) error {
	_, err := tx.Exec(ctx,
		`UPDATE open_matches SET status = $2 WHERE id = $1`,
		matchID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update open match status: %w", err)
	}
	return nil
}

// JoinOpenMatch добавляет участника. Число участников пересчитывается под
// блокировкой строки матча и не превышает SlotsNeeded; при заполнении
// последнего места матч переходит в FULL.
func (r *PostgresRepository) JoinOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error) {
	var res *model.OpenMatch

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockOpenMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.Status != model.OpenMatchStatusOpen {
			return fmt.Errorf("%w: open match is %s", model.ErrInvalidState, m.Status)
		}

		n, err := countParticipants(ctx, tx, matchID)
		if err != nil {
			return err
		}
		last, err := admitToCapacity(n, m.SlotsNeeded, "open match")
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO open_participants (open_match_id, user_id) VALUES ($1, $2)`,
			matchID, userID,
		)
		if err != nil {
			return mapConstraintError(fmt.Errorf("insert participant: %w", err))
		}

		if last {
			if err := setOpenMatchStatus(ctx, tx, matchID, model.OpenMatchStatusFull); err != nil {
				return err
			}
			m.Status = model.OpenMatchStatusFull
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		res = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// LeaveOpenMatch убирает участника; заполненный матч возвращается в OPEN.
func (r *PostgresRepository) LeaveOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error) {
	var res *model.OpenMatch

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockOpenMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.Status == model.OpenMatchStatusClosed {
			return fmt.Errorf("%w: open match is closed", model.ErrInvalidState)
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM open_participants WHERE open_match_id = $1 AND user_id = $2`,
			matchID, userID,
		)
		if err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: user %d is not a participant", model.ErrNotFound, userID)
		}

		if m.Status == model.OpenMatchStatusFull {
			if err := setOpenMatchStatus(ctx, tx, matchID, model.OpenMatchStatusOpen); err != nil {
				return err
			}
			m.Status = model.OpenMatchStatusOpen
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		res = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// CloseOpenMatch принудительно закрывает матч; доступно только создателю.
func (r *PostgresRepository) CloseOpenMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.OpenMatch, error) {
	var res *model.OpenMatch

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockOpenMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.CreatorID != creatorID {
			return fmt.Errorf("%w: open match belongs to another user", model.ErrForbidden)
		}
		if !m.Status.CanTransitionTo(model.OpenMatchStatusClosed) {
			return fmt.Errorf("%w: open match is %s", model.ErrInvalidState, m.Status)
		}

		if err := setOpenMatchStatus(ctx, tx, matchID, model.OpenMatchStatusClosed); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		m.Status = model.OpenMatchStatusClosed
		res = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
