package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

const draftMatchColumns = `id, creator_id, sport_type, skill_level, start_time, end_time, slots_needed, status, booking_id, created_at`

func scanDraftMatch(row pgx.Row) (*model.DraftMatch, error) {
	var m model.DraftMatch
	err := row.Scan(
		&m.ID, &m.CreatorID, &m.SportType, &m.SkillLevel,
		&m.Window.Start, &m.Window.End,
		&m.SlotsNeeded, &m.Status, &m.BookingID, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateDraftMatch сохраняет новый черновик матча.
func (r *PostgresRepository) CreateDraftMatch(ctx context.Context, m *model.DraftMatch) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO draft_matches (id, creator_id, sport_type, skill_level, start_time, end_time, slots_needed, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.CreatorID, m.SportType, m.SkillLevel,
		m.Window.Start, m.Window.End, m.SlotsNeeded, string(m.Status),
	)
	if err != nil {
		return mapConstraintError(fmt.Errorf("insert draft match: %w", err))
	}
	return nil
}

// GetDraftMatchByID возвращает черновик матча по идентификатору.
func (r *PostgresRepository) GetDraftMatchByID(ctx context.Context, id uuid.UUID) (*model.DraftMatch, error) {
	m, err := scanDraftMatch(r.pool.QueryRow(ctx,
		`SELECT `+draftMatchColumns+` FROM draft_matches WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: draft match %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get draft match: %w", err)
	}
	return m, nil
}

// ListInterests возвращает заявки черновика матча.
func (r *PostgresRepository) ListInterests(ctx context.Context, matchID uuid.UUID) ([]model.Interest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT draft_match_id, user_id, status, created_at
		 FROM draft_interests
		 WHERE draft_match_id = $1
		 ORDER BY created_at`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("select interests: %w", err)
	}
	defer rows.Close()

	var res []model.Interest
	for rows.Next() {
		var i model.Interest
		if err := rows.Scan(&i.DraftMatchID, &i.UserID, &i.Status, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		res = append(res, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// lockDraftMatch читает черновик матча под блокировкой строки. Все операции,
// меняющие число принятых заявок, сериализуются через эту блокировку.
func lockDraftMatch(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.DraftMatch, error) {
	m, err := scanDraftMatch(tx.QueryRow(ctx,
		`SELECT `+draftMatchColumns+` FROM draft_matches WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: draft match %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("lock draft match: %w", err)
	}
	return m, nil
}

// Число принятых заявок считается по строкам, а не по кэшируемому счётчику,
// чтобы исключить расхождение.
func countAccepted(ctx context.Context, tx pgx.Tx, matchID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM draft_interests WHERE draft_match_id = $1 AND status = $2`,
		matchID, string(model.InterestStatusAccepted),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accepted interests: %w", err)
	}
	return n, nil
}

// CreateInterest регистрирует заявку пользователя на участие в черновике.
// Повторная заявка того же пользователя отклоняется как конфликт.
func (r *PostgresRepository) CreateInterest(ctx context.Context, matchID uuid.UUID, userID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockDraftMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.Status != model.DraftMatchStatusRecruiting {
			return fmt.Errorf("%w: draft match is %s", model.ErrInvalidState, m.Status)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO draft_interests (draft_match_id, user_id, status)
			 VALUES ($1, $2, $3)`,
			matchID, userID, string(model.InterestStatusPending),
		)
		if err != nil {
			return mapConstraintError(fmt.Errorf("insert interest: %w", err))
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func lockInterest(ctx context.Context, tx pgx.Tx, matchID uuid.UUID, userID int64) (*model.Interest, error) {
	var i model.Interest
	err := tx.QueryRow(ctx,
		`SELECT draft_match_id, user_id, status, created_at
		 FROM draft_interests
		 WHERE draft_match_id = $1 AND user_id = $2
		 FOR UPDATE`,
		matchID, userID,
	).Scan(&i.DraftMatchID, &i.UserID, &i.Status, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: interest of user %d", model.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("lock interest: %w", err)
	}
	return &i, nil
}

func setInterestStatus(ctx context.Context, tx pgx.Tx, matchID uuid.UUID, userID int64, status model.InterestStatus) error {
	_, err := tx.Exec(ctx,
		`UPDATE draft_interests SET status = $3 WHERE draft_match_id = $1 AND user_id = $2`,
		matchID, userID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update interest: %w", err)
	}
	return nil
}

func setDraftMatchStatus(ctx context.Context, tx pgx.Tx, matchID uuid.UUID, status model.DraftMatchStatus) error {
	_, err := tx.Exec(ctx,
		`UPDATE draft_matches SET status = $2 WHERE id = $1`,
		matchID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update draft match status: %w", err)
	}
	return nil
}

// AcceptInterest принимает заявку пользователя. Число принятых заявок
// пересчитывается под блокировкой строки матча и не может превысить
// SlotsNeeded; при заполнении последнего места матч переходит в FULL.
func (r *PostgresRepository) AcceptInterest(ctx context.Context, matchID uuid.UUID, userID int64) (*model.DraftMatch, error) {
	var res *model.DraftMatch

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockDraftMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.Status != model.DraftMatchStatusRecruiting {
			return fmt.Errorf("%w: draft match is %s", model.ErrInvalidState, m.Status)
		}

		i, err := lockInterest(ctx, tx, matchID, userID)
		if err != nil {
			return err
		}
		if i.Status == model.InterestStatusAccepted {
			// Повторное принятие — не ошибка, состояние не меняется.
			res = m
			return nil
		}
		if !i.Status.CanTransitionTo(model.InterestStatusAccepted) {
			return fmt.Errorf("%w: interest is %s", model.ErrInvalidState, i.Status)
		}

		accepted, err := countAccepted(ctx, tx, matchID)
		if err != nil {
			return err
		}
		last, err := admitToCapacity(accepted, m.SlotsNeeded, "draft match")
		if err != nil {
			return err
		}

		if err := setInterestStatus(ctx, tx, matchID, userID, model.InterestStatusAccepted); err != nil {
			return err
		}

		if last {
			if err := setDraftMatchStatus(ctx, tx, matchID, model.DraftMatchStatusFull); err != nil {
				return err
			}
			m.Status = model.DraftMatchStatusFull
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

// RejectInterest отклоняет заявку. Отклонение принятой заявки освобождает
// место: заполненный матч возвращается в набор.
func (r *PostgresRepository) RejectInterest(ctx context.Context, matchID uuid.UUID, userID int64) (*model.DraftMatch, error) {
	var res *model.DraftMatch

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockDraftMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.Status.Terminal() {
			return fmt.Errorf("%w: draft match is %s", model.ErrInvalidState, m.Status)
		}

		i, err := lockInterest(ctx, tx, matchID, userID)
		if err != nil {
			return err
		}
		if !i.Status.CanTransitionTo(model.InterestStatusRejected) {
			return fmt.Errorf("%w: interest is %s", model.ErrInvalidState, i.Status)
		}

		if err := setInterestStatus(ctx, tx, matchID, userID, model.InterestStatusRejected); err != nil {
			return err
		}

		if i.Status == model.InterestStatusAccepted && m.Status == model.DraftMatchStatusFull {
			if err := setDraftMatchStatus(ctx, tx, matchID, model.DraftMatchStatusRecruiting); err != nil {
				return err
			}
			m.Status = model.DraftMatchStatusRecruiting
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

// WithdrawInterest отзывает собственную заявку; отозвать можно только
// не рассмотренную (PENDING) заявку.
func (r *PostgresRepository) WithdrawInterest(ctx context.Context, matchID uuid.UUID, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE draft_interests SET status = $3
		 WHERE draft_match_id = $1 AND user_id = $2 AND status = $4`,
		matchID, userID,
		string(model.InterestStatusWithdrawn), string(model.InterestStatusPending),
	)
	if err != nil {
		return fmt.Errorf("withdraw interest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := r.pool.QueryRow(ctx,
			`SELECT status FROM draft_interests WHERE draft_match_id = $1 AND user_id = $2`,
			matchID, userID,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: interest of user %d", model.ErrNotFound, userID)
		}
		if err != nil {
			return fmt.Errorf("get interest: %w", err)
		}
		return fmt.Errorf("%w: interest is %s", model.ErrInvalidState, status)
	}
	return nil
}

// SetDraftMatchAwaiting переводит черновик в ожидание подтверждения оплаты
// и привязывает созданное бронирование.
func (r *PostgresRepository) SetDraftMatchAwaiting(ctx context.Context, matchID, bookingID uuid.UUID) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockDraftMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if !m.Status.CanTransitionTo(model.DraftMatchStatusAwaiting) {
			return fmt.Errorf("%w: draft match is %s", model.ErrInvalidState, m.Status)
		}

		_, err = tx.Exec(ctx,
			`UPDATE draft_matches SET status = $2, booking_id = $3 WHERE id = $1`,
			matchID, string(model.DraftMatchStatusAwaiting), bookingID,
		)
		if err != nil {
			return fmt.Errorf("update draft match: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// MarkConvertedByBooking завершает конвертацию черновиков, привязанных к
// подтверждённому бронированию.
func (r *PostgresRepository) MarkConvertedByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE draft_matches SET status = $2
		 WHERE booking_id = $1 AND status = $3`,
		bookingID, string(model.DraftMatchStatusConverted), string(model.DraftMatchStatusAwaiting),
	)
	if err != nil {
		return 0, fmt.Errorf("mark converted: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReconcileConvertedDrafts завершает конвертацию черновиков, оставшихся в
// AWAITING_CONFIRMATION при уже подтверждённом бронировании-якоре: колбэк
// оплаты мог подтвердить бронирование, но не успеть пометить черновик.
func (r *PostgresRepository) ReconcileConvertedDrafts(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE draft_matches m SET status = $1
		 FROM bookings b
		 WHERE b.id = m.booking_id AND m.status = $2 AND b.status = $3`,
		string(model.DraftMatchStatusConverted),
		string(model.DraftMatchStatusAwaiting),
		string(model.BookingStatusConfirmed),
	)
	if err != nil {
		return 0, fmt.Errorf("reconcile converted drafts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CancelDraftMatch отменяет черновик из любого неконечного состояния.
func (r *PostgresRepository) CancelDraftMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.DraftMatch, error) {
	var res *model.DraftMatch

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		m, err := lockDraftMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.CreatorID != creatorID {
			return fmt.Errorf("%w: draft match belongs to another user", model.ErrForbidden)
		}
		if !m.Status.CanTransitionTo(model.DraftMatchStatusCancelled) {
			return fmt.Errorf("%w: draft match is %s", model.ErrInvalidState, m.Status)
		}

		if err := setDraftMatchStatus(ctx, tx, matchID, model.DraftMatchStatusCancelled); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		m.Status = model.DraftMatchStatusCancelled
		res = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// ExpireDraftMatches переводит в EXPIRED черновики, чей интервал прошёл без
// конвертации в бронирование.
func (r *PostgresRepository) ExpireDraftMatches(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE draft_matches SET status = $2
		 WHERE status IN ($3, $4, $5) AND end_time < $1`,
		now, string(model.DraftMatchStatusExpired),
		string(model.DraftMatchStatusRecruiting),
		string(model.DraftMatchStatusFull),
		string(model.DraftMatchStatusAwaiting),
	)
	if err != nil {
		return 0, fmt.Errorf("expire draft matches: %w", err)
	}
	return tag.RowsAffected(), nil
}
