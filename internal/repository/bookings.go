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

const bookingColumns = `id, field_id, user_id, start_time, end_time, status, payment_token, payer_id, price, created_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.FieldID, &b.UserID,
		&b.Window.Start, &b.Window.End,
		&b.Status, &b.PaymentToken, &b.PayerID, &b.PriceCents, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// lockOverlapping блокирует живые бронирования площадки, пересекающиеся с
// интервалом, и возвращает их число. Блокировка закрывает гонку между
// проверкой доступности и вставкой: конкурирующая транзакция ждёт на тех же
// строках и увидит результат первой.
func lockOverlapping(ctx context.Context, tx pgx.Tx, fieldID int64, w model.TimeWindow, exclude uuid.UUID) (int, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM bookings
		 WHERE field_id = $1
		   AND status IN ($2, $3)
		   AND start_time < $4 AND end_time > $5
		   AND id <> $6
		 FOR UPDATE`,
		fieldID,
		string(model.BookingStatusPending), string(model.BookingStatusConfirmed),
		w.End, w.Start,
		exclude,
	)
	if err != nil {
		return 0, fmt.Errorf("lock overlapping bookings: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan booking id: %w", err)
		}
		n++
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}

	return n, nil
}

// CreateBookings атомарно создаёт набор бронирований в статусе PENDING.
// Если хотя бы один слот занят, не сохраняется ни одно бронирование.
// Повторная проверка пересечений выполняется внутри транзакции под
// блокировкой строк; exclusion-ограничение схемы страхует от пропусков.
func (r *PostgresRepository) CreateBookings(ctx context.Context, bookings []*model.Booking) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, b := range bookings {
			n, err := lockOverlapping(ctx, tx, b.FieldID, b.Window, b.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: field %d busy from %s to %s",
					model.ErrConflict, b.FieldID, b.Window.Start.Format(time.RFC3339), b.Window.End.Format(time.RFC3339))
			}

			_, err = tx.Exec(ctx,
				`INSERT INTO bookings (id, field_id, user_id, start_time, end_time, status, payment_token, price)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				b.ID, b.FieldID, b.UserID,
				b.Window.Start, b.Window.End,
				string(b.Status), b.PaymentToken, b.PriceCents,
			)
			if err != nil {
				return mapConstraintError(fmt.Errorf("insert booking: %w", err))
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetBookingByID возвращает бронирование по идентификатору.
func (r *PostgresRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListLiveBookingsByField возвращает бронирования площадки в живых статусах.
func (r *PostgresRepository) ListLiveBookingsByField(ctx context.Context, fieldID int64) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE field_id = $1 AND status IN ($2, $3)
		 ORDER BY start_time`,
		fieldID, string(model.BookingStatusPending), string(model.BookingStatusConfirmed),
	)
	if err != nil {
		return nil, fmt.Errorf("select field bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// ListBookingsByUser возвращает бронирования пользователя, новые первыми.
func (r *PostgresRepository) ListBookingsByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	var res []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// SetPaymentToken привязывает платёжный токен к набору бронирований.
// Пакет слотов оплачивается одним платежом и несёт один общий токен.
func (r *PostgresRepository) SetPaymentToken(ctx context.Context, ids []uuid.UUID, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE bookings SET payment_token = $2 WHERE id = ANY($1)`,
		ids, token,
	)
	if err != nil {
		return fmt.Errorf("set payment token: %w", err)
	}
	return nil
}

// confirmPlan описывает решение по пакету бронирований одного платёжного
// токена при подтверждении платежа: какие строки переводить в CONFIRMED и
// какие уже подтверждены ранее.
type confirmPlan struct {
	apply   []int // индексы PENDING-бронирований, подлежащих переводу
	settled []int // индексы уже подтверждённых: дубликат колбэка, без изменений
}

// planConfirmation классифицирует бронирования токена. Отменённые строки
// пропускаются; если отменён весь пакет, возвращается ErrInvalidState —
// проигравший гонку отмены и подтверждения узнаёт об этом явно.
func planConfirmation(batch []model.Booking) (confirmPlan, error) {
	var p confirmPlan
	for i := range batch {
		switch batch[i].Status {
		case model.BookingStatusConfirmed:
			p.settled = append(p.settled, i)
		case model.BookingStatusCancelled:
		default:
			p.apply = append(p.apply, i)
		}
	}
	if len(p.apply) == 0 && len(p.settled) == 0 {
		return confirmPlan{}, fmt.Errorf("%w: all bookings for token already cancelled", model.ErrInvalidState)
	}
	return p, nil
}

// ConfirmBookingsByToken переводит бронирования с указанным платёжным токеном
// в статус CONFIRMED. Идемпотентна: уже подтверждённые бронирования
// возвращаются без изменений, повторный вызов колбэка шлюза не ошибка.
func (r *PostgresRepository) ConfirmBookingsByToken(ctx context.Context, token, payerID string) ([]model.Booking, error) {
	var confirmed []model.Booking

	err := r.withRetry(ctx, func() error {
		confirmed = confirmed[:0]

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE payment_token = $1 FOR UPDATE`,
			token,
		)
		if err != nil {
			return fmt.Errorf("select by token: %w", err)
		}
		batch, err := collectBookings(rows)
		if err != nil {
			return err
		}

		if len(batch) == 0 {
			return fmt.Errorf("%w: payment token %s", model.ErrNotFound, token)
		}

		plan, err := planConfirmation(batch)
		if err != nil {
			return err
		}

		for _, i := range plan.settled {
			confirmed = append(confirmed, batch[i])
		}

		for _, i := range plan.apply {
			b := &batch[i]

			// Страховочная проверка: между созданием и подтверждением слот не
			// должен был достаться другому подтверждённому бронированию.
			n, err := lockOverlapping(ctx, tx, b.FieldID, b.Window, b.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: slot reclaimed before confirmation", model.ErrConflict)
			}

			_, err = tx.Exec(ctx,
				`UPDATE bookings SET status = $2, payer_id = $3 WHERE id = $1`,
				b.ID, string(model.BookingStatusConfirmed), payerID,
			)
			if err != nil {
				return fmt.Errorf("confirm booking: %w", err)
			}

			b.Status = model.BookingStatusConfirmed
			b.PayerID = payerID
			confirmed = append(confirmed, *b)
		}

		if len(plan.apply) > 0 {
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit tx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return confirmed, nil
}

// CancelBooking отменяет бронирование по требованию владельца.
func (r *PostgresRepository) CancelBooking(ctx context.Context, userID int64, id uuid.UUID) (*model.Booking, error) {
	var res *model.Booking

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		b, err := scanBooking(tx.QueryRow(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
			}
			return fmt.Errorf("get booking: %w", err)
		}

		if b.UserID != userID {
			return fmt.Errorf("%w: booking belongs to another user", model.ErrForbidden)
		}
		if !b.Status.CanTransitionTo(model.BookingStatusCancelled) {
			return fmt.Errorf("%w: booking already %s", model.ErrInvalidState, b.Status)
		}

		_, err = tx.Exec(ctx,
			`UPDATE bookings SET status = $2 WHERE id = $1`,
			id, string(model.BookingStatusCancelled),
		)
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		b.Status = model.BookingStatusCancelled
		res = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// CancelPendingByToken отменяет неоплаченные бронирования платёжного токена,
// немедленно освобождая слоты после отказа или отмены платежа.
func (r *PostgresRepository) CancelPendingByToken(ctx context.Context, token string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET status = $2
		 WHERE payment_token = $1 AND status = $3`,
		token, string(model.BookingStatusCancelled), string(model.BookingStatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel by token: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CancelStalePending отменяет зависшие PENDING-бронирования, созданные раньше
// указанного момента: платёж по ним так и не завершился.
func (r *PostgresRepository) CancelStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET status = $2
		 WHERE status = $3 AND created_at < $1`,
		olderThan, string(model.BookingStatusCancelled), string(model.BookingStatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel stale pending: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountConfirmedByUser возвращает число подтверждённых бронирований
// пользователя за всё время. По нему вычисляется уровень членства.
func (r *PostgresRepository) CountConfirmedByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE user_id = $1 AND status = $2`,
		userID, string(model.BookingStatusConfirmed),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count confirmed bookings: %w", err)
	}
	return n, nil
}
