package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

// GetUserCommitments собирает обязательства пользователя, пересекающиеся с
// интервалом, из трёх независимых источников: живые бронирования, черновики
// матчей с принятой заявкой (создатель считается принятым) и открытые матчи,
// к которым пользователь присоединился. SQL-предикат пересечения
// (start < $to AND end > $from) дословно повторяет модельный примитив для
// полуоткрытых интервалов; итоговую проверку выполняет он же на стороне
// сервиса.
func (r *PostgresRepository) GetUserCommitments(ctx context.Context, userID int64, w model.TimeWindow) ([]model.Commitment, error) {
	var res []model.Commitment

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, start_time, end_time FROM bookings
		 WHERE user_id = $1
		   AND status IN ($2, $3)
		   AND start_time < $4 AND end_time > $5`,
		userID,
		string(model.BookingStatusPending), string(model.BookingStatusConfirmed),
		w.End, w.Start,
	)
	if err != nil {
		return nil, fmt.Errorf("select booking commitments: %w", err)
	}
	res, err = collectCommitments(rows, res, model.CommitmentBooking)
	if err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT m.id, $1::bigint, m.start_time, m.end_time FROM draft_matches m
		 WHERE m.status IN ($2, $3, $4)
		   AND m.start_time < $5 AND m.end_time > $6
		   AND (m.creator_id = $1 OR EXISTS (
		       SELECT 1 FROM draft_interests i
		       WHERE i.draft_match_id = m.id AND i.user_id = $1 AND i.status = $7))`,
		userID,
		string(model.DraftMatchStatusRecruiting),
		string(model.DraftMatchStatusFull),
		string(model.DraftMatchStatusAwaiting),
		w.End, w.Start,
		string(model.InterestStatusAccepted),
	)
	if err != nil {
		return nil, fmt.Errorf("select draft match commitments: %w", err)
	}
	res, err = collectCommitments(rows, res, model.CommitmentDraftMatch)
	if err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT m.id, p.user_id, b.start_time, b.end_time
		 FROM open_matches m
		 JOIN open_participants p ON p.open_match_id = m.id
		 JOIN bookings b ON b.id = m.booking_id
		 WHERE p.user_id = $1
		   AND m.status IN ($2, $3)
		   AND b.start_time < $4 AND b.end_time > $5`,
		userID,
		string(model.OpenMatchStatusOpen), string(model.OpenMatchStatusFull),
		w.End, w.Start,
	)
	if err != nil {
		return nil, fmt.Errorf("select open match commitments: %w", err)
	}
	res, err = collectCommitments(rows, res, model.CommitmentOpenMatch)
	if err != nil {
		return nil, err
	}

	return res, nil
}

func collectCommitments(rows pgx.Rows, res []model.Commitment, kind model.CommitmentKind) ([]model.Commitment, error) {
	defer rows.Close()

	for rows.Next() {
		c := model.Commitment{Kind: kind}
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Window.Start, &c.Window.End); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
