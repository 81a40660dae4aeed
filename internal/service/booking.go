package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/fieldbook-system/internal/model"
	"github.com/mmeshcher/fieldbook-system/internal/notify"
	"github.com/mmeshcher/fieldbook-system/internal/validation"
)

// SlotRequest описывает один запрашиваемый слот бронирования.
type SlotRequest struct {
	FieldID int64
	Window  model.TimeWindow
}

// IsFieldAvailable сообщает, свободна ли площадка на интервал. Проверка
// закрывается в сторону отказа: ошибка чтения означает «занято», молчаливое
// двойное бронирование недопустимо. Результат носит рекомендательный
// характер, решающая проверка выполняется в транзакции создания.
func (s *Service) IsFieldAvailable(ctx context.Context, fieldID int64, w model.TimeWindow) (bool, error) {
	if !w.Start.Before(w.End) {
		return false, fmt.Errorf("%w: window start must precede end", model.ErrValidation)
	}

	existing, err := s.repo.ListLiveBookingsByField(ctx, fieldID)
	if err != nil {
		return false, err
	}

	for _, b := range existing {
		if w.Overlaps(b.Window) {
			return false, nil
		}
	}
	return true, nil
}

// CreateBooking создаёт бронирование одного слота и инициирует платёж.
// Возвращает бронирование и адрес перенаправления на оплату.
func (s *Service) CreateBooking(ctx context.Context, userID, fieldID int64, w model.TimeWindow) (*model.Booking, string, error) {
	bookings, redirect, err := s.CreateBatchBooking(ctx, userID, []SlotRequest{{FieldID: fieldID, Window: w}})
	if err != nil {
		return nil, "", err
	}
	return &bookings[0], redirect, nil
}

// CreateBatchBooking атомарно бронирует набор слотов: либо создаются все,
// либо ни одного, и выставляется один агрегированный платёж со скидкой по
// уровню членства пользователя.
func (s *Service) CreateBatchBooking(ctx context.Context, userID int64, reqs []SlotRequest) ([]model.Booking, string, error) {
	bookings, err := s.createPendingBookings(ctx, userID, reqs)
	if err != nil {
		return nil, "", err
	}

	redirect, err := s.initiateCharge(ctx, userID, bookings)
	if err != nil {
		// Бронирования остаются PENDING и либо будут оплачены повторной
		// попыткой, либо отменены фоновой сверкой по истечении TTL.
		return nil, "", err
	}

	for i := range bookings {
		s.publish(ctx, notify.KeyBookingCreated, map[string]any{
			"booking_id": bookings[i].ID,
			"field_id":   bookings[i].FieldID,
			"user_id":    userID,
			"start":      bookings[i].Window.Start,
			"end":        bookings[i].Window.End,
		})
	}

	return bookings, redirect, nil
}

// createPendingBookings проверяет запросы и вставляет бронирования в статусе
// PENDING одной транзакцией.
func (s *Service) createPendingBookings(ctx context.Context, userID int64, reqs []SlotRequest) ([]model.Booking, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: empty booking batch", model.ErrValidation)
	}

	now := s.now()
	for _, req := range reqs {
		if err := validation.ValidateBookableWindow(req.Window, now); err != nil {
			return nil, err
		}
	}

	confirmedCount, err := s.repo.CountConfirmedByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	discount := membershipDiscountPercent(confirmedCount)

	bookings := make([]*model.Booking, 0, len(reqs))
	for _, req := range reqs {
		field, err := s.repo.GetFieldByID(ctx, req.FieldID)
		if err != nil {
			return nil, err
		}

		// Предварительная проверка даёт понятную ошибку без захвата блокировок;
		// решающая проверка повторяется в транзакции вставки.
		free, err := s.IsFieldAvailable(ctx, req.FieldID, req.Window)
		if err != nil {
			return nil, err
		}
		if !free {
			return nil, fmt.Errorf("%w: field %d busy for requested window", model.ErrConflict, req.FieldID)
		}

		bookings = append(bookings, &model.Booking{
			ID:         uuid.New(),
			FieldID:    req.FieldID,
			UserID:     userID,
			Window:     req.Window,
			Status:     model.BookingStatusPending,
			PriceCents: applyDiscount(slotPriceCents(field.HourlyRateCents, req.Window), discount),
		})
	}

	if err := s.repo.CreateBookings(ctx, bookings); err != nil {
		return nil, err
	}

	res := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		res = append(res, *b)
	}
	return res, nil
}

// initiateCharge выставляет один агрегированный платёж за набор бронирований
// и привязывает к ним полученный токен.
func (s *Service) initiateCharge(ctx context.Context, userID int64, bookings []model.Booking) (string, error) {
	if s.gateway == nil {
		return "", fmt.Errorf("%w: payment gateway not configured", model.ErrUpstream)
	}

	var total int64
	ids := make([]uuid.UUID, 0, len(bookings))
	for _, b := range bookings {
		total += b.PriceCents
		ids = append(ids, b.ID)
	}

	charge, err := s.gateway.Initiate(ctx, total, fmt.Sprintf("field booking for user %d, %d slot(s)", userID, len(bookings)))
	if err != nil {
		s.logger.Warn("payment initiation failed",
			zap.Int64("userID", userID),
			zap.Int("slots", len(bookings)),
			zap.Error(err))
		return "", err
	}

	if err := s.repo.SetPaymentToken(ctx, ids, charge.Token); err != nil {
		return "", err
	}

	return charge.RedirectURL, nil
}

// ConfirmPayment обрабатывает успешный колбэк шлюза: подтверждает все
// бронирования платёжного токена и завершает конвертацию привязанных
// черновиков матчей. Идемпотентна к дубликатам колбэков.
func (s *Service) ConfirmPayment(ctx context.Context, token, payerID string) ([]model.Booking, error) {
	confirmed, err := s.repo.ConfirmBookingsByToken(ctx, token, payerID)
	if err != nil {
		return nil, err
	}

	for i := range confirmed {
		b := &confirmed[i]

		if _, err := s.repo.MarkConvertedByBooking(ctx, b.ID); err != nil {
			s.logger.Error("mark draft match converted failed",
				zap.String("bookingID", b.ID.String()), zap.Error(err))
		}

		s.publish(ctx, notify.KeyBookingConfirmed, map[string]any{
			"booking_id": b.ID,
			"user_id":    b.UserID,
		})
	}

	return confirmed, nil
}

// HandlePaymentFailure обрабатывает отказ или отмену платежа: неоплаченные
// бронирования токена отменяются, слоты немедленно освобождаются.
func (s *Service) HandlePaymentFailure(ctx context.Context, token string) (int64, error) {
	n, err := s.repo.CancelPendingByToken(ctx, token)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.publish(ctx, notify.KeyBookingCancelled, map[string]any{
			"payment_token": token,
			"cancelled":     n,
		})
	}

	return n, nil
}

// CancelBooking отменяет бронирование по требованию владельца.
func (s *Service) CancelBooking(ctx context.Context, userID int64, bookingID uuid.UUID) (*model.Booking, error) {
	b, err := s.repo.CancelBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.KeyBookingCancelled, map[string]any{
		"booking_id": b.ID,
		"user_id":    b.UserID,
	})

	return b, nil
}

// GetBookingsByUser возвращает бронирования пользователя, новые первыми.
func (s *Service) GetBookingsByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	return s.repo.ListBookingsByUser(ctx, userID)
}
