package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/fieldbook-system/internal/model"
	"github.com/mmeshcher/fieldbook-system/internal/notify"
	"github.com/mmeshcher/fieldbook-system/internal/validation"
)

// CreateDraftMatch создаёт черновик матча: создатель набирает игроков на
// интервал, для которого бронирования ещё нет. Интервал создателя тоже
// обязательство, поэтому пересечение с его расписанием отклоняется сразу.
func (s *Service) CreateDraftMatch(ctx context.Context, creatorID int64, sportType, skillLevel string, w model.TimeWindow, slotsNeeded int) (*model.DraftMatch, error) {
	if err := validation.ValidateBookableWindow(w, s.now()); err != nil {
		return nil, err
	}
	if err := validation.ValidateSlots(slotsNeeded); err != nil {
		return nil, err
	}
	if sportType == "" {
		return nil, fmt.Errorf("%w: sport type is required", model.ErrValidation)
	}

	if err := s.ensureNoUserConflicts(ctx, creatorID, w); err != nil {
		return nil, err
	}

	m := &model.DraftMatch{
		ID:          uuid.New(),
		CreatorID:   creatorID,
		SportType:   sportType,
		SkillLevel:  skillLevel,
		Window:      w,
		SlotsNeeded: slotsNeeded,
		Status:      model.DraftMatchStatusRecruiting,
	}

	if err := s.repo.CreateDraftMatch(ctx, m); err != nil {
		return nil, err
	}

	return m, nil
}

// GetDraftMatch возвращает черновик матча вместе с заявками.
func (s *Service) GetDraftMatch(ctx context.Context, matchID uuid.UUID) (*model.DraftMatch, []model.Interest, error) {
	m, err := s.repo.GetDraftMatchByID(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	interests, err := s.repo.ListInterests(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	return m, interests, nil
}

// ExpressInterest регистрирует заявку пользователя на участие.
// Создатель не подаёт заявку в собственный матч.
func (s *Service) ExpressInterest(ctx context.Context, matchID uuid.UUID, userID int64) error {
	m, err := s.repo.GetDraftMatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	if m.CreatorID == userID {
		return fmt.Errorf("%w: creator cannot apply to own draft match", model.ErrForbidden)
	}

	return s.repo.CreateInterest(ctx, matchID, userID)
}

// AcceptInterest принимает заявку пользователя. Перед принятием расписание
// пользователя проверяется на пересечения: две принятые заявки на один вечер
// недопустимы, даже если ни одна ещё не стала бронированием.
func (s *Service) AcceptInterest(ctx context.Context, creatorID int64, matchID uuid.UUID, userID int64) (*model.DraftMatch, error) {
	m, err := s.repo.GetDraftMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.CreatorID != creatorID {
		return nil, fmt.Errorf("%w: only creator manages interests", model.ErrForbidden)
	}

	if err := s.ensureNoUserConflicts(ctx, userID, m.Window, m.ID); err != nil {
		return nil, err
	}

	updated, err := s.repo.AcceptInterest(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.KeyInterestAccepted, map[string]any{
		"draft_match_id": matchID,
		"user_id":        userID,
		"status":         updated.Status,
	})

	return updated, nil
}

// RejectInterest отклоняет заявку пользователя.
func (s *Service) RejectInterest(ctx context.Context, creatorID int64, matchID uuid.UUID, userID int64) (*model.DraftMatch, error) {
	m, err := s.repo.GetDraftMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.CreatorID != creatorID {
		return nil, fmt.Errorf("%w: only creator manages interests", model.ErrForbidden)
	}

	return s.repo.RejectInterest(ctx, matchID, userID)
}

// WithdrawInterest отзывает собственную заявку пользователя.
func (s *Service) WithdrawInterest(ctx context.Context, matchID uuid.UUID, userID int64) error {
	return s.repo.WithdrawInterest(ctx, matchID, userID)
}

// ConvertDraftMatch превращает черновик в реальное бронирование: создатель
// выбирает площадку, создаётся PENDING-бронирование на интервал черновика и
// выставляется платёж. Черновик переходит в AWAITING_CONFIRMATION и станет
// CONVERTED после подтверждения оплаты.
func (s *Service) ConvertDraftMatch(ctx context.Context, creatorID int64, matchID uuid.UUID, fieldID int64) (*model.Booking, string, error) {
	m, err := s.repo.GetDraftMatchByID(ctx, matchID)
	if err != nil {
		return nil, "", err
	}
	if m.CreatorID != creatorID {
		return nil, "", fmt.Errorf("%w: only creator converts the draft match", model.ErrForbidden)
	}
	if !m.Status.CanTransitionTo(model.DraftMatchStatusAwaiting) {
		return nil, "", fmt.Errorf("%w: draft match is %s", model.ErrInvalidState, m.Status)
	}

	if err := s.ensureNoUserConflicts(ctx, creatorID, m.Window, m.ID); err != nil {
		return nil, "", err
	}

	bookings, err := s.createPendingBookings(ctx, creatorID, []SlotRequest{{FieldID: fieldID, Window: m.Window}})
	if err != nil {
		return nil, "", err
	}
	booking := &bookings[0]

	if err := s.repo.SetDraftMatchAwaiting(ctx, matchID, booking.ID); err != nil {
		return nil, "", err
	}

	redirect, err := s.initiateCharge(ctx, creatorID, bookings)
	if err != nil {
		// Черновик остаётся в AWAITING_CONFIRMATION с неоплаченным
		// бронированием; фоновая сверка отменит бронирование по TTL,
		// просроченный черновик переведёт в EXPIRED.
		return nil, "", err
	}

	s.publish(ctx, notify.KeyBookingCreated, map[string]any{
		"booking_id":     booking.ID,
		"draft_match_id": matchID,
		"field_id":       fieldID,
		"user_id":        creatorID,
	})

	return booking, redirect, nil
}

// CancelDraftMatch отменяет черновик из любого неконечного состояния.
func (s *Service) CancelDraftMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.DraftMatch, error) {
	return s.repo.CancelDraftMatch(ctx, creatorID, matchID)
}
