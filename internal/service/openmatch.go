package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/fieldbook-system/internal/model"
	"github.com/mmeshcher/fieldbook-system/internal/notify"
	"github.com/mmeshcher/fieldbook-system/internal/validation"
)

// CreateOpenMatch создаёт открытый матч поверх существующего бронирования.
// Якорем служит только собственное подтверждённое бронирование: неоплаченный
// или отменённый слот звать людей не на что.
func (s *Service) CreateOpenMatch(ctx context.Context, creatorID int64, bookingID uuid.UUID, sportType string, slotsNeeded int) (*model.OpenMatch, error) {
	if err := validation.ValidateSlots(slotsNeeded); err != nil {
		return nil, err
	}
	if sportType == "" {
		return nil, fmt.Errorf("%w: sport type is required", model.ErrValidation)
	}

	b, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != creatorID {
		return nil, fmt.Errorf("%w: booking belongs to another user", model.ErrForbidden)
	}
	if b.Status != model.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: booking is %s, open match requires confirmed booking", model.ErrInvalidState, b.Status)
	}

	m := &model.OpenMatch{
		ID:          uuid.New(),
		BookingID:   bookingID,
		CreatorID:   creatorID,
		SportType:   sportType,
		SlotsNeeded: slotsNeeded,
		Status:      model.OpenMatchStatusOpen,
		Window:      b.Window,
	}

	if err := s.repo.CreateOpenMatch(ctx, m); err != nil {
		return nil, err
	}

	return m, nil
}

// GetOpenMatch возвращает открытый матч вместе с участниками.
func (s *Service) GetOpenMatch(ctx context.Context, matchID uuid.UUID) (*model.OpenMatch, []model.Participant, error) {
	m, err := s.repo.GetOpenMatchByID(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	participants, err := s.repo.ListParticipants(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	return m, participants, nil
}

// JoinOpenMatch присоединяет пользователя к открытому матчу. Интервал матча —
// интервал бронирования-якоря; пересечение с расписанием пользователя,
// включая принятые заявки в черновики, отклоняется валидатором конфликтов.
func (s *Service) JoinOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error) {
	m, err := s.repo.GetOpenMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.CreatorID == userID {
		return nil, fmt.Errorf("%w: creator already occupies the anchor booking", model.ErrForbidden)
	}

	if err := s.ensureNoUserConflicts(ctx, userID, m.Window, m.ID, m.BookingID); err != nil {
		return nil, err
	}

	updated, err := s.repo.JoinOpenMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.KeyOpenMatchJoined, map[string]any{
		"open_match_id": matchID,
		"user_id":       userID,
		"status":        updated.Status,
	})

	return updated, nil
}

// LeaveOpenMatch убирает пользователя из открытого матча.
func (s *Service) LeaveOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error) {
	return s.repo.LeaveOpenMatch(ctx, matchID, userID)
}

// CloseOpenMatch принудительно закрывает матч; доступно только создателю.
func (s *Service) CloseOpenMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.OpenMatch, error) {
	return s.repo.CloseOpenMatch(ctx, creatorID, matchID)
}
