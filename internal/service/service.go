// Package service реализует бизнес-логику движка бронирования площадок.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/fieldbook-system/internal/model"
	"github.com/mmeshcher/fieldbook-system/internal/payment"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)

	GetFieldByID(ctx context.Context, fieldID int64) (*model.Field, error)

	CreateBookings(ctx context.Context, bookings []*model.Booking) error
	GetBookingByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	ListLiveBookingsByField(ctx context.Context, fieldID int64) ([]model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]model.Booking, error)
	SetPaymentToken(ctx context.Context, ids []uuid.UUID, token string) error
	ConfirmBookingsByToken(ctx context.Context, token, payerID string) ([]model.Booking, error)
	CancelBooking(ctx context.Context, userID int64, id uuid.UUID) (*model.Booking, error)
	CancelPendingByToken(ctx context.Context, token string) (int64, error)
	CancelStalePending(ctx context.Context, olderThan time.Time) (int64, error)
	CountConfirmedByUser(ctx context.Context, userID int64) (int64, error)

	GetUserCommitments(ctx context.Context, userID int64, w model.TimeWindow) ([]model.Commitment, error)

	CreateDraftMatch(ctx context.Context, m *model.DraftMatch) error
	GetDraftMatchByID(ctx context.Context, id uuid.UUID) (*model.DraftMatch, error)
	ListInterests(ctx context.Context, matchID uuid.UUID) ([]model.Interest, error)
	CreateInterest(ctx context.Context, matchID uuid.UUID, userID int64) error
	AcceptInterest(ctx context.Context, matchID uuid.UUID, userID int64) (*model.DraftMatch, error)
	RejectInterest(ctx context.Context, matchID uuid.UUID, userID int64) (*model.DraftMatch, error)
	WithdrawInterest(ctx context.Context, matchID uuid.UUID, userID int64) error
	SetDraftMatchAwaiting(ctx context.Context, matchID, bookingID uuid.UUID) error
	MarkConvertedByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error)
	CancelDraftMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.DraftMatch, error)
	ReconcileConvertedDrafts(ctx context.Context) (int64, error)
	ExpireDraftMatches(ctx context.Context, now time.Time) (int64, error)

	CreateOpenMatch(ctx context.Context, m *model.OpenMatch) error
	GetOpenMatchByID(ctx context.Context, id uuid.UUID) (*model.OpenMatch, error)
	ListParticipants(ctx context.Context, matchID uuid.UUID) ([]model.Participant, error)
	JoinOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error)
	LeaveOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error)
	CloseOpenMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.OpenMatch, error)
}

// PaymentGateway описывает контракт внешнего платёжного шлюза.
type PaymentGateway interface {
	Initiate(ctx context.Context, amountCents int64, description string) (*payment.Charge, error)
}

// EventPublisher описывает контракт отправки доменных событий.
// Сбой публикации не влияет на результат операции.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Options содержит настройки бизнес-логики.
type Options struct {
	// PendingTTL — срок жизни неоплаченного бронирования до отмены сверкой.
	PendingTTL time.Duration
	// SweepInterval — период фоновой сверки.
	SweepInterval time.Duration
	// ReceiptClusterGap — максимальный разрыв по времени создания между
	// бронированиями одного чека.
	ReceiptClusterGap time.Duration
}

const (
	defaultPendingTTL        = 15 * time.Minute
	defaultSweepInterval     = time.Minute
	defaultReceiptClusterGap = 5 * time.Minute
)

// Service содержит бизнес-логику движка бронирования.
type Service struct {
	repo    Repository
	gateway PaymentGateway
	events  EventPublisher
	logger  *zap.Logger
	opts    Options

	now func() time.Time
}

// NewService создаёт сервис с указанными репозиторием и внешними
// коллабораторами; gateway и events могут быть nil в усечённых конфигурациях.
func NewService(repo Repository, gateway PaymentGateway, events EventPublisher, logger *zap.Logger, opts Options) *Service {
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = defaultPendingTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.ReceiptClusterGap <= 0 {
		opts.ReceiptClusterGap = defaultReceiptClusterGap
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:    repo,
		gateway: gateway,
		events:  events,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	return s.repo.CreateUser(ctx, login, hashed)
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return 0, fmt.Errorf("%w: invalid credentials", model.ErrForbidden)
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// publish отправляет событие, не влияя на исход операции.
func (s *Service) publish(ctx context.Context, key string, v any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(ctx, key, v); err != nil {
		s.logger.Warn("publish event failed", zap.String("key", key), zap.Error(err))
	}
}
