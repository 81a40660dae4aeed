package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/fieldbook-system/internal/model"
	"github.com/mmeshcher/fieldbook-system/internal/payment"
	"github.com/mmeshcher/fieldbook-system/internal/repository"
)

// stubRepo реализует Repository с настраиваемыми ответами и записью вызовов.
type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	field    *model.Field
	fieldErr error

	liveBookings    []model.Booking
	liveBookingsErr error

	userBookings    []model.Booking
	userBookingsErr error

	confirmedCount    int64
	confirmedCountErr error

	createBookingsErr error
	createdBatches    [][]*model.Booking

	setTokenErr error
	tokenIDs    []uuid.UUID
	tokenValue  string

	confirmResult []model.Booking
	confirmErr    error

	booking    *model.Booking
	bookingErr error

	cancelResult *model.Booking
	cancelErr    error

	cancelledByToken    int64
	cancelledByTokenErr error

	stalePending    int64
	stalePendingErr error

	commitments    []model.Commitment
	commitmentsErr error

	draftMatch    *model.DraftMatch
	draftMatchErr error

	createDraftErr error
	createdDrafts  []*model.DraftMatch

	interests    []model.Interest
	interestsErr error

	createInterestErr error

	acceptResult *model.DraftMatch
	acceptErr    error
	acceptedUser int64

	rejectResult *model.DraftMatch
	rejectErr    error

	withdrawErr error

	awaitingErr       error
	awaitingBookingID uuid.UUID

	convertedCount int64
	convertedErr   error
	convertedFor   []uuid.UUID

	cancelDraftResult *model.DraftMatch
	cancelDraftErr    error

	reconciledDrafts    int64
	reconciledDraftsErr error

	expiredDrafts    int64
	expiredDraftsErr error

	// sweepCalls фиксирует порядок вызовов операций фоновой сверки.
	sweepCalls []string

	openMatch    *model.OpenMatch
	openMatchErr error

	createOpenErr error
	createdOpen   []*model.OpenMatch

	participants    []model.Participant
	participantsErr error

	joinResult *model.OpenMatch
	joinErr    error

	leaveResult *model.OpenMatch
	leaveErr    error

	closeResult *model.OpenMatch
	closeErr    error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetFieldByID(ctx context.Context, fieldID int64) (*model.Field, error) {
	return s.field, s.fieldErr
}

func (s *stubRepo) CreateBookings(ctx context.Context, bookings []*model.Booking) error {
	if s.createBookingsErr != nil {
		return s.createBookingsErr
	}
	s.createdBatches = append(s.createdBatches, bookings)
	return nil
}

func (s *stubRepo) GetBookingByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.booking, s.bookingErr
}

func (s *stubRepo) ListLiveBookingsByField(ctx context.Context, fieldID int64) ([]model.Booking, error) {
	return s.liveBookings, s.liveBookingsErr
}

func (s *stubRepo) ListBookingsByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	return s.userBookings, s.userBookingsErr
}

func (s *stubRepo) SetPaymentToken(ctx context.Context, ids []uuid.UUID, token string) error {
	if s.setTokenErr != nil {
		return s.setTokenErr
	}
	s.tokenIDs = ids
	s.tokenValue = token
	return nil
}

func (s *stubRepo) ConfirmBookingsByToken(ctx context.Context, token, payerID string) ([]model.Booking, error) {
	return s.confirmResult, s.confirmErr
}

func (s *stubRepo) CancelBooking(ctx context.Context, userID int64, id uuid.UUID) (*model.Booking, error) {
	return s.cancelResult, s.cancelErr
}

func (s *stubRepo) CancelPendingByToken(ctx context.Context, token string) (int64, error) {
	return s.cancelledByToken, s.cancelledByTokenErr
}

func (s *stubRepo) CancelStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	s.sweepCalls = append(s.sweepCalls, "cancelStalePending")
	return s.stalePending, s.stalePendingErr
}

func (s *stubRepo) CountConfirmedByUser(ctx context.Context, userID int64) (int64, error) {
	return s.confirmedCount, s.confirmedCountErr
}

func (s *stubRepo) GetUserCommitments(ctx context.Context, userID int64, w model.TimeWindow) ([]model.Commitment, error) {
	return s.commitments, s.commitmentsErr
}

func (s *stubRepo) CreateDraftMatch(ctx context.Context, m *model.DraftMatch) error {
	if s.createDraftErr != nil {
		return s.createDraftErr
	}
	s.createdDrafts = append(s.createdDrafts, m)
	return nil
}

func (s *stubRepo) GetDraftMatchByID(ctx context.Context, id uuid.UUID) (*model.DraftMatch, error) {
	return s.draftMatch, s.draftMatchErr
}

func (s *stubRepo) ListInterests(ctx context.Context, matchID uuid.UUID) ([]model.Interest, error) {
	return s.interests, s.interestsErr
}

func (s *stubRepo) CreateInterest(ctx context.Context, matchID uuid.UUID, userID int64) error {
	return s.createInterestErr
}

func (s *stubRepo) AcceptInterest(ctx context.Context, matchID uuid.UUID, userID int64) (*model.DraftMatch, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	s.acceptedUser = userID
	return s.acceptResult, nil
}

func (s *stubRepo) RejectInterest(ctx context.Context, matchID uuid.UUID, userID int64) (*model.DraftMatch, error) {
	return s.rejectResult, s.rejectErr
}

func (s *stubRepo) WithdrawInterest(ctx context.Context, matchID uuid.UUID, userID int64) error {
	return s.withdrawErr
}

func (s *stubRepo) SetDraftMatchAwaiting(ctx context.Context, matchID, bookingID uuid.UUID) error {
	if s.awaitingErr != nil {
		return s.awaitingErr
	}
	s.awaitingBookingID = bookingID
	return nil
}

func (s *stubRepo) MarkConvertedByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	if s.convertedErr != nil {
		return 0, s.convertedErr
	}
	s.convertedFor = append(s.convertedFor, bookingID)
	return s.convertedCount, nil
}

func (s *stubRepo) CancelDraftMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.DraftMatch, error) {
	return s.cancelDraftResult, s.cancelDraftErr
}

func (s *stubRepo) ReconcileConvertedDrafts(ctx context.Context) (int64, error) {
	s.sweepCalls = append(s.sweepCalls, "reconcileConvertedDrafts")
	return s.reconciledDrafts, s.reconciledDraftsErr
}

func (s *stubRepo) ExpireDraftMatches(ctx context.Context, now time.Time) (int64, error) {
	s.sweepCalls = append(s.sweepCalls, "expireDraftMatches")
	return s.expiredDrafts, s.expiredDraftsErr
}

func (s *stubRepo) CreateOpenMatch(ctx context.Context, m *model.OpenMatch) error {
	if s.createOpenErr != nil {
		return s.createOpenErr
	}
	s.createdOpen = append(s.createdOpen, m)
	return nil
}

func (s *stubRepo) GetOpenMatchByID(ctx context.Context, id uuid.UUID) (*model.OpenMatch, error) {
	return s.openMatch, s.openMatchErr
}

func (s *stubRepo) ListParticipants(ctx context.Context, matchID uuid.UUID) ([]model.Participant, error) {
	return s.participants, s.participantsErr
}

func (s *stubRepo) JoinOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error) {
	return s.joinResult, s.joinErr
}

func (s *stubRepo) LeaveOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error) {
	return s.leaveResult, s.leaveErr
}

func (s *stubRepo) CloseOpenMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.OpenMatch, error) {
	return s.closeResult, s.closeErr
}

// stubGateway реализует PaymentGateway.
type stubGateway struct {
	charge    *payment.Charge
	err       error
	initiated []int64
}

func (g *stubGateway) Initiate(ctx context.Context, amountCents int64, description string) (*payment.Charge, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.initiated = append(g.initiated, amountCents)
	if g.charge != nil {
		return g.charge, nil
	}
	return &payment.Charge{Token: "tok-test", RedirectURL: "https://pay.example/r/tok-test"}, nil
}

// stubEvents реализует EventPublisher.
type stubEvents struct {
	published []string
	err       error
}

func (e *stubEvents) PublishJSON(ctx context.Context, key string, v any) error {
	e.published = append(e.published, key)
	return e.err
}

// testTime — фиксированный «сейчас» для проверок относительных интервалов.
var testTime = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *stubRepo, gateway *stubGateway, events *stubEvents) *Service {
	var gw PaymentGateway
	if gateway != nil {
		gw = gateway
	}
	var ev EventPublisher
	if events != nil {
		ev = events
	}

	svc := NewService(repo, gw, ev, nil, Options{})
	svc.now = func() time.Time { return testTime }
	return svc
}

func testWindow(startHour, endHour int) model.TimeWindow {
	day := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	return model.TimeWindow{
		Start: day.Add(time.Duration(startHour) * time.Hour),
		End:   day.Add(time.Duration(endHour) * time.Hour),
	}
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createUserErr: repository.ErrUserExists}
	svc := newTestService(repo, nil, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Login:        "user",
			PasswordHash: hashPassword("user", "correct"),
		},
	}
	svc := newTestService(repo, nil, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	id, err := svc.AuthenticateUser(context.Background(), "user", "correct")
	if err != nil {
		t.Fatalf("valid credentials: %v", err)
	}
	if id != 1 {
		t.Fatalf("user id = %d, want 1", id)
	}
}

func TestStartReconciliation_StopsOnContextCancel(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil, nil)
	svc.opts.SweepInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	svc.StartReconciliation(ctx)
	<-ctx.Done()
	// Достаточно того, что горутина не паникует и завершается по контексту.
	time.Sleep(20 * time.Millisecond)
}
