package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

func testAnchorBooking(userID int64, status model.BookingStatus) *model.Booking {
	return &model.Booking{
		ID:      uuid.New(),
		FieldID: 1,
		UserID:  userID,
		Window:  testWindow(18, 19),
		Status:  status,
	}
}

func TestCreateOpenMatch_RequiresConfirmedBooking(t *testing.T) {
	tests := []struct {
		name    string
		status  model.BookingStatus
		wantErr error
	}{
		{"подтверждённое бронирование", model.BookingStatusConfirmed, nil},
		{"неоплаченное бронирование", model.BookingStatusPending, model.ErrInvalidState},
		{"отменённое бронирование", model.BookingStatusCancelled, model.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{booking: testAnchorBooking(7, tt.status)}
			svc := newTestService(repo, nil, nil)

			m, err := svc.CreateOpenMatch(context.Background(), 7, repo.booking.ID, "badminton", 3)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateOpenMatch: %v", err)
			}
			if m.Window != repo.booking.Window {
				t.Errorf("match window = %+v, want anchor window", m.Window)
			}
			if m.Status != model.OpenMatchStatusOpen {
				t.Errorf("status = %s, want OPEN", m.Status)
			}
		})
	}
}

func TestCreateOpenMatch_ForeignBookingForbidden(t *testing.T) {
	repo := &stubRepo{booking: testAnchorBooking(99, model.BookingStatusConfirmed)}
	svc := newTestService(repo, nil, nil)

	_, err := svc.CreateOpenMatch(context.Background(), 7, repo.booking.ID, "badminton", 3)
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestJoinOpenMatch_CreatorForbidden(t *testing.T) {
	m := &model.OpenMatch{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		CreatorID: 7,
		Status:    model.OpenMatchStatusOpen,
		Window:    testWindow(18, 19),
	}
	repo := &stubRepo{openMatch: m}
	svc := newTestService(repo, nil, nil)

	_, err := svc.JoinOpenMatch(context.Background(), m.ID, 7)
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestJoinOpenMatch_ScheduleConflict(t *testing.T) {
	m := &model.OpenMatch{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		CreatorID: 7,
		Status:    model.OpenMatchStatusOpen,
		Window:    testWindow(18, 19),
	}
	repo := &stubRepo{
		openMatch: m,
		commitments: []model.Commitment{
			{Kind: model.CommitmentBooking, ID: uuid.New(), Window: testWindow(18, 19)},
		},
	}
	svc := newTestService(repo, nil, nil)

	_, err := svc.JoinOpenMatch(context.Background(), m.ID, 42)
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestJoinOpenMatch_Success(t *testing.T) {
	m := &model.OpenMatch{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		CreatorID: 7,
		Status:    model.OpenMatchStatusOpen,
		Window:    testWindow(18, 19),
	}
	joined := *m
	joined.Status = model.OpenMatchStatusFull

	repo := &stubRepo{openMatch: m, joinResult: &joined}
	events := &stubEvents{}
	svc := newTestService(repo, nil, events)

	updated, err := svc.JoinOpenMatch(context.Background(), m.ID, 42)
	if err != nil {
		t.Fatalf("JoinOpenMatch: %v", err)
	}
	if updated.Status != model.OpenMatchStatusFull {
		t.Errorf("status = %s, want FULL", updated.Status)
	}
	if len(events.published) != 1 || events.published[0] != "match.participant_joined" {
		t.Errorf("published = %v", events.published)
	}
}

func TestLeaveOpenMatch_PropagatesState(t *testing.T) {
	repo := &stubRepo{leaveErr: model.ErrInvalidState}
	svc := newTestService(repo, nil, nil)

	_, err := svc.LeaveOpenMatch(context.Background(), uuid.New(), 42)
	if !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
