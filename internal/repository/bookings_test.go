package repository

import (
	"errors"
	"testing"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

func batchWithStatuses(statuses ...model.BookingStatus) []model.Booking {
	batch := make([]model.Booking, 0, len(statuses))
	for _, st := range statuses {
		batch = append(batch, model.Booking{Status: st})
	}
	return batch
}

func TestPlanConfirmation(t *testing.T) {
	tests := []struct {
		name        string
		batch       []model.Booking
		wantApply   int
		wantSettled int
		wantErr     error
	}{
		{
			name:      "все ожидают оплаты",
			batch:     batchWithStatuses(model.BookingStatusPending, model.BookingStatusPending),
			wantApply: 2,
		},
		{
			name:        "дубликат колбэка: весь пакет уже подтверждён",
			batch:       batchWithStatuses(model.BookingStatusConfirmed, model.BookingStatusConfirmed),
			wantSettled: 2,
		},
		{
			name:        "смешанный пакет",
			batch:       batchWithStatuses(model.BookingStatusConfirmed, model.BookingStatusPending, model.BookingStatusCancelled),
			wantApply:   1,
			wantSettled: 1,
		},
		{
			name:    "весь пакет отменён",
			batch:   batchWithStatuses(model.BookingStatusCancelled, model.BookingStatusCancelled),
			wantErr: model.ErrInvalidState,
		},
		{
			name:      "отменён лишь один слот пакета",
			batch:     batchWithStatuses(model.BookingStatusCancelled, model.BookingStatusPending),
			wantApply: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planConfirmation(tt.batch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("planConfirmation() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("planConfirmation(): %v", err)
			}
			if len(plan.apply) != tt.wantApply {
				t.Errorf("apply = %d, want %d", len(plan.apply), tt.wantApply)
			}
			if len(plan.settled) != tt.wantSettled {
				t.Errorf("settled = %d, want %d", len(plan.settled), tt.wantSettled)
			}
		})
	}
}

// Повторный колбэк не порождает переводов статусов: план второго вызова
// пуст в части apply, и транзакция подтверждения не коммитится.
func TestPlanConfirmationIdempotent(t *testing.T) {
	batch := batchWithStatuses(model.BookingStatusPending, model.BookingStatusPending)

	first, err := planConfirmation(batch)
	if err != nil {
		t.Fatalf("first planConfirmation(): %v", err)
	}
	for _, i := range first.apply {
		batch[i].Status = model.BookingStatusConfirmed
	}

	second, err := planConfirmation(batch)
	if err != nil {
		t.Fatalf("second planConfirmation(): %v", err)
	}
	if len(second.apply) != 0 {
		t.Errorf("second apply = %d, want 0", len(second.apply))
	}
	if len(second.settled) != len(batch) {
		t.Errorf("second settled = %d, want %d", len(second.settled), len(batch))
	}
}
