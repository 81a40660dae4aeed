package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

func TestSlotPriceCents(t *testing.T) {
	tests := []struct {
		name    string
		rate    int64
		minutes int
		want    int64
	}{
		{"ровно час", 60000, 60, 60000},
		{"полтора часа", 60000, 90, 90000},
		{"полчаса", 60000, 30, 30000},
		{"два часа", 45000, 120, 90000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := model.TimeWindow{
				Start: testTime,
				End:   testTime.Add(time.Duration(tt.minutes) * time.Minute),
			}
			if got := slotPriceCents(tt.rate, w); got != tt.want {
				t.Errorf("slotPriceCents = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMembershipDiscountPercent(t *testing.T) {
	tests := []struct {
		confirmed int64
		want      int64
	}{
		{0, 0},
		{4, 0},
		{5, 5},
		{19, 5},
		{20, 10},
		{49, 10},
		{50, 15},
		{200, 15},
	}

	for _, tt := range tests {
		if got := membershipDiscountPercent(tt.confirmed); got != tt.want {
			t.Errorf("membershipDiscountPercent(%d) = %d, want %d", tt.confirmed, got, tt.want)
		}
	}
}

func TestApplyDiscount(t *testing.T) {
	if got := applyDiscount(60000, 10); got != 54000 {
		t.Errorf("applyDiscount(60000, 10) = %d, want 54000", got)
	}
	if got := applyDiscount(60000, 0); got != 60000 {
		t.Errorf("applyDiscount(60000, 0) = %d, want 60000", got)
	}
}

func TestGetReceiptsByUser_ClustersBatch(t *testing.T) {
	created := testTime.Add(-time.Hour)

	// Список приходит от новых к старым: пакет из двух слотов с общим токеном,
	// созданных в одну секунду, и отдельное старое бронирование.
	repo := &stubRepo{
		userBookings: []model.Booking{
			{ID: uuid.New(), PriceCents: 60000, Status: model.BookingStatusConfirmed, PaymentToken: "tok-batch", CreatedAt: created},
			{ID: uuid.New(), PriceCents: 90000, Status: model.BookingStatusConfirmed, PaymentToken: "tok-batch", CreatedAt: created.Add(-time.Second)},
			{ID: uuid.New(), PriceCents: 45000, Status: model.BookingStatusConfirmed, PaymentToken: "tok-old", CreatedAt: created.Add(-24 * time.Hour)},
		},
	}
	svc := newTestService(repo, nil, nil)

	receipts, err := svc.GetReceiptsByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetReceiptsByUser: %v", err)
	}

	if len(receipts) != 2 {
		t.Fatalf("receipts = %d, want 2", len(receipts))
	}
	if len(receipts[0].Bookings) != 2 {
		t.Errorf("batch receipt has %d bookings, want 2", len(receipts[0].Bookings))
	}
	if receipts[0].TotalCents != 150000 {
		t.Errorf("batch total = %d, want 150000", receipts[0].TotalCents)
	}
	if receipts[1].TotalCents != 45000 {
		t.Errorf("single total = %d, want 45000", receipts[1].TotalCents)
	}
}

func TestGetReceiptsByUser_SplitsByPaymentToken(t *testing.T) {
	created := testTime.Add(-time.Hour)

	// Два независимых платежа в пределах минуты друг от друга: общий токен —
	// первичный признак чека, близость по времени сама по себе не объединяет.
	repo := &stubRepo{
		userBookings: []model.Booking{
			{ID: uuid.New(), PriceCents: 60000, Status: model.BookingStatusConfirmed, PaymentToken: "tok-a", CreatedAt: created},
			{ID: uuid.New(), PriceCents: 90000, Status: model.BookingStatusConfirmed, PaymentToken: "tok-b", CreatedAt: created.Add(-time.Minute)},
		},
	}
	svc := newTestService(repo, nil, nil)

	receipts, err := svc.GetReceiptsByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetReceiptsByUser: %v", err)
	}

	if len(receipts) != 2 {
		t.Fatalf("receipts = %d, want 2", len(receipts))
	}
	if receipts[0].PaymentToken != "tok-a" || receipts[0].TotalCents != 60000 {
		t.Errorf("first receipt = %q/%d, want tok-a/60000", receipts[0].PaymentToken, receipts[0].TotalCents)
	}
	if receipts[1].PaymentToken != "tok-b" || receipts[1].TotalCents != 90000 {
		t.Errorf("second receipt = %q/%d, want tok-b/90000", receipts[1].PaymentToken, receipts[1].TotalCents)
	}
}

func TestGetReceiptsByUser_SkipsCancelled(t *testing.T) {
	created := testTime.Add(-time.Hour)
	repo := &stubRepo{
		userBookings: []model.Booking{
			{ID: uuid.New(), PriceCents: 60000, Status: model.BookingStatusCancelled, CreatedAt: created},
			{ID: uuid.New(), PriceCents: 90000, Status: model.BookingStatusPending, CreatedAt: created.Add(-time.Second)},
		},
	}
	svc := newTestService(repo, nil, nil)

	receipts, err := svc.GetReceiptsByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetReceiptsByUser: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("receipts = %d, want 1", len(receipts))
	}
	if receipts[0].TotalCents != 90000 {
		t.Errorf("total = %d, want 90000 without cancelled slot", receipts[0].TotalCents)
	}
}
