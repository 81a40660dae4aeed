package service

import (
	"context"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

// slotPriceCents вычисляет цену слота: почасовой тариф площадки, умноженный
// на длительность. Считается в минутах, чтобы не терять точность на
// неполных часах.
func slotPriceCents(hourlyRateCents int64, w model.TimeWindow) int64 {
	minutes := int64(w.Duration().Minutes())
	return hourlyRateCents * minutes / 60
}

// membershipDiscountPercent возвращает скидку уровня членства по числу
// подтверждённых бронирований пользователя за всё время.
func membershipDiscountPercent(confirmedCount int64) int64 {
	switch {
	case confirmedCount >= 50:
		return 15
	case confirmedCount >= 20:
		return 10
	case confirmedCount >= 5:
		return 5
	default:
		return 0
	}
}

func applyDiscount(priceCents, percent int64) int64 {
	return priceCents * (100 - percent) / 100
}

// GetReceiptsByUser группирует бронирования пользователя в чеки: один платёж —
// один чек. Первичный признак — общий платёжный токен, бронирования без токена
// группируются по близости времени создания. Слоты разных платежей не
// смешиваются, даже если созданы одновременно; частичная оплата отдельных
// слотов не поддерживается.
func (s *Service) GetReceiptsByUser(ctx context.Context, userID int64) ([]model.Receipt, error) {
	bookings, err := s.repo.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var receipts []model.Receipt
	for _, b := range bookings {
		if b.Status == model.BookingStatusCancelled {
			continue
		}

		last := len(receipts) - 1
		// Список отсортирован от новых к старым: бронирование присоединяется
		// к текущему чеку, если несёт тот же токен и создано незадолго до его
		// самого раннего слота.
		if last >= 0 &&
			receipts[last].PaymentToken == b.PaymentToken &&
			receipts[last].CreatedAt.Sub(b.CreatedAt) <= s.opts.ReceiptClusterGap {
			receipts[last].Bookings = append(receipts[last].Bookings, b)
			receipts[last].TotalCents += b.PriceCents
			receipts[last].CreatedAt = b.CreatedAt
			continue
		}

		receipts = append(receipts, model.Receipt{
			PaymentToken: b.PaymentToken,
			Bookings:     []model.Booking{b},
			TotalCents:   b.PriceCents,
			CreatedAt:    b.CreatedAt,
		})
	}

	return receipts, nil
}
