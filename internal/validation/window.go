// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"time"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

// ParseWindow разбирает границы интервала из строк в формате RFC3339
// и проверяет инвариант start < end.
func ParseWindow(from, to string) (model.TimeWindow, error) {
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return model.TimeWindow{}, fmt.Errorf("%w: parse from: %s", model.ErrValidation, from)
	}

	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return model.TimeWindow{}, fmt.Errorf("%w: parse to: %s", model.ErrValidation, to)
	}

	w, err := model.NewTimeWindow(start.UTC(), end.UTC())
	if err != nil {
		return model.TimeWindow{}, fmt.Errorf("%w: window start must precede end", model.ErrValidation)
	}

	return w, nil
}

// ValidateBookableWindow проверяет, что интервал пригоден для нового
// бронирования: границы корректны и интервал ещё не начался.
func ValidateBookableWindow(w model.TimeWindow, now time.Time) error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: window start must precede end", model.ErrValidation)
	}
	if w.Start.Before(now) {
		return fmt.Errorf("%w: window starts in the past", model.ErrValidation)
	}
	return nil
}

// ValidateSlots проверяет число мест в матче.
func ValidateSlots(slots int) error {
	if slots <= 0 {
		return fmt.Errorf("%w: slots must be positive", model.ErrValidation)
	}
	return nil
}
