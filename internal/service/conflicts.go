package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

// CheckUserConflicts собирает «личный календарь» пользователя из трёх видов
// обязательств и проверяет их пересечение с интервалом. Расписание
// пользователя разбросано по сущностям без общей таблицы: бронирование может
// ещё не существовать, а черновик матча уже занимает вечер. Проверка
// вызывается до принятия заявки, до присоединения к открытому матчу и до
// конвертации черновика — конфликт ловится на самом дешёвом шаге.
// Идентификаторы из exclude не считаются конфликтами: сущность не
// конфликтует сама с собой.
func (s *Service) CheckUserConflicts(ctx context.Context, userID int64, w model.TimeWindow, exclude ...uuid.UUID) (*model.ConflictReport, error) {
	if !w.Start.Before(w.End) {
		return nil, fmt.Errorf("%w: window start must precede end", model.ErrValidation)
	}

	commitments, err := s.repo.GetUserCommitments(ctx, userID, w)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	report := &model.ConflictReport{}
	for _, c := range commitments {
		if _, ok := excluded[c.ID]; ok {
			continue
		}
		if w.Overlaps(c.Window) {
			report.Items = append(report.Items, c)
		}
	}
	report.HasConflict = len(report.Items) > 0

	return report, nil
}

// ensureNoUserConflicts превращает найденные пересечения в ErrConflict.
func (s *Service) ensureNoUserConflicts(ctx context.Context, userID int64, w model.TimeWindow, exclude ...uuid.UUID) error {
	report, err := s.CheckUserConflicts(ctx, userID, w, exclude...)
	if err != nil {
		return err
	}
	if report.HasConflict {
		first := report.Items[0]
		return fmt.Errorf("%w: user %d already committed to %s %s", model.ErrConflict, userID, first.Kind, first.ID)
	}
	return nil
}
