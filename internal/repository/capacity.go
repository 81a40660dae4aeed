package repository

import (
	"fmt"

	"github.com/mmeshcher/fieldbook-system/internal/model"
)

// admitToCapacity решает, можно ли занять ещё одно место при occupied уже
// занятых из slotsNeeded. Возвращает признак того, что занято последнее
// место и матч пора переводить в FULL. Вызывается только под блокировкой
// строки матча: пересчёт и решение атомарны относительно конкурентов.
func admitToCapacity(occupied, slotsNeeded int, what string) (last bool, err error) {
	if occupied >= slotsNeeded {
		return false, fmt.Errorf("%w: %s already full", model.ErrInvalidState, what)
	}
	return occupied+1 == slotsNeeded, nil
}
