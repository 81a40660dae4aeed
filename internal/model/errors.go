package model

import "errors"

// ErrValidation возвращается при некорректных входных данных: перепутанные
// границы интервала, неположительное число мест и т.п.
var (
	ErrValidation = errors.New("validation failed")
	// ErrConflict возвращается при пересечении слота или обязательства;
	// вызывающая сторона может повторить запрос с другим интервалом.
	ErrConflict = errors.New("schedule conflict")
	// ErrForbidden возвращается, когда действие выполняет не владелец ресурса.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState возвращается при недопустимом переходе состояния,
	// включая повторный перевод в конечный статус.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrNotFound возвращается, если сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrUpstream возвращается при ошибке платёжного шлюза; состояние
	// бронирования при этом не меняется молча.
	ErrUpstream = errors.New("upstream payment gateway error")
)
