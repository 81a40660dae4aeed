// Package model содержит доменные сущности движка бронирования площадок.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TimeWindow представляет полуоткрытый интервал времени [Start, End).
// Неизменяемый тип-значение; инвариант Start < End проверяется конструктором.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow создаёт интервал и проверяет инвариант Start < End.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, ErrValidation
	}
	return TimeWindow{Start: start, End: end}, nil
}

// Overlaps проверяет пересечение двух полуоткрытых интервалов.
// Соприкасающиеся границы (a.End == b.Start) пересечением не считаются.
// Все проверки конфликтов в коде делегируют сравнение границ сюда.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Duration возвращает длительность интервала.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// User представляет зарегистрированного пользователя.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Field описывает площадку: принадлежит локации, имеет почасовой тариф.
// Движок бронирования площадки не изменяет, только читает.
type Field struct {
	ID              int64
	LocationID      int64
	Name            string
	SportType       string
	HourlyRateCents int64
}

// BookingStatus описывает статус бронирования площадки.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled},
}

// CanTransitionTo проверяет допустимость перехода бронирования в новый статус.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Live сообщает, занимает ли статус слот: отменённые бронирования слот освобождают.
func (s BookingStatus) Live() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Booking представляет бронирование площадки на интервал времени.
// Инвариант: для одной площадки никакие два бронирования в живых статусах
// (PENDING, CONFIRMED) не пересекаются по интервалу. Бронирование никогда не
// удаляется физически, отмена — смена статуса.
type Booking struct {
	ID           uuid.UUID
	FieldID      int64
	UserID       int64
	Window       TimeWindow
	Status       BookingStatus
	PaymentToken string
	PayerID      string
	PriceCents   int64
	CreatedAt    time.Time
}

// DraftMatchStatus описывает статус черновика матча.
type DraftMatchStatus string

const (
	DraftMatchStatusRecruiting DraftMatchStatus = "RECRUITING"
	DraftMatchStatusFull       DraftMatchStatus = "FULL"
	DraftMatchStatusAwaiting   DraftMatchStatus = "AWAITING_CONFIRMATION"
	DraftMatchStatusConverted  DraftMatchStatus = "CONVERTED"
	DraftMatchStatusCancelled  DraftMatchStatus = "CANCELLED"
	DraftMatchStatusExpired    DraftMatchStatus = "EXPIRED"
)

var draftMatchTransitions = map[DraftMatchStatus][]DraftMatchStatus{
	DraftMatchStatusRecruiting: {DraftMatchStatusFull, DraftMatchStatusAwaiting, DraftMatchStatusCancelled, DraftMatchStatusExpired},
	DraftMatchStatusFull:       {DraftMatchStatusRecruiting, DraftMatchStatusAwaiting, DraftMatchStatusCancelled, DraftMatchStatusExpired},
	DraftMatchStatusAwaiting:   {DraftMatchStatusConverted, DraftMatchStatusCancelled, DraftMatchStatusExpired},
}

// CanTransitionTo проверяет допустимость перехода черновика матча в новый статус.
func (s DraftMatchStatus) CanTransitionTo(to DraftMatchStatus) bool {
	for _, next := range draftMatchTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли статус черновика матча конечным.
func (s DraftMatchStatus) Terminal() bool {
	return s == DraftMatchStatusConverted || s == DraftMatchStatusCancelled || s == DraftMatchStatusExpired
}

// DraftMatch представляет черновик матча: создатель набирает игроков на
// интервал времени до того, как появится реальное бронирование. До
// конвертации интервал существует только в самом черновике.
type DraftMatch struct {
	ID          uuid.UUID
	CreatorID   int64
	SportType   string
	SkillLevel  string
	Window      TimeWindow
	SlotsNeeded int
	Status      DraftMatchStatus
	BookingID   *uuid.UUID
	CreatedAt   time.Time
}

// InterestStatus описывает статус заявки на участие в черновике матча.
type InterestStatus string

const (
	InterestStatusPending   InterestStatus = "PENDING"
	InterestStatusAccepted  InterestStatus = "ACCEPTED"
	InterestStatusRejected  InterestStatus = "REJECTED"
	InterestStatusWithdrawn InterestStatus = "WITHDRAWN"
)

var interestTransitions = map[InterestStatus][]InterestStatus{
	InterestStatusPending:  {InterestStatusAccepted, InterestStatusRejected, InterestStatusWithdrawn},
	InterestStatusAccepted: {InterestStatusRejected},
}

// CanTransitionTo проверяет допустимость перехода заявки в новый статус.
func (s InterestStatus) CanTransitionTo(to InterestStatus) bool {
	for _, next := range interestTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Interest представляет заявку пользователя на участие в черновике матча.
// Инвариант: уникальна в паре (DraftMatchID, UserID); число заявок в статусе
// ACCEPTED никогда не превышает SlotsNeeded матча.
type Interest struct {
	DraftMatchID uuid.UUID
	UserID       int64
	Status       InterestStatus
	CreatedAt    time.Time
}

// OpenMatchStatus описывает статус открытого матча.
type OpenMatchStatus string

const (
	OpenMatchStatusOpen   OpenMatchStatus = "OPEN"
	OpenMatchStatusFull   OpenMatchStatus = "FULL"
	OpenMatchStatusClosed OpenMatchStatus = "CLOSED"
)

var openMatchTransitions = map[OpenMatchStatus][]OpenMatchStatus{
	OpenMatchStatusOpen: {OpenMatchStatusFull, OpenMatchStatusClosed},
	OpenMatchStatusFull: {OpenMatchStatusOpen, OpenMatchStatusClosed},
}

// CanTransitionTo проверяет допустимость перехода открытого матча в новый статус.
func (s OpenMatchStatus) CanTransitionTo(to OpenMatchStatus) bool {
	for _, next := range openMatchTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// OpenMatch представляет открытый матч, привязанный к подтверждённому
// бронированию: участники присоединяются, пока есть свободные места.
// Интервал матча — интервал бронирования-якоря.
type OpenMatch struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	CreatorID   int64
	SportType   string
	SlotsNeeded int
	Status      OpenMatchStatus
	Window      TimeWindow
	CreatedAt   time.Time
}

// Participant представляет участника открытого матча.
type Participant struct {
	OpenMatchID uuid.UUID
	UserID      int64
	JoinedAt    time.Time
}

// CommitmentKind определяет вид обязательства в расписании пользователя.
type CommitmentKind string

const (
	CommitmentBooking    CommitmentKind = "booking"
	CommitmentDraftMatch CommitmentKind = "draft_match"
	CommitmentOpenMatch  CommitmentKind = "open_match"
)

// Commitment — обобщённое обязательство пользователя: бронирование, принятая
// заявка в черновик матча или участие в открытом матче. Валидатор конфликтов
// собирает из них «личный календарь», потому что три вида сущностей не имеют
// общей таблицы и общего предка.
type Commitment struct {
	Kind    CommitmentKind
	ID      uuid.UUID
	OwnerID int64
	Window  TimeWindow
}

// ConflictReport содержит результат проверки расписания пользователя.
type ConflictReport struct {
	HasConflict bool
	Items       []Commitment
}

// Receipt группирует бронирования одного платежа в один чек для отображения.
type Receipt struct {
	PaymentToken string
	Bookings     []Booking
	TotalCents   int64
	CreatedAt    time.Time
}
