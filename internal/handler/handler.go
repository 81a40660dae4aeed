// Package handler содержит HTTP-обработчики API движка бронирования.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/fieldbook-system/internal/middleware"
	"github.com/mmeshcher/fieldbook-system/internal/model"
	"github.com/mmeshcher/fieldbook-system/internal/payment"
	"github.com/mmeshcher/fieldbook-system/internal/repository"
	"github.com/mmeshcher/fieldbook-system/internal/service"
	"github.com/mmeshcher/fieldbook-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)

	IsFieldAvailable(ctx context.Context, fieldID int64, w model.TimeWindow) (bool, error)
	CreateBooking(ctx context.Context, userID, fieldID int64, w model.TimeWindow) (*model.Booking, string, error)
	CreateBatchBooking(ctx context.Context, userID int64, reqs []service.SlotRequest) ([]model.Booking, string, error)
	ConfirmPayment(ctx context.Context, token, payerID string) ([]model.Booking, error)
	HandlePaymentFailure(ctx context.Context, token string) (int64, error)
	CancelBooking(ctx context.Context, userID int64, bookingID uuid.UUID) (*model.Booking, error)
	GetBookingsByUser(ctx context.Context, userID int64) ([]model.Booking, error)
	GetReceiptsByUser(ctx context.Context, userID int64) ([]model.Receipt, error)
	CheckUserConflicts(ctx context.Context, userID int64, w model.TimeWindow, exclude ...uuid.UUID) (*model.ConflictReport, error)

	CreateDraftMatch(ctx context.Context, creatorID int64, sportType, skillLevel string, w model.TimeWindow, slotsNeeded int) (*model.DraftMatch, error)
	GetDraftMatch(ctx context.Context, matchID uuid.UUID) (*model.DraftMatch, []model.Interest, error)
	ExpressInterest(ctx context.Context, matchID uuid.UUID, userID int64) error
	AcceptInterest(ctx context.Context, creatorID int64, matchID uuid.UUID, userID int64) (*model.DraftMatch, error)
	RejectInterest(ctx context.Context, creatorID int64, matchID uuid.UUID, userID int64) (*model.DraftMatch, error)
	WithdrawInterest(ctx context.Context, matchID uuid.UUID, userID int64) error
	ConvertDraftMatch(ctx context.Context, creatorID int64, matchID uuid.UUID, fieldID int64) (*model.Booking, string, error)
	CancelDraftMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.DraftMatch, error)

	CreateOpenMatch(ctx context.Context, creatorID int64, bookingID uuid.UUID, sportType string, slotsNeeded int) (*model.OpenMatch, error)
	GetOpenMatch(ctx context.Context, matchID uuid.UUID) (*model.OpenMatch, []model.Participant, error)
	JoinOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error)
	LeaveOpenMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error)
	CloseOpenMatch(ctx context.Context, creatorID int64, matchID uuid.UUID) (*model.OpenMatch, error)
}

// Handler реализует HTTP-обработчики API движка бронирования.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeError переводит доменные ошибки в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, model.ErrUpstream):
		status = http.StatusBadGateway
	default:
		h.logger.Error("internal error", zap.Error(err))
		status = http.StatusInternalServerError
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, model.ErrForbidden) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type slotRequest struct {
	FieldID int64  `json:"field_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type bookingResponse struct {
	ID         string `json:"id"`
	FieldID    int64  `json:"field_id"`
	Status     string `json:"status"`
	Start      string `json:"start"`
	End        string `json:"end"`
	PriceCents int64  `json:"price_cents"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type createBookingResponse struct {
	Bookings   []bookingResponse `json:"bookings"`
	PaymentURL string            `json:"payment_url"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	resp := bookingResponse{
		ID:         b.ID.String(),
		FieldID:    b.FieldID,
		Status:     string(b.Status),
		Start:      b.Window.Start.Format(time.RFC3339),
		End:        b.Window.End.Format(time.RFC3339),
		PriceCents: b.PriceCents,
	}
	if !b.CreatedAt.IsZero() {
		resp.CreatedAt = b.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

// GetAvailability сообщает, свободна ли площадка на запрошенный интервал.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	fieldID, err := pathInt64(r, "fieldID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	window, err := validation.ParseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	available, err := h.service.IsFieldAvailable(r.Context(), fieldID, window)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// CreateBooking создаёт бронирование одного слота.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	window, err := validation.ParseWindow(req.From, req.To)
	if err != nil {
		h.writeError(w, err)
		return
	}

	b, redirect, err := h.service.CreateBooking(r.Context(), userID, req.FieldID, window)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createBookingResponse{
		Bookings:   []bookingResponse{toBookingResponse(b)},
		PaymentURL: redirect,
	})
}

type batchBookingRequest struct {
	Slots []slotRequest `json:"slots"`
}

// CreateBatchBooking атомарно бронирует набор слотов одним платежом.
func (h *Handler) CreateBatchBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req batchBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if len(req.Slots) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	reqs := make([]service.SlotRequest, 0, len(req.Slots))
	for _, s := range req.Slots {
		window, err := validation.ParseWindow(s.From, s.To)
		if err != nil {
			h.writeError(w, err)
			return
		}
		reqs = append(reqs, service.SlotRequest{FieldID: s.FieldID, Window: window})
	}

	bookings, redirect, err := h.service.CreateBatchBooking(r.Context(), userID, reqs)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := createBookingResponse{PaymentURL: redirect}
	for i := range bookings {
		resp.Bookings = append(resp.Bookings, toBookingResponse(&bookings[i]))
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetBookings возвращает бронирования текущего пользователя, новые первыми.
func (h *Handler) GetBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	bookings, err := h.service.GetBookingsByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(bookings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, toBookingResponse(&bookings[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CancelBooking отменяет бронирование текущего пользователя.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	bookingID, err := pathUUID(r, "bookingID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, err := h.service.CancelBooking(r.Context(), userID, bookingID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toBookingResponse(b))
}

type paymentCallbackRequest struct {
	Token   string `json:"token"`
	Result  string `json:"result"`
	PayerID string `json:"payer_id"`
}

// PaymentCallback обрабатывает асинхронный колбэк платёжного шлюза.
// CAPTURED подтверждает бронирования токена, остальные исходы отменяют
// неоплаченные. Обработка идемпотентна к дубликатам доставок.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req paymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	switch payment.Result(req.Result) {
	case payment.ResultCaptured:
		if _, err := h.service.ConfirmPayment(r.Context(), req.Token, req.PayerID); err != nil {
			h.writeError(w, err)
			return
		}
	case payment.ResultCancelled, payment.ResultFailed:
		if _, err := h.service.HandlePaymentFailure(r.Context(), req.Token); err != nil {
			h.writeError(w, err)
			return
		}
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type receiptResponse struct {
	PaymentToken string            `json:"payment_token,omitempty"`
	TotalCents   int64             `json:"total_cents"`
	CreatedAt    string            `json:"created_at"`
	Bookings     []bookingResponse `json:"bookings"`
}

// GetReceipts возвращает чеки текущего пользователя, новые первыми.
func (h *Handler) GetReceipts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	receipts, err := h.service.GetReceiptsByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(receipts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]receiptResponse, 0, len(receipts))
	for _, rec := range receipts {
		item := receiptResponse{
			PaymentToken: rec.PaymentToken,
			TotalCents:   rec.TotalCents,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		}
		for i := range rec.Bookings {
			item.Bookings = append(item.Bookings, toBookingResponse(&rec.Bookings[i]))
		}
		resp = append(resp, item)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type conflictItemResponse struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type conflictReportResponse struct {
	HasConflict bool                   `json:"has_conflict"`
	Items       []conflictItemResponse `json:"items,omitempty"`
}

// GetConflicts проверяет интервал на пересечения с обязательствами пользователя.
func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	window, err := validation.ParseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	report, err := h.service.CheckUserConflicts(r.Context(), userID, window)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := conflictReportResponse{HasConflict: report.HasConflict}
	for _, item := range report.Items {
		resp.Items = append(resp.Items, conflictItemResponse{
			Kind:  string(item.Kind),
			ID:    item.ID.String(),
			Start: item.Window.Start.Format(time.RFC3339),
			End:   item.Window.End.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
