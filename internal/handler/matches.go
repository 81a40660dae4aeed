package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/fieldbook-system/internal/middleware"
	"github.com/mmeshcher/fieldbook-system/internal/model"
	"github.com/mmeshcher/fieldbook-system/internal/validation"
)

type draftMatchRequest struct {
	SportType   string `json:"sport_type"`
	SkillLevel  string `json:"skill_level"`
	From        string `json:"from"`
	To          string `json:"to"`
	SlotsNeeded int    `json:"slots_needed"`
}

type interestResponse struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

type draftMatchResponse struct {
	ID          string             `json:"id"`
	CreatorID   int64              `json:"creator_id"`
	SportType   string             `json:"sport_type"`
	SkillLevel  string             `json:"skill_level,omitempty"`
	Start       string             `json:"start"`
	End         string             `json:"end"`
	SlotsNeeded int                `json:"slots_needed"`
	Status      string             `json:"status"`
	BookingID   string             `json:"booking_id,omitempty"`
	Interests   []interestResponse `json:"interests,omitempty"`
}

func toDraftMatchResponse(m *model.DraftMatch, interests []model.Interest) draftMatchResponse {
	resp := draftMatchResponse{
		ID:          m.ID.String(),
		CreatorID:   m.CreatorID,
		SportType:   m.SportType,
		SkillLevel:  m.SkillLevel,
		Start:       m.Window.Start.Format(time.RFC3339),
		End:         m.Window.End.Format(time.RFC3339),
		SlotsNeeded: m.SlotsNeeded,
		Status:      string(m.Status),
	}
	if m.BookingID != nil {
		resp.BookingID = m.BookingID.String()
	}
	for _, i := range interests {
		resp.Interests = append(resp.Interests, interestResponse{
			UserID: i.UserID,
			Status: string(i.Status),
		})
	}
	return resp
}

// CreateDraftMatch создаёт черновик матча для набора игроков.
func (h *Handler) CreateDraftMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req draftMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	window, err := validation.ParseWindow(req.From, req.To)
	if err != nil {
		h.writeError(w, err)
		return
	}

	m, err := h.service.CreateDraftMatch(r.Context(), userID, req.SportType, req.SkillLevel, window, req.SlotsNeeded)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toDraftMatchResponse(m, nil))
}

// GetDraftMatch возвращает черновик матча вместе с заявками.
func (h *Handler) GetDraftMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, interests, err := h.service.GetDraftMatch(r.Context(), matchID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toDraftMatchResponse(m, interests))
}

// ExpressInterest регистрирует заявку текущего пользователя на участие.
func (h *Handler) ExpressInterest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ExpressInterest(r.Context(), matchID, userID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// AcceptInterest принимает заявку указанного пользователя.
func (h *Handler) AcceptInterest(w http.ResponseWriter, r *http.Request) {
	h.resolveInterest(w, r, h.service.AcceptInterest)
}

// RejectInterest отклоняет заявку указанного пользователя.
func (h *Handler) RejectInterest(w http.ResponseWriter, r *http.Request) {
	h.resolveInterest(w, r, h.service.RejectInterest)
}

func (h *Handler) resolveInterest(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, creatorID int64, matchID uuid.UUID, userID int64) (*model.DraftMatch, error)) {
	creatorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := pathInt64(r, "userID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, err := resolve(r.Context(), creatorID, matchID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toDraftMatchResponse(m, nil))
}

// WithdrawInterest отзывает заявку текущего пользователя.
func (h *Handler) WithdrawInterest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.WithdrawInterest(r.Context(), matchID, userID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type convertRequest struct {
	FieldID int64 `json:"field_id"`
}

// ConvertDraftMatch превращает черновик в бронирование и выставляет платёж.
func (h *Handler) ConvertDraftMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	booking, redirect, err := h.service.ConvertDraftMatch(r.Context(), userID, matchID, req.FieldID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createBookingResponse{
		Bookings:   []bookingResponse{toBookingResponse(booking)},
		PaymentURL: redirect,
	})
}

// CancelDraftMatch отменяет черновик матча.
func (h *Handler) CancelDraftMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, err := h.service.CancelDraftMatch(r.Context(), userID, matchID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toDraftMatchResponse(m, nil))
}

type openMatchRequest struct {
	BookingID   string `json:"booking_id"`
	SportType   string `json:"sport_type"`
	SlotsNeeded int    `json:"slots_needed"`
}

type participantResponse struct {
	UserID   int64  `json:"user_id"`
	JoinedAt string `json:"joined_at"`
}

type openMatchResponse struct {
	ID           string                `json:"id"`
	BookingID    string                `json:"booking_id"`
	CreatorID    int64                 `json:"creator_id"`
	SportType    string                `json:"sport_type"`
	SlotsNeeded  int                   `json:"slots_needed"`
	Status       string                `json:"status"`
	Start        string                `json:"start"`
	End          string                `json:"end"`
	Participants []participantResponse `json:"participants,omitempty"`
}

func toOpenMatchResponse(m *model.OpenMatch, participants []model.Participant) openMatchResponse {
	resp := openMatchResponse{
		ID:          m.ID.String(),
		BookingID:   m.BookingID.String(),
		CreatorID:   m.CreatorID,
		SportType:   m.SportType,
		SlotsNeeded: m.SlotsNeeded,
		Status:      string(m.Status),
		Start:       m.Window.Start.Format(time.RFC3339),
		End:         m.Window.End.Format(time.RFC3339),
	}
	for _, p := range participants {
		resp.Participants = append(resp.Participants, participantResponse{
			UserID:   p.UserID,
			JoinedAt: p.JoinedAt.Format(time.RFC3339),
		})
	}
	return resp
}

// CreateOpenMatch создаёт открытый матч поверх подтверждённого бронирования.
func (h *Handler) CreateOpenMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req openMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bookingID, err := parseUUID(req.BookingID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, err := h.service.CreateOpenMatch(r.Context(), userID, bookingID, req.SportType, req.SlotsNeeded)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOpenMatchResponse(m, nil))
}

// GetOpenMatch возвращает открытый матч вместе с участниками.
func (h *Handler) GetOpenMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, participants, err := h.service.GetOpenMatch(r.Context(), matchID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOpenMatchResponse(m, participants))
}

// JoinOpenMatch присоединяет текущего пользователя к открытому матчу.
func (h *Handler) JoinOpenMatch(w http.ResponseWriter, r *http.Request) {
	h.updateOpenMatch(w, r, h.service.JoinOpenMatch)
}

// LeaveOpenMatch убирает текущего пользователя из открытого матча.
func (h *Handler) LeaveOpenMatch(w http.ResponseWriter, r *http.Request) {
	h.updateOpenMatch(w, r, h.service.LeaveOpenMatch)
}

// CloseOpenMatch закрывает матч; доступно только создателю.
func (h *Handler) CloseOpenMatch(w http.ResponseWriter, r *http.Request) {
	h.updateOpenMatch(w, r, func(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error) {
		return h.service.CloseOpenMatch(ctx, userID, matchID)
	})
}

func (h *Handler) updateOpenMatch(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, matchID uuid.UUID, userID int64) (*model.OpenMatch, error)) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	matchID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, err := update(r.Context(), matchID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOpenMatchResponse(m, nil))
}
