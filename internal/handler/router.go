package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	custommiddleware "github.com/mmeshcher/fieldbook-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware движка бронирования.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		// Колбэк шлюза аутентифицируется токеном платежа, не cookie.
		r.Post("/payments/callback", h.PaymentCallback)

		r.Get("/fields/{fieldID}/availability", h.GetAvailability)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/user/bookings", h.CreateBooking)
			r.Post("/user/bookings/batch", h.CreateBatchBooking)
			r.Get("/user/bookings", h.GetBookings)
			r.Delete("/user/bookings/{bookingID}", h.CancelBooking)

			r.Get("/user/receipts", h.GetReceipts)
			r.Get("/user/conflicts", h.GetConflicts)

			r.Route("/draft-matches", func(r chi.Router) {
				r.Post("/", h.CreateDraftMatch)
				r.Get("/{id}", h.GetDraftMatch)
				r.Delete("/{id}", h.CancelDraftMatch)
				r.Post("/{id}/interests", h.ExpressInterest)
				r.Delete("/{id}/interests", h.WithdrawInterest)
				r.Post("/{id}/interests/{userID}/accept", h.AcceptInterest)
				r.Post("/{id}/interests/{userID}/reject", h.RejectInterest)
				r.Post("/{id}/convert", h.ConvertDraftMatch)
			})

			r.Route("/open-matches", func(r chi.Router) {
				r.Post("/", h.CreateOpenMatch)
				r.Get("/{id}", h.GetOpenMatch)
				r.Post("/{id}/join", h.JoinOpenMatch)
				r.Post("/{id}/leave", h.LeaveOpenMatch)
				r.Post("/{id}/close", h.CloseOpenMatch)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return parseUUID(chi.URLParam(r, name))
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
