package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/go-stock-reservations/internal/apperr"
	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HeaderUserID carries the caller's identity, set by the authenticating proxy.
const HeaderUserID = "X-User-Id"

type reservationService interface {
	CreateReservation(ctx context.Context, req reservation.CreateReservationRequest, userID reservation.UserID) (reservation.ReservationID, error)
	ListReservations(ctx context.Context, userID reservation.UserID) ([]reservation.ReservationSummary, error)
	GetReservationDetail(ctx context.Context, userID reservation.UserID, id reservation.ReservationID) (reservation.ReservationDetail, error)
}

type ReservationsHandler struct {
	Svc reservationService
	Log zerolog.Logger
}

type CreateReservationResp struct {
	ReservationID reservation.ReservationID `json:"reservation_id"`
}

type errorResp struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
}

func (h *ReservationsHandler) Register(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.detail)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *ReservationsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := apperr.HTTPStatus(kind)
	msg := "internal error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if code >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, code, errorResp{Error: msg, Kind: kind})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderUserID) == "" {
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: "missing " + HeaderUserID, Kind: apperr.KindUnauthorized})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) reservation.UserID {
	return reservation.UserID(r.Header.Get(HeaderUserID))
}

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req reservation.CreateReservationRequest
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := h.Svc.CreateReservation(ctx, req, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateReservationResp{ReservationID: id})
}

func (h *ReservationsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Svc.ListReservations(ctx, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []reservation.ReservationSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ReservationsHandler) detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	d, err := h.Svc.GetReservationDetail(ctx, userID(r), reservation.ReservationID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
