package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/regdetect/kit"
	"github.com/hazyhaar/regdetect/lifecycle"
)

const maxBody = 64 << 10

// NewHandler mounts the command surface on a chi router:
//
//	GET  /ping
//	GET  /detection
//	GET  /detection/status
//	POST /detection/trigger
//	POST /detection/confirm   {"confirmed": true}
func NewHandler(cmds *Commands, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(RequestID(logger))
	r.Use(SecurityHeaders)
	r.Use(MaxBody(maxBody))

	r.Get("/ping", serve(cmds.Ping(), nil))
	r.Route("/detection", func(r chi.Router) {
		r.Get("/", serve(cmds.GetResult(), nil))
		r.Get("/status", serve(cmds.GetStatus(), nil))
		r.Post("/trigger", serve(cmds.Trigger(), nil))
		r.Post("/confirm", serve(cmds.Confirm(), decodeConfirm))
	})
	return r
}

func decodeConfirm(r *http.Request) (any, error) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &req, nil
}

func serve(e kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req any
		if decode != nil {
			var err error
			if req, err = decode(r); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
				return
			}
		}
		resp, err := e(r.Context(), req)
		if err != nil {
			writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
