package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/tuitionLedger/pkg/ledger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code,omitempty"`
	Fields []ledger.FieldError `json:"fields,omitempty"`
}

var statusByKind = map[ledger.Kind]int{
	ledger.KindNotFound:           http.StatusNotFound,
	ledger.KindInvalidRequest:     http.StatusBadRequest,
	ledger.KindConflict:           http.StatusConflict,
	ledger.KindPreconditionFailed: http.StatusPreconditionFailed,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a ledger error with the status its kind maps to.
// Internal errors are logged and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ledger.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}

	resp := errorResponse{Error: err.Error()}
	var le *ledger.Error
	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &le):
		resp.Code = le.Code
		if le.Field != "" {
			resp.Fields = []ledger.FieldError{{Field: le.Field, Error: le.Message}}
		}
	case errors.As(err, &ve):
		resp.Code = "validation_failed"
		resp.Fields = ve.Fields
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, code, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: code})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "malformed_body", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		badRequest(w, "invalid_id", "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
