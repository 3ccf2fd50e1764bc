package dispatch

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazealert/internal/metrics"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
)

// TriggerPath is the route of the trigger endpoint.
const TriggerPath = "/internal/alerts/trigger"

const maxTriggerBody = 1 << 20

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Receiver serves the trigger endpoint and delivers batches with a local
// dispatcher.
type Receiver struct {
	secret     string
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewReceiver creates a trigger endpoint handler. Requests are rejected
// unless they carry secret.
func NewReceiver(secret string, dispatcher Dispatcher, logger *zap.Logger) (*Receiver, error) {
	if secret == "" {
		return nil, errors.New("trigger secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{secret: secret, dispatcher: dispatcher, logger: logger}, nil
}

// Routes returns the router of the receiver.
func (rv *Receiver) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.With(rv.requireSecret).Post(TriggerPath, rv.handleTrigger)
	return r
}

func (rv *Receiver) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(rv.secret)) != 1 {
			rv.jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleTrigger verifies the body signature when the caller sends one;
// the HTTP dispatcher always signs with the shared secret.
func (rv *Receiver) handleTrigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody))
	if err != nil {
		rv.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if sig := r.Header.Get(notifier.SignatureHeader); sig != "" && !notifier.VerifySignature(rv.secret, body, sig) {
		rv.jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid signature")
		return
	}

	var req TriggerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		rv.jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	for i, item := range req.Alerts {
		if item == nil || item.AlertID == "" {
			rv.jsonError(w, http.StatusBadRequest, "VALIDATION_FAILED", "alert "+strconv.Itoa(i)+": alertId is required")
			return
		}
		if !item.Severity.Valid() {
			rv.jsonError(w, http.StatusBadRequest, "VALIDATION_FAILED", "alert "+strconv.Itoa(i)+": unknown severity")
			return
		}
	}

	result, err := rv.dispatcher.Dispatch(r.Context(), req.Alerts)
	if err != nil && result == nil {
		rv.logger.Error("dispatch failed", zap.Error(err))
		rv.jsonError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "dispatch failed")
		return
	}

	rv.logger.Info("trigger batch dispatched",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("alerts", len(req.Alerts)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))

	resp := TriggerResponse{
		Results: make([]TriggerResult, len(req.Alerts)),
		Sent:    result.Sent,
		Failed:  result.Failed,
		Errors:  result.Errors,
	}
	for i, item := range req.Alerts {
		tr := TriggerResult{AlertID: item.AlertID, NotifiedVia: []string{}}
		if i < len(result.Items) {
			tr.NotifiedVia = result.Items[i].NotifiedVia
		}
		resp.Results[i] = tr
	}
	rv.jsonOK(w, resp)
}

func (rv *Receiver) jsonOK(w http.ResponseWriter, data any) {
	metrics.ReceiverRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rv.logger.Warn("json encode error", zap.Error(err))
	}
}

func (rv *Receiver) jsonError(w http.ResponseWriter, status int, code, message string) {
	metrics.ReceiverRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		rv.logger.Warn("json encode error", zap.Error(err))
	}
}
