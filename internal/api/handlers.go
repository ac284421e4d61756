package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/flowpaste/internal/audit"
	"github.com/raaihank/flowpaste/internal/privacy"
	"github.com/raaihank/flowpaste/internal/rules"
	"github.com/raaihank/flowpaste/internal/shield"
	"github.com/raaihank/flowpaste/internal/websocket"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 16 << 20

type textRequest struct {
	Text string `json:"text"`
}

type textResponse struct {
	Text string `json:"text"`
}

type restoreRequest struct {
	Text    string              `json:"text"`
	Mapping privacy.MaskMapping `json:"mapping"`
}

type customRuleRequest struct {
	Text string     `json:"text"`
	Rule rules.Rule `json:"rule"`
}

type shieldRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	e := s.engines.Load()

	types := e.detector.EnabledTypes()
	detectors := make([]string, len(types))
	for i, t := range types {
		detectors[i] = string(t)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":            "flowpaste",
		"version":         s.version,
		"privacy_enabled": e.detector.Enabled(),
		"ai_provider":     e.config.App.AIProvider,
		"shielded":        e.detector.ShieldRequired(e.config.App.AIProvider),
		"detectors":       detectors,
		"rules_count":     len(e.rules.List()),
		"shield_store":    s.config.Shield.Store,
		"audit_enabled":   s.config.Audit.Enabled,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	result := s.engines.Load().detector.Scan(req.Text)
	elapsed := time.Since(start)

	s.metrics.ObserveScan(result)
	counts := countsByName(result)
	s.wsHub.PublishDetection(getRequestID(r.Context()), "scan", counts, elapsed)
	s.record(r.Context(), audit.Event{Kind: audit.KindScan, Counts: counts, Outcome: "ok", Duration: elapsed})

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	result := s.engines.Load().detector.Mask(req.Text)
	elapsed := time.Since(start)

	s.metrics.ObserveMask(result)
	counts := countsByName(result.ScanResult)
	s.wsHub.PublishDetection(getRequestID(r.Context()), "mask", counts, elapsed)
	s.record(r.Context(), audit.Event{Kind: audit.KindMask, Counts: counts, Outcome: "ok", Duration: elapsed})

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	restored := s.engines.Load().detector.Restore(req.Text, req.Mapping)
	s.record(r.Context(), audit.Event{Kind: audit.KindRestore, Outcome: "ok", Duration: time.Since(start)})

	writeJSON(w, http.StatusOK, textResponse{Text: restored})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engines.Load().rules.List())
}

func (s *Server) handleApplyRule(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	start := time.Now()
	out, err := s.engines.Load().rules.Apply(req.Text, id)
	s.ruleDone(w, r, id, req.Text, out, err, time.Since(start))
}

func (s *Server) handleApplyCustom(w http.ResponseWriter, r *http.Request) {
	var req customRuleRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	out, err := s.engines.Load().rules.ApplyCustom(req.Text, req.Rule)
	s.ruleDone(w, r, req.Rule.ID, req.Text, out, err, time.Since(start))
}

func (s *Server) ruleDone(w http.ResponseWriter, r *http.Request, id, in, out string, err error, elapsed time.Duration) {
	outcome := rules.Outcome(err)
	requestID := getRequestID(r.Context())

	s.wsHub.PublishRule(requestID, websocket.RuleEvent{
		RuleID:       id,
		Outcome:      outcome,
		InputBytes:   len(in),
		OutputBytes:  len(out),
		ProcessingMS: float64(elapsed) / float64(time.Millisecond),
	})
	s.record(r.Context(), audit.Event{Kind: audit.KindRule, RuleID: id, Outcome: outcome, Duration: elapsed})

	if err != nil {
		status := ruleStatus(err)
		s.logger.WithRequestID(requestID).Info("Rule failed",
			zap.String("rule_id", id),
			zap.String("outcome", outcome),
		)
		writeError(w, status, outcome, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: out})
}

func (s *Server) handleShieldBegin(w http.ResponseWriter, r *http.Request) {
	var req shieldRequest
	if !decode(w, r, &req) {
		return
	}
	e := s.engines.Load()
	if req.Provider == "" {
		req.Provider = e.config.App.AIProvider
	}

	start := time.Now()
	env, err := e.shield.Begin(r.Context(), req.Text, req.Provider)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to start shield session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "shield_error", "failed to start shield session")
		return
	}
	elapsed := time.Since(start)

	s.metrics.ShieldSessions.WithLabelValues("begun").Inc()
	s.wsHub.PublishDetection(getRequestID(r.Context()), "shield", env.Counts, elapsed)
	s.record(r.Context(), audit.Event{Kind: audit.KindShieldBegin, Counts: env.Counts, Outcome: "ok", Duration: elapsed})

	writeJSON(w, http.StatusCreated, env)
}

func (s *Server) handleShieldFinish(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	restored, err := s.engines.Load().shield.Finish(r.Context(), mux.Vars(r)["id"], req.Text)
	elapsed := time.Since(start)

	if errors.Is(err, shield.ErrSessionNotFound) {
		s.metrics.ShieldSessions.WithLabelValues("not_found").Inc()
		s.record(r.Context(), audit.Event{Kind: audit.KindShieldFinish, Outcome: "not_found", Duration: elapsed})
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to finish shield session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "shield_error", "failed to restore response")
		return
	}

	s.metrics.ShieldSessions.WithLabelValues("restored").Inc()
	s.record(r.Context(), audit.Event{Kind: audit.KindShieldFinish, Outcome: "ok", Duration: elapsed})

	writeJSON(w, http.StatusOK, textResponse{Text: restored})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to read audit events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit_error", "failed to read audit events")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ruleStatus maps rule errors to HTTP status codes
func ruleStatus(err error) int {
	switch {
	case errors.Is(err, rules.ErrInvalidPattern):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrTimeout):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rules.ErrOutputTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func countsByName(result privacy.ScanResult) map[string]int {
	counts := make(map[string]int)
	for t, n := range result.Counts() {
		counts[string(t)] = n
	}
	return counts
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes))
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
