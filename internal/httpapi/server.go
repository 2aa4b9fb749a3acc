// Package httpapi serves read access to signals, patterns, opportunities,
// alerts and run history, plus the human review transitions.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/alerts"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/report"
	"github.com/joelkehle/opportunity-radar/internal/store"
	"github.com/joelkehle/opportunity-radar/internal/velocity"
)

const (
	CodeValidation       = "validation_error"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternal         = "internal_error"
	CodeUnavailable      = "unavailable"

	defaultSignalDays = 7
	defaultRunLimit   = 20
	defaultMentions   = 5
	defaultTopK       = 20
	defaultListLimit  = 100
	maxListLimit      = 1000
	maxBodyBytes      = 1 << 20
)

type Store interface {
	Ping(ctx context.Context) error
	FetchProcessedSignals(ctx context.Context, f model.SignalFilter) ([]model.ProcessedSignal, error)
	FetchPatterns(ctx context.Context, f model.PatternFilter) ([]model.Pattern, error)
	GetPattern(ctx context.Context, id string) (model.Pattern, error)
	UpdatePatternStatus(ctx context.Context, id string, status model.PatternStatus, notes string) error
	FetchOpportunities(ctx context.Context, f model.OpportunityFilter) ([]model.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (model.Opportunity, error)
	UpdateOpportunityStatus(ctx context.Context, id string, status model.OpportunityStatus) error
	RecentCollectionRuns(ctx context.Context, limit int) ([]model.CollectionRun, error)
	RecentAnalysisRuns(ctx context.Context, limit int) ([]model.AnalysisRun, error)
}

type Alerts interface {
	Pending() []alerts.Alert
	Dismiss(id string) bool
}

// Keywords ranks tracked keyword velocity.
type Keywords interface {
	TopAccelerating(minMentions, topK int) []velocity.KeywordVelocity
	Spikes(threshold float64, minMentions int) []velocity.KeywordVelocity
}

// Deps are the server's collaborators. Only Store is required.
type Deps struct {
	Store    Store
	Alerts   Alerts
	Keywords Keywords
	Metrics  http.Handler
	Log      logrus.FieldLogger
}

type Server struct {
	store    Store
	alerts   Alerts
	keywords Keywords
	metrics  http.Handler
	log      logrus.FieldLogger
	now      func() time.Time
}

// Error is the JSON error body.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Status: http.StatusBadRequest}
}

func NewServer(d Deps) http.Handler {
	s := &Server{
		store:    d.Store,
		alerts:   d.Alerts,
		keywords: d.Keywords,
		metrics:  d.Metrics,
		log:      logging.OrDiscard(d.Log),
		now:      time.Now,
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/signals", s.handleSignals)
	mux.HandleFunc("/v1/patterns", s.handlePatterns)
	mux.HandleFunc("/v1/patterns/", s.handlePattern)
	mux.HandleFunc("/v1/opportunities", s.handleOpportunities)
	mux.HandleFunc("/v1/opportunities/", s.handleOpportunity)
	mux.HandleFunc("/v1/alerts", s.handleAlerts)
	mux.HandleFunc("/v1/alerts/", s.handleAlert)
	mux.HandleFunc("/v1/runs", s.handleRuns)
	mux.HandleFunc("/v1/keywords", s.handleKeywords)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *Error
	switch {
	case errors.As(err, &ae):
	case errors.Is(err, store.ErrNotFound):
		ae = &Error{Code: CodeNotFound, Message: "not found", Status: http.StatusNotFound}
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("api request_failed")
		ae = &Error{Code: CodeInternal, Message: err.Error(), Status: http.StatusInternalServerError}
	}
	writeJSON(w, ae.Status, map[string]any{"ok": false, "error": ae})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": &Error{
			Code: CodeMethodNotAllowed, Message: r.Method + " not allowed",
		}})
		return false
	}
	return true
}

func decodeBody(r *http.Request, dst any) error {
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return validation(err.Error())
	}
	if len(blob) == 0 {
		return validation("request body required")
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return validation("invalid json: " + err.Error())
	}
	return nil
}

func parseInt(value string, def int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 {
		return 0, validation("expected a non-negative integer, got " + strconv.Quote(value))
	}
	return v, nil
}

func parseFloat(value string) (float64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return 0, validation("expected a non-negative number, got " + strconv.Quote(value))
	}
	return v, nil
}

func parseLimit(r *http.Request) (int, error) {
	n, err := parseInt(r.URL.Query().Get("limit"), defaultListLimit)
	if err != nil {
		return 0, err
	}
	return min(n, maxListLimit), nil
}

// splitID parses "/v1/{collection}/{id}/{action}" and its short form
// without the action.
func splitID(path, prefix string) (id, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return parts[0], "", true
	case len(parts) == 2 && parts[0] != "":
		return parts[0], parts[1], true
	}
	return "", "", false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": &Error{
			Code: CodeUnavailable, Message: "database: " + err.Error(),
		}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "healthy", "time": s.now().UTC()})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	days, err := parseInt(q.Get("days"), defaultSignalDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	minScore, err := parseInt(q.Get("min_score"), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f := model.SignalFilter{
		Since:               s.now().Add(-time.Duration(days) * 24 * time.Hour),
		MinScore:            minScore,
		ExcludeDisqualified: q.Get("include_disqualified") != "true",
		Limit:               limit,
	}
	if t := strings.TrimSpace(q.Get("type")); t != "" {
		f.SignalType = model.SignalType(t)
		if !f.SignalType.Valid() {
			s.writeError(w, r, validation("unknown signal type "+strconv.Quote(t)))
			return
		}
	}
	signals, err := s.store.FetchProcessedSignals(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": nonNil(signals), "count": len(signals)})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	minScore, err := parseFloat(q.Get("min_score"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f := model.PatternFilter{MinScore: minScore, Limit: limit, Type: model.PatternType(q.Get("type"))}
	if st := strings.TrimSpace(q.Get("status")); st != "" {
		f.Status = model.PatternStatus(st)
		if !f.Status.Valid() {
			s.writeError(w, r, validation("unknown pattern status "+strconv.Quote(st)))
			return
		}
	}
	patterns, err := s.store.FetchPatterns(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": nonNil(patterns), "count": len(patterns)})
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitID(r.URL.Path, "/v1/patterns/")
	switch {
	case ok && action == "":
		if !methodOnly(w, r, http.MethodGet) {
			return
		}
		p, err := s.store.GetPattern(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case ok && action == "status":
		if !methodOnly(w, r, http.MethodPost) {
			return
		}
		var req statusRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		status := model.PatternStatus(strings.TrimSpace(req.Status))
		if !status.Valid() {
			s.writeError(w, r, validation("unknown pattern status "+strconv.Quote(req.Status)))
			return
		}
		if err := s.store.UpdatePatternStatus(r.Context(), id, status, req.Notes); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.log.WithFields(logrus.Fields{"pattern_id": id, "status": status}).Info("pattern reviewed")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "status": status})
	default:
		s.writeError(w, r, &Error{Code: CodeNotFound, Message: "no route for " + r.URL.Path, Status: http.StatusNotFound})
	}
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f := model.OpportunityFilter{Limit: limit}
	if st := strings.TrimSpace(q.Get("status")); st != "" {
		f.Status = model.OpportunityStatus(st)
		if !f.Status.Valid() {
			s.writeError(w, r, validation("unknown opportunity status "+strconv.Quote(st)))
			return
		}
	}
	if tm := strings.TrimSpace(q.Get("timing")); tm != "" {
		f.TimingStage = model.TimingStage(tm)
		if !f.TimingStage.Valid() {
			s.writeError(w, r, validation("unknown timing stage "+strconv.Quote(tm)))
			return
		}
	}
	opps, err := s.store.FetchOpportunities(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": nonNil(opps), "count": len(opps)})
}

func (s *Server) handleOpportunity(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitID(r.URL.Path, "/v1/opportunities/")
	switch {
	case ok && action == "":
		if !methodOnly(w, r, http.MethodGet) {
			return
		}
		o, err := s.store.GetOpportunity(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	case ok && action == "report":
		if !methodOnly(w, r, http.MethodGet) {
			return
		}
		o, err := s.store.GetOpportunity(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeReport(w, r, o)
	case ok && action == "status":
		if !methodOnly(w, r, http.MethodPost) {
			return
		}
		var req statusRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		status := model.OpportunityStatus(strings.TrimSpace(req.Status))
		if !status.Valid() {
			s.writeError(w, r, validation("unknown opportunity status "+strconv.Quote(req.Status)))
			return
		}
		if err := s.store.UpdateOpportunityStatus(r.Context(), id, status); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.log.WithFields(logrus.Fields{"opportunity_id": id, "status": status}).Info("opportunity reviewed")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "status": status})
	default:
		s.writeError(w, r, &Error{Code: CodeNotFound, Message: "no route for " + r.URL.Path, Status: http.StatusNotFound})
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	var pending []alerts.Alert
	if s.alerts != nil {
		pending = s.alerts.Pending()
	}
	notes := make([]alerts.Notification, 0, len(pending))
	for _, a := range pending {
		notes = append(notes, alerts.Format(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": nonNil(pending), "notifications": notes, "count": len(pending)})
}

// writeReport renders o as markdown, or as a standalone HTML page with
// ?format=html.
func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, o model.Opportunity) {
	md := report.Opportunity(o)
	switch r.URL.Query().Get("format") {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, md)
	case "html":
		page, err := report.Document(o.Title, md)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	default:
		s.writeError(w, r, validation("format must be markdown or html"))
	}
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitID(r.URL.Path, "/v1/alerts/")
	if !ok || action != "dismiss" {
		s.writeError(w, r, &Error{Code: CodeNotFound, Message: "no route for " + r.URL.Path, Status: http.StatusNotFound})
		return
	}
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	if s.alerts == nil || !s.alerts.Dismiss(id) {
		s.writeError(w, r, &Error{Code: CodeNotFound, Message: "no pending alert " + strconv.Quote(id), Status: http.StatusNotFound})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	limit, err := parseInt(r.URL.Query().Get("limit"), defaultRunLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit = min(limit, maxListLimit)
	collections, err := s.store.RecentCollectionRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	analyses, err := s.store.RecentAnalysisRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection_runs": nonNil(collections), "analysis_runs": nonNil(analyses)})
}

// handleKeywords lists the fastest accelerating keywords, or with
// ?spike_threshold only those at or above it.
func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	minMentions, err := parseInt(q.Get("min_mentions"), defaultMentions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	top, err := parseInt(q.Get("top"), defaultTopK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	threshold, err := parseFloat(q.Get("spike_threshold"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var out []velocity.KeywordVelocity
	switch {
	case s.keywords == nil:
	case threshold > 0:
		out = s.keywords.Spikes(threshold, minMentions)
	default:
		out = s.keywords.TopAccelerating(minMentions, top)
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": nonNil(out), "count": len(out)})
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
