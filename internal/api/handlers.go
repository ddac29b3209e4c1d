package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/irqd/internal/events"
	"github.com/mattjoyce/irqd/internal/interrupt"
)

const (
	maxRaiseBody        = 4 << 10
	defaultJournalLimit = 20
	maxJournalLimit     = 500
)

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	draining := s.draining()
	status := "ok"
	if draining {
		status = "draining"
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    s.deps.Queue.Len(),
		Pending:       s.deps.Queue.Pending(),
		Draining:      draining,
	})
}

// handleRaise handles POST /interrupts
func (s *Server) handleRaise(w http.ResponseWriter, r *http.Request) {
	if s.draining() {
		s.writeError(w, http.StatusServiceUnavailable, "dispatcher is draining")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRaiseBody+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxRaiseBody {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var req RaiseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind, err := interrupt.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Priority == nil {
		s.writeError(w, http.StatusBadRequest, "priority is required")
		return
	}

	if s.deps.Intake == nil {
		s.writeError(w, http.StatusServiceUnavailable, "interrupt intake unavailable")
		return
	}

	ev := interrupt.New(kind, *req.Priority)
	if err := s.deps.Intake.Submit(ev); err != nil {
		s.logger.Warn("interrupt rejected", "interrupt_id", ev.ID(), "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.deps.Hub.Publish(events.TypeEnqueued, ev)

	s.logger.Info("interrupt raised via API",
		"interrupt_id", ev.ID(),
		"kind", kind.String(),
		"priority", ev.Priority(),
	)

	respondJSON(w, http.StatusAccepted, RaiseResponse{
		ID:       ev.ID(),
		Kind:     kind.String(),
		Priority: ev.Priority(),
		Status:   "queued",
	})
}

// handleQueue handles GET /queue
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	items := s.deps.Queue.Snapshot()
	if items == nil {
		items = []interrupt.Event{}
	}
	respondJSON(w, http.StatusOK, QueueResponse{
		Waiting: len(items),
		Pending: s.deps.Queue.Pending(),
		Items:   items,
	})
}

// handleJournal handles GET /journal?limit=N
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		s.writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := s.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	summary, err := s.deps.Journal.Summary(r.Context())
	if err != nil {
		s.logger.Error("failed to summarise journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}

	respondJSON(w, http.StatusOK, JournalResponse{Entries: entries, Summary: summary})
}

// handleMetrics handles GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		s.writeError(w, http.StatusNotFound, "telemetry disabled")
		return
	}
	snap, err := s.deps.Metrics.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("failed to collect metrics", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "telemetry disabled")
		return
	}
	respondJSON(w, http.StatusOK, MetricsResponse{Metrics: snap})
}

func (s *Server) draining() bool {
	return s.deps.Intake != nil && s.deps.Intake.Draining()
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
