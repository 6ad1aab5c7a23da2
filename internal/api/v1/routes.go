// Package v1 provides the read-only status API of the bridge.
package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-registry-bridge/internal/api/common"
	"github.com/stacklok/toolhive-registry-bridge/internal/eviction"
	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
	"github.com/stacklok/toolhive-registry-bridge/internal/status"
	"github.com/stacklok/toolhive-registry-bridge/internal/versions"
)

// StatusProvider exposes the status of every channel
type StatusProvider interface {
	Statuses() []status.ChannelStatus
}

// CandidateLister exposes the eviction queue
type CandidateLister interface {
	Candidates() []eviction.Entry
	Strategy() eviction.Strategy
}

// ChannelListResponse is the body of GET /v1/channels
type ChannelListResponse struct {
	Channels []status.ChannelStatus `json:"channels"`
}

// InstanceListResponse is the body of GET /v1/instances
type InstanceListResponse struct {
	Instances []registry.InstanceRecord `json:"instances"`
	Count     int                       `json:"count"`
}

// Candidate is one queued eviction
type Candidate struct {
	ID      string    `json:"id"`
	App     string    `json:"app"`
	Channel string    `json:"channel"`
	Since   time.Time `json:"since"`
}

// EvictionResponse is the body of GET /v1/eviction
type EvictionResponse struct {
	Enabled    bool        `json:"enabled"`
	Strategy   string      `json:"strategy,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Routes serves the v1 API
type Routes struct {
	statuses StatusProvider
	reader   sink.Reader
	queue    CandidateLister
}

// NewRoutes creates Routes. reader is nil when the sink cannot be read back and
// queue is nil when eviction is disabled.
func NewRoutes(statuses StatusProvider, reader sink.Reader, queue CandidateLister) *Routes {
	return &Routes{statuses: statuses, reader: reader, queue: queue}
}

// Router creates the router for the /v1 API
func Router(routes *Routes) http.Handler {
	r := chi.NewRouter()

	r.Get("/channels", routes.listChannels)
	r.Get("/channels/{name}", routes.getChannel)
	r.Get("/instances", routes.listInstances)
	r.Get("/instances/{id}", routes.getInstance)
	r.Get("/eviction", routes.getEviction)

	return r
}

// HealthRouter creates the router for the liveness, readiness and version endpoints
func HealthRouter(routes *Routes) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", routes.readinessHandler)
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once every channel has completed a tick and none is closed
func (rr *Routes) readinessHandler(w http.ResponseWriter, _ *http.Request) {
	statuses := rr.statuses.Statuses()
	if len(statuses) == 0 {
		common.WriteErrorResponse(w, "no channels configured", http.StatusServiceUnavailable)
		return
	}
	for _, st := range statuses {
		switch {
		case st.Phase == status.ChannelPhaseClosed:
			common.WriteErrorResponse(w, "channel "+st.Name+" is closed", http.StatusServiceUnavailable)
			return
		case st.LastAttempt == nil:
			common.WriteErrorResponse(w, "channel "+st.Name+" has not completed a tick", http.StatusServiceUnavailable)
			return
		}
	}
	common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

func (rr *Routes) listChannels(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, ChannelListResponse{Channels: rr.statuses.Statuses()}, http.StatusOK)
}

func (rr *Routes) getChannel(w http.ResponseWriter, r *http.Request) {
	name, err := common.URLParam(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, st := range rr.statuses.Statuses() {
		if st.Name == name {
			common.WriteJSONResponse(w, st, http.StatusOK)
			return
		}
	}
	common.WriteErrorResponse(w, "channel not found", http.StatusNotFound)
}

// listInstances returns the sink contents, optionally filtered by ?app=
func (rr *Routes) listInstances(w http.ResponseWriter, r *http.Request) {
	if rr.reader == nil {
		common.WriteErrorResponse(w, "sink does not support reads", http.StatusNotImplemented)
		return
	}

	records, err := rr.reader.List(r.Context())
	if err != nil {
		slog.Error("Failed to list instances", "error", err)
		common.WriteErrorResponse(w, "failed to list instances", http.StatusInternalServerError)
		return
	}

	if app := r.URL.Query().Get("app"); app != "" {
		filtered := make([]registry.InstanceRecord, 0, len(records))
		for _, rec := range records {
			if rec.App == app {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []registry.InstanceRecord{}
	}

	common.WriteJSONResponse(w, InstanceListResponse{Instances: records, Count: len(records)}, http.StatusOK)
}

func (rr *Routes) getInstance(w http.ResponseWriter, r *http.Request) {
	if rr.reader == nil {
		common.WriteErrorResponse(w, "sink does not support reads", http.StatusNotImplemented)
		return
	}

	id, err := common.URLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := rr.reader.Get(r.Context(), id)
	if errors.Is(err, sink.ErrNotFound) {
		common.WriteErrorResponse(w, "instance not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to get instance", "instance", id, "error", err)
		common.WriteErrorResponse(w, "failed to get instance", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, rec, http.StatusOK)
}

func (rr *Routes) getEviction(w http.ResponseWriter, _ *http.Request) {
	resp := EvictionResponse{Candidates: []Candidate{}}
	if rr.queue != nil {
		resp.Enabled = true
		resp.Strategy = rr.queue.Strategy().Name()
		for _, e := range rr.queue.Candidates() {
			resp.Candidates = append(resp.Candidates, Candidate{
				ID:      e.ID(),
				App:     e.Record.App,
				Channel: e.Owner.Name(),
				Since:   e.Since,
			})
		}
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}
