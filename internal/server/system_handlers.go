package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sanbist/papertrader/internal/clientdata"
	"github.com/sanbist/papertrader/internal/database"
	"github.com/sanbist/papertrader/internal/modules/market_hours"
	"github.com/sanbist/papertrader/internal/scheduler"
	"github.com/sanbist/papertrader/internal/version"
)

// SystemStatusResponse is the payload of GET /api/system/status
type SystemStatusResponse struct {
	Status        string                     `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Goroutines    int                        `json:"goroutines"`
	CPUPercent    float64                    `json:"cpu_percent"`
	MemoryPercent float64                    `json:"memory_percent"`
	Databases     map[string]*database.Stats `json:"databases"`
	Market        *market_hours.MarketStatus `json:"market,omitempty"`
	SnapshotCache []clientdata.Entry         `json:"snapshot_cache"`
	Jobs          []scheduler.JobStatus      `json:"jobs"`
}

// SystemHandlers serves operational endpoints
type SystemHandlers struct {
	databases   map[string]*database.DB
	scheduler   *scheduler.Scheduler
	marketHours *market_hours.MarketHoursService
	cache       *clientdata.Repository
	jobs        map[string]scheduler.Job
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates system handlers. jobs are the ones that may be
// triggered through the API.
func NewSystemHandlers(
	databases map[string]*database.DB,
	sched *scheduler.Scheduler,
	marketHours *market_hours.MarketHoursService,
	cache *clientdata.Repository,
	jobs []scheduler.Job,
	log zerolog.Logger,
) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name()] = j
	}
	return &SystemHandlers{
		databases:   databases,
		scheduler:   sched,
		marketHours: marketHours,
		cache:       cache,
		jobs:        byName,
		startupTime: time.Now(),
		log:         log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/jobs", h.HandleJobsStatus)
		r.Post("/jobs/{name}/run", h.HandleRunJob)
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	resp := SystemStatusResponse{
		Status:        "healthy",
		Version:       version.Version,
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     make(map[string]*database.Stats, len(h.databases)),
		Jobs:          h.jobStatus(),
	}

	for name, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
			resp.Status = "degraded"
			continue
		}
		resp.Databases[name] = stats
	}

	if h.marketHours != nil {
		resp.Market = h.marketHours.GetMarketStatus(time.Now())
	}

	if h.cache != nil {
		entries, err := h.cache.List()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to list cached snapshots")
			resp.Status = "degraded"
		}
		resp.SnapshotCache = entries
	}

	writeJSON(w, http.StatusOK, resp, h.log)
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.jobStatus()}, h.log)
}

// HandleRunJob handles POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":     "unknown job: " + name,
			"available": h.jobNames(),
		}, h.log)
		return
	}

	h.log.Info().Str("job", name).Msg("Job triggered via API")
	start := time.Now()
	if err := h.scheduler.RunNow(job); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"job":   name,
			"error": err.Error(),
		}, h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	}, h.log)
}

func (h *SystemHandlers) jobStatus() []scheduler.JobStatus {
	if h.scheduler == nil {
		return []scheduler.JobStatus{}
	}
	return h.scheduler.Status()
}

func (h *SystemHandlers) jobNames() []string {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the call short.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
