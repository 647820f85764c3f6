package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/reliability"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// JobRunner lists and triggers scheduled jobs.
type JobRunner interface {
	Jobs() []scheduler.JobInfo
	RunNow(name string) error
}

// BackupLister lists off-site backups.
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   map[string]*database.DB
	jobs        JobRunner
	backups     BackupLister
}

// NewSystemHandlers creates a new system handlers instance.
// jobs and backups may be nil when the scheduler or R2 are not configured.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	jobs JobRunner,
	backups BackupLister,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
		jobs:        jobs,
		backups:     backups,
	}
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status        string              `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64               `json:"uptime_seconds"`
	CPUPercent    float64             `json:"cpu_percent"`
	RAMPercent    float64             `json:"ram_percent"`
	Goroutines    int                 `json:"goroutines"`
	DataDirMB     float64             `json:"data_dir_mb"`
	Databases     []DBInfo            `json:"databases"`
	Jobs          []scheduler.JobInfo `json:"jobs,omitempty"`
	BackupsActive bool                `json:"backups_enabled"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name    string          `json:"name"`
	Path    string          `json:"path"`
	Healthy bool            `json:"healthy"`
	Error   string          `json:"error,omitempty"`
	Stats   *database.Stats `json:"stats,omitempty"`
}

// GetSystemStatusSnapshot collects the current status. Unhealthy databases
// mark the system degraded but never fail the call.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) SystemStatusResponse {
	cpuPercent, ramPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
		DataDirMB:     h.getDirSize(h.dataDir),
		Databases:     h.databaseInfo(ctx),
		BackupsActive: h.backups != nil,
	}
	if h.jobs != nil {
		response.Jobs = h.jobs.Jobs()
	}

	for _, db := range response.Databases {
		if !db.Healthy {
			response.Status = "degraded"
			break
		}
	}

	return response
}

func (h *SystemHandlers) databaseInfo(ctx context.Context) []DBInfo {
	names := make([]string, 0, len(h.databases))
	for name, db := range h.databases {
		if db != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	infos := make([]DBInfo, 0, len(names))
	for _, name := range names {
		db := h.databases[name]
		info := DBInfo{Name: name, Path: db.Path(), Healthy: true}

		if err := db.HealthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Database health check failed")
			info.Healthy = false
			info.Error = err.Error()
		}
		if stats, err := db.GetStats(); err == nil {
			info.Stats = stats
		} else {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
		}

		infos = append(infos, info)
	}
	return infos
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot(r.Context()))
}

// HandleDatabaseStats returns health and size information per database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":   h.databaseInfo(r.Context()),
		"data_dir_mb": h.getDirSize(h.dataDir),
	})
}

// HandleJobs returns scheduler job status
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeJSON(w, http.StatusOK, []scheduler.JobInfo{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.jobs.Jobs())
}

// HandleRunJob triggers a job immediately
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	if err := h.jobs.RunNow(name); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Job " + name + " completed",
	})
}

// HandleBackups lists off-site backups, newest first
func (h *SystemHandlers) HandleBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		h.writeError(w, http.StatusServiceUnavailable, "backups not configured")
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		h.writeError(w, http.StatusBadGateway, "Failed to list backups")
		return
	}
	h.writeJSON(w, http.StatusOK, backups)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint fast.
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

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *SystemHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
