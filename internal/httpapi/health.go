package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"moviesims/internal/cluster"
)

// Workers is the part of the coordinator the API reports on.
type Workers interface {
	WorkerCount() int
	Snapshot() []cluster.WorkerInfo
}

type healthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	WorkerCount int       `json:"worker_count"`
	MinWorkers  int       `json:"min_workers"`
}

func (a *API) health(c *gin.Context) {
	st := healthStatus{Status: "ok", Timestamp: time.Now(), MinWorkers: a.minWorkers}
	if a.workers != nil {
		st.WorkerCount = a.workers.WorkerCount()
	}
	code := http.StatusOK
	if st.WorkerCount < a.minWorkers {
		st.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}

type systemStats struct {
	NumGoroutine int    `json:"num_goroutine"`
	Alloc        uint64 `json:"alloc_bytes"`
	Sys          uint64 `json:"sys_bytes"`
	NumGC        uint32 `json:"num_gc"`

	Hostname        string    `json:"hostname"`
	Uptime          uint64    `json:"uptime_seconds"`
	TotalRAM        uint64    `json:"total_ram"`
	AvailableRAM    uint64    `json:"available_ram"`
	UsedRAMPercent  float64   `json:"used_ram_percent"`
	TotalCPUCores   int       `json:"total_cpu_cores"`
	CPUUsagePercent []float64 `json:"cpu_usage_percent"`
}

type monitoringStatus struct {
	Timestamp time.Time            `json:"timestamp"`
	Workers   []cluster.WorkerInfo `json:"workers"`
	System    systemStats          `json:"system"`
}

func (a *API) monitoring(c *gin.Context) {
	ctx := c.Request.Context()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	sys := systemStats{
		NumGoroutine:  runtime.NumGoroutine(),
		Alloc:         ms.Alloc,
		Sys:           ms.Sys,
		NumGC:         ms.NumGC,
		TotalCPUCores: runtime.NumCPU(),
	}

	// gopsutil errors leave the zero values in place
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sys.TotalRAM = vm.Total
		sys.AvailableRAM = vm.Available
		sys.UsedRAMPercent = vm.UsedPercent
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, true); err == nil {
		sys.CPUUsagePercent = pct
	}
	if hi, err := host.InfoWithContext(ctx); err == nil {
		sys.Hostname = hi.Hostname
		sys.Uptime = hi.Uptime
	}

	workers := []cluster.WorkerInfo{}
	if a.workers != nil {
		workers = a.workers.Snapshot()
	}
	c.JSON(http.StatusOK, monitoringStatus{Timestamp: time.Now(), Workers: workers, System: sys})
}
