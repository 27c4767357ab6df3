// Package monitoring turns a running simulation into an HTTP server that can
// be watched and steered while it runs.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/idgen"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

// Clock is the part of a MasterClock the monitor controls.
type Clock interface {
	clock.TimeTeller
	StatusProvider

	EarthTime() timing.EarthTime
	SetPaused(paused bool)
	Configure(ratio timing.Ratio) error
	Ratio() timing.Ratio
	RatioBounds() timing.RatioBounds
	IncreaseSpeed() timing.Ratio
	DecreaseSpeed() timing.Ratio
}

// PendingLister lists deferred entries.
type PendingLister interface {
	ListPending() []*scheduling.Handle
}

// HistoryReader reads the history log.
type HistoryReader interface {
	Records() []history.Record
}

// Monitor can turn a simulation into a server and allows external monitoring
// and controlling of the simulation.
type Monitor struct {
	logger      *slog.Logger
	clock       Clock
	queue       PendingLister
	history     HistoryReader
	registry    *prometheus.Registry
	portNumber  int
	openBrowser bool
	idGen       idgen.Generator

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor. A nil logger means slog.Default().
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		logger: logger,
		idGen:  idgen.New(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.logger.Warn("monitor port not allowed, using a random port",
			slog.Int("port", portNumber))
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithOpenBrowser makes StartServer open the status page in a browser.
func (m *Monitor) WithOpenBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterClock registers the clock that drives the simulation.
func (m *Monitor) RegisterClock(c Clock) {
	m.clock = c
}

// RegisterQueue registers the deferred event queue.
func (m *Monitor) RegisterQueue(q PendingLister) {
	m.queue = q
}

// RegisterHistory registers the history log.
func (m *Monitor) RegisterHistory(h HistoryReader) {
	m.history = h
}

// RegisterMetrics serves the collectors on /metrics.
func (m *Monitor) RegisterMetrics(collectors ...prometheus.Collector) {
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.registry.MustRegister(collectors...)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        uint64(m.idGen.Generate()),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseClock)
	r.HandleFunc("/api/continue", m.continueClock)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/clock", m.clockDetails)
	r.HandleFunc("/api/ratio", m.getRatio).Methods(http.MethodGet)
	r.HandleFunc("/api/ratio", m.setRatio).Methods(http.MethodPost)
	r.HandleFunc("/api/speed/{direction:up|down}", m.changeSpeed)
	r.HandleFunc("/api/pending", m.listPending)
	r.HandleFunc("/api/history", m.listHistory)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	if m.registry != nil {
		r.Handle("/metrics",
			promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	}

	return r
}

// StartServer starts the monitor as a web server and returns the address it
// listens on.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url + "/api/status"); err != nil {
			m.logger.Warn("cannot open browser", slog.String("error", err.Error()))
		}
	}

	return url
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) clockOr503(w http.ResponseWriter) bool {
	if m.clock == nil {
		http.Error(w, "no clock registered", http.StatusServiceUnavailable)
		return false
	}

	return true
}

func (m *Monitor) pauseClock(w http.ResponseWriter, _ *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	m.clock.SetPaused(true)
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueClock(w http.ResponseWriter, _ *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	m.clock.SetPaused(false)
	_, err := w.Write(nil)
	dieOnErr(err)
}

type nowRsp struct {
	MarsTime  string  `json:"mars_time"`
	Millisols float64 `json:"millisols"`
	EarthTime string  `json:"earth_time"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	now := m.clock.CurrentTime()
	writeJSON(w, nowRsp{
		MarsTime:  now.String(),
		Millisols: now.TotalMillisols(),
		EarthTime: m.clock.EarthTime().String(),
	})
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	writeJSON(w, m.clock.Status())
}

func (m *Monitor) clockDetails(w http.ResponseWriter, _ *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	status := m.clock.Status()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&status)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type ratioRsp struct {
	Ratio float64 `json:"ratio"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (m *Monitor) writeRatio(w http.ResponseWriter, r timing.Ratio) {
	bounds := m.clock.RatioBounds()
	writeJSON(w, ratioRsp{
		Ratio: float64(r),
		Min:   float64(bounds.Min),
		Max:   float64(bounds.Max),
	})
}

func (m *Monitor) getRatio(w http.ResponseWriter, _ *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	m.writeRatio(w, m.clock.Ratio())
}

func (m *Monitor) setRatio(w http.ResponseWriter, r *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	value, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
	if err != nil {
		http.Error(w, "invalid ratio value", http.StatusBadRequest)
		return
	}

	if err := m.clock.Configure(timing.Ratio(value)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.writeRatio(w, m.clock.Ratio())
}

func (m *Monitor) changeSpeed(w http.ResponseWriter, r *http.Request) {
	if !m.clockOr503(w) {
		return
	}

	var ratio timing.Ratio
	if mux.Vars(r)["direction"] == "up" {
		ratio = m.clock.IncreaseSpeed()
	} else {
		ratio = m.clock.DecreaseSpeed()
	}

	m.writeRatio(w, ratio)
}

type pendingRsp struct {
	ID          uint64 `json:"id"`
	Trigger     string `json:"trigger"`
	Description string `json:"description"`
}

func (m *Monitor) listPending(w http.ResponseWriter, _ *http.Request) {
	rsp := []pendingRsp{}

	if m.queue != nil {
		for _, h := range m.queue.ListPending() {
			rsp = append(rsp, pendingRsp{
				ID:          uint64(h.ID()),
				Trigger:     h.Trigger().String(),
				Description: h.Description(),
			})
		}
	}

	writeJSON(w, rsp)
}

type historyRsp struct {
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
	Category  string `json:"category"`
	Payload   string `json:"payload"`
}

func (m *Monitor) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		limit = n
	}

	rsp := []historyRsp{}

	if m.history != nil {
		records := m.history.Records()
		if limit > 0 && limit < len(records) {
			records = records[:limit]
		}

		for _, rec := range records {
			rsp = append(rsp, historyRsp{
				Seq:       rec.Seq,
				Timestamp: rec.Timestamp.String(),
				Category:  rec.Category.String(),
				Payload:   fmt.Sprint(rec.Payload),
			})
		}
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	rsp := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		rsp = append(rsp, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		panic(err)
	}
}
