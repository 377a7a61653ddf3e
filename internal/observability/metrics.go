package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for API requests and pipeline stages.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	stageCount    map[string]int64
	stageDuration map[string]time.Duration
}

// StageStat summarizes one runner/stage/outcome bucket.
type StageStat struct {
	Key           string  `json:"key"`
	Count         int64   `json:"count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests map[string]int64 `json:"requests"`
	Errors   map[string]int64 `json:"errors"`
	Stages   []StageStat      `json:"stages"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		stageCount:    make(map[string]int64),
		stageDuration: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordStage counts a finished pipeline stage and accumulates its latency.
func (m *Metrics) RecordStage(runner, stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	key := runner + "|" + stage + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageCount[key]++
	m.stageDuration[key] += duration
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	out := Snapshot{Requests: map[string]int64{}, Errors: map[string]int64{}, Stages: []StageStat{}}
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		out.Requests[k] = v
	}
	for k, v := range m.errorCount {
		out.Errors[k] = v
	}
	for k, n := range m.stageCount {
		stat := StageStat{Key: k, Count: n}
		if n > 0 {
			stat.AvgDurationMS = float64(m.stageDuration[k].Milliseconds()) / float64(n)
		}
		out.Stages = append(out.Stages, stat)
	}
	sort.Slice(out.Stages, func(i, j int) bool { return out.Stages[i].Key < out.Stages[j].Key })
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
