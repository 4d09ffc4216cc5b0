// Package metrics is a small in-process registry with a JSON snapshot
// endpoint. Counters cover the HTTP surface, auth outcomes, and the report
// job lifecycle.
package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Registry struct {
	mu        sync.RWMutex
	endpoint  map[string]*EndpointStat
	auth      map[string]int64
	jobState  map[string]int64
	uploads   int64
	downloads int64
	gauges    map[string]float64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt string                  `json:"generated_at"`
	Endpoints   map[string]EndpointStat `json:"endpoints"`
	Auth        map[string]int64        `json:"auth"`
	JobStates   map[string]int64        `json:"job_states"`
	Uploads     int64                   `json:"uploads_total"`
	Downloads   int64                   `json:"downloads_total"`
	Gauges      map[string]float64      `json:"gauges"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint: map[string]*EndpointStat{},
		auth:     map[string]int64{},
		jobState: map[string]int64{},
		gauges:   map[string]float64{},
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncAuth counts auth outcomes: login_ok, login_failed, register,
// rate_limited, token_expired.
func (r *Registry) IncAuth(outcome string) {
	if outcome == "" {
		return
	}
	r.mu.Lock()
	r.auth[outcome]++
	r.mu.Unlock()
}

// IncJobState counts report jobs entering a lifecycle state.
func (r *Registry) IncJobState(state string) {
	if state == "" {
		return
	}
	r.mu.Lock()
	r.jobState[state]++
	r.mu.Unlock()
}

func (r *Registry) IncUpload() {
	r.mu.Lock()
	r.uploads++
	r.mu.Unlock()
}

func (r *Registry) IncDownload() {
	r.mu.Lock()
	r.downloads++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Endpoints:   make(map[string]EndpointStat, len(r.endpoint)),
		Auth:        make(map[string]int64, len(r.auth)),
		JobStates:   make(map[string]int64, len(r.jobState)),
		Uploads:     r.uploads,
		Downloads:   r.downloads,
		Gauges:      make(map[string]float64, len(r.gauges)),
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.auth {
		out.Auth[k] = v
	}
	for k, v := range r.jobState {
		out.JobStates[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
