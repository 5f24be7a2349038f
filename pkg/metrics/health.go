package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Report is the body served by /health and /ready
type Report struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// Report statuses
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// Component is the last reported state of one coordinator component
type Component struct {
	Name       string
	Healthy    bool
	Message    string
	Registered time.Time
	Updated    time.Time
}

// CriticalComponents must be registered and healthy for the coordinator to be ready.
// The fleet registers "tunnel" as healthy when no tunnel is configured.
var CriticalComponents = []string{"dispatch", "tunnel"}

type componentSet struct {
	mu         sync.RWMutex
	components map[string]Component
	startTime  time.Time
	version    string
}

var components = newComponentSet()

func newComponentSet() *componentSet {
	return &componentSet{
		components: make(map[string]Component),
		startTime:  time.Now(),
	}
}

// SetVersion sets the version reported by /health and /ready
func SetVersion(version string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.version = version
}

// RegisterComponent records a component, replacing any earlier registration
func RegisterComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	defer components.mu.Unlock()

	now := time.Now()
	components.components[name] = Component{
		Name:       name,
		Healthy:    healthy,
		Message:    message,
		Registered: now,
		Updated:    now,
	}
}

// UpdateComponent changes the state of a component. Unknown components are
// registered.
func UpdateComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	defer components.mu.Unlock()

	now := time.Now()
	c, ok := components.components[name]
	if !ok {
		c = Component{Name: name, Registered: now}
	}
	c.Healthy = healthy
	c.Message = message
	c.Updated = now
	components.components[name] = c
}

// LookupComponent returns the current state of a component
func LookupComponent(name string) (Component, bool) {
	components.mu.RLock()
	defer components.mu.RUnlock()
	c, ok := components.components[name]
	return c, ok
}

// ResetComponents forgets every registered component
func ResetComponents() {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.components = make(map[string]Component)
}

// Health reports unhealthy as soon as one registered component is
func Health() Report {
	components.mu.RLock()
	defer components.mu.RUnlock()

	report := components.report(StatusHealthy)
	var failing []string
	for _, name := range components.sortedNames() {
		c := components.components[name]
		if c.Healthy {
			report.Components[name] = StatusHealthy
			continue
		}
		report.Components[name] = StatusUnhealthy + ": " + c.Message
		failing = append(failing, name)
	}
	if len(failing) > 0 {
		report.Status = StatusUnhealthy
		report.Message = strings.Join(failing, ", ") + " unhealthy"
	}
	return report
}

// Readiness reports ready once every critical component is registered and healthy
func Readiness() Report {
	components.mu.RLock()
	defer components.mu.RUnlock()

	report := components.report(StatusReady)
	var waiting []string
	for _, name := range CriticalComponents {
		c, ok := components.components[name]
		switch {
		case !ok:
			report.Components[name] = "not registered"
			waiting = append(waiting, name)
		case !c.Healthy:
			report.Components[name] = "not ready: " + c.Message
			waiting = append(waiting, name)
		default:
			report.Components[name] = StatusReady
		}
	}
	if len(waiting) > 0 {
		report.Status = StatusNotReady
		report.Message = "waiting for " + strings.Join(waiting, ", ")
	}
	return report
}

func (s *componentSet) report(status string) Report {
	return Report{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    s.version,
		Uptime:     time.Since(s.startTime).String(),
	}
}

func (s *componentSet) sortedNames() []string {
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthHandler serves Health, 503 when unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Health()
		writeReport(w, report, report.Status == StatusHealthy)
	}
}

// ReadyHandler serves Readiness, 503 until ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Readiness()
		writeReport(w, report, report.Status == StatusReady)
	}
}

// LivenessHandler answers 200 for as long as the process serves requests.
// Tunnel verification requests it, since /health is legitimately 503 while
// the tunnel component is still starting.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components.mu.RLock()
		uptime := time.Since(components.startTime).String()
		components.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": uptime,
		})
	}
}

func writeReport(w http.ResponseWriter, report Report, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}
