package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fanout"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Bundle groups every metrics struct so wiring code can pass one value around.
type Bundle struct {
	HTTP      *HTTPMetrics
	Registry  *RegistryMetrics
	Broadcast *BroadcastMetrics
	WebSocket *WebSocketMetrics
	Redis     *RedisMetrics
	Database  *DatabaseMetrics
	Breakers  *BreakerMetrics
}

// NewBundle creates and registers all application metrics on reg.
func NewBundle(reg prometheus.Registerer) *Bundle {
	return &Bundle{
		HTTP:      NewHTTPMetrics(reg),
		Registry:  NewRegistryMetrics(reg),
		Broadcast: NewBroadcastMetrics(reg),
		WebSocket: NewWebSocketMetrics(reg),
		Redis:     NewRedisMetrics(reg),
		Database:  NewDatabaseMetrics(reg),
		Breakers:  NewBreakerMetrics(reg),
	}
}
