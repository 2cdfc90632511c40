// Package metrics exposes Prometheus collectors for child process activity.
package metrics

import (
	"net/http"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "childproc"

var (
	registry = prometheus.NewRegistry()

	spawns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spawns_total",
		Help:      "Total number of child processes started, by program.",
	}, []string{"program"})

	spawnFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spawn_failures_total",
		Help:      "Total number of failed spawn attempts, by reason.",
	}, []string{"reason"})

	exits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exits_total",
		Help:      "Total number of child process exits, by program and outcome.",
	}, []string{"program", "outcome"})

	running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "running",
		Help:      "Number of child processes currently retained by the registry.",
	})

	signals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Total number of signals delivered to children, by signal code.",
	}, []string{"signal"})

	restarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "restarts_total",
		Help:      "Total number of restarts initiated for each supervised process.",
	}, []string{"name"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata for the running binary.",
	}, []string{"go_version", "vcs_revision"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(spawns, spawnFailures, exits, running, signals, restarts, buildInfo)
}

// Registry returns the Prometheus registry holding every childproc metric
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordSpawn counts a successful launch of program
func RecordSpawn(program string) {
	spawns.WithLabelValues(programLabel(program)).Inc()
}

// RecordSpawnFailure counts a launch the OS refused
func RecordSpawnFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	spawnFailures.WithLabelValues(reason).Inc()
}

// RecordExit counts a finished run. Exit code 0 is a success.
func RecordExit(program string, exitCode int) {
	outcome := "failure"
	if exitCode == 0 {
		outcome = "success"
	}
	exits.WithLabelValues(programLabel(program), outcome).Inc()
}

// SetRunning publishes the number of retained processes
func SetRunning(n int) {
	running.Set(float64(n))
}

// RecordSignal counts a signal delivered to a child
func RecordSignal(code int) {
	signals.WithLabelValues(strconv.Itoa(code)).Inc()
}

// IncrementRestart counts a restart of a supervised process
func IncrementRestart(name string) {
	if name == "" {
		return
	}
	restarts.WithLabelValues(name).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		goVersion := runtime.Version()
		revision := ""
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				goVersion = info.GoVersion
			}
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					revision = setting.Value
				}
			}
		}
		buildInfo.WithLabelValues(goVersion, revision).Set(1)
	})
}

// ResetProcess clears the per-name series for a supervised process
func ResetProcess(name string) {
	if name == "" {
		return
	}
	restarts.DeleteLabelValues(name)
}

func programLabel(program string) string {
	if program == "" {
		return "unknown"
	}
	return filepath.Base(program)
}
