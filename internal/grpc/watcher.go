package grpc

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds a single store health check
const checkTimeout = 3 * time.Second

// Checker reports whether a backing store is reachable
type Checker interface {
	Health(ctx context.Context) error
}

// StatusSetter receives serving status updates
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Watcher polls the store checks and mirrors them into the health service.
// Each check is reported under its own name and the overall status under "".
type Watcher struct {
	checks map[string]Checker
	status StatusSetter
	logger *zap.Logger
}

// NewWatcher creates a watcher reporting to status
func NewWatcher(status StatusSetter, checks map[string]Checker, logger *zap.Logger) *Watcher {
	return &Watcher{checks: checks, status: status, logger: logger}
}

// CheckOnce runs every check and reports whether all of them passed
func (w *Watcher) CheckOnce(ctx context.Context) bool {
	names := make([]string, 0, len(w.checks))
	for name := range w.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := w.checks[name].Health(cctx)
		cancel()

		if err != nil {
			w.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			w.status.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
			healthy = false
			continue
		}
		w.status.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.status.SetServingStatus("", overall)

	return healthy
}

// Start checks immediately and then every interval until ctx is done
func (w *Watcher) Start(ctx context.Context, interval time.Duration) {
	w.CheckOnce(ctx)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.CheckOnce(ctx)
			case <-ctx.Done():
				w.logger.Info("stopping health watcher")
				return
			}
		}
	}()

	w.logger.Info("health watcher started", zap.Duration("interval", interval))
}
