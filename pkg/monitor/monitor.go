// Package monitor implements the resource monitor: per-tenant usage
// tracking with bounded history, threshold bands with transition-only
// callbacks, metric emission to an external sink, autoscaling feedback,
// and near-term usage forecasting.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/observability"
)

// Defaults applied when RegisterResource gets zero thresholds.
const (
	DefaultWarningThreshold  = 0.8
	DefaultCriticalThreshold = 0.95
)

const defaultHistoryRetention = 24 * time.Hour

// ThresholdCallback fires when a resource's status band changes. It is
// invoked synchronously in the update path, outside the monitor's
// locks, so callbacks may call back into other components.
type ThresholdCallback func(resourceID string, status models.ResourceStatus, utilization float64)

// MetricSink receives one utilization sample per usage update. Sink
// errors are swallowed: they never block local status updates.
type MetricSink interface {
	EmitUtilization(ctx context.Context, resourceID, clientID string, utilization float64) error
}

// Config holds monitor settings, viper-friendly.
type Config struct {
	SampleInterval   time.Duration `json:"sample_interval" mapstructure:"sample_interval"`
	HistoryRetention time.Duration `json:"history_retention" mapstructure:"history_retention"`
}

// Monitor tracks capacity and usage for named resources. All methods
// are safe for concurrent use; history append and band recompute are
// atomic per update.
type Monitor struct {
	mu              sync.Mutex
	resources       map[string]*models.Resource
	callbacks       map[string][]ThresholdCallback
	clientResources map[string][]string
	retention       time.Duration

	sink          MetricSink
	scaler        AutoscalingAPI
	sinkBreaker   *gobreaker.CircuitBreaker
	scalerBreaker *gobreaker.CircuitBreaker

	samplerMu sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	interval  time.Duration

	logger    observability.Logger
	metrics   observability.MetricsClient
	startSpan observability.StartSpanFunc
}

// New creates a monitor. sink and scaler may be nil, disabling metric
// emission and autoscaling feedback respectively.
func New(cfg Config, sink MetricSink, scaler AutoscalingAPI, logger observability.Logger, metrics observability.MetricsClient) *Monitor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	retention := cfg.HistoryRetention
	if retention <= 0 {
		retention = defaultHistoryRetention
	}
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		resources:       make(map[string]*models.Resource),
		callbacks:       make(map[string][]ThresholdCallback),
		clientResources: make(map[string][]string),
		retention:       retention,
		interval:        interval,
		sink:            sink,
		scaler:          scaler,
		sinkBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "monitor-metric-sink",
		}),
		scalerBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "monitor-autoscaler",
		}),
		logger:    logger.WithPrefix("monitor"),
		metrics:   metrics,
		startSpan: observability.NoopStartSpan,
	}
}

// SetStartSpan installs the tracing hook used on the usage update path.
func (m *Monitor) SetStartSpan(fn observability.StartSpanFunc) {
	if fn != nil {
		m.startSpan = fn
	}
}

// RegisterResource registers a resource. Zero thresholds select the
// defaults; capacity must be positive and 0 < warning < critical <= 1.
func (m *Monitor) RegisterResource(resourceID string, capacity, warning, critical float64, clientID string) error {
	if resourceID == "" {
		return awcperrors.InvalidArgument("resource id is required")
	}
	if capacity <= 0 {
		return awcperrors.InvalidArgument("resource %s: capacity must be positive, got %v", resourceID, capacity)
	}
	if warning == 0 {
		warning = DefaultWarningThreshold
	}
	if critical == 0 {
		critical = DefaultCriticalThreshold
	}
	if warning <= 0 || warning >= critical || critical > 1 {
		return awcperrors.InvalidArgument("resource %s: thresholds must satisfy 0 < warning < critical <= 1, got warning=%v critical=%v", resourceID, warning, critical)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.resources[resourceID]; exists {
		return awcperrors.InvalidArgument("resource %s already registered", resourceID)
	}
	m.resources[resourceID] = &models.Resource{
		ID:                resourceID,
		Capacity:          capacity,
		Status:            models.ResourceStatusNormal,
		WarningThreshold:  warning,
		CriticalThreshold: critical,
		ClientID:          clientID,
		Ownership:         models.ClientOwned(clientID),
	}
	if clientID != "" {
		m.clientResources[clientID] = append(m.clientResources[clientID], resourceID)
	}
	m.logger.Info("resource registered", map[string]interface{}{
		"resource_id": resourceID,
		"capacity":    capacity,
		"client_id":   clientID,
	})
	return nil
}

// UpdateUsage records a usage sample: it appends to the bounded
// history, recomputes the status band atomically, emits the sample to
// the metric sink, fires threshold callbacks on band transitions, and
// consults the autoscaler when a scaling group is bound. requesterID ""
// acts as the system principal.
func (m *Monitor) UpdateUsage(ctx context.Context, resourceID string, used float64, requesterID string) error {
	if used < 0 {
		return awcperrors.InvalidArgument("resource %s: usage cannot be negative", resourceID)
	}
	ctx, span := m.startSpan(ctx, "monitor.UpdateUsage",
		attribute.String("resource.id", resourceID))
	defer span.End()

	now := time.Now().UTC()

	m.mu.Lock()
	res, ok := m.resources[resourceID]
	if !ok {
		m.mu.Unlock()
		return awcperrors.NotFound("resource %s not registered", resourceID)
	}
	if requesterID != "" && !res.Ownership.AccessibleBy(requesterID) {
		m.mu.Unlock()
		return awcperrors.PolicyDenied("requester %s cannot update resource %s", requesterID, resourceID)
	}
	oldStatus := res.Status
	res.Used = used
	res.History = append(res.History, models.UsagePoint{Timestamp: now, Used: used})
	res.History = trimHistory(res.History, now.Add(-m.retention))
	utilization := res.Utilization()
	newStatus := models.StatusForUtilization(utilization, res.WarningThreshold, res.CriticalThreshold)
	res.Status = newStatus

	var callbacks []ThresholdCallback
	if newStatus != oldStatus {
		callbacks = append(callbacks, m.callbacks[resourceID]...)
	}
	clientID := res.ClientID
	group := res.AutoscalingGroup
	warning := res.WarningThreshold
	m.mu.Unlock()

	// Externals and callbacks run outside the lock.
	m.emitUtilization(ctx, resourceID, clientID, utilization)
	if newStatus != oldStatus {
		m.logger.Info("resource band transition", map[string]interface{}{
			"resource_id": resourceID,
			"from":        oldStatus,
			"to":          newStatus,
			"utilization": utilization,
		})
		for _, cb := range callbacks {
			cb(resourceID, newStatus, utilization)
		}
		if group != "" {
			m.consultAutoscaler(ctx, resourceID, group, newStatus, utilization, warning)
		}
	}
	return nil
}

// SetAutoscalingGroup binds a resource to an external scaling group.
func (m *Monitor) SetAutoscalingGroup(resourceID, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[resourceID]
	if !ok {
		return awcperrors.NotFound("resource %s not registered", resourceID)
	}
	res.AutoscalingGroup = group
	return nil
}

// RegisterThresholdCallback registers a callback fired on band
// transitions of the resource.
func (m *Monitor) RegisterThresholdCallback(resourceID string, cb ThresholdCallback) error {
	if cb == nil {
		return awcperrors.InvalidArgument("callback is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[resourceID]; !ok {
		return awcperrors.NotFound("resource %s not registered", resourceID)
	}
	m.callbacks[resourceID] = append(m.callbacks[resourceID], cb)
	return nil
}

// GetResourceStatus returns a snapshot of the resource.
func (m *Monitor) GetResourceStatus(resourceID string) (models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[resourceID]
	if !ok {
		return models.Resource{}, awcperrors.NotFound("resource %s not registered", resourceID)
	}
	return snapshotResource(res), nil
}

// ListResources returns snapshots of all resources, or only the
// tenant's when clientID is non-empty.
func (m *Monitor) ListResources(clientID string) []models.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Resource
	for _, res := range m.resources {
		if clientID != "" && res.ClientID != clientID {
			continue
		}
		out = append(out, snapshotResource(res))
	}
	return out
}

// GetClientUsage returns the tenant's usage history, one series per
// resource.
func (m *Monitor) GetClientUsage(clientID string) map[string][]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]float64)
	for _, id := range m.clientResources[clientID] {
		res, ok := m.resources[id]
		if !ok {
			continue
		}
		series := make([]float64, len(res.History))
		for i, p := range res.History {
			series[i] = p.Used
		}
		out[id] = series
	}
	return out
}

// StartMonitoring starts the background sampler, which re-emits every
// resource's utilization each interval. It appends no history, so a
// push-driven update is never double-counted. Idempotent.
func (m *Monitor) StartMonitoring(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.interval
	}
	m.samplerMu.Lock()
	defer m.samplerMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sample(ctx, interval, m.stop, m.done)
}

// StopMonitoring cooperatively stops the sampler, waiting for it to
// exit. Idempotent.
func (m *Monitor) StopMonitoring() {
	m.samplerMu.Lock()
	if !m.running {
		m.samplerMu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.samplerMu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.logger.Warn("sampler did not stop within bound", nil)
	}
}

func (m *Monitor) sample(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, res := range m.ListResources("") {
				m.emitUtilization(ctx, res.ID, res.ClientID, res.Utilization())
			}
		}
	}
}

// emitUtilization pushes one sample through the circuit breaker.
// Failures are logged and swallowed; a tripped breaker heals on later
// ticks.
func (m *Monitor) emitUtilization(ctx context.Context, resourceID, clientID string, utilization float64) {
	m.metrics.RecordGauge("monitor.resource.utilization", utilization, map[string]string{"resource_id": resourceID})
	if m.sink == nil {
		return
	}
	_, err := m.sinkBreaker.Execute(func() (interface{}, error) {
		return nil, m.sink.EmitUtilization(ctx, resourceID, clientID, utilization)
	})
	if err != nil {
		m.logger.Warn("metric sink emit failed", map[string]interface{}{
			"resource_id": resourceID,
			"error":       err.Error(),
		})
	}
}

func trimHistory(history []models.UsagePoint, cutoff time.Time) []models.UsagePoint {
	idx := 0
	for idx < len(history) && history[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return history
	}
	return append([]models.UsagePoint(nil), history[idx:]...)
}

func snapshotResource(res *models.Resource) models.Resource {
	out := *res
	out.History = append([]models.UsagePoint(nil), res.History...)
	return out
}
