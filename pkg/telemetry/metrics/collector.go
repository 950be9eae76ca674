package metrics

import (
	"fmt"
	"sync"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/guardrail"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxCardinality bounds the number of distinct rule/domain label sets.
const DefaultMaxCardinality = 10000

// otherLabel replaces label values once the cardinality limit is reached.
const otherLabel = "other"

// Collector owns every Prometheus metric of the service.
//
// All recording methods are safe on a nil *Collector so that components
// can be built without metrics.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	evaluation *EvaluationMetrics
	ruleTable  *RuleTableMetrics
	events     *EventMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector from the metrics configuration. If
// registry is nil a fresh registry is created. A nil cfg uses the defaults.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	settings := config.MetricsConfig{}
	if cfg != nil {
		settings = *cfg
	}
	if settings.Namespace == "" {
		settings.Namespace = config.DefaultMetricsNamespace
	}
	if settings.Subsystem == "" {
		settings.Subsystem = config.DefaultMetricsSubsystem
	}
	buckets := settings.DurationBuckets
	if len(buckets) == 0 {
		// Evaluations are in-memory; 10µs to ~330ms.
		buckets = prometheus.ExponentialBuckets(0.00001, 2, 16)
	}

	c := &Collector{
		enabled:            settings.IsEnabled(),
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxCardinality),
	}

	c.evaluation = NewEvaluationMetrics(settings.Namespace, settings.Subsystem, buckets, registry)
	c.ruleTable = NewRuleTableMetrics(settings.Namespace, settings.Subsystem, registry)
	c.events = NewEventMetrics(settings.Namespace, settings.Subsystem, registry)

	return c
}

func (c *Collector) active() bool {
	return c != nil && c.enabled
}

// RecordEvaluation records the outcome of one evaluation. autonomyRequested
// is the autonomy flag of the evaluated input.
func (c *Collector) RecordEvaluation(eval *guardrail.Evaluation, autonomyRequested bool) {
	if !c.active() || eval == nil {
		return
	}

	c.evaluation.RecordEvaluation(string(eval.FinalAction), c.limit("domain", eval.PrimaryDomain), eval.Duration)

	for _, r := range eval.Results {
		domain := c.limit("domain", r.Domain)
		c.evaluation.RecordDomainResult(domain, string(r.Action))
		for _, id := range r.TriggeredRules {
			c.evaluation.RecordRuleTrigger(c.limit("rule", id), domain)
		}
	}

	if eval.AutonomyDenied(autonomyRequested) {
		c.evaluation.RecordAutonomyDenied()
	}
}

// RecordReload counts a rule table reload attempt ("success", "invalid",
// "stale_version", "error").
func (c *Collector) RecordReload(status string) {
	if !c.active() {
		return
	}
	c.ruleTable.RecordReload(status)
}

// SetRuleTable publishes the active table's version and rule count.
func (c *Collector) SetRuleTable(version uint64, activeRules int) {
	if !c.active() {
		return
	}
	c.ruleTable.SetTable(version, activeRules)
}

// RecordEvent counts an event handed to the named emitter.
func (c *Collector) RecordEvent(emitter, status string) {
	if !c.active() {
		return
	}
	c.events.eventsTotal.WithLabelValues(emitter, status).Inc()
}

// RecordEventDropped counts an event dropped by the named emitter.
func (c *Collector) RecordEventDropped(emitter string) {
	if !c.active() {
		return
	}
	c.events.eventsDropped.WithLabelValues(emitter).Inc()
}

// SetEventQueueDepth publishes the number of buffered events.
func (c *Collector) SetEventQueueDepth(emitter string, depth int) {
	if !c.active() {
		return
	}
	c.events.queueDepth.WithLabelValues(emitter).Set(float64(depth))
}

// RecordEvidenceWrite counts an evidence write ("success" or "error").
func (c *Collector) RecordEvidenceWrite(status string) {
	if !c.active() {
		return
	}
	c.events.evidenceRecords.WithLabelValues(status).Inc()
}

// RecordEvidencePruned adds n to the pruned evidence counter.
func (c *Collector) RecordEvidencePruned(n int64) {
	if !c.active() || n <= 0 {
		return
	}
	c.events.evidencePruned.Add(float64(n))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// limit folds label values into "other" once the limiter is full.
func (c *Collector) limit(kind, value string) string {
	if value == "" {
		return value
	}
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s", kind, value)) {
		return otherLabel
	}
	return value
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
