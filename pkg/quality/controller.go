// Package quality implements the quality controller: it evaluates task
// output against registered metrics, keeps the feedback ledger, and
// exposes per-agent aggregate scores that the distributor uses to break
// assignment ties.
package quality

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/observability"
)

// DefaultThreshold is the passing score when a metric is registered
// without an explicit threshold.
const DefaultThreshold = 0.7

const scoreCacheSize = 4096

// Evaluator scores one output against one metric, returning a score in
// [0,1].
type Evaluator func(output interface{}, context map[string]interface{}) (float64, error)

// Verification is a task-type specific check run alongside metrics.
type Verification func(output interface{}) (bool, string)

// Metric pairs an evaluator with its passing threshold.
type Metric struct {
	Name      string
	Evaluate  Evaluator
	Threshold float64
}

// MetricResult is the outcome of one metric during an evaluation.
type MetricResult struct {
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
	Error  string  `json:"error,omitempty"`
}

// VerificationResult is the outcome of one verification.
type VerificationResult struct {
	Passed   bool   `json:"passed"`
	Feedback string `json:"feedback,omitempty"`
}

// Evaluation is the full result of evaluating one output.
type Evaluation struct {
	Passed        bool                    `json:"passed"`
	OverallScore  float64                 `json:"overall_score"`
	Metrics       map[string]MetricResult `json:"metrics"`
	Verifications []VerificationResult    `json:"verifications,omitempty"`
}

// Controller is the quality controller. All methods are safe for
// concurrent use.
type Controller struct {
	mu            sync.RWMutex
	metrics       map[string]Metric
	verifications map[string][]Verification
	feedback      []models.Feedback
	standards     map[string]map[string]interface{}

	// scoreCache memoizes mean scores per (task type, agent); entries
	// for an agent are dropped whenever new feedback lands.
	scoreCache *lru.Cache[string, float64]

	logger observability.Logger
}

// NewController creates a quality controller.
func NewController(logger observability.Logger) *Controller {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	cache, _ := lru.New[string, float64](scoreCacheSize)
	return &Controller{
		metrics:       make(map[string]Metric),
		verifications: make(map[string][]Verification),
		standards:     make(map[string]map[string]interface{}),
		scoreCache:    cache,
		logger:        logger.WithPrefix("quality"),
	}
}

// RegisterMetric registers a named metric. A zero threshold selects
// DefaultThreshold; thresholds must stay in [0,1].
func (c *Controller) RegisterMetric(name string, evaluator Evaluator, threshold float64) error {
	if name == "" || evaluator == nil {
		return awcperrors.InvalidArgument("metric requires a name and an evaluator")
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return awcperrors.InvalidArgument("metric threshold %v outside [0,1]", threshold)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics[name] = Metric{Name: name, Evaluate: evaluator, Threshold: threshold}
	return nil
}

// AddVerification registers a verification for a task type.
func (c *Controller) AddVerification(taskType string, fn Verification) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifications[taskType] = append(c.verifications[taskType], fn)
}

// Evaluate runs every registered metric plus the task type's
// verifications against an output. A failing or erroring metric marks
// the evaluation failed but never aborts it; the overall score is the
// mean over metrics that evaluated successfully.
func (c *Controller) Evaluate(taskType string, output interface{}, context map[string]interface{}) *Evaluation {
	c.mu.RLock()
	metrics := make([]Metric, 0, len(c.metrics))
	for _, m := range c.metrics {
		metrics = append(metrics, m)
	}
	verifications := append([]Verification(nil), c.verifications[taskType]...)
	c.mu.RUnlock()

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })

	result := &Evaluation{
		Passed:  true,
		Metrics: make(map[string]MetricResult, len(metrics)),
	}

	var sum float64
	var scored int
	for _, m := range metrics {
		score, err := c.runEvaluator(m, output, context)
		if err != nil {
			result.Metrics[m.Name] = MetricResult{Error: err.Error()}
			result.Passed = false
			continue
		}
		passed := score >= m.Threshold
		result.Metrics[m.Name] = MetricResult{Score: score, Passed: passed}
		sum += score
		scored++
		if !passed {
			result.Passed = false
		}
	}
	if scored > 0 {
		result.OverallScore = sum / float64(scored)
	}

	for _, v := range verifications {
		passed, feedback := v(output)
		result.Verifications = append(result.Verifications, VerificationResult{Passed: passed, Feedback: feedback})
		if !passed {
			result.Passed = false
		}
	}
	return result
}

// runEvaluator isolates evaluator panics so a broken metric counts as a
// failure instead of taking down the caller.
func (c *Controller) runEvaluator(m Metric, output interface{}, context map[string]interface{}) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = awcperrors.New(awcperrors.KindUnknown, "metric %s panicked: %v", m.Name, r)
		}
	}()
	score, err = m.Evaluate(output, context)
	if err == nil && (score < 0 || score > 1) {
		err = awcperrors.InvalidArgument("metric %s produced score %v outside [0,1]", m.Name, score)
	}
	return score, err
}

// RecordFeedback appends a feedback record to the ledger. The record
// must name a task.
func (c *Controller) RecordFeedback(fb models.Feedback) error {
	if fb.TaskID == "" {
		return awcperrors.InvalidArgument("feedback requires a task id")
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	c.mu.Lock()
	c.feedback = append(c.feedback, fb)
	c.mu.Unlock()
	if fb.AgentID != "" {
		c.invalidateAgent(fb.AgentID)
	}
	return nil
}

// RecordAnonymized records feedback stripped of agent and source
// identity. Anonymized records never surface an agent id.
func (c *Controller) RecordAnonymized(taskID, content string, rating *float64) error {
	return c.RecordFeedback(models.Feedback{
		TaskID:  taskID,
		Content: content,
		Rating:  rating,
	})
}

// GetAgentFeedback returns every feedback record naming the agent.
func (c *Controller) GetAgentFeedback(agentID string) []models.Feedback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Feedback
	for _, fb := range c.feedback {
		if fb.AgentID == agentID {
			out = append(out, fb)
		}
	}
	return out
}

// GetClientFeedback returns the tenant's slice of the ledger.
func (c *Controller) GetClientFeedback(clientID string) []models.Feedback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Feedback
	for _, fb := range c.feedback {
		if fb.ClientID == clientID {
			out = append(out, fb)
		}
	}
	return out
}

// RouteToBestAgent returns the candidate with the highest mean score
// over its feedback for the task type. Candidates with no feedback
// score 0. Returns "" when the candidate list is empty.
func (c *Controller) RouteToBestAgent(taskType string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	best := candidates[0]
	bestScore := c.GetAgentScore(taskType, candidates[0])
	for _, id := range candidates[1:] {
		if score := c.GetAgentScore(taskType, id); score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

// GetAgentScore returns the mean score of the agent's feedback for the
// task type (records without a type count toward every type). Missing
// data scores 0.
func (c *Controller) GetAgentScore(taskType, agentID string) float64 {
	key := taskType + "\x00" + agentID
	if score, ok := c.scoreCache.Get(key); ok {
		return score
	}
	c.mu.RLock()
	var sum float64
	var n int
	for _, fb := range c.feedback {
		if fb.AgentID != agentID {
			continue
		}
		if fb.TaskType != "" && taskType != "" && fb.TaskType != taskType {
			continue
		}
		if score, ok := fb.EffectiveScore(); ok {
			sum += score
			n++
		}
	}
	c.mu.RUnlock()
	score := 0.0
	if n > 0 {
		score = sum / float64(n)
	}
	c.scoreCache.Add(key, score)
	return score
}

// invalidateAgent drops the agent's cached scores across all task types.
func (c *Controller) invalidateAgent(agentID string) {
	suffix := "\x00" + agentID
	for _, key := range c.scoreCache.Keys() {
		if len(key) >= len(suffix) && key[len(key)-len(suffix):] == suffix {
			c.scoreCache.Remove(key)
		}
	}
}

// SetClientStandards stores a tenant's quality standards.
func (c *Controller) SetClientStandards(clientID string, standards map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.standards[clientID] = standards
}

// GetClientStandards returns a tenant's quality standards, or nil.
func (c *Controller) GetClientStandards(clientID string) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.standards[clientID]
}
