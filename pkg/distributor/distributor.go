// Package distributor implements the task distributor: owner-scoped
// priority queues, capability- and capacity-matched assignment with
// quality-weighted tie-breaking, a soft-failing durable task mirror,
// and optional workflow offload to an external state machine.
package distributor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/observability"
)

// GlobalQueue is the queue key for tasks submitted without a tenant.
const GlobalQueue = "global"

// Scorer supplies historical quality scores for candidate ranking. The
// quality controller satisfies this.
type Scorer interface {
	GetAgentScore(taskType, agentID string) float64
}

// AgentStatus is a read-only snapshot of an agent's load.
type AgentStatus struct {
	ID           string   `json:"id"`
	ClientID     string   `json:"client_id,omitempty"`
	Capabilities []string `json:"capabilities"`
	Capacity     int      `json:"capacity"`
	ActiveTasks  int      `json:"active_tasks"`
	Utilization  float64  `json:"utilization"`
}

// Distributor assigns tasks to capability-matched agents under tenant
// isolation. Matching is purely in-memory; the mirror and workflow
// offload are strictly best-effort and never block scheduling.
type Distributor struct {
	mu     sync.Mutex
	agents map[string]*models.Agent
	tasks  map[string]*models.Task
	queues map[string][]string
	// rr rotates the queue scan origin between global distribution
	// ticks so no tenant queue is starved.
	rr uint64

	schemas map[string]*gojsonschema.Schema

	scorer    Scorer
	store     TaskStore
	workflows *WorkflowClient

	logger    observability.Logger
	metrics   observability.MetricsClient
	startSpan observability.StartSpanFunc
}

// New creates a distributor. scorer, store, and workflows may each be
// nil, disabling quality tie-breaking, the durable mirror, and workflow
// offload respectively.
func New(scorer Scorer, store TaskStore, workflows *WorkflowClient, logger observability.Logger, metrics observability.MetricsClient) *Distributor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Distributor{
		agents:    make(map[string]*models.Agent),
		tasks:     make(map[string]*models.Task),
		queues:    make(map[string][]string),
		schemas:   make(map[string]*gojsonschema.Schema),
		scorer:    scorer,
		store:     store,
		workflows: workflows,
		logger:    logger.WithPrefix("distributor"),
		metrics:   metrics,
		startSpan: observability.NoopStartSpan,
	}
}

// SetStartSpan installs the tracing hook used on the submit, distribute,
// and completion paths.
func (d *Distributor) SetStartSpan(fn observability.StartSpanFunc) {
	if fn != nil {
		d.startSpan = fn
	}
}

// RegisterAgent registers an agent. Capacity must be at least 1 and
// agent ids cannot be reused.
func (d *Distributor) RegisterAgent(agentID string, capabilities []string, capacity int, clientID string) error {
	if agentID == "" {
		return awcperrors.InvalidArgument("agent id is required")
	}
	if capacity < 1 {
		return awcperrors.InvalidArgument("agent %s: capacity must be at least 1, got %d", agentID, capacity)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[agentID]; exists {
		return awcperrors.InvalidArgument("agent %s already registered", agentID)
	}
	d.agents[agentID] = &models.Agent{
		ID:           agentID,
		Capabilities: append([]string(nil), capabilities...),
		Capacity:     capacity,
		ClientID:     clientID,
		Ownership:    models.ClientOwned(clientID),
	}
	d.logger.Info("agent registered", map[string]interface{}{
		"agent_id":  agentID,
		"capacity":  capacity,
		"client_id": clientID,
	})
	return nil
}

// DeregisterAgent removes an agent from matching. Its in-flight tasks
// stay assigned and complete normally.
func (d *Distributor) DeregisterAgent(agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.agents[agentID]; !ok {
		return awcperrors.NotFound("agent %s not registered", agentID)
	}
	delete(d.agents, agentID)
	return nil
}

// SetTaskSchema installs a JSON schema validated against submission
// parameters for the task type.
func (d *Distributor) SetTaskSchema(taskType, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return awcperrors.Wrap(awcperrors.KindInvalidArgument, err, "schema for task type %s", taskType)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schemas[taskType] = schema
	return nil
}

// SubmitTask queues a pending task on its owner's queue, ordered by
// (priority desc, submission asc).
func (d *Distributor) SubmitTask(ctx context.Context, taskID, taskType string, requirements []string, priority int, clientID string, params models.JSONMap) error {
	if taskID == "" {
		return awcperrors.InvalidArgument("task id is required")
	}
	ctx, span := d.startSpan(ctx, "distributor.SubmitTask",
		attribute.String("task.id", taskID),
		attribute.String("task.type", taskType))
	defer span.End()

	d.mu.Lock()
	if _, exists := d.tasks[taskID]; exists {
		d.mu.Unlock()
		return awcperrors.InvalidArgument("task %s already submitted", taskID)
	}
	schema := d.schemas[taskType]
	d.mu.Unlock()

	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(params)))
		if err != nil {
			return awcperrors.Wrap(awcperrors.KindInvalidArgument, err, "validate task %s", taskID)
		}
		if !result.Valid() {
			return awcperrors.InvalidArgument("task %s parameters invalid: %v", taskID, result.Errors())
		}
	}

	task := &models.Task{
		ID:           taskID,
		Type:         taskType,
		Requirements: append([]string(nil), requirements...),
		Priority:     priority,
		Status:       models.TaskStatusPending,
		ClientID:     clientID,
		Parameters:   params,
		Ownership:    models.ClientOwned(clientID),
		SubmittedAt:  time.Now().UTC(),
	}

	d.mu.Lock()
	if _, exists := d.tasks[taskID]; exists {
		d.mu.Unlock()
		return awcperrors.InvalidArgument("task %s already submitted", taskID)
	}
	d.tasks[taskID] = task
	key := queueKey(clientID)
	d.queues[key] = insertByPriority(d.queues[key], d.tasks, task)
	depth := len(d.queues[key])
	d.mu.Unlock()

	d.metrics.RecordGauge("distributor.queue.depth", float64(depth), map[string]string{"queue": key})
	d.mirrorTask(ctx, task)
	return nil
}

// Distribute assigns as many pending tasks as possible and returns the
// new assignments. With a clientID it processes only that tenant's
// queue; globally it scans every queue, rotating the scan origin
// between ticks for fairness. In-queue priority order is preserved per
// queue either way.
func (d *Distributor) Distribute(ctx context.Context, clientID string) map[string]string {
	ctx, span := d.startSpan(ctx, "distributor.Distribute",
		attribute.String("client.id", clientID))
	defer span.End()

	assignments := make(map[string]string)
	var mirrored []*models.Task

	d.mu.Lock()
	var keys []string
	if clientID != "" {
		keys = []string{clientID}
	} else {
		keys = make([]string, 0, len(d.queues))
		for k := range d.queues {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 1 {
			offset := int(d.rr % uint64(len(keys)))
			keys = append(keys[offset:], keys[:offset]...)
		}
		d.rr++
	}

	for _, key := range keys {
		queue := d.queues[key]
		if len(queue) == 0 {
			continue
		}
		remaining := make([]string, 0, len(queue))
		for _, taskID := range queue {
			task := d.tasks[taskID]
			if task == nil || task.Status != models.TaskStatusPending {
				continue
			}
			agent := d.selectAgent(task)
			if agent == nil {
				remaining = append(remaining, taskID)
				continue
			}
			now := time.Now().UTC()
			task.Status = models.TaskStatusAssigned
			task.AssignedTo = agent.ID
			task.AssignedAt = &now
			agent.CurrentTasks = append(agent.CurrentTasks, taskID)
			assignments[taskID] = agent.ID
			snapshot := *task
			mirrored = append(mirrored, &snapshot)
		}
		d.queues[key] = remaining
	}
	d.mu.Unlock()

	if len(assignments) > 0 {
		d.metrics.RecordCounter("distributor.assignments", float64(len(assignments)), nil)
	}
	for _, task := range mirrored {
		d.mirrorTask(ctx, task)
	}
	return assignments
}

// selectAgent picks the best eligible agent for the task, or nil.
// Eligibility: ownership policy admits, capabilities cover the
// requirements, spare capacity exists. Candidates rank by quality score
// descending, then utilization ascending, then agent id. Caller holds
// d.mu.
func (d *Distributor) selectAgent(task *models.Task) *models.Agent {
	var best *models.Agent
	var bestScore, bestUtil float64
	for _, agent := range d.agents {
		if task.ClientID != "" && agent.ClientID != task.ClientID {
			continue
		}
		if !agent.HasCapacity() || !agent.CanHandle(task.Requirements) {
			continue
		}
		score := 0.0
		if d.scorer != nil {
			score = d.scorer.GetAgentScore(task.Type, agent.ID)
		}
		util := agent.Utilization()
		if best == nil || score > bestScore ||
			(score == bestScore && util < bestUtil) ||
			(score == bestScore && util == bestUtil && agent.ID < best.ID) {
			best, bestScore, bestUtil = agent, score, util
		}
	}
	return best
}

// CompleteTask transitions an assigned task to completed or failed and
// releases the agent's capacity. Terminal states are absorbing.
func (d *Distributor) CompleteTask(ctx context.Context, taskID string, outcome models.TaskStatus) error {
	if outcome != models.TaskStatusCompleted && outcome != models.TaskStatusFailed {
		return awcperrors.InvalidArgument("outcome must be completed or failed, got %s", outcome)
	}
	ctx, span := d.startSpan(ctx, "distributor.CompleteTask",
		attribute.String("task.id", taskID))
	defer span.End()

	d.mu.Lock()
	task, ok := d.tasks[taskID]
	if !ok {
		d.mu.Unlock()
		return awcperrors.NotFound("task %s not found", taskID)
	}
	if !task.CanTransitionTo(outcome) {
		d.mu.Unlock()
		return awcperrors.InvalidArgument("task %s cannot move from %s to %s", taskID, task.Status, outcome)
	}
	now := time.Now().UTC()
	task.Status = outcome
	task.CompletedAt = &now
	if agent, ok := d.agents[task.AssignedTo]; ok {
		agent.RemoveTask(taskID)
	}
	snapshot := *task
	d.mu.Unlock()

	d.metrics.IncrementCounter("distributor.completions", 1)
	d.mirrorTask(ctx, &snapshot)
	return nil
}

// GetClientTasks returns only the tenant's tasks.
func (d *Distributor) GetClientTasks(clientID string) []models.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Task
	for _, task := range d.tasks {
		if task.ClientID == clientID {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// GetTask returns a snapshot of one task.
func (d *Distributor) GetTask(taskID string) (models.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.tasks[taskID]
	if !ok {
		return models.Task{}, awcperrors.NotFound("task %s not found", taskID)
	}
	return *task, nil
}

// GetAgentStatus returns a load snapshot for one agent.
func (d *Distributor) GetAgentStatus(agentID string) (AgentStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[agentID]
	if !ok {
		return AgentStatus{}, awcperrors.NotFound("agent %s not registered", agentID)
	}
	return AgentStatus{
		ID:           agent.ID,
		ClientID:     agent.ClientID,
		Capabilities: append([]string(nil), agent.Capabilities...),
		Capacity:     agent.Capacity,
		ActiveTasks:  len(agent.CurrentTasks),
		Utilization:  agent.Utilization(),
	}, nil
}

// QueueDepths returns the pending-task count per queue.
func (d *Distributor) QueueDepths() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.queues))
	for k, q := range d.queues {
		out[k] = len(q)
	}
	return out
}

// StartWorkflow offloads a multi-step workflow to the external durable
// executor and returns the opaque execution handle, or "" when offload
// is disabled or the external call fails. Failures leave no partial
// state here.
func (d *Distributor) StartWorkflow(ctx context.Context, def WorkflowDefinition, input models.JSONMap, clientID string) string {
	if d.workflows == nil {
		return ""
	}
	handle, err := d.workflows.Start(ctx, def, input, clientID)
	if err != nil {
		d.logger.Error("workflow offload failed", map[string]interface{}{
			"client_id": clientID,
			"error":     err.Error(),
		})
		return ""
	}
	return handle
}

// mirrorTask projects the task into the durable store. Store errors are
// logged and swallowed: only the durable projection is unavailable,
// scheduling continues.
func (d *Distributor) mirrorTask(ctx context.Context, task *models.Task) {
	if d.store == nil {
		return
	}
	if err := d.store.PutTask(ctx, task); err != nil {
		d.metrics.IncrementCounter("distributor.mirror.failures", 1)
		d.logger.Warn("task mirror write failed", map[string]interface{}{
			"task_id": task.ID,
			"error":   err.Error(),
		})
	}
}

func queueKey(clientID string) string {
	if clientID == "" {
		return GlobalQueue
	}
	return clientID
}

// insertByPriority places the task id so the queue stays ordered by
// (priority desc, submission asc): it goes after every task of equal or
// higher priority already queued.
func insertByPriority(queue []string, tasks map[string]*models.Task, task *models.Task) []string {
	idx := len(queue)
	for i, id := range queue {
		if existing := tasks[id]; existing != nil && existing.Priority < task.Priority {
			idx = i
			break
		}
	}
	queue = append(queue, "")
	copy(queue[idx+1:], queue[idx:])
	queue[idx] = task.ID
	return queue
}
