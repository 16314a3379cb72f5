package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskTransitions(t *testing.T) {
	task := &Task{Status: TaskStatusPending}
	assert.True(t, task.CanTransitionTo(TaskStatusAssigned))
	assert.False(t, task.CanTransitionTo(TaskStatusCompleted))
	assert.False(t, task.IsTerminal())

	task.Status = TaskStatusAssigned
	assert.True(t, task.CanTransitionTo(TaskStatusCompleted))
	assert.True(t, task.CanTransitionTo(TaskStatusFailed))
	assert.False(t, task.CanTransitionTo(TaskStatusPending))

	for _, terminal := range []TaskStatus{TaskStatusCompleted, TaskStatusFailed} {
		task.Status = terminal
		assert.True(t, task.IsTerminal())
		assert.False(t, task.CanTransitionTo(TaskStatusAssigned))
		assert.False(t, task.CanTransitionTo(TaskStatusPending))
	}
}

func TestOwnershipAccess(t *testing.T) {
	system := SystemOwned()
	assert.True(t, system.AccessibleBy("anyone"))
	assert.True(t, system.AccessibleBy(""))

	owned := ClientOwned("client-a")
	assert.True(t, owned.AccessibleBy("client-a"))
	assert.False(t, owned.AccessibleBy("client-b"))

	// An empty client id degrades to system ownership.
	assert.Equal(t, system, ClientOwned(""))
}

func TestAgentCapacityAndCapabilities(t *testing.T) {
	agent := &Agent{
		ID:           "a1",
		Capabilities: []string{"code", "review"},
		Capacity:     2,
	}

	assert.True(t, agent.HasCapacity())
	assert.Equal(t, 0.0, agent.Utilization())

	assert.True(t, agent.CanHandle(nil))
	assert.True(t, agent.CanHandle([]string{"code"}))
	assert.True(t, agent.CanHandle([]string{"code", "review"}))
	assert.False(t, agent.CanHandle([]string{"code", "deploy"}))

	agent.CurrentTasks = []string{"t1", "t2"}
	assert.False(t, agent.HasCapacity())
	assert.Equal(t, 1.0, agent.Utilization())

	agent.RemoveTask("t1")
	assert.Equal(t, []string{"t2"}, agent.CurrentTasks)
	agent.RemoveTask("missing")
	assert.Equal(t, []string{"t2"}, agent.CurrentTasks)
}

func TestResourceStatusBands(t *testing.T) {
	assert.Equal(t, ResourceStatusNormal, StatusForUtilization(0.5, 0.8, 0.95))
	assert.Equal(t, ResourceStatusWarning, StatusForUtilization(0.8, 0.8, 0.95))
	assert.Equal(t, ResourceStatusCritical, StatusForUtilization(0.95, 0.8, 0.95))
	assert.Equal(t, ResourceStatusCritical, StatusForUtilization(1.3, 0.8, 0.95))

	r := &Resource{Capacity: 0, Used: 10}
	assert.Equal(t, 0.0, r.Utilization())
}
