package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/fabric"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/metrics"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, time.Minute, cfg.Monitor.SampleInterval)
	assert.Equal(t, 24*time.Hour, cfg.Monitor.HistoryRetention)
	assert.Equal(t, string(fabric.FormatJSON), cfg.Fabric.SerializationFormat)
	assert.Equal(t, string(fabric.PolicyDeny), cfg.Fabric.CrossOwnerPolicy)
	assert.Equal(t, 1024, cfg.Fabric.AsyncQueueSize)
	assert.Equal(t, metrics.DefaultNamespace, cfg.Metrics.Namespace)
	assert.Empty(t, cfg.Distributor.MirrorTable)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "awcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
aws:
  region: eu-west-1
  endpoint: http://localhost:4566
distributor:
  mirror_table: awcp-tasks
  workflow_role_arn: arn:aws:iam::123:role/wf
monitor:
  sample_interval: 30s
fabric:
  serialization_format: base64
  cross_owner_policy: secure
  default_queue: agent-messages
metrics:
  namespace: Custom/Agents
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "http://localhost:4566", cfg.AWS.Endpoint)
	assert.Equal(t, "awcp-tasks", cfg.Distributor.MirrorTable)
	assert.Equal(t, "arn:aws:iam::123:role/wf", cfg.Distributor.WorkflowRoleARN)
	assert.Equal(t, 30*time.Second, cfg.Monitor.SampleInterval)
	assert.Equal(t, 24*time.Hour, cfg.Monitor.HistoryRetention)
	assert.Equal(t, string(fabric.FormatBase64), cfg.Fabric.SerializationFormat)
	assert.Equal(t, string(fabric.PolicySecure), cfg.Fabric.CrossOwnerPolicy)
	assert.Equal(t, "agent-messages", cfg.Fabric.DefaultQueue)
	assert.Equal(t, "Custom/Agents", cfg.Metrics.Namespace)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AWCP_AWS_REGION", "ap-southeast-2")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", cfg.AWS.Region)
}
