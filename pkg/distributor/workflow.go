package distributor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/observability"
)

// SFNAPI is the subset of the Step Functions client the workflow
// offload needs.
type SFNAPI interface {
	CreateStateMachine(ctx context.Context, params *sfn.CreateStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.CreateStateMachineOutput, error)
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// WorkflowDefinition names either an existing external state machine
// (by its ARN-like handle) or a new one to create from a definition
// body.
type WorkflowDefinition struct {
	// StateMachineARN, when set, references an existing machine and no
	// creation happens.
	StateMachineARN string `json:"state_machine_arn,omitempty"`
	// Name is the base name for a machine to create.
	Name string `json:"name,omitempty"`
	// Definition is the state machine definition body.
	Definition string `json:"definition,omitempty"`
	// RoleARN is the execution role for a machine to create.
	RoleARN string `json:"role_arn,omitempty"`
}

// WorkflowClient starts durable workflow executions on an external
// state machine service.
type WorkflowClient struct {
	client SFNAPI
	logger observability.Logger
}

// NewWorkflowClient creates a workflow client.
func NewWorkflowClient(client SFNAPI, logger observability.Logger) *WorkflowClient {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &WorkflowClient{
		client: client,
		logger: logger.WithPrefix("distributor.workflow"),
	}
}

// Start begins an execution and returns its opaque handle. When the
// definition references no existing machine, one is created first:
// tenant machines are named "{client}-{base}-{unixts}" and tagged with
// the tenant id. A creation failure leaves no partial state.
func (w *WorkflowClient) Start(ctx context.Context, def WorkflowDefinition, input models.JSONMap, clientID string) (string, error) {
	arn := def.StateMachineARN
	if arn == "" {
		created, err := w.create(ctx, def, clientID)
		if err != nil {
			return "", err
		}
		arn = created
	}
	payload, err := json.Marshal(map[string]interface{}(input))
	if err != nil {
		return "", awcperrors.Wrap(awcperrors.KindInvalidArgument, err, "encode workflow input")
	}
	out, err := w.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(arn),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return "", awcperrors.Wrap(awcperrors.KindUnavailable, err, "start execution on %s", arn)
	}
	return aws.ToString(out.ExecutionArn), nil
}

func (w *WorkflowClient) create(ctx context.Context, def WorkflowDefinition, clientID string) (string, error) {
	if def.Definition == "" {
		return "", awcperrors.InvalidArgument("workflow definition body is required to create a state machine")
	}
	base := def.Name
	if base == "" {
		base = "workflow"
	}
	name := base
	input := &sfn.CreateStateMachineInput{
		Definition: aws.String(def.Definition),
		RoleArn:    aws.String(def.RoleARN),
	}
	if clientID != "" {
		name = fmt.Sprintf("%s-%s-%d", clientID, base, time.Now().Unix())
		input.Tags = []sfntypes.Tag{
			{Key: aws.String("ClientId"), Value: aws.String(clientID)},
		}
	}
	input.Name = aws.String(sanitizeMachineName(name))
	out, err := w.client.CreateStateMachine(ctx, input)
	if err != nil {
		return "", awcperrors.Wrap(awcperrors.KindUnavailable, err, "create state machine %s", name)
	}
	w.logger.Info("state machine created", map[string]interface{}{
		"name":      name,
		"client_id": clientID,
	})
	return aws.ToString(out.StateMachineArn), nil
}

// sanitizeMachineName strips characters the service rejects in state
// machine names.
func sanitizeMachineName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
