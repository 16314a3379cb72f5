package fabric

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/google/uuid"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

// defaultEventSource is the Source field of published events when no
// source is configured.
const defaultEventSource = "awcp.agent"

// EventBridgeAPI is the subset of the EventBridge client the event-bus
// transport needs.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
	PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error)
	PutTargets(ctx context.Context, params *eventbridge.PutTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutTargetsOutput, error)
}

// eventTransport holds event-bus state.
type eventTransport struct {
	mu      sync.RWMutex
	client  EventBridgeAPI
	source  string
	busName string
}

func newEventTransport(source, busName string) *eventTransport {
	if source == "" {
		source = defaultEventSource
	}
	return &eventTransport{source: source, busName: busName}
}

// EnableEventBridge attaches an EventBridge client to the fabric.
// Empty source or busName keep the configured values.
func (f *Fabric) EnableEventBridge(client EventBridgeAPI, source, busName string) {
	e := f.events
	e.mu.Lock()
	defer e.mu.Unlock()
	e.client = client
	if source != "" {
		e.source = source
	}
	if busName != "" {
		e.busName = busName
	}
}

// PublishEvent puts one event on the bus. An empty detailType defaults
// to "Agent.<eventType>".
func (f *Fabric) PublishEvent(ctx context.Context, eventType string, detail map[string]interface{}, detailType string, resources []string) models.Delivery {
	e := f.events
	e.mu.RLock()
	client := e.client
	source := e.source
	busName := e.busName
	e.mu.RUnlock()
	if client == nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: "event bus transport not enabled"}
	}
	if detailType == "" {
		detailType = "Agent." + eventType
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}
	entry := ebtypes.PutEventsRequestEntry{
		Source:     aws.String(source),
		DetailType: aws.String(detailType),
		Detail:     aws.String(string(payload)),
		Resources:  resources,
	}
	if busName != "" {
		entry.EventBusName = aws.String(busName)
	}
	out, err := client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		f.metrics.IncrementCounter("fabric.events.publish_failed", 1)
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}
	if out.FailedEntryCount > 0 && len(out.Entries) > 0 {
		return models.Delivery{Status: models.DeliveryFailed, Error: aws.ToString(out.Entries[0].ErrorMessage)}
	}
	f.metrics.IncrementCounter("fabric.events.published", 1)
	d := models.Delivery{Status: models.DeliverySent}
	if len(out.Entries) > 0 {
		d.MessageID = aws.ToString(out.Entries[0].EventId)
	}
	return d
}

// CreateEventRule creates a rule from either an event pattern or a
// schedule expression; exactly one must be given.
func (f *Fabric) CreateEventRule(ctx context.Context, name string, pattern map[string]interface{}, schedule string) (string, error) {
	e := f.events
	e.mu.RLock()
	client := e.client
	busName := e.busName
	e.mu.RUnlock()
	if client == nil {
		return "", awcperrors.Unavailable("event bus transport not enabled")
	}
	if (pattern == nil) == (schedule == "") {
		return "", awcperrors.InvalidArgument("rule %s requires exactly one of event pattern or schedule", name)
	}
	input := &eventbridge.PutRuleInput{Name: aws.String(name)}
	if busName != "" {
		input.EventBusName = aws.String(busName)
	}
	if pattern != nil {
		encoded, err := json.Marshal(pattern)
		if err != nil {
			return "", awcperrors.Wrap(awcperrors.KindInvalidArgument, err, "encode event pattern")
		}
		input.EventPattern = aws.String(string(encoded))
	} else {
		input.ScheduleExpression = aws.String(schedule)
	}
	out, err := client.PutRule(ctx, input)
	if err != nil {
		return "", awcperrors.Wrap(awcperrors.KindUnavailable, err, "create rule %s", name)
	}
	return aws.ToString(out.RuleArn), nil
}

// AddEventTarget attaches a target to a rule. An empty id gets a
// generated one; inputPath and transformer are mutually optional.
func (f *Fabric) AddEventTarget(ctx context.Context, rule, targetARN, id, inputPath string, transformer *ebtypes.InputTransformer) error {
	e := f.events
	e.mu.RLock()
	client := e.client
	busName := e.busName
	e.mu.RUnlock()
	if client == nil {
		return awcperrors.Unavailable("event bus transport not enabled")
	}
	if id == "" {
		id = uuid.NewString()
	}
	target := ebtypes.Target{
		Arn: aws.String(targetARN),
		Id:  aws.String(id),
	}
	if inputPath != "" {
		target.InputPath = aws.String(inputPath)
	}
	if transformer != nil {
		target.InputTransformer = transformer
	}
	input := &eventbridge.PutTargetsInput{
		Rule:    aws.String(rule),
		Targets: []ebtypes.Target{target},
	}
	if busName != "" {
		input.EventBusName = aws.String(busName)
	}
	out, err := client.PutTargets(ctx, input)
	if err != nil {
		return awcperrors.Wrap(awcperrors.KindUnavailable, err, "add target to rule %s", rule)
	}
	if out.FailedEntryCount > 0 && len(out.FailedEntries) > 0 {
		return awcperrors.Unavailable("add target to rule %s: %s", rule, aws.ToString(out.FailedEntries[0].ErrorMessage))
	}
	return nil
}

// EventPatternFor builds the pattern matching this fabric's events of
// the given type.
func (f *Fabric) EventPatternFor(eventType string) map[string]interface{} {
	e := f.events
	e.mu.RLock()
	source := e.source
	e.mu.RUnlock()
	return map[string]interface{}{
		"source":      []string{source},
		"detail-type": []string{"Agent." + eventType},
	}
}
