// Package fabric implements the agent communication fabric: direct
// synchronous delivery, a single-consumer async queue, type- and
// ownership-directed routing with a cross-tenant policy, signed and
// encrypted envelopes, and optional SQS / EventBridge transports.
package fabric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/observability"
)

// CrossOwnerPolicy controls what happens to messages crossing a tenant
// boundary.
type CrossOwnerPolicy string

const (
	// PolicyDeny blocks every cross-tenant message.
	PolicyDeny CrossOwnerPolicy = "deny"
	// PolicyAllow delivers cross-tenant messages as plain messages.
	PolicyAllow CrossOwnerPolicy = "allow"
	// PolicySecure delivers cross-tenant messages only through the
	// signed-and-encrypted path.
	PolicySecure CrossOwnerPolicy = "secure"
)

// Handler processes an inbound message of a registered type.
type Handler func(ctx context.Context, senderID string, content interface{}) (interface{}, error)

// Endpoint is anything that can receive a message synchronously. A
// Fabric is itself an Endpoint, so agents holding a reference to each
// other's fabric exchange messages directly.
type Endpoint interface {
	HandleMessage(ctx context.Context, msg *models.Message) (interface{}, error)
}

// Config holds fabric settings, viper-friendly.
type Config struct {
	SerializationFormat string `json:"serialization_format" mapstructure:"serialization_format"`
	CrossOwnerPolicy    string `json:"cross_owner_policy" mapstructure:"cross_owner_policy"`
	EventSource         string `json:"event_source" mapstructure:"event_source"`
	EventBusName        string `json:"event_bus_name" mapstructure:"event_bus_name"`
	DefaultQueue        string `json:"default_queue" mapstructure:"default_queue"`
	AsyncQueueSize      int    `json:"async_queue_size" mapstructure:"async_queue_size"`
}

// Fabric routes messages between agents. All methods are safe for
// concurrent use; send paths return structured Delivery values and
// never panic across the API boundary.
type Fabric struct {
	mu sync.RWMutex

	ownerID          string
	handlers         map[string]Handler
	asyncHandlers    map[string]Handler
	schemas          map[string]*gojsonschema.Schema
	routes           map[string]Endpoint
	defaultRoute     Endpoint
	ownershipRoutes  map[string]Endpoint
	crossOwnerPolicy CrossOwnerPolicy

	serializer *Serializer
	security   *securityState
	async      *asyncQueue

	queue  *queueTransport
	events *eventTransport

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a fabric. Nil logger or metrics select no-op
// implementations.
func New(cfg Config, logger observability.Logger, metrics observability.MetricsClient) (*Fabric, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	serializer := NewSerializer()
	if cfg.SerializationFormat != "" {
		if err := serializer.SetFormat(Format(cfg.SerializationFormat)); err != nil {
			return nil, err
		}
	}
	policy := PolicyDeny
	switch CrossOwnerPolicy(cfg.CrossOwnerPolicy) {
	case "":
	case PolicyDeny, PolicyAllow, PolicySecure:
		policy = CrossOwnerPolicy(cfg.CrossOwnerPolicy)
	}
	queueSize := cfg.AsyncQueueSize
	if queueSize <= 0 {
		queueSize = defaultAsyncQueueSize
	}
	f := &Fabric{
		handlers:         make(map[string]Handler),
		asyncHandlers:    make(map[string]Handler),
		schemas:          make(map[string]*gojsonschema.Schema),
		routes:           make(map[string]Endpoint),
		ownershipRoutes:  make(map[string]Endpoint),
		crossOwnerPolicy: policy,
		serializer:       serializer,
		async:            newAsyncQueue(queueSize),
		logger:           logger.WithPrefix("fabric"),
		metrics:          metrics,
	}
	f.events = newEventTransport(cfg.EventSource, cfg.EventBusName)
	f.queue = newQueueTransport(cfg.DefaultQueue)
	return f, nil
}

// SetOwner sets the owner id this fabric acts for.
func (f *Fabric) SetOwner(ownerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownerID = ownerID
}

// Owner returns the owner id this fabric acts for.
func (f *Fabric) Owner() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ownerID
}

// SetMessageSchema installs a JSON schema validated against the content
// of outbound messages of the given type.
func (f *Fabric) SetMessageSchema(messageType, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return awcperrors.Wrap(awcperrors.KindInvalidArgument, err, "schema for message type %s", messageType)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas[messageType] = schema
	return nil
}

// validateContent checks the content against the type's schema, if one
// is installed. A "" return means the content is acceptable.
func (f *Fabric) validateContent(msgType string, content interface{}) string {
	f.mu.RLock()
	schema := f.schemas[msgType]
	f.mu.RUnlock()
	if schema == nil {
		return ""
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(content))
	if err != nil {
		return "content for message type " + msgType + " is not JSON-shaped: " + err.Error()
	}
	if !result.Valid() {
		return fmt.Sprintf("content for message type %s invalid: %v", msgType, result.Errors())
	}
	return ""
}

// RegisterHandler registers fn for inbound messages of the given type.
func (f *Fabric) RegisterHandler(messageType string, fn Handler) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[messageType] = fn
}

// HandleMessage makes the fabric an Endpoint. Secure envelopes are
// unwrapped before dispatch; an unwrap failure is silent to the sender
// and logged for the operator.
func (f *Fabric) HandleMessage(ctx context.Context, msg *models.Message) (interface{}, error) {
	if msg == nil {
		return nil, nil
	}
	if msg.Type == SecureMessageType && f.securityEnabled() {
		return f.handleSecureMessage(ctx, msg)
	}
	f.mu.RLock()
	handler := f.handlers[msg.Type]
	f.mu.RUnlock()
	if handler == nil {
		return nil, nil
	}
	return handler(ctx, msg.SenderID, msg.Content)
}

// Send delivers one message. An Endpoint recipient is invoked
// synchronously and its return value comes back as the response; a
// plain agent-id string yields a pending delivery for a name-resolution
// layer above the fabric to finish.
func (f *Fabric) Send(ctx context.Context, recipient interface{}, msgType string, content interface{}, senderID string, metadata models.JSONMap) models.Delivery {
	if reason := f.validateContent(msgType, content); reason != "" {
		f.metrics.IncrementCounter("fabric.send.failed", 1)
		return models.Delivery{Status: models.DeliveryFailed, Error: reason}
	}
	msg := f.newMessage(msgType, content, senderID, metadata)
	switch r := recipient.(type) {
	case Endpoint:
		response, err := r.HandleMessage(ctx, msg)
		if err != nil {
			f.metrics.IncrementCounter("fabric.send.failed", 1)
			return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
		}
		f.metrics.IncrementCounter("fabric.send.delivered", 1)
		return models.Delivery{Status: models.DeliveryDelivered, Response: response}
	case string:
		if r == "" {
			return models.Delivery{Status: models.DeliveryFailed, Error: "empty recipient"}
		}
		msg.Recipient = r
		return models.Delivery{Status: models.DeliveryPending}
	default:
		return models.Delivery{Status: models.DeliveryFailed, Error: "unsupported recipient type"}
	}
}

// Broadcast fans a message out to many recipients and reports the
// per-recipient outcomes.
func (f *Fabric) Broadcast(ctx context.Context, recipients map[string]interface{}, msgType string, content interface{}, senderID string, metadata models.JSONMap) models.BroadcastReport {
	report := models.BroadcastReport{
		Total:   len(recipients),
		Results: make(map[string]models.Delivery, len(recipients)),
	}
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for id, target := range recipients {
		id, target := id, target
		g.Go(func() error {
			d := f.Send(ctx, target, msgType, content, senderID, metadata)
			mu.Lock()
			report.Results[id] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	for _, d := range report.Results {
		switch d.Status {
		case models.DeliveryDelivered, models.DeliverySent, models.DeliveryQueued:
			report.Successful++
		case models.DeliveryPending:
			report.Pending++
		default:
			report.Failed++
		}
	}
	return report
}

// AddRoute binds a message type to a destination.
func (f *Fabric) AddRoute(messageType string, destination Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[messageType] = destination
}

// SetDefaultRoute sets the destination for message types with no
// explicit route.
func (f *Fabric) SetDefaultRoute(destination Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultRoute = destination
}

// Route delivers via the type route, then the default route, and fails
// when neither exists.
func (f *Fabric) Route(ctx context.Context, msgType string, content interface{}, senderID string, metadata models.JSONMap) models.Delivery {
	f.mu.RLock()
	dest := f.routes[msgType]
	if dest == nil {
		dest = f.defaultRoute
	}
	f.mu.RUnlock()
	if dest == nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: "no route for message type " + msgType}
	}
	return f.Send(ctx, dest, msgType, content, senderID, metadata)
}

// AddOwnershipRoute binds an owner id to its delivery destination.
func (f *Fabric) AddOwnershipRoute(ownerID string, destination Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownershipRoutes[ownerID] = destination
}

// SetCrossOwnerPolicy sets the cross-tenant delivery policy.
func (f *Fabric) SetCrossOwnerPolicy(policy CrossOwnerPolicy) error {
	switch policy {
	case PolicyDeny, PolicyAllow, PolicySecure:
	default:
		return awcperrors.InvalidArgument("unknown cross-owner policy %q", policy)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crossOwnerPolicy = policy
	return nil
}

// RouteByOwnership delivers a message to the recipient owner's
// destination, enforcing the cross-tenant policy when the sender and
// recipient owners differ.
func (f *Fabric) RouteByOwnership(ctx context.Context, senderOwner, recipientOwner, msgType string, content interface{}, senderID string, metadata models.JSONMap) models.Delivery {
	f.mu.RLock()
	dest := f.ownershipRoutes[recipientOwner]
	policy := f.crossOwnerPolicy
	f.mu.RUnlock()

	if dest == nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: "no ownership route for " + recipientOwner}
	}
	if senderOwner == recipientOwner {
		return f.Send(ctx, dest, msgType, content, senderID, metadata)
	}
	switch policy {
	case PolicyAllow:
		return f.Send(ctx, dest, msgType, content, senderID, metadata)
	case PolicySecure:
		if !f.securityEnabled() {
			return models.Delivery{Status: models.DeliveryFailed, Error: "cross-owner policy requires security but security is disabled"}
		}
		return f.SendSecure(ctx, dest, msgType, content, senderID, metadata)
	default:
		f.logger.Warn("cross-owner message denied", map[string]interface{}{
			"sender_owner":    senderOwner,
			"recipient_owner": recipientOwner,
			"type":            msgType,
		})
		return models.Delivery{Status: models.DeliveryFailed, Error: "cross-owner messaging denied by policy"}
	}
}

func (f *Fabric) newMessage(msgType string, content interface{}, senderID string, metadata models.JSONMap) *models.Message {
	md := make(models.JSONMap, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	f.mu.RLock()
	if f.ownerID != "" {
		md["owner_id"] = f.ownerID
	}
	f.mu.RUnlock()
	return &models.Message{
		SenderID:  senderID,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  md,
	}
}
