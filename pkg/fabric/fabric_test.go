package fabric

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

func newTestFabric(t *testing.T, cfg Config) *Fabric {
	t.Helper()
	f, err := New(cfg, nil, nil)
	require.NoError(t, err)
	return f
}

func TestNewRejectsBadFormat(t *testing.T) {
	_, err := New(Config{SerializationFormat: "xml"}, nil, nil)
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
}

func TestSendToEndpoint(t *testing.T) {
	ctx := context.Background()
	receiver := newTestFabric(t, Config{})
	receiver.RegisterHandler("greeting", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return map[string]interface{}{"echo": content, "from": senderID}, nil
	})

	sender := newTestFabric(t, Config{})
	d := sender.Send(ctx, receiver, "greeting", "hello", "agent-1", nil)
	require.Equal(t, models.DeliveryDelivered, d.Status)
	response := d.Response.(map[string]interface{})
	assert.Equal(t, "hello", response["echo"])
	assert.Equal(t, "agent-1", response["from"])
}

func TestSendNoHandlerStillDelivered(t *testing.T) {
	ctx := context.Background()
	receiver := newTestFabric(t, Config{})
	sender := newTestFabric(t, Config{})

	d := sender.Send(ctx, receiver, "unknown", "hello", "agent-1", nil)
	assert.Equal(t, models.DeliveryDelivered, d.Status)
	assert.Nil(t, d.Response)
}

func TestSendHandlerErrorFails(t *testing.T) {
	ctx := context.Background()
	receiver := newTestFabric(t, Config{})
	receiver.RegisterHandler("boom", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return nil, errors.New("handler exploded")
	})
	sender := newTestFabric(t, Config{})

	d := sender.Send(ctx, receiver, "boom", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "handler exploded")
}

func TestSendToAgentIDIsPending(t *testing.T) {
	ctx := context.Background()
	sender := newTestFabric(t, Config{})

	d := sender.Send(ctx, "agent-7", "ping", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryPending, d.Status)

	d = sender.Send(ctx, "", "ping", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)

	d = sender.Send(ctx, 42, "ping", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
}

func TestOwnerStampedOnMetadata(t *testing.T) {
	sender := newTestFabric(t, Config{})
	sender.SetOwner("client-a")
	assert.Equal(t, "client-a", sender.Owner())

	msg := sender.newMessage("check", nil, "agent-1", models.JSONMap{"k": "v"})
	assert.Equal(t, "client-a", msg.Metadata["owner_id"])
	assert.Equal(t, "v", msg.Metadata["k"])

	// Without an owner set nothing is stamped.
	anon := newTestFabric(t, Config{})
	msg = anon.newMessage("check", nil, "agent-1", nil)
	_, ok := msg.Metadata["owner_id"]
	assert.False(t, ok)
}

func TestBroadcastCountsOutcomes(t *testing.T) {
	ctx := context.Background()
	receiver := newTestFabric(t, Config{})
	sender := newTestFabric(t, Config{})

	report := sender.Broadcast(ctx, map[string]interface{}{
		"ok":      receiver,
		"pending": "agent-7",
		"bad":     42,
	}, "ping", nil, "agent-1", nil)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, models.DeliveryDelivered, report.Results["ok"].Status)
	assert.Equal(t, models.DeliveryPending, report.Results["pending"].Status)
	assert.Equal(t, models.DeliveryFailed, report.Results["bad"].Status)
}

func TestRouteByTypeAndDefault(t *testing.T) {
	ctx := context.Background()
	alerts := newTestFabric(t, Config{})
	alerts.RegisterHandler("alert", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return "alerted", nil
	})
	fallback := newTestFabric(t, Config{})
	fallback.RegisterHandler("other", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return "defaulted", nil
	})

	router := newTestFabric(t, Config{})

	d := router.Route(ctx, "alert", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)

	router.AddRoute("alert", alerts)
	d = router.Route(ctx, "alert", nil, "agent-1", nil)
	require.Equal(t, models.DeliveryDelivered, d.Status)
	assert.Equal(t, "alerted", d.Response)

	router.SetDefaultRoute(fallback)
	d = router.Route(ctx, "other", nil, "agent-1", nil)
	require.Equal(t, models.DeliveryDelivered, d.Status)
	assert.Equal(t, "defaulted", d.Response)
}

func TestRouteByOwnershipSameOwner(t *testing.T) {
	ctx := context.Background()
	dest := newTestFabric(t, Config{})
	dest.RegisterHandler("ping", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return "pong", nil
	})
	f := newTestFabric(t, Config{})
	f.AddOwnershipRoute("client-a", dest)

	d := f.RouteByOwnership(ctx, "client-a", "client-a", "ping", nil, "agent-1", nil)
	require.Equal(t, models.DeliveryDelivered, d.Status)
	assert.Equal(t, "pong", d.Response)

	d = f.RouteByOwnership(ctx, "client-a", "client-b", "ping", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "no ownership route")
}

func TestRouteByOwnershipPolicies(t *testing.T) {
	ctx := context.Background()
	dest := newTestFabric(t, Config{})
	dest.RegisterHandler("ping", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return "pong", nil
	})
	f := newTestFabric(t, Config{})
	f.AddOwnershipRoute("client-b", dest)

	// Default policy denies cross-tenant delivery.
	d := f.RouteByOwnership(ctx, "client-a", "client-b", "ping", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "denied by policy")

	require.NoError(t, f.SetCrossOwnerPolicy(PolicyAllow))
	d = f.RouteByOwnership(ctx, "client-a", "client-b", "ping", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryDelivered, d.Status)

	// Secure policy without security enabled fails closed.
	require.NoError(t, f.SetCrossOwnerPolicy(PolicySecure))
	d = f.RouteByOwnership(ctx, "client-a", "client-b", "ping", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)

	err := f.SetCrossOwnerPolicy("whatever")
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
}

func TestRouteByOwnershipSecurePolicy(t *testing.T) {
	ctx := context.Background()
	key := make([]byte, 32)
	authKey := []byte("signing-key")

	dest := newTestFabric(t, Config{})
	require.NoError(t, dest.EnableSecurity(key))
	require.NoError(t, dest.RegisterAuthKey("agent-1", authKey))
	dest.RegisterHandler("ping", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return "secure pong", nil
	})

	f := newTestFabric(t, Config{CrossOwnerPolicy: string(PolicySecure)})
	require.NoError(t, f.EnableSecurity(key))
	require.NoError(t, f.RegisterAuthKey("agent-1", authKey))
	require.NoError(t, f.AuthorizeSender("agent-1"))
	f.AddOwnershipRoute("client-b", dest)

	d := f.RouteByOwnership(ctx, "client-a", "client-b", "ping", map[string]interface{}{"n": 1}, "agent-1", nil)
	require.Equal(t, models.DeliveryDelivered, d.Status)
	assert.Equal(t, "secure pong", d.Response)
}

func TestSecureRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	authKey := []byte("agent-1-signing-key")

	receiver := newTestFabric(t, Config{})
	require.NoError(t, receiver.EnableSecurity(key))
	require.NoError(t, receiver.RegisterAuthKey("agent-1", authKey))
	var received interface{}
	receiver.RegisterHandler("report", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		received = content
		return "ack", nil
	})

	sender := newTestFabric(t, Config{})
	require.NoError(t, sender.EnableSecurity(key))
	require.NoError(t, sender.RegisterAuthKey("agent-1", authKey))
	require.NoError(t, sender.AuthorizeSender("agent-1"))

	d := sender.SendSecure(ctx, receiver, "report", map[string]interface{}{"cpu": 0.5}, "agent-1", nil)
	require.Equal(t, models.DeliveryDelivered, d.Status)
	assert.Equal(t, "ack", d.Response)
	require.NotNil(t, received)
	assert.Equal(t, 0.5, received.(map[string]interface{})["cpu"])
}

func TestSecureSendGuards(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{})

	// Security off entirely.
	d := f.SendSecure(ctx, "agent-2", "report", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)

	err := f.RegisterAuthKey("agent-1", []byte("k"))
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
	err = f.AuthorizeSender("agent-1")
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))

	err = f.EnableSecurity([]byte("short"))
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
	require.NoError(t, f.EnableSecurity(nil))

	// Unauthorized sender.
	d = f.SendSecure(ctx, "agent-2", "report", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "not authorized")

	// Authorized but no signing key.
	require.NoError(t, f.AuthorizeSender("agent-1"))
	d = f.SendSecure(ctx, "agent-2", "report", nil, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "no registered auth key")

	err = f.RegisterAuthKey("", []byte("k"))
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
}

func TestReceiveSecureRejectsTampering(t *testing.T) {
	key := make([]byte, 32)
	authKey := []byte("signing-key")

	f := newTestFabric(t, Config{})
	require.NoError(t, f.EnableSecurity(key))
	require.NoError(t, f.RegisterAuthKey("agent-1", authKey))
	require.NoError(t, f.AuthorizeSender("agent-1"))

	// Capture a legitimate envelope through a capturing endpoint.
	capture := &captureEndpoint{}
	d := f.SendSecure(context.Background(), Endpoint(capture), "report", "payload", "agent-1", nil)
	require.Equal(t, models.DeliveryDelivered, d.Status)
	outer := capture.msg.Content.(map[string]interface{})

	// The legitimate envelope opens.
	inner, ok := f.ReceiveSecure("agent-1", outer)
	require.True(t, ok)
	assert.Equal(t, "payload", inner)

	// A transport sender that does not match the envelope is rejected.
	_, ok = f.ReceiveSecure("agent-2", outer)
	assert.False(t, ok)

	// Flipping a ciphertext byte breaks authenticated decryption.
	raw, err := base64.StdEncoding.DecodeString(outer["ciphertext"].(string))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := map[string]interface{}{"ciphertext": base64.StdEncoding.EncodeToString(raw)}
	_, ok = f.ReceiveSecure("agent-1", tampered)
	assert.False(t, ok)

	// Malformed outer shapes fail closed too.
	_, ok = f.ReceiveSecure("agent-1", "not an object")
	assert.False(t, ok)
	_, ok = f.ReceiveSecure("agent-1", map[string]interface{}{})
	assert.False(t, ok)
	_, ok = f.ReceiveSecure("agent-1", map[string]interface{}{"ciphertext": "!!!"})
	assert.False(t, ok)
}

func TestHandleSecureMessageUnwrapFailureIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{})
	require.NoError(t, f.EnableSecurity(nil))

	response, err := f.HandleMessage(ctx, &models.Message{
		SenderID: "agent-1",
		Type:     SecureMessageType,
		Content:  map[string]interface{}{"ciphertext": "garbage"},
	})
	assert.NoError(t, err)
	assert.Nil(t, response)
}

func TestCanonicalJSONIsDeterministic(t *testing.T) {
	a, err := canonicalJSON(map[string]interface{}{"b": 1, "a": map[string]interface{}{"z": true, "y": "x"}})
	require.NoError(t, err)
	b, err := canonicalJSON(map[string]interface{}{"a": map[string]interface{}{"y": "x", "z": true}, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":{"y":"x","z":true},"b":1}`, string(a))
}

type captureEndpoint struct {
	mu  sync.Mutex
	msg *models.Message
}

func (c *captureEndpoint) HandleMessage(ctx context.Context, msg *models.Message) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msg = msg
	return nil, nil
}

func TestAsyncDeliveryPreservesOrder(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{})

	var mu sync.Mutex
	var got []interface{}
	f.RegisterAsyncHandler("tick", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, content)
		return nil, nil
	})

	for i := 0; i < 20; i++ {
		d := f.SendAsync(nil, "tick", i, "agent-1", nil)
		require.Equal(t, models.DeliveryQueued, d.Status)
	}
	assert.Equal(t, 20, f.AsyncQueueDepth())

	f.StartAsyncProcessing(ctx)
	f.StartAsyncProcessing(ctx) // idempotent

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 20
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	mu.Unlock()

	require.NoError(t, f.StopAsyncProcessing(time.Second))
	require.NoError(t, f.StopAsyncProcessing(time.Second)) // idempotent
}

func TestAsyncQueueFull(t *testing.T) {
	f := newTestFabric(t, Config{AsyncQueueSize: 2})
	require.Equal(t, models.DeliveryQueued, f.SendAsync(nil, "tick", 1, "a", nil).Status)
	require.Equal(t, models.DeliveryQueued, f.SendAsync(nil, "tick", 2, "a", nil).Status)

	d := f.SendAsync(nil, "tick", 3, "a", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "queue full")
}

func TestAsyncQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{})

	var mu sync.Mutex
	var got []interface{}
	f.RegisterAsyncHandler("tick", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, content)
		return nil, nil
	})

	// Enqueue with no worker running, stop is a no-op, items remain.
	f.SendAsync(nil, "tick", "held", "agent-1", nil)
	require.NoError(t, f.StopAsyncProcessing(time.Second))
	assert.Equal(t, 1, f.AsyncQueueDepth())

	f.StartAsyncProcessing(ctx)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.StopAsyncProcessing(time.Second))
}

func TestAsyncFallsBackToSyncSend(t *testing.T) {
	ctx := context.Background()
	receiver := newTestFabric(t, Config{})
	var mu sync.Mutex
	var handled bool
	receiver.RegisterHandler("work", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		handled = true
		return nil, nil
	})

	f := newTestFabric(t, Config{})
	f.SendAsync(receiver, "work", nil, "agent-1", nil)
	f.StartAsyncProcessing(ctx)
	defer f.StopAsyncProcessing(time.Second)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSerializerRoundTrip(t *testing.T) {
	msg := &models.Message{
		SenderID: "agent-1",
		Type:     "report",
		Content:  map[string]interface{}{"cpu": 0.5},
		Metadata: models.JSONMap{"k": "v"},
	}

	s := NewSerializer()
	assert.Equal(t, FormatJSON, s.Format())

	data, err := s.Serialize(msg)
	require.NoError(t, err)
	decoded, err := s.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, msg.SenderID, decoded.SenderID)
	assert.Equal(t, msg.Content, decoded.Content.(map[string]interface{}))

	require.NoError(t, s.SetFormat(FormatBase64))
	encoded, err := s.Serialize(msg)
	require.NoError(t, err)
	assert.NotEqual(t, data, encoded)
	decoded, err = s.Deserialize(encoded)
	require.NoError(t, err)
	assert.Equal(t, msg.Type, decoded.Type)

	// Base64 mode rejects raw JSON bytes.
	_, err = s.Deserialize(data)
	assert.Error(t, err)

	err = s.SetFormat("yaml")
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
}

type stubSQS struct {
	mu       sync.Mutex
	created  []*sqs.CreateQueueInput
	sent     []*sqs.SendMessageInput
	deleted  []*sqs.DeleteMessageInput
	received []*sqs.ReceiveMessageInput
	bodies   []string
	urls     map[string]string
}

func newStubSQS() *stubSQS {
	return &stubSQS{urls: map[string]string{}}
}

func (s *stubSQS) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, params)
	url := "https://sqs.local/" + aws.ToString(params.QueueName)
	s.urls[aws.ToString(params.QueueName)] = url
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(url)}, nil
}

func (s *stubSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.urls[aws.ToString(params.QueueName)]
	if !ok {
		return nil, &sqstypes.QueueDoesNotExist{}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(url)}, nil
}

func (s *stubSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, params)
	s.bodies = append(s.bodies, aws.ToString(params.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (s *stubSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, params)
	msgs := make([]sqstypes.Message, 0, len(s.bodies))
	for i, body := range s.bodies {
		msgs = append(msgs, sqstypes.Message{
			Body:          aws.String(body),
			ReceiptHandle: aws.String("rh-" + string(rune('a'+i))),
			MessageId:     aws.String("m-" + string(rune('a'+i))),
		})
	}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (s *stubSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, params)
	return &sqs.DeleteMessageOutput{}, nil
}

func TestQueueTransportDisabled(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{})

	_, err := f.CreateQueue(ctx, "jobs", false, nil)
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindUnavailable))

	d := f.SendToQueue(ctx, "job", nil, "jobs", "agent-1", nil, "")
	assert.Equal(t, models.DeliveryFailed, d.Status)

	_, err = f.ReceiveFromQueue(ctx, "jobs", 1, 0, 0)
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindUnavailable))

	err = f.DeleteFromQueue(ctx, "jobs", "rh")
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindUnavailable))
}

func TestCreateQueueFIFO(t *testing.T) {
	ctx := context.Background()
	stub := newStubSQS()
	f := newTestFabric(t, Config{})
	f.EnableQueue(stub)

	name, err := f.CreateQueue(ctx, "orders", true, map[string]string{"DelaySeconds": "0"})
	require.NoError(t, err)
	assert.Equal(t, "orders.fifo", name)
	require.Len(t, stub.created, 1)
	assert.Equal(t, "true", stub.created[0].Attributes["FifoQueue"])
	assert.Equal(t, "0", stub.created[0].Attributes["DelaySeconds"])

	// An already-suffixed name is not doubled.
	name, err = f.CreateQueue(ctx, "audit.fifo", true, nil)
	require.NoError(t, err)
	assert.Equal(t, "audit.fifo", name)
}

func TestSendToQueueFIFOAttributes(t *testing.T) {
	ctx := context.Background()
	stub := newStubSQS()
	f := newTestFabric(t, Config{})
	f.EnableQueue(stub)

	_, err := f.CreateQueue(ctx, "orders", true, nil)
	require.NoError(t, err)

	d := f.SendToQueue(ctx, "order", map[string]interface{}{"sku": "x"}, "orders.fifo", "agent-1", nil, "")
	require.Equal(t, models.DeliverySent, d.Status)
	assert.Equal(t, "m-1", d.MessageID)

	d = f.SendToQueue(ctx, "order", map[string]interface{}{"sku": "y"}, "orders.fifo", "agent-1", nil, "tenant-a")
	require.Equal(t, models.DeliverySent, d.Status)

	require.Len(t, stub.sent, 2)
	first, second := stub.sent[0], stub.sent[1]
	assert.Equal(t, defaultGroupID, aws.ToString(first.MessageGroupId))
	assert.Equal(t, "tenant-a", aws.ToString(second.MessageGroupId))
	require.NotEmpty(t, aws.ToString(first.MessageDeduplicationId))
	assert.NotEqual(t, aws.ToString(first.MessageDeduplicationId), aws.ToString(second.MessageDeduplicationId))
}

func TestSendToQueueDefaultAndUnknownQueue(t *testing.T) {
	ctx := context.Background()
	stub := newStubSQS()
	f := newTestFabric(t, Config{})
	f.EnableQueue(stub)

	d := f.SendToQueue(ctx, "job", nil, "", "agent-1", nil, "")
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "no default queue")

	f.SetDefaultQueue("missing")
	d = f.SendToQueue(ctx, "job", nil, "", "agent-1", nil, "")
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "does not exist")
}

func TestReceiveAndDeleteFromQueue(t *testing.T) {
	ctx := context.Background()
	stub := newStubSQS()
	f := newTestFabric(t, Config{})
	f.EnableQueue(stub)

	_, err := f.CreateQueue(ctx, "jobs", false, nil)
	require.NoError(t, err)
	d := f.SendToQueue(ctx, "job", map[string]interface{}{"n": float64(1)}, "jobs", "agent-1", nil, "")
	require.Equal(t, models.DeliverySent, d.Status)

	// Bounds are clamped to what the service accepts.
	msgs, err := f.ReceiveFromQueue(ctx, "jobs", 50, 99, 30)
	require.NoError(t, err)
	require.Len(t, stub.received, 1)
	assert.Equal(t, int32(10), stub.received[0].MaxNumberOfMessages)
	assert.Equal(t, int32(20), stub.received[0].WaitTimeSeconds)
	assert.Equal(t, int32(30), stub.received[0].VisibilityTimeout)

	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "job", msg.Type)
	assert.Equal(t, "agent-1", msg.SenderID)
	assert.Equal(t, float64(1), msg.Content.(map[string]interface{})["n"])
	handle := msg.Metadata["receipt_handle"].(string)
	require.NotEmpty(t, handle)

	require.NoError(t, f.DeleteFromQueue(ctx, "jobs", handle))
	require.Len(t, stub.deleted, 1)
	assert.Equal(t, handle, aws.ToString(stub.deleted[0].ReceiptHandle))
}

type stubEventBridge struct {
	mu         sync.Mutex
	putEvents  []*eventbridge.PutEventsInput
	putRules   []*eventbridge.PutRuleInput
	putTargets []*eventbridge.PutTargetsInput
	failCount  int32
	failMsg    string
}

func (s *stubEventBridge) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putEvents = append(s.putEvents, params)
	if s.failCount > 0 {
		return &eventbridge.PutEventsOutput{
			FailedEntryCount: s.failCount,
			Entries:          []ebtypes.PutEventsResultEntry{{ErrorMessage: aws.String(s.failMsg)}},
		}, nil
	}
	return &eventbridge.PutEventsOutput{
		Entries: []ebtypes.PutEventsResultEntry{{EventId: aws.String("evt-1")}},
	}, nil
}

func (s *stubEventBridge) PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRules = append(s.putRules, params)
	return &eventbridge.PutRuleOutput{RuleArn: aws.String("arn:aws:events:::rule/" + aws.ToString(params.Name))}, nil
}

func (s *stubEventBridge) PutTargets(ctx context.Context, params *eventbridge.PutTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutTargetsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putTargets = append(s.putTargets, params)
	return &eventbridge.PutTargetsOutput{}, nil
}

func TestPublishEvent(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{EventSource: "awcp.test", EventBusName: "agents"})

	d := f.PublishEvent(ctx, "task.completed", nil, "", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)

	stub := &stubEventBridge{}
	f.EnableEventBridge(stub, "", "")

	d = f.PublishEvent(ctx, "task.completed", map[string]interface{}{"task_id": "t1"}, "", nil)
	require.Equal(t, models.DeliverySent, d.Status)
	assert.Equal(t, "evt-1", d.MessageID)

	require.Len(t, stub.putEvents, 1)
	entry := stub.putEvents[0].Entries[0]
	assert.Equal(t, "awcp.test", aws.ToString(entry.Source))
	assert.Equal(t, "Agent.task.completed", aws.ToString(entry.DetailType))
	assert.Equal(t, "agents", aws.ToString(entry.EventBusName))
	assert.JSONEq(t, `{"task_id":"t1"}`, aws.ToString(entry.Detail))
}

func TestPublishEventPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{})
	stub := &stubEventBridge{failCount: 1, failMsg: "throttled"}
	f.EnableEventBridge(stub, "", "")

	d := f.PublishEvent(ctx, "task.completed", nil, "", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Equal(t, "throttled", d.Error)
}

func TestCreateEventRuleValidation(t *testing.T) {
	ctx := context.Background()
	f := newTestFabric(t, Config{})
	stub := &stubEventBridge{}

	_, err := f.CreateEventRule(ctx, "r", nil, "rate(1 hour)")
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindUnavailable))

	f.EnableEventBridge(stub, "", "")

	_, err = f.CreateEventRule(ctx, "r", nil, "")
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
	_, err = f.CreateEventRule(ctx, "r", map[string]interface{}{"source": []string{"s"}}, "rate(1 hour)")
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))

	arn, err := f.CreateEventRule(ctx, "hourly", nil, "rate(1 hour)")
	require.NoError(t, err)
	assert.Contains(t, arn, "hourly")

	arn, err = f.CreateEventRule(ctx, "matcher", f.EventPatternFor("task.completed"), "")
	require.NoError(t, err)
	assert.Contains(t, arn, "matcher")

	require.NoError(t, f.AddEventTarget(ctx, "matcher", "arn:aws:lambda:::fn", "", "$.detail", nil))
	require.Len(t, stub.putTargets, 1)
	target := stub.putTargets[0].Targets[0]
	assert.NotEmpty(t, aws.ToString(target.Id))
	assert.Equal(t, "$.detail", aws.ToString(target.InputPath))
}

func TestEventPatternFor(t *testing.T) {
	f := newTestFabric(t, Config{EventSource: "awcp.test"})
	pattern := f.EventPatternFor("resource.alert")
	assert.Equal(t, []string{"awcp.test"}, pattern["source"])
	assert.Equal(t, []string{"Agent.resource.alert"}, pattern["detail-type"])
}

func TestMessageSchemaValidation(t *testing.T) {
	ctx := context.Background()
	receiver := newTestFabric(t, Config{})
	receiver.RegisterHandler("status.update", func(ctx context.Context, senderID string, content interface{}) (interface{}, error) {
		return "ok", nil
	})
	sender := newTestFabric(t, Config{})
	require.NoError(t, sender.SetMessageSchema("status.update", `{
		"type": "object",
		"properties": {"cpu": {"type": "number"}},
		"required": ["cpu"]
	}`))

	d := sender.Send(ctx, receiver, "status.update", map[string]interface{}{"cpu": 0.5}, "agent-1", nil)
	assert.Equal(t, models.DeliveryDelivered, d.Status)
	assert.Equal(t, "ok", d.Response)

	d = sender.Send(ctx, receiver, "status.update", map[string]interface{}{"cpu": "high"}, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)
	assert.Contains(t, d.Error, "status.update")

	d = sender.Send(ctx, receiver, "status.update", map[string]interface{}{}, "agent-1", nil)
	assert.Equal(t, models.DeliveryFailed, d.Status)

	// Types without a schema stay unvalidated.
	d = sender.Send(ctx, receiver, "free.form", map[string]interface{}{"anything": true}, "agent-1", nil)
	assert.Equal(t, models.DeliveryDelivered, d.Status)

	err := sender.SetMessageSchema("bad", `{"type": 12}`)
	assert.True(t, awcperrors.IsKind(err, awcperrors.KindInvalidArgument))
}
