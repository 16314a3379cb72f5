package distributor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/observability"
)

// ClientIndex is the secondary index on client_id that backs tenant
// lookups against the durable projection.
const ClientIndex = "client_id-index"

// TaskStore is the durable key-value projection of task state.
type TaskStore interface {
	PutTask(ctx context.Context, task *models.Task) error
	GetClientTasks(ctx context.Context, clientID string) ([]models.Task, error)
}

// DynamoDBAPI is the subset of the DynamoDB client the store needs.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore mirrors tasks into a DynamoDB table keyed by task_id with
// a GSI on client_id. It is the one place where typed values cross into
// a type-erased encoding.
type DynamoStore struct {
	client DynamoDBAPI
	table  string
	logger observability.Logger
}

// NewDynamoStore creates the task mirror over the given table.
func NewDynamoStore(client DynamoDBAPI, table string, logger observability.Logger) *DynamoStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &DynamoStore{
		client: client,
		table:  table,
		logger: logger.WithPrefix("distributor.store"),
	}
}

// PutTask writes the task's durable projection.
func (s *DynamoStore) PutTask(ctx context.Context, task *models.Task) error {
	item := map[string]ddbtypes.AttributeValue{
		"task_id":      &ddbtypes.AttributeValueMemberS{Value: task.ID},
		"type":         &ddbtypes.AttributeValueMemberS{Value: task.Type},
		"priority":     &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(task.Priority)},
		"status":       &ddbtypes.AttributeValueMemberS{Value: string(task.Status)},
		"submitted_at": &ddbtypes.AttributeValueMemberS{Value: task.SubmittedAt.Format(timeLayout)},
	}
	reqs := make([]ddbtypes.AttributeValue, len(task.Requirements))
	for i, r := range task.Requirements {
		reqs[i] = &ddbtypes.AttributeValueMemberS{Value: r}
	}
	item["requirements"] = &ddbtypes.AttributeValueMemberL{Value: reqs}
	if task.ClientID != "" {
		item["client_id"] = &ddbtypes.AttributeValueMemberS{Value: task.ClientID}
	}
	if task.AssignedTo != "" {
		item["assigned_to"] = &ddbtypes.AttributeValueMemberS{Value: task.AssignedTo}
	}
	if task.AssignedAt != nil {
		item["assigned_at"] = &ddbtypes.AttributeValueMemberS{Value: task.AssignedAt.Format(timeLayout)}
	}
	if task.CompletedAt != nil {
		item["completed_at"] = &ddbtypes.AttributeValueMemberS{Value: task.CompletedAt.Format(timeLayout)}
	}
	if len(task.Parameters) > 0 {
		item["parameters"] = encodeValue(map[string]interface{}(task.Parameters))
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return awcperrors.Wrap(awcperrors.KindUnavailable, err, "put task %s", task.ID)
	}
	return nil
}

// GetClientTasks queries the durable projection by tenant through the
// client_id index.
func (s *DynamoStore) GetClientTasks(ctx context.Context, clientID string) ([]models.Task, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(ClientIndex),
		KeyConditionExpression: aws.String("client_id = :cid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":cid": &ddbtypes.AttributeValueMemberS{Value: clientID},
		},
	})
	if err != nil {
		return nil, awcperrors.Wrap(awcperrors.KindUnavailable, err, "query tasks for client %s", clientID)
	}
	tasks := make([]models.Task, 0, len(out.Items))
	for _, item := range out.Items {
		tasks = append(tasks, decodeTask(item))
	}
	return tasks, nil
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// encodeValue converts a JSON-shaped Go value into its typed DynamoDB
// representation: strings, numbers, booleans, maps, and lists.
func encodeValue(v interface{}) ddbtypes.AttributeValue {
	switch val := v.(type) {
	case nil:
		return &ddbtypes.AttributeValueMemberNULL{Value: true}
	case string:
		return &ddbtypes.AttributeValueMemberS{Value: val}
	case bool:
		return &ddbtypes.AttributeValueMemberBOOL{Value: val}
	case int:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(val)}
	case int64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(val, 10)}
	case float64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(val, 'g', -1, 64)}
	case map[string]interface{}:
		m := make(map[string]ddbtypes.AttributeValue, len(val))
		for k, item := range val {
			m[k] = encodeValue(item)
		}
		return &ddbtypes.AttributeValueMemberM{Value: m}
	case []interface{}:
		l := make([]ddbtypes.AttributeValue, len(val))
		for i, item := range val {
			l[i] = encodeValue(item)
		}
		return &ddbtypes.AttributeValueMemberL{Value: l}
	case []string:
		l := make([]ddbtypes.AttributeValue, len(val))
		for i, item := range val {
			l[i] = &ddbtypes.AttributeValueMemberS{Value: item}
		}
		return &ddbtypes.AttributeValueMemberL{Value: l}
	default:
		return &ddbtypes.AttributeValueMemberS{Value: fmt.Sprintf("%v", val)}
	}
}

// decodeValue is the inverse of encodeValue.
func decodeValue(av ddbtypes.AttributeValue) interface{} {
	switch val := av.(type) {
	case *ddbtypes.AttributeValueMemberS:
		return val.Value
	case *ddbtypes.AttributeValueMemberBOOL:
		return val.Value
	case *ddbtypes.AttributeValueMemberN:
		n, err := strconv.ParseFloat(val.Value, 64)
		if err != nil {
			return val.Value
		}
		return n
	case *ddbtypes.AttributeValueMemberM:
		m := make(map[string]interface{}, len(val.Value))
		for k, item := range val.Value {
			m[k] = decodeValue(item)
		}
		return m
	case *ddbtypes.AttributeValueMemberL:
		l := make([]interface{}, len(val.Value))
		for i, item := range val.Value {
			l[i] = decodeValue(item)
		}
		return l
	default:
		return nil
	}
}

func decodeTask(item map[string]ddbtypes.AttributeValue) models.Task {
	task := models.Task{
		ID:       stringAttr(item, "task_id"),
		Type:     stringAttr(item, "type"),
		Status:   models.TaskStatus(stringAttr(item, "status")),
		ClientID: stringAttr(item, "client_id"),
	}
	task.AssignedTo = stringAttr(item, "assigned_to")
	if n, ok := item["priority"].(*ddbtypes.AttributeValueMemberN); ok {
		if p, err := strconv.Atoi(n.Value); err == nil {
			task.Priority = p
		}
	}
	if l, ok := item["requirements"].(*ddbtypes.AttributeValueMemberL); ok {
		for _, av := range l.Value {
			if s, ok := av.(*ddbtypes.AttributeValueMemberS); ok {
				task.Requirements = append(task.Requirements, s.Value)
			}
		}
	}
	if m, ok := item["parameters"].(*ddbtypes.AttributeValueMemberM); ok {
		decoded := decodeValue(m)
		if params, ok := decoded.(map[string]interface{}); ok {
			task.Parameters = params
		}
	}
	if t, ok := timeAttr(item, "submitted_at"); ok {
		task.SubmittedAt = t
	}
	if t, ok := timeAttr(item, "assigned_at"); ok {
		task.AssignedAt = &t
	}
	if t, ok := timeAttr(item, "completed_at"); ok {
		task.CompletedAt = &t
	}
	task.Ownership = models.ClientOwned(task.ClientID)
	return task
}

func timeAttr(item map[string]ddbtypes.AttributeValue, key string) (time.Time, bool) {
	s := stringAttr(item, key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func stringAttr(item map[string]ddbtypes.AttributeValue, key string) string {
	if s, ok := item[key].(*ddbtypes.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
