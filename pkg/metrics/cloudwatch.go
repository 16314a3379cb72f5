// Package metrics implements the external metric sink for resource
// utilization, backed by CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/pkg/errors"

	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/observability"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "AgentBuilder/Resources"

// utilizationMetricName is the metric the monitor emits on every
// usage update.
const utilizationMetricName = "ResourceUtilization"

// CloudWatchAPI is the subset of the CloudWatch client the sink needs.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Sink publishes resource utilization metrics to CloudWatch.
type Sink struct {
	client    CloudWatchAPI
	namespace string
	logger    observability.Logger
}

// NewSink creates a CloudWatch-backed metric sink. An empty namespace
// selects DefaultNamespace.
func NewSink(client CloudWatchAPI, namespace string, logger observability.Logger) *Sink {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Sink{
		client:    client,
		namespace: namespace,
		logger:    logger.WithPrefix("metrics.sink"),
	}
}

// EmitUtilization publishes one utilization sample, dimensioned by
// resource id and, when tenant-scoped, by client id. The value is the
// fractional utilization in [0,1] with unit Percent.
func (s *Sink) EmitUtilization(ctx context.Context, resourceID, clientID string, utilization float64) error {
	dims := []cwtypes.Dimension{
		{Name: aws.String("ResourceId"), Value: aws.String(resourceID)},
	}
	if clientID != "" {
		dims = append(dims, cwtypes.Dimension{Name: aws.String("ClientId"), Value: aws.String(clientID)})
	}
	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(s.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(utilizationMetricName),
				Value:      aws.Float64(utilization),
				Unit:       cwtypes.StandardUnitPercent,
				Timestamp:  aws.Time(time.Now().UTC()),
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "put metric data")
	}
	return nil
}
