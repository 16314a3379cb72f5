package metrics

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (s *stubCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = append(s.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestEmitUtilization(t *testing.T) {
	stub := &stubCloudWatch{}
	sink := NewSink(stub, "", nil)

	require.NoError(t, sink.EmitUtilization(context.Background(), "cpu", "client-a", 0.75))

	require.Len(t, stub.inputs, 1)
	input := stub.inputs[0]
	assert.Equal(t, DefaultNamespace, aws.ToString(input.Namespace))
	require.Len(t, input.MetricData, 1)
	datum := input.MetricData[0]
	assert.Equal(t, "ResourceUtilization", aws.ToString(datum.MetricName))
	assert.Equal(t, 0.75, aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitPercent, datum.Unit)

	require.Len(t, datum.Dimensions, 2)
	assert.Equal(t, "ResourceId", aws.ToString(datum.Dimensions[0].Name))
	assert.Equal(t, "cpu", aws.ToString(datum.Dimensions[0].Value))
	assert.Equal(t, "ClientId", aws.ToString(datum.Dimensions[1].Name))
	assert.Equal(t, "client-a", aws.ToString(datum.Dimensions[1].Value))
}

func TestEmitUtilizationSystemResource(t *testing.T) {
	stub := &stubCloudWatch{}
	sink := NewSink(stub, "Custom/Space", nil)

	require.NoError(t, sink.EmitUtilization(context.Background(), "mem", "", 0.2))

	input := stub.inputs[0]
	assert.Equal(t, "Custom/Space", aws.ToString(input.Namespace))
	// System resources carry no client dimension.
	assert.Len(t, input.MetricData[0].Dimensions, 1)
}

func TestEmitUtilizationError(t *testing.T) {
	stub := &stubCloudWatch{err: errors.New("rate exceeded")}
	sink := NewSink(stub, "", nil)

	err := sink.EmitUtilization(context.Background(), "cpu", "", 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate exceeded")
}
