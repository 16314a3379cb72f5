package monitor

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

// AutoscalingAPI is the subset of the Auto Scaling client the monitor
// needs.
type AutoscalingAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	SetDesiredCapacity(ctx context.Context, params *autoscaling.SetDesiredCapacityInput, optFns ...func(*autoscaling.Options)) (*autoscaling.SetDesiredCapacityOutput, error)
}

// consultAutoscaler asks the external scaler for the group's bounds and
// nudges desired capacity by one step: up when critical and below max,
// down when idling below half the warning threshold and above min.
// Scaler errors are swallowed; scheduling state never depends on them.
func (m *Monitor) consultAutoscaler(ctx context.Context, resourceID, group string, status models.ResourceStatus, utilization, warning float64) {
	if m.scaler == nil {
		return
	}
	out, err := m.scalerBreaker.Execute(func() (interface{}, error) {
		return m.scaler.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: []string{group},
		})
	})
	if err != nil {
		m.logger.Warn("autoscaler describe failed", map[string]interface{}{
			"group": group,
			"error": err.Error(),
		})
		return
	}
	groups := out.(*autoscaling.DescribeAutoScalingGroupsOutput).AutoScalingGroups
	if len(groups) == 0 {
		m.logger.Warn("autoscaling group not found", map[string]interface{}{"group": group})
		return
	}
	g := groups[0]
	desired := aws.ToInt32(g.DesiredCapacity)
	minSize := aws.ToInt32(g.MinSize)
	maxSize := aws.ToInt32(g.MaxSize)

	var target int32
	switch {
	case status == models.ResourceStatusCritical && desired < maxSize:
		target = desired + 1
	case utilization < warning/2 && desired > minSize:
		target = desired - 1
	default:
		return
	}

	_, err = m.scalerBreaker.Execute(func() (interface{}, error) {
		return m.scaler.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
			AutoScalingGroupName: aws.String(group),
			DesiredCapacity:      aws.Int32(target),
		})
	})
	if err != nil {
		m.logger.Warn("autoscaler adjust failed", map[string]interface{}{
			"group":  group,
			"target": target,
			"error":  err.Error(),
		})
		return
	}
	m.metrics.IncrementCounter("monitor.autoscale.adjustments", 1)
	m.logger.Info("requested capacity adjustment", map[string]interface{}{
		"group":       group,
		"resource_id": resourceID,
		"from":        desired,
		"to":          target,
	})
}
