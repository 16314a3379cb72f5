package models

import (
	"time"
)

// ResourceStatus is the utilization band a resource currently sits in.
type ResourceStatus string

const (
	ResourceStatusNormal   ResourceStatus = "normal"
	ResourceStatusWarning  ResourceStatus = "warning"
	ResourceStatusCritical ResourceStatus = "critical"
)

// UsagePoint is one sample of a resource's usage history.
type UsagePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Used      float64   `json:"used"`
}

// Resource tracks capacity and usage for a named, optionally
// tenant-scoped resource. History is bounded to the trailing 24 hours.
type Resource struct {
	ID                string         `json:"resource_id"`
	Capacity          float64        `json:"capacity"`
	Used              float64        `json:"used"`
	Status            ResourceStatus `json:"status"`
	WarningThreshold  float64        `json:"warning_threshold"`
	CriticalThreshold float64        `json:"critical_threshold"`
	History           []UsagePoint   `json:"history,omitempty"`
	AutoscalingGroup  string         `json:"autoscaling_group,omitempty"`
	ClientID          string         `json:"client_id,omitempty"`
	Ownership         Ownership      `json:"ownership"`
}

// Utilization returns used/capacity.
func (r *Resource) Utilization() float64 {
	if r.Capacity <= 0 {
		return 0
	}
	return r.Used / r.Capacity
}

// StatusForUtilization returns the maximal band whose threshold is at
// or below the given utilization.
func StatusForUtilization(utilization, warning, critical float64) ResourceStatus {
	switch {
	case utilization >= critical:
		return ResourceStatusCritical
	case utilization >= warning:
		return ResourceStatusWarning
	default:
		return ResourceStatusNormal
	}
}
