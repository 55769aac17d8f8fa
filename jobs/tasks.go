package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault carries latency-sensitive work, currently the cache warm.
	QueueDefault = "default"
	// QueueMaintenance carries bulk sweeps that may hold the worker for a while.
	QueueMaintenance = "maintenance"

	// TaskRBACWarm primes the permission cache for every role.
	TaskRBACWarm = "rbac:warm"
	// TaskInvitationsExpire deactivates invitations that were never accepted.
	TaskInvitationsExpire = "invitations:expire"
	// TaskNotificationsRetention purges notifications older than the retention window.
	TaskNotificationsRetention = "notifications:retention"
	// TaskAuditRetention purges audit events older than the retention window.
	TaskAuditRetention = "audit:retention"
)

// RBACWarmPayload carries no parameters; the warm run always covers all roles.
type RBACWarmPayload struct{}

// InvitationsExpirePayload optionally overrides the invitation TTL for one run.
type InvitationsExpirePayload struct {
	TTLHours int `json:"ttlHours,omitempty"`
}

// RetentionPayload optionally overrides the retention window for one run.
type RetentionPayload struct {
	RetentionHours int `json:"retentionHours,omitempty"`
}

// NewRBACWarmTask constructs a permission cache warm task.
func NewRBACWarmTask() (*asynq.Task, error) {
	data, err := json.Marshal(RBACWarmPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACWarm, data, asynq.Queue(QueueDefault)), nil
}

// NewInvitationsExpireTask constructs an invitation expiry sweep task.
func NewInvitationsExpireTask(payload InvitationsExpirePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvitationsExpire, data, asynq.Queue(QueueMaintenance)), nil
}

// NewNotificationsRetentionTask constructs a notification purge task.
func NewNotificationsRetentionTask(payload RetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationsRetention, data, asynq.Queue(QueueMaintenance)), nil
}

// NewAuditRetentionTask constructs an audit event purge task.
func NewAuditRetentionTask(payload RetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data, asynq.Queue(QueueMaintenance)), nil
}
