package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/1-to-100/backoffice/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type queueInspector interface {
	GetQueueInfo(qname string) (*asynq.QueueInfo, error)
	ListScheduledTasks(qname string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsOpsCLI drives manual job operations against the queue: triggering a
// sweep out of schedule and checking queue depth during incidents.
type JobsOpsCLI struct {
	enqueuer  taskEnqueuer
	inspector queueInspector
	closers   []io.Closer
}

// NewJobsOpsCLI wires the CLI over an enqueuer and an inspector.
func NewJobsOpsCLI(enqueuer taskEnqueuer, inspector queueInspector) (*JobsOpsCLI, error) {
	if enqueuer == nil && inspector == nil {
		return nil, errors.New("jobs cli: nothing to operate on")
	}
	return &JobsOpsCLI{enqueuer: enqueuer, inspector: inspector}, nil
}

// Connect builds a CLI bound to the queue backing store at redisAddr.
func Connect(redisAddr string) (*JobsOpsCLI, error) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
	cli, err := NewJobsOpsCLI(client, inspector)
	if err != nil {
		return nil, err
	}
	cli.closers = append(cli.closers, client, inspector)
	return cli, nil
}

// Close releases underlying queue connections.
func (c *JobsOpsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerOptions defines available flags for the jobs trigger command.
type TriggerOptions struct {
	Job            string
	TTLHours       int
	RetentionHours int
	JSONOutput     bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// TriggerSummary describes the JSON response for jobs trigger.
type TriggerSummary struct {
	Job    string `json:"job"`
	Queue  string `json:"queue"`
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// TriggerCommand enqueues one named job out of schedule and prints the
// enqueue receipt.
func (c *JobsOpsCLI) TriggerCommand(ctx context.Context, opts TriggerOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c.enqueuer == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "jobs trigger: queue client not configured")
		return 1
	}
	task, err := buildTriggerTask(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
		return 1
	}
	info, err := c.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: enqueue %s: %v\n", task.Type(), err)
		return 10
	}
	summary := TriggerSummary{Job: task.Type(), Queue: info.Queue, TaskID: info.ID, State: info.State.String()}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s as %s (queue %s, state %s)\n", summary.Job, summary.TaskID, summary.Queue, summary.State)
	return 0
}

func buildTriggerTask(opts TriggerOptions) (*asynq.Task, error) {
	switch strings.TrimSpace(opts.Job) {
	case jobs.TaskRBACWarm:
		if opts.TTLHours != 0 || opts.RetentionHours != 0 {
			return nil, fmt.Errorf("job %s takes no overrides", jobs.TaskRBACWarm)
		}
		return jobs.NewRBACWarmTask()
	case jobs.TaskInvitationsExpire:
		if opts.TTLHours < 0 {
			return nil, errors.New("--ttl-hours must not be negative")
		}
		return jobs.NewInvitationsExpireTask(jobs.InvitationsExpirePayload{TTLHours: opts.TTLHours})
	case jobs.TaskNotificationsRetention:
		if opts.RetentionHours < 0 {
			return nil, errors.New("--retention-hours must not be negative")
		}
		return jobs.NewNotificationsRetentionTask(jobs.RetentionPayload{RetentionHours: opts.RetentionHours})
	case jobs.TaskAuditRetention:
		if opts.RetentionHours < 0 {
			return nil, errors.New("--retention-hours must not be negative")
		}
		return jobs.NewAuditRetentionTask(jobs.RetentionPayload{RetentionHours: opts.RetentionHours})
	case "":
		return nil, errors.New("--job is required")
	default:
		return nil, fmt.Errorf("unknown job %q", opts.Job)
	}
}

// QueueOptions defines available flags for the jobs queue command.
type QueueOptions struct {
	ScheduledLimit int
	JSONOutput     bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// ScheduledRun reports one upcoming scheduled task.
type ScheduledRun struct {
	Job   string    `json:"job"`
	RunAt time.Time `json:"run_at"`
}

// QueueState reports one queue's depth.
type QueueState struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

// QueueSummary describes the JSON response for jobs queue.
type QueueSummary struct {
	Queues   []QueueState   `json:"queues"`
	NextRuns []ScheduledRun `json:"next_runs,omitempty"`
}

// QueueCommand reports both queue depths and, when requested, the next
// scheduled runs.
func (c *JobsOpsCLI) QueueCommand(ctx context.Context, opts QueueOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c.inspector == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "jobs queue: inspector not configured")
		return 1
	}
	var summary QueueSummary
	for _, queue := range []string{jobs.QueueDefault, jobs.QueueMaintenance} {
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				summary.Queues = append(summary.Queues, QueueState{Queue: queue})
				continue
			}
			_, _ = fmt.Fprintf(opts.Stderr, "jobs queue: %s: %v\n", queue, err)
			return 10
		}
		state := QueueState{Queue: queue}
		if info != nil {
			state.Pending = info.Pending
			state.Active = info.Active
			state.Scheduled = info.Scheduled
			state.Retry = info.Retry
		}
		summary.Queues = append(summary.Queues, state)
		if opts.ScheduledLimit > 0 {
			tasks, err := c.inspector.ListScheduledTasks(queue, asynq.PageSize(opts.ScheduledLimit), asynq.Page(1))
			if err != nil {
				_, _ = fmt.Fprintf(opts.Stderr, "jobs queue: list scheduled %s: %v\n", queue, err)
			} else {
				for _, task := range tasks {
					summary.NextRuns = append(summary.NextRuns, ScheduledRun{Job: task.Type, RunAt: task.NextProcessAt})
				}
			}
		}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs queue: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderQueueHuman(opts.Stdout, summary)
	return 0
}

func renderQueueHuman(out io.Writer, summary QueueSummary) {
	for _, state := range summary.Queues {
		_, _ = fmt.Fprintf(out, "queue %s: %d pending, %d active, %d scheduled, %d retrying\n",
			state.Queue, state.Pending, state.Active, state.Scheduled, state.Retry)
	}
	for _, run := range summary.NextRuns {
		_, _ = fmt.Fprintf(out, " - %s at %s\n", run.Job, run.RunAt.Format(time.RFC3339))
	}
}
