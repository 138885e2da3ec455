// Package cli holds operator commands bundled with the custshop binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/custshop/custshop/jobs"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// Retention carries the default ages used by manually triggered cleanup jobs.
type Retention struct {
	Cart        time.Duration
	Idempotency time.Duration
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    enqueuer
	inspector queueInspector
	retention Retention
}

// NewJobsCLI initialises the CLI helpers against the given Redis connection.
func NewJobsCLI(redisOpts asynq.RedisClientOpt, retention Retention) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(redisOpts),
		inspector: asynq.NewInspector(redisOpts),
		retention: retention,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a maintenance job by task type. olderThan overrides the
// configured retention when positive.
func (c *JobsCLI) Trigger(ctx context.Context, name string, olderThan time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	switch name {
	case jobs.TaskTypeCartPurge:
		task = jobs.NewCartPurgeTask(pick(olderThan, c.retention.Cart))
	case jobs.TaskTypeIdempotencyCleanup:
		task = jobs.NewIdempotencyCleanupTask(pick(olderThan, c.retention.Idempotency))
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault))
}

func pick(override, fallback time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return fallback
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the counters for the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// JobsCommand builds the "jobs" command tree. open is called lazily so help
// output never needs a Redis connection.
func JobsCommand(open func() (*JobsCLI, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	var olderThan time.Duration
	trigger := &cobra.Command{
		Use:       "trigger <task-type>",
		Short:     "Enqueue a maintenance job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskTypeCartPurge, jobs.TaskTypeIdempotencyCleanup},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCLI(open, func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0], olderThan)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", info.Type, info.ID)
				return nil
			})
		},
	}
	trigger.Flags().DurationVar(&olderThan, "older-than", 0, "override the configured retention")

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCLI(open, func(c *JobsCLI) error {
				s, err := c.InspectQueue()
				if err != nil {
					return err
				}
				return renderStats(cmd.OutOrStdout(), s, asJSON)
			})
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCLI(open, func(c *JobsCLI) error {
				tasks, err := c.ListScheduled(size)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					_, _ = fmt.Fprintln(out, "no scheduled tasks")
					return nil
				}
				for _, t := range tasks {
					_, _ = fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(trigger, stats, scheduled)
	return cmd
}

func withCLI(open func() (*JobsCLI, error), fn func(*JobsCLI) error) error {
	c, err := open()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(c)
}

func renderStats(out io.Writer, s QueueStats, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(out).Encode(s)
	}
	_, err := fmt.Fprintf(out, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	return err
}
