package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/audioprep/internal/config"
)

var ErrJobNotFound = errors.New("job not found")

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	Close() error
}

type Client struct {
	client    enqueuer
	inspector inspector
	timeout   time.Duration
	retention time.Duration
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(rcfg config.RedisConfig, qcfg config.QueueConfig) *Client {
	opt := RedisOpt(rcfg)
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		timeout:   qcfg.Timeout,
		retention: qcfg.Retention,
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// EnqueueTranscription schedules one pipeline run and returns the job id.
// The pipeline has its own retry policy, so the task is never retried.
func (c *Client) EnqueueTranscription(ctx context.Context, payload TranscribePayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id := uuid.NewString()
	task := asynq.NewTask(TypeAudioTranscribe, data)
	opts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
	}
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}
	if c.retention > 0 {
		opts = append(opts, asynq.Retention(c.retention))
	}
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TypeAudioTranscribe, err)
	}
	return id, nil
}

type JobStatus struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	LastError   string     `json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// Job reports the state of a transcription task and its result once the
// worker has written one.
func (c *Client) Job(id string) (*JobStatus, error) {
	info, err := c.inspector.GetTaskInfo(QueueDefault, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inspect job %s: %w", id, err)
	}
	return statusFromInfo(info)
}

func statusFromInfo(info *asynq.TaskInfo) (*JobStatus, error) {
	st := &JobStatus{ID: info.ID, State: stateName(info.State), LastError: info.LastErr}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		st.CompletedAt = &t
	}
	if len(info.Result) > 0 {
		var res JobResult
		if err := json.Unmarshal(info.Result, &res); err != nil {
			return nil, fmt.Errorf("decode job result %s: %w", info.ID, err)
		}
		st.Result = &res
	}
	return st, nil
}

func stateName(s asynq.TaskState) string {
	switch s {
	case asynq.TaskStateArchived:
		return "failed"
	case asynq.TaskStateRetry:
		return "retry"
	default:
		return s.String()
	}
}
