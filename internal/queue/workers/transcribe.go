package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/queue"
	"github.com/nikhilbhutani/audioprep/internal/transcription"
)

// Notifier delivers job results to caller-supplied callback URLs.
type Notifier interface {
	Deliver(ctx context.Context, url, event string, payload []byte) (string, error)
}

type TranscribeWorker struct {
	svc      transcription.Transcriber
	notifier Notifier
	log      *logrus.Entry
}

func NewTranscribeWorker(svc transcription.Transcriber, notifier Notifier, log *logrus.Entry) *TranscribeWorker {
	return &TranscribeWorker{svc: svc, notifier: notifier, log: log}
}

func (w *TranscribeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TranscribePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, _ := asynq.GetTaskID(ctx)
	log := w.log.WithFields(logrus.Fields{
		"job_id":   jobID,
		"req_id":   payload.RequestID,
		"filename": payload.Filename,
	})
	log.WithField("bytes", len(payload.Data)).Info("processing transcription job")

	up := transcription.Upload{Filename: payload.Filename, Data: bytes.NewReader(payload.Data)}
	outcome, runErr := w.svc.Transcribe(ctx, up, payload.Options())

	result := queue.JobResult{JobID: jobID, RequestID: payload.RequestID}
	if outcome != nil {
		result.RunID = outcome.Report.RunID
	}
	event := queue.EventTranscriptionCompleted
	if runErr != nil {
		event = queue.EventTranscriptionFailed
		result.Error = runErr.Error()
	} else {
		result.Transcription = outcome.Transcription
		opt := outcome.Optimizations
		result.Optimizations = &opt
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write(data); err != nil {
			log.WithError(err).Warn("failed to store job result")
		}
	}

	if payload.CallbackURL != "" && w.notifier != nil {
		if _, err := w.notifier.Deliver(ctx, payload.CallbackURL, event, data); err != nil {
			log.WithError(err).Warn("callback delivery failed")
		}
	}

	if runErr != nil {
		return fmt.Errorf("transcribe %s: %v: %w", payload.Filename, runErr, asynq.SkipRetry)
	}
	log.Info("transcription job finished")
	return nil
}

// Logging logs the outcome and duration of every task.
func Logging(log *logrus.Entry) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, t)
			id, _ := asynq.GetTaskID(ctx)
			entry := log.WithFields(logrus.Fields{
				"task_type": t.Type(),
				"job_id":    id,
				"duration":  time.Since(start).String(),
			})
			if err != nil {
				entry.WithError(err).Warn("task failed")
			} else {
				entry.Debug("task done")
			}
			return err
		})
	}
}
