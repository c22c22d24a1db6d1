package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/media"
	"github.com/nikhilbhutani/audioprep/internal/queue"
	"github.com/nikhilbhutani/audioprep/internal/transcription"
)

// multipart parts above this size are spooled to disk by net/http.
const formMemoryBytes = 32 << 20

// JobQueue is implemented by queue.Client.
type JobQueue interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscribePayload) (string, error)
	Job(id string) (*queue.JobStatus, error)
}

type TranscriptionHandler struct {
	svc       transcription.Transcriber
	probe     *media.Probe
	jobs      JobQueue
	maxUpload int64
	log       *logrus.Entry
}

// NewTranscriptionHandler wires the upload endpoints. jobs may be nil, in
// which case the async endpoints answer 503.
func NewTranscriptionHandler(svc transcription.Transcriber, probe *media.Probe, jobs JobQueue, maxUpload int64, log *logrus.Entry) *TranscriptionHandler {
	return &TranscriptionHandler{svc: svc, probe: probe, jobs: jobs, maxUpload: maxUpload, log: log}
}

type upload struct {
	file     multipart.File
	filename string
	opts     transcription.Options
}

func (h *TranscriptionHandler) parse(w http.ResponseWriter, r *http.Request) (*upload, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(formMemoryBytes); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, requestError("invalid multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, requestError("file field required")
	}

	removeNoise, err := boolField(r, "remove_noise", true)
	if err != nil {
		file.Close()
		return nil, err
	}
	forceEnglish, err := boolField(r, "force_english", true)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &upload{
		file:     file,
		filename: header.Filename,
		opts:     transcription.Options{RemoveNoise: removeNoise, ForceEnglish: forceEnglish},
	}, nil
}

// requestError is a client mistake answered with 400.
type requestError string

func (e requestError) Error() string { return string(e) }

func (h *TranscriptionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		badRequest(w, reqErr.Error())
		return
	}
	writeError(w, h.requestLog(r), err)
}

func (h *TranscriptionHandler) requestLog(r *http.Request) *logrus.Entry {
	return h.log.WithField("req_id", chimiddleware.GetReqID(r.Context()))
}

// Transcribe runs the pipeline synchronously and returns the transcript.
func (h *TranscriptionHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	up, err := h.parse(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer up.file.Close()

	outcome, err := h.svc.Transcribe(r.Context(), transcription.Upload{Filename: up.filename, Data: up.file}, up.opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// TranscribeAsync queues the upload and returns the job id immediately.
func (h *TranscriptionHandler) TranscribeAsync(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async jobs are not enabled"})
		return
	}
	up, err := h.parse(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer up.file.Close()

	if _, err := h.probe.Check(up.filename); err != nil {
		h.fail(w, r, err)
		return
	}

	callback := r.FormValue("callback_url")
	if callback != "" {
		u, err := url.Parse(callback)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			badRequest(w, "callback_url must be an absolute http(s) URL")
			return
		}
	}

	data, err := io.ReadAll(up.file)
	if err != nil {
		h.fail(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	id, err := h.jobs.EnqueueTranscription(r.Context(), queue.TranscribePayload{
		RequestID:    chimiddleware.GetReqID(r.Context()),
		Filename:     up.filename,
		Data:         data,
		RemoveNoise:  up.opts.RemoveNoise,
		ForceEnglish: up.opts.ForceEnglish,
		CallbackURL:  callback,
	})
	if err != nil {
		h.requestLog(r).WithError(err).Error("enqueue transcription")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "could not queue job"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     id,
		"status":     "pending",
		"status_url": "/api/v1/audio/jobs/" + id,
	})
}

// Job reports the state of an async transcription.
func (h *TranscriptionHandler) Job(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async jobs are not enabled"})
		return
	}
	id := chi.URLParam(r, "id")
	st, err := h.jobs.Job(id)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	if err != nil {
		h.requestLog(r).WithError(err).Error("inspect job")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load job"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// boolField reads an optional form boolean. Absent or empty means def.
func boolField(r *http.Request, name string, def bool) (bool, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, requestError(name + " must be a boolean")
	}
	return b, nil
}
