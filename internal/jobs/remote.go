package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sloppy/internal/config"
	"sloppy/internal/services"
)

// RemoteQueue hands jobs to an external executor over HTTP. The executor
// reports outcomes back through the daemon's outcome endpoint.
type RemoteQueue struct {
	client      *resty.Client
	callbackURL string
}

// CallbackURL is a template; the executor substitutes {job_id} before posting.
type remoteSubmitRequest struct {
	Job
	CallbackURL string `json:"callback_url"`
}

const callbackPath = "/api/jobs/{job_id}/outcome"

type remoteSubmitResponse struct {
	JobID string `json:"job_id"`
}

type remoteErrorResponse struct {
	Error string `json:"error"`
}

// NewRemoteQueue builds a queue for the given executor base URL.
func NewRemoteQueue(baseURL, callbackURL string, timeout time.Duration) *RemoteQueue {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &RemoteQueue{client: client, callbackURL: strings.TrimRight(callbackURL, "/")}
}

// NewRemoteQueueFromConfig builds a queue from the [remote] section.
func NewRemoteQueueFromConfig(cfg *config.Config) *RemoteQueue {
	return NewRemoteQueue(cfg.Remote.BaseURL, cfg.Remote.CallbackURL,
		time.Duration(cfg.Remote.TimeoutSeconds)*time.Second)
}

// Submit posts the job and returns the executor-assigned id.
func (q *RemoteQueue) Submit(ctx context.Context, job Job) (string, error) {
	var out remoteSubmitResponse
	var failure remoteErrorResponse
	resp, err := q.client.R().
		SetContext(ctx).
		SetBody(remoteSubmitRequest{Job: job, CallbackURL: q.callbackURL + callbackPath}).
		SetResult(&out).
		SetError(&failure).
		Post("/jobs")
	if err != nil {
		return "", services.Wrap(services.ErrTransient, string(job.Kind), "remote submit", "", err)
	}
	if resp.IsError() {
		msg := fmt.Sprintf("executor returned %s", resp.Status())
		if failure.Error != "" {
			msg += ": " + failure.Error
		}
		return "", services.Wrap(services.ErrExternalTool, string(job.Kind), "remote submit", msg, nil)
	}
	if strings.TrimSpace(out.JobID) == "" {
		return "", services.Wrap(services.ErrValidation, string(job.Kind), "remote submit", "executor returned no job id", nil)
	}
	return out.JobID, nil
}
