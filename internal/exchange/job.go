package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is a background remote script run. Poll blocks until the job leaves
// the running state, then collects output and cleans the remote job up
// exactly once, whatever the terminal state. A timeout or context
// cancellation stops and removes the remote job before returning.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration

	log     *logrus.Entry
	state   func(ctx context.Context) (JobState, error)
	collect func(ctx context.Context) (string, error)
	stop    func(ctx context.Context) error

	done   bool
	result *JobResult
}

// JobFuncs wires a Job to its remote lifecycle operations.
type JobFuncs struct {
	// State queries the current job state.
	State func(ctx context.Context) (JobState, error)
	// Collect retrieves job output and removes the job. Called exactly once.
	Collect func(ctx context.Context) (string, error)
	// Stop stops and removes the job after timeout or cancellation.
	Stop func(ctx context.Context) error
}

// NewJob builds a pollable job. Interval and timeout of zero fall back to
// 10s and 45m.
func NewJob(name string, interval, timeout time.Duration, funcs JobFuncs, log *logrus.Entry) *Job {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 45 * time.Minute
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Job{
		Name:     name,
		Interval: interval,
		Timeout:  timeout,
		log:      log.WithField("job", name),
		state:    funcs.State,
		collect:  funcs.Collect,
		stop:     funcs.Stop,
	}
}

// Poll waits for the job on a fixed interval. A second call returns the
// first call's result without touching the remote job again.
func (j *Job) Poll(ctx context.Context) (*JobResult, error) {
	if j.done {
		if j.result == nil {
			return nil, fmt.Errorf("job %s already failed polling", j.Name)
		}
		return j.result, j.result.Err
	}

	started := time.Now()
	deadline := started.Add(j.Timeout)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		state, err := j.state(ctx)
		if err != nil {
			j.done = true
			j.cleanup()
			return nil, fmt.Errorf("failed to query job %s state: %w", j.Name, err)
		}

		if state.Terminal() {
			j.done = true
			return j.finish(ctx, state, started)
		}

		j.log.WithField("state", string(state)).Debug("job still running")

		select {
		case <-ctx.Done():
			j.done = true
			j.cleanup()
			return nil, fmt.Errorf("job %s cancelled: %w", j.Name, ctx.Err())
		case now := <-ticker.C:
			if now.After(deadline) {
				j.done = true
				j.cleanup()
				return nil, fmt.Errorf("job %s did not finish within %s", j.Name, j.Timeout)
			}
		}
	}
}

// finish collects output and removes the remote job. Runs once.
func (j *Job) finish(ctx context.Context, state JobState, started time.Time) (*JobResult, error) {
	output, err := j.collect(ctx)

	result := &JobResult{
		State:    state,
		Output:   output,
		Duration: time.Since(started),
	}

	switch {
	case err != nil:
		result.Err = err
	case state == JobFailed:
		result.Err = fmt.Errorf("job %s failed: %s", j.Name, output)
	case state == JobStopped:
		result.Err = fmt.Errorf("job %s was stopped before completion", j.Name)
	}

	j.result = result
	j.log.WithFields(logrus.Fields{
		"state":       string(state),
		"duration_ms": result.Duration.Milliseconds(),
	}).Debug("job finished")

	return result, result.Err
}

// cleanup stops and removes an abandoned remote job. Errors are logged
// only; the caller already has a more important error to return.
func (j *Job) cleanup() {
	if j.stop == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := j.stop(ctx); err != nil {
		j.log.WithError(err).Warn("failed to clean up remote job")
	}
}
