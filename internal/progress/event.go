package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageJobStatus    Stage = "JOB_STATUS"
	StagePageFound    Stage = "PAGE_FOUND"
	StagePageRendered Stage = "PAGE_RENDERED"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
)

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	return s == StageJobDone || s == StageJobError
}

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for crawled pages.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is one job milestone.
type Event struct {
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Status is the job status after the milestone, for JOB_* stages.
	Status string
	// URL is the page for PAGE_* stages or the start URL otherwise.
	URL string
	// Mode is the crawl strategy, once chosen.
	Mode string
	// Bytes is the page size for PAGE_FOUND.
	Bytes int64
	// StatusCode is the HTTP status for PAGE_FOUND; zero on transport errors.
	StatusCode int
	// Dur is the job wall time for terminal stages.
	Dur time.Duration
	// ResultFile is the artifact locator on JOB_DONE.
	ResultFile string
	// Note carries short context such as the error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageJobStatus:
		if e.Status == "" {
			return errors.New("job status event requires status")
		}
	case StagePageFound, StagePageRendered:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
