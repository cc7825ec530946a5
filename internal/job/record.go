// Package job defines the snapshot job record, its state machine and the
// store that persists it.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// Sentinel errors.
var (
	ErrNotFound          = errors.New("job not found")
	ErrExists            = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Record bounds.
const (
	MaxLogEntries   = 50
	MaxErrorLength  = 300
	MaxDetailLength = 200
	InitialStep     = "Initializing"
)

// Status is a job lifecycle state.
type Status string

// Job statuses in pipeline order.
const (
	StatusPending    Status = "pending"
	StatusAnalyzing  Status = "analyzing"
	StatusCrawling   Status = "crawling"
	StatusProcessing Status = "processing"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var pipelineOrder = map[Status]int{
	StatusPending:    0,
	StatusAnalyzing:  1,
	StatusCrawling:   2,
	StatusProcessing: 3,
	StatusGenerating: 4,
	StatusCompleted:  5,
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from may move to to. Statuses advance one
// pipeline step at a time; any non-terminal status may fail.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fromRank, okFrom := pipelineOrder[from]
	toRank, okTo := pipelineOrder[to]
	return okFrom && okTo && toRank == fromRank+1
}

// Format selects the export artifact.
type Format string

// Export formats.
const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatPDF, FormatMarkdown, FormatHTML:
		return true
	default:
		return false
	}
}

// Request is the immutable job input.
type Request struct {
	URL        string              `json:"url"`
	Mode       crawler.Mode        `json:"mode"`
	SitemapURL string              `json:"sitemap_url,omitempty"`
	SitemapXML string              `json:"sitemap_xml,omitempty"`
	Format     Format              `json:"format"`
	Config     crawler.CrawlConfig `json:"config"`
}

// Validate checks the mode-specific inputs and the crawl limits.
func (r Request) Validate() error {
	if _, err := crawler.ParseHTTPURL(r.URL); err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
	if !r.Format.Valid() {
		return fmt.Errorf("unknown format %q", r.Format)
	}
	switch r.Mode {
	case crawler.ModeSitemapURL:
		if _, err := crawler.ParseHTTPURL(r.SitemapURL); err != nil {
			return fmt.Errorf("sitemap_url is required for sitemap_url mode: %w", err)
		}
	case crawler.ModeSitemapUpload:
		if r.SitemapXML == "" {
			return errors.New("sitemap_xml is required for sitemap_upload mode")
		}
	}
	if err := r.Config.Validate(); err != nil {
		return err //nolint:wrapcheck // already carries ErrInvalidConfig
	}
	return nil
}

// Record is the observable state of one job.
type Record struct {
	ID             string                     `json:"job_id"`
	URL            string                     `json:"url"`
	Status         Status                     `json:"status"`
	Progress       float64                    `json:"progress"`
	CurrentStep    string                     `json:"current_step"`
	PagesFound     int                        `json:"pages_found"`
	PagesProcessed int                        `json:"pages_processed"`
	Pages          []crawler.PageRecord       `json:"pages"`
	Logs           []string                   `json:"logs"`
	Error          string                     `json:"error,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	CompletedAt    *time.Time                 `json:"completed_at,omitempty"`
	ResultFile     string                     `json:"result_file,omitempty"`
	ResultFilename string                     `json:"result_filename,omitempty"`
	ResultKind     crawler.ArtifactKind       `json:"result_kind,omitempty"`
	ResultDigest   string                     `json:"result_digest,omitempty"`
	Artifact       *crawler.Artifact          `json:"artifact,omitempty"`
	Strategy       crawler.Mode               `json:"strategy,omitempty"`
	Sitemap        *crawler.SitemapDescriptor `json:"sitemap,omitempty"`
	Request        Request                    `json:"request"`
}

// NewRecord returns a pending record for req.
func NewRecord(id string, req Request, now time.Time) Record {
	req.Config = req.Config.Clone()
	return Record{
		ID:          id,
		URL:         req.URL,
		Status:      StatusPending,
		CurrentStep: InitialStep,
		Pages:       []crawler.PageRecord{},
		Logs:        []string{},
		CreatedAt:   now.UTC(),
		Request:     req,
	}
}

// Transition moves the record to status to.
func (r *Record) Transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	if to.Terminal() {
		ts := now.UTC()
		r.CompletedAt = &ts
	}
	return nil
}

// SetProgress records advisory progress. Lower values keep the current
// percentage; an empty step keeps the current label.
func (r *Record) SetProgress(pct float64, step string) {
	if pct > 100 {
		pct = 100
	}
	if pct > r.Progress {
		r.Progress = pct
	}
	if step != "" {
		r.CurrentStep = step
	}
}

// AddPage appends a crawled page.
func (r *Record) AddPage(p crawler.PageRecord) {
	r.Pages = append(r.Pages, p)
	r.PagesFound = len(r.Pages)
}

// AppendLog adds a timestamped entry, evicting the oldest beyond
// MaxLogEntries.
func (r *Record) AppendLog(now time.Time, msg string) {
	r.Logs = append(r.Logs, fmt.Sprintf("[%s] %s", now.Format("15:04:05"), msg))
	if over := len(r.Logs) - MaxLogEntries; over > 0 {
		r.Logs = append([]string(nil), r.Logs[over:]...)
	}
}

// Complete stores the artifact and finishes the job.
func (r *Record) Complete(art crawler.Artifact, downloadName string, now time.Time) error {
	if err := r.Transition(StatusCompleted, now); err != nil {
		return err
	}
	a := art
	a.Parts = append([]string(nil), art.Parts...)
	r.Artifact = &a
	r.ResultFile = art.Locator
	r.ResultFilename = downloadName
	r.ResultKind = art.Kind
	r.ResultDigest = art.Digest
	r.SetProgress(100, "Completed")
	return nil
}

// Fail moves a non-terminal record to failed with a bounded message and a
// root-cause log line, unless that line would repeat the message. Failing a
// terminal record is a no-op.
func (r *Record) Fail(cause error, now time.Time) {
	if r.Status.Terminal() {
		return
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = Truncate(msg, MaxErrorLength)
	_ = r.Transition(StatusFailed, now)
	r.Error = msg
	r.CurrentStep = "Failed"
	r.AppendLog(now, "Job failed: "+msg)
	if cause == nil {
		return
	}
	// Skip the details line only when it would repeat the message.
	if detail := Truncate(RootCause(cause).Error(), MaxDetailLength); detail != msg {
		r.AppendLog(now, "Details: "+detail)
	}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	cp := r
	cp.Pages = append([]crawler.PageRecord{}, r.Pages...)
	cp.Logs = append([]string{}, r.Logs...)
	cp.Request.Config = r.Request.Config.Clone()
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		cp.CompletedAt = &ts
	}
	if r.Sitemap != nil {
		s := *r.Sitemap
		cp.Sitemap = &s
	}
	if r.Artifact != nil {
		a := *r.Artifact
		a.Parts = append([]string(nil), r.Artifact.Parts...)
		cp.Artifact = &a
	}
	return cp
}

// Truncate shortens s to max runes followed by "...".
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// RootCause returns the innermost error in err's Unwrap chain.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
