package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/export"
	"github.com/JakeFAU/sitesnap/internal/job"
)

// completedArtifact loads the job and its artifact, answering 400 for jobs
// that have not completed and 404 when no artifact was recorded.
func (s *Server) completedArtifact(w http.ResponseWriter, r *http.Request) (job.Record, crawler.Artifact, bool) {
	rec, ok := s.loadJob(w, r)
	if !ok {
		return job.Record{}, crawler.Artifact{}, false
	}
	if rec.Status != job.StatusCompleted {
		writeError(w, http.StatusBadRequest, "Job not completed")
		return job.Record{}, crawler.Artifact{}, false
	}
	if rec.Artifact == nil || rec.Artifact.Key == "" {
		writeError(w, http.StatusNotFound, "File not found")
		return job.Record{}, crawler.Artifact{}, false
	}
	return rec, *rec.Artifact, true
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	rec, art, ok := s.completedArtifact(w, r)
	if !ok {
		return
	}
	if art.Kind != crawler.ArtifactPDF {
		writeError(w, http.StatusBadRequest, "Only PDF files can be previewed")
		return
	}
	rc, ok := s.openObject(w, r, rec.ID, art.Key)
	if !ok {
		return
	}
	defer rc.Close() //nolint:errcheck // read side

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("preview stream interrupted", zap.String("job_id", rec.ID), zap.Error(err))
	}
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	rec, art, ok := s.completedArtifact(w, r)
	if !ok {
		return
	}
	name := rec.ResultFilename
	if name == "" {
		name = export.DownloadName("", rec.ID, art.Kind)
	}

	if etag := artifactETag(art); etag != "" {
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	if art.Kind == crawler.ArtifactHTMLDir {
		w.Header().Set("Content-Type", "application/zip")
		// Headers are committed once the first entry is written, so a
		// failure part way through can only be logged.
		if err := export.WriteZip(r.Context(), s.deps.Blobs, art, w); err != nil {
			s.logger.Warn("zip stream interrupted", zap.String("job_id", rec.ID), zap.Error(err))
		}
		return
	}

	rc, ok := s.openObject(w, r, rec.ID, art.Key)
	if !ok {
		return
	}
	defer rc.Close() //nolint:errcheck // read side
	contentType := art.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("download stream interrupted", zap.String("job_id", rec.ID), zap.Error(err))
	}
}

func (s *Server) openObject(w http.ResponseWriter, r *http.Request, jobID, key string) (io.ReadCloser, bool) {
	rc, err := s.deps.Blobs.GetObject(r.Context(), key)
	if err != nil {
		if errors.Is(err, crawler.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return nil, false
		}
		s.logger.Error("open artifact failed", zap.String("job_id", jobID), zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open artifact")
		return nil, false
	}
	return rc, true
}

// artifactETag quotes the digest of the primary object. Zipped directories
// are assembled per request, so theirs is weak.
func artifactETag(art crawler.Artifact) string {
	if art.Digest == "" {
		return ""
	}
	if art.Kind == crawler.ArtifactHTMLDir {
		return fmt.Sprintf(`W/"%s"`, art.Digest)
	}
	return fmt.Sprintf(`"%s"`, art.Digest)
}
