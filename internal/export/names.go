package export

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// MaxBaseNameLength caps BaseName in characters.
const MaxBaseNameLength = 100

// DefaultNamePrefix starts every download name unless configured otherwise.
const DefaultNamePrefix = "snapshot"

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// BaseName derives an artifact name from the first page title, falling back
// to the source host and then to a job-scoped placeholder.
func BaseName(pages []crawler.RenderedPage, sourceURL, jobID string) string {
	candidate := ""
	if len(pages) > 0 {
		candidate = pages[0].Title
	}
	if strings.TrimSpace(candidate) == "" {
		candidate = crawler.Host(sourceURL)
	}
	name := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(candidate, ""))
	if utf8.RuneCountInString(name) > MaxBaseNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxBaseNameLength]))
	}
	if name == "" {
		short := jobID
		if len(short) > 8 {
			short = short[:8]
		}
		name = "document_" + short
	}
	return name
}

// Extension returns the file extension used for kind.
func Extension(kind crawler.ArtifactKind) string {
	switch kind {
	case crawler.ArtifactMarkdown:
		return "md"
	case crawler.ArtifactHTMLDir:
		return "zip"
	default:
		return "pdf"
	}
}

// DownloadName is the filename offered to clients.
func DownloadName(prefix, base string, kind crawler.ArtifactKind) string {
	if prefix == "" {
		prefix = DefaultNamePrefix
	}
	return prefix + "-" + base + "." + Extension(kind)
}
