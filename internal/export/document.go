package export

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

const documentTemplate = `<!DOCTYPE html>
<html><head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
@page { margin: 10mm; }
body { font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; font-size: 11pt; line-height: 1.5; color: #222; }
img { max-width: 100%; height: auto; }
pre, code { font-family: Menlo, Consolas, monospace; font-size: 9pt; white-space: pre-wrap; word-wrap: break-word; }
table { border-collapse: collapse; width: 100%; }
td, th { border: 1px solid #ccc; padding: 4px 6px; }
.cover-page { height: 250mm; display: flex; align-items: center; justify-content: center; text-align: center; }
.cover-title { font-size: 28pt; margin-bottom: 12pt; }
.cover-meta, .cover-date { color: #555; }
.toc-list { list-style: none; padding: 0; }
.toc-list li { margin: 4pt 0; }
.toc-list a { color: #1a4d8f; text-decoration: none; }
.page-title { font-size: 18pt; border-bottom: 2px solid #1a4d8f; padding-bottom: 4pt; }
.page-source { font-size: 8pt; color: #777; }
.page-break { page-break-after: always; }
</style>
</head><body>
{{- if .Cover}}
<div class="cover-page"><div class="cover-content">
<h1 class="cover-title">{{.Title}}</h1>
<p class="cover-meta"><strong>{{len .Pages}}</strong> pages</p>
<p class="cover-date">Generated on {{.Generated}}</p>
</div></div>
<div class="page-break"></div>
{{- end}}
{{- if .TOC}}
<div class="toc-page">
<h1 class="toc-title">Table of Contents</h1>
<ul class="toc-list">
{{- range $i, $p := .Pages}}
<li><a href="#page-{{inc $i}}">{{$p.Title}}</a></li>
{{- end}}
</ul>
</div>
<div class="page-break"></div>
{{- end}}
{{- range $i, $p := .Pages}}
<div class="page-content" id="page-{{inc $i}}">
<h1 class="page-title">{{$p.Title}}</h1>
<p class="page-source">{{$p.URL}}</p>
{{$p.HTML}}
</div>
{{- if not $p.Last}}
<div class="page-break"></div>
{{- end}}
{{- end}}
</body></html>
`

var docTmpl = template.Must(template.New("document").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(documentTemplate))

type docPage struct {
	Title string
	URL   string
	HTML  template.HTML
	Last  bool
}

type docData struct {
	Title     string
	Generated string
	Cover     bool
	TOC       bool
	Pages     []docPage
}

// DocumentTitle picks the explicit title, else the first page title.
func DocumentTitle(pages []crawler.RenderedPage, title string) string {
	if strings.TrimSpace(title) != "" {
		return title
	}
	if len(pages) > 0 && strings.TrimSpace(pages[0].Title) != "" {
		return pages[0].Title
	}
	return "Document"
}

// BuildDocument assembles rendered pages into one printable HTML document.
// Page HTML is trusted output of the render cleaner and is not escaped.
func BuildDocument(pages []crawler.RenderedPage, opts crawler.ExportOptions, now time.Time) (string, error) {
	data := docData{
		Title:     DocumentTitle(pages, opts.Title),
		Generated: now.Format("January 02, 2006 at 03:04 PM"),
		Cover:     opts.IncludeCover,
		TOC:       opts.IncludeTOC && len(pages) > 1,
		Pages:     make([]docPage, len(pages)),
	}
	for i, p := range pages {
		title := p.Title
		if strings.TrimSpace(title) == "" {
			title = fmt.Sprintf("Page %d", i+1)
		}
		data.Pages[i] = docPage{
			Title: title,
			URL:   p.URL,
			HTML:  template.HTML(p.HTML), //nolint:gosec // cleaned page markup
			Last:  i == len(pages)-1,
		}
	}
	var b strings.Builder
	if err := docTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("build document: %w", err)
	}
	return b.String(), nil
}
