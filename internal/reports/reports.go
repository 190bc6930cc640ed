// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package reports accumulates accessibility scan findings per page and writes
// them to a reports directory as one JSON file per page plus an HTML index.
package reports

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
)

// Violation is a single rule violation as reported by the accessibility scanner.
// The scanner owns this schema; we only decode the fields we report on.
type Violation struct {
	ID          string          `json:"id"`
	Impact      string          `json:"impact"`
	Description string          `json:"description"`
	Help        string          `json:"help"`
	HelpURL     string          `json:"helpUrl"`
	Nodes       []ViolationNode `json:"nodes"`
}

// ViolationNode identifies one DOM node which violated a rule.
type ViolationNode struct {
	HTML   string   `json:"html"`
	Target []string `json:"target"`
}

// PageResult holds the findings for one scanned page.
type PageResult struct {
	Label      string      `json:"label"`
	URL        string      `json:"url"`
	ScannedAt  time.Time   `json:"scannedAt"`
	Violations []Violation `json:"violations"`
}

// Report collects page results over a test run. Safe for concurrent use because
// browser tests may run in parallel.
type Report struct {
	lock  sync.Mutex
	pages []PageResult
	now   func() time.Time
}

func New() *Report {
	return &Report{now: time.Now}
}

// AddPage records the findings for one page. Labels are expected to be unique
// within a run; a duplicate label overwrites the earlier result so that a
// re-scan of the same page does not double-count.
func (r *Report) AddPage(label, url string, violations []Violation) {
	r.lock.Lock()
	defer r.lock.Unlock()

	result := PageResult{
		Label:      label,
		URL:        url,
		ScannedAt:  r.now(),
		Violations: violations,
	}

	for i := range r.pages {
		if r.pages[i].Label == label {
			r.pages[i] = result
			return
		}
	}
	r.pages = append(r.pages, result)
}

// Pages returns a copy of the accumulated page results, sorted by label.
func (r *Report) Pages() []PageResult {
	r.lock.Lock()
	defer r.lock.Unlock()

	pages := make([]PageResult, len(r.pages))
	copy(pages, r.pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].Label < pages[j].Label })
	return pages
}

// TotalViolations returns the number of violations across all pages.
func (r *Report) TotalViolations() int {
	total := 0
	for _, p := range r.Pages() {
		total += len(p.Violations)
	}
	return total
}

// CountByImpact returns the number of violations with the given impact level
// (e.g. "critical", "serious") across all pages.
func (r *Report) CountByImpact(impact string) int {
	count := 0
	for _, p := range r.Pages() {
		for _, v := range p.Violations {
			if v.Impact == impact {
				count++
			}
		}
	}
	return count
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]+`)

// pageFilename derives a stable filename from a page label, e.g.
// "Project list" -> "project-list.json".
func pageFilename(label string) string {
	name := unsafeFilenameChars.ReplaceAllString(strings.ToLower(label), "-")
	return strings.Trim(name, "-") + ".json"
}

// WriteFiles writes one JSON file per scanned page plus index.html into dir,
// creating the directory if needed.
func (r *Report) WriteFiles(dir string) error {
	pages := r.Pages()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create reports directory %q", dir)
	}

	for _, page := range pages {
		data, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return errors.Wrapf(err, "could not marshal report for page %q", page.Label)
		}
		path := filepath.Join(dir, pageFilename(page.Label))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrapf(err, "could not write report for page %q", page.Label)
		}
	}

	return r.writeIndex(filepath.Join(dir, "index.html"), pages)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Accessibility report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: left; }
.clean { color: #006400; }
.dirty { color: #8b0000; }
</style>
</head>
<body>
<h1>Accessibility report</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}. {{len .Pages}} pages scanned, {{.Total}} violations.</p>
<table>
<tr><th>Page</th><th>URL</th><th>Violations</th><th>Detail</th></tr>
{{range .Pages}}
<tr>
<td>{{.Label}}</td>
<td>{{.URL}}</td>
<td class="{{if .Violations}}dirty{{else}}clean{{end}}">{{len .Violations}}</td>
<td><a href="{{.Filename}}">{{.Filename}}</a></td>
</tr>
{{end}}
</table>
</body>
</html>
`))

func (r *Report) writeIndex(path string, pages []PageResult) error {
	type indexRow struct {
		PageResult
		Filename string
	}

	rows := make([]indexRow, 0, len(pages))
	total := 0
	for _, p := range pages {
		rows = append(rows, indexRow{PageResult: p, Filename: pageFilename(p.Label)})
		total += len(p.Violations)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create report index")
	}
	defer func() { _ = f.Close() }()

	return errors.Wrap(indexTemplate.Execute(f, struct {
		GeneratedAt time.Time
		Pages       []indexRow
		Total       int
	}{
		GeneratedAt: r.now(),
		Pages:       rows,
		Total:       total,
	}), "could not render report index")
}

// impactColors orders impact levels from worst to least bad, with a color for each.
var impactColors = []struct {
	impact string
	color  *color.Color
}{
	{"critical", color.New(color.FgRed, color.Bold)},
	{"serious", color.New(color.FgRed)},
	{"moderate", color.New(color.FgYellow)},
	{"minor", color.New(color.FgCyan)},
}

// Summarize renders a human-readable per-page summary table to w.
func (r *Report) Summarize(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Page", "Critical", "Serious", "Moderate", "Minor", "Total"})

	for _, page := range r.Pages() {
		byImpact := map[string]int{}
		for _, v := range page.Violations {
			byImpact[v.Impact]++
		}
		tw.AppendRow(table.Row{
			page.Label,
			byImpact["critical"],
			byImpact["serious"],
			byImpact["moderate"],
			byImpact["minor"],
			len(page.Violations),
		})
	}
	tw.Render()

	for _, ic := range impactColors {
		if n := r.CountByImpact(ic.impact); n > 0 {
			_, _ = ic.color.Fprintf(w, "%d %s violations\n", n, ic.impact)
		}
	}
	if r.TotalViolations() == 0 {
		_, _ = color.New(color.FgGreen).Fprintln(w, "no accessibility violations found")
	} else {
		_, _ = fmt.Fprintf(w, "%d violations across %d pages\n", r.TotalViolations(), len(r.Pages()))
	}
}
