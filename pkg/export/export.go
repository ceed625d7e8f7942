// Package export writes catalog contents to disk as JSON, CSV, or a
// small HTML report.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"derp/pkg/catalog"
	"derp/pkg/errors"
	"derp/pkg/logger"
)

// Supported export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatHTML = "html"
)

// Formats lists the supported formats in display order
func Formats() []string {
	return []string{FormatJSON, FormatCSV, FormatHTML}
}

// Exporter renders catalog snapshots into files under the output
// directory.
type Exporter struct {
	catalog   *catalog.Catalog
	outputDir string
	logger    logger.Logger
}

// New creates an exporter writing into outputDir
func New(cat *catalog.Catalog, outputDir string, log logger.Logger) *Exporter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Exporter{catalog: cat, outputDir: outputDir, logger: log}
}

// Export writes the catalog in the given format and returns the paths
// of the files it created.
func (e *Exporter) Export(format string) ([]string, error) {
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("export: create output dir: %w", err)
	}
	switch format {
	case FormatJSON:
		return e.writeJSON()
	case FormatCSV:
		return e.writeCSV()
	case FormatHTML:
		return e.writeHTML()
	default:
		return nil, errors.New(errors.ErrorTypeConfiguration,
			fmt.Sprintf("unknown export format %q", format))
	}
}

type jsonDump struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Stats       catalog.Stats            `json:"stats"`
	Captures    []jsonCapture            `json:"captures"`
	Media       []catalog.MediaCandidate `json:"media_candidates"`
}

type jsonCapture struct {
	ID          int64  `json:"id"`
	OriginalURL string `json:"original_url"`
	Timestamp   string `json:"timestamp"`
	ArchiveURL  string `json:"archive_url"`
	Fetched     bool   `json:"fetched"`
	ContentHash string `json:"content_hash,omitempty"`
	FetchError  string `json:"fetch_error,omitempty"`
	Analyzed    bool   `json:"analyzed"`
	Relevant    bool   `json:"relevant"`
	Notes       string `json:"notes,omitempty"`
}

func (e *Exporter) writeJSON() ([]string, error) {
	captures, media, stats, err := e.snapshot()
	if err != nil {
		return nil, err
	}

	dump := jsonDump{
		GeneratedAt: time.Now().UTC(),
		Stats:       stats,
		Media:       media,
	}
	for _, capt := range captures {
		dump.Captures = append(dump.Captures, jsonCapture{
			ID:          capt.ID,
			OriginalURL: capt.OriginalURL,
			Timestamp:   capt.Timestamp,
			ArchiveURL:  capt.ArchiveURL,
			Fetched:     capt.Fetched,
			ContentHash: capt.ContentHash,
			FetchError:  capt.FetchError,
			Analyzed:    capt.Analyzed,
			Relevant:    capt.Relevant,
			Notes:       capt.Notes,
		})
	}

	path := filepath.Join(e.outputDir, "captures.json")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return nil, fmt.Errorf("export: encode json: %w", err)
	}
	e.logger.InfoWithFields("wrote json export", map[string]interface{}{
		"path":     path,
		"captures": len(captures),
	})
	return []string{path}, nil
}

func (e *Exporter) writeCSV() ([]string, error) {
	captures, media, _, err := e.snapshot()
	if err != nil {
		return nil, err
	}

	capturesPath := filepath.Join(e.outputDir, "captures.csv")
	if err := writeCSVFile(capturesPath,
		[]string{"id", "original_url", "timestamp", "archive_url", "fetched", "relevant", "content_hash", "fetch_error", "notes"},
		len(captures), func(i int) []string {
			c := captures[i]
			return []string{
				strconv.FormatInt(c.ID, 10),
				c.OriginalURL,
				c.Timestamp,
				c.ArchiveURL,
				strconv.FormatBool(c.Fetched),
				strconv.FormatBool(c.Relevant),
				c.ContentHash,
				c.FetchError,
				c.Notes,
			}
		}); err != nil {
		return nil, err
	}

	mediaPath := filepath.Join(e.outputDir, "media.csv")
	if err := writeCSVFile(mediaPath,
		[]string{"capture_id", "url", "kind"},
		len(media), func(i int) []string {
			m := media[i]
			return []string{strconv.FormatInt(m.CaptureID, 10), m.URL, m.Kind}
		}); err != nil {
		return nil, err
	}

	e.logger.InfoWithFields("wrote csv export", map[string]interface{}{
		"captures": len(captures),
		"media":    len(media),
	})
	return []string{capturesPath, mediaPath}, nil
}

func writeCSVFile(path string, header []string, rows int, row func(i int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for i := 0; i < rows; i++ {
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Discovery Report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: left; }
th { background: #eee; }
.err { color: #a00; }
</style>
</head>
<body>
<h1>Discovery Report</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>

<h2>Totals</h2>
<table>
<tr><th>Captures</th><td>{{.Stats.TotalCaptures}}</td></tr>
<tr><th>Fetched</th><td>{{.Stats.Fetched}}</td></tr>
<tr><th>Analyzed</th><td>{{.Stats.Analyzed}}</td></tr>
<tr><th>Relevant</th><td>{{.Stats.Relevant}}</td></tr>
<tr><th>Fetch errors</th><td>{{.Stats.FetchErrors}}</td></tr>
<tr><th>Media candidates</th><td>{{.Stats.MediaCandidates}}</td></tr>
</table>

<h2>Captures by year</h2>
<table>
<tr><th>Year</th><th>Captures</th></tr>
{{range .Years}}<tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
{{end}}</table>

<h2>Captures by method</h2>
<table>
<tr><th>Method</th><th>Captures</th></tr>
{{range .Methods}}<tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
{{end}}</table>

<h2>Relevant captures</h2>
<table>
<tr><th>Timestamp</th><th>URL</th><th>Notes</th></tr>
{{range .Relevant}}<tr>
<td>{{.Timestamp}}</td>
<td><a href="{{.ArchiveURL}}">{{.OriginalURL}}</a></td>
<td>{{.Notes}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

type countRow struct {
	Key   string
	Count int
}

type reportData struct {
	GeneratedAt time.Time
	Stats       catalog.Stats
	Years       []countRow
	Methods     []countRow
	Relevant    []catalog.Capture
}

func (e *Exporter) writeHTML() ([]string, error) {
	_, _, stats, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	relevant, err := e.catalog.ListCaptures(true)
	if err != nil {
		return nil, err
	}

	data := reportData{
		GeneratedAt: time.Now().UTC(),
		Stats:       stats,
		Years:       sortedCounts(stats.ByYear),
		Methods:     sortedCounts(stats.ByMethod),
		Relevant:    relevant,
	}

	path := filepath.Join(e.outputDir, "report.html")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, data); err != nil {
		return nil, fmt.Errorf("export: render report: %w", err)
	}
	e.logger.InfoWithFields("wrote html report", map[string]interface{}{
		"path":     path,
		"relevant": len(relevant),
	})
	return []string{path}, nil
}

func (e *Exporter) snapshot() ([]catalog.Capture, []catalog.MediaCandidate, catalog.Stats, error) {
	captures, err := e.catalog.ListCaptures(false)
	if err != nil {
		return nil, nil, catalog.Stats{}, err
	}
	media, err := e.catalog.ListMediaCandidates()
	if err != nil {
		return nil, nil, catalog.Stats{}, err
	}
	stats, err := e.catalog.Stats()
	if err != nil {
		return nil, nil, catalog.Stats{}, err
	}
	return captures, media, *stats, nil
}

func sortedCounts(m map[string]int) []countRow {
	rows := make([]countRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, countRow{Key: k, Count: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}
