package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"derp/pkg/catalog"
	"derp/pkg/logger"
)

func testExporter(t *testing.T) (*Exporter, *catalog.Catalog, string) {
	t.Helper()
	cat := catalog.New(catalog.OpenMemory(t), "20040101000000", "20111231235959", logger.NewTestLogger())
	dir := t.TempDir()
	return New(cat, dir, logger.NewTestLogger()), cat, dir
}

func seedCatalog(t *testing.T, cat *catalog.Catalog) {
	t.Helper()
	captures := []catalog.Capture{
		{
			OriginalURL: "http://myspace.com/cojumdip",
			Timestamp:   "20070615120000",
			ArchiveURL:  "https://web.archive.org/web/20070615120000/http://myspace.com/cojumdip",
		},
		{
			OriginalURL: "http://example.com/other",
			Timestamp:   "20090101000000",
			ArchiveURL:  "https://web.archive.org/web/20090101000000/http://example.com/other",
		},
	}
	for i := range captures {
		if _, err := cat.Insert(&captures[i], "cojum dip", "cdx"); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	pending, err := cat.ListPending(0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	first := pending[0]
	if err := cat.MarkFetched(first.ID, "abc123", "/tmp/abc123.html"); err != nil {
		t.Fatalf("MarkFetched: %v", err)
	}
	if err := cat.MarkAnalyzed(first.ID, true, "phrases: cojum dip"); err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}
	if err := cat.AddMediaCandidates(first.ID, []catalog.MediaCandidate{
		{CaptureID: first.ID, URL: "http://example.com/song.mp3", Kind: "audio"},
	}); err != nil {
		t.Fatalf("AddMediaCandidates: %v", err)
	}
}

func TestExportJSON(t *testing.T) {
	e, cat, dir := testExporter(t)
	seedCatalog(t, cat)

	paths, err := e.Export(FormatJSON)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "captures.json" {
		t.Fatalf("unexpected paths %v", paths)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "captures.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var dump struct {
		Stats struct {
			TotalCaptures int `json:"TotalCaptures"`
		} `json:"stats"`
		Captures []struct {
			OriginalURL string `json:"original_url"`
			Timestamp   string `json:"timestamp"`
			Relevant    bool   `json:"relevant"`
		} `json:"captures"`
		Media []json.RawMessage `json:"media_candidates"`
	}
	if err := json.Unmarshal(raw, &dump); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if dump.Stats.TotalCaptures != 2 {
		t.Errorf("stats total = %d, want 2", dump.Stats.TotalCaptures)
	}
	if len(dump.Captures) != 2 {
		t.Fatalf("captures = %d, want 2", len(dump.Captures))
	}
	if len(dump.Media) != 1 {
		t.Errorf("media = %d, want 1", len(dump.Media))
	}
	relevant := 0
	for _, c := range dump.Captures {
		if c.Relevant {
			relevant++
		}
	}
	if relevant != 1 {
		t.Errorf("relevant captures = %d, want 1", relevant)
	}
}

func TestExportCSV(t *testing.T) {
	e, cat, dir := testExporter(t)
	seedCatalog(t, cat)

	paths, err := e.Export(FormatCSV)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 files, got %v", paths)
	}

	f, err := os.Open(filepath.Join(dir, "captures.csv"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("captures.csv rows = %d, want header + 2", len(rows))
	}
	if rows[0][1] != "original_url" {
		t.Errorf("unexpected header %v", rows[0])
	}

	mf, err := os.Open(filepath.Join(dir, "media.csv"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mf.Close()
	mrows, err := csv.NewReader(mf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(mrows) != 2 {
		t.Fatalf("media.csv rows = %d, want header + 1", len(mrows))
	}
	if mrows[1][2] != "audio" {
		t.Errorf("media kind = %q, want audio", mrows[1][2])
	}
}

func TestExportHTML(t *testing.T) {
	e, cat, dir := testExporter(t)
	seedCatalog(t, cat)

	if _, err := e.Export(FormatHTML); err != nil {
		t.Fatalf("Export: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "report.html"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	report := string(raw)
	for _, want := range []string{
		"Discovery Report",
		"http://myspace.com/cojumdip",
		"2007",
		"cdx",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(report, "http://example.com/other") {
		t.Error("report lists a capture that was never marked relevant")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	e, _, _ := testExporter(t)

	if _, err := e.Export("yaml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestExportEmptyCatalog(t *testing.T) {
	e, _, _ := testExporter(t)

	for _, format := range Formats() {
		if _, err := e.Export(format); err != nil {
			t.Errorf("Export(%s) on empty catalog: %v", format, err)
		}
	}
}
