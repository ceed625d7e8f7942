package extract

import (
	"testing"

	"derp/pkg/logger"
)

var testPhrases = []string{"Cojum Dip", "Turk Off", "Bora Karaca"}

func TestAnalyzeCountsPhrases(t *testing.T) {
	page := []byte(`<html><head>
		<script>var cojumdip = "Cojum Dip in script must not count";</script>
		<style>.cojum { color: red } /* Cojum Dip */</style>
	</head><body>
		<h1>COJUM DIP</h1>
		<p>The band Cojum Dip released Turk Off in 2007.</p>
	</body></html>`)

	a := NewAnalyzer(testPhrases, logger.NewTestLogger())
	got := a.Analyze(page)

	if got.PhraseCounts["Cojum Dip"] != 2 {
		t.Errorf("Cojum Dip count = %d, want 2 (case-insensitive, script/style excluded)",
			got.PhraseCounts["Cojum Dip"])
	}
	if got.PhraseCounts["Turk Off"] != 1 {
		t.Errorf("Turk Off count = %d, want 1", got.PhraseCounts["Turk Off"])
	}
	if _, found := got.PhraseCounts["Bora Karaca"]; found {
		t.Error("Bora Karaca reported but absent from page")
	}
	if len(got.PhrasesFound) != 2 {
		t.Errorf("phrases found = %v", got.PhrasesFound)
	}
	if !got.Relevant() {
		t.Error("page with phrase matches must be relevant")
	}
}

func TestAnalyzeExtractsMedia(t *testing.T) {
	page := []byte(`<html><body>
		<img src="/photos/band.jpg" alt="the band">
		<img src="http://tracker.example.com/1x1.gif">
		<img src="data:image/png;base64,AAAA">
		<audio src="/music/turkoff.mp3"></audio>
		<video src="/videos/live.mp4"></video>
		<source src="/music/demo.ogg" type="audio/ogg">
		<source src="/videos/clip.webm" type="video/webm">
		<embed src="/player.swf?file=song.mp3">
		<a href="/downloads/turk-off.mp3">download the song</a>
		<a href="/about.html">about</a>
	</body></html>`)

	a := NewAnalyzer(testPhrases, logger.NewTestLogger())
	got := a.Analyze(page)

	byURL := make(map[string]string)
	for _, m := range got.Media {
		byURL[m.URL] = m.Kind
	}

	want := map[string]string{
		"/photos/band.jpg":           "image",
		"/music/turkoff.mp3":         "audio",
		"/videos/live.mp4":           "video",
		"/music/demo.ogg":            "audio",
		"/videos/clip.webm":          "video",
		"/player.swf?file=song.mp3":  "embed",
		"/downloads/turk-off.mp3":    "audio",
	}
	for url, kind := range want {
		if byURL[url] != kind {
			t.Errorf("media %q: kind = %q, want %q", url, byURL[url], kind)
		}
	}
	if len(got.Media) != len(want) {
		t.Errorf("media count = %d, want %d: %v", len(got.Media), len(want), got.Media)
	}

	for _, m := range got.Media {
		if m.URL == "/photos/band.jpg" && m.Alt != "the band" {
			t.Errorf("alt text = %q", m.Alt)
		}
	}
}

func TestAnalyzeIrrelevantPage(t *testing.T) {
	a := NewAnalyzer(testPhrases, logger.NewTestLogger())
	got := a.Analyze([]byte(`<html><body><p>nothing of interest here</p></body></html>`))

	if got.Relevant() {
		t.Error("empty match must not be relevant")
	}
	if got.Summary() != "no phrase or media matches" {
		t.Errorf("summary = %q", got.Summary())
	}
}

func TestAnalyzeBrokenMarkup(t *testing.T) {
	// The html package repairs broken markup; analysis still works.
	a := NewAnalyzer(testPhrases, logger.NewTestLogger())
	got := a.Analyze([]byte(`<html><body><p>Cojum Dip <div><b>unclosed`))

	if got.PhraseCounts["Cojum Dip"] != 1 {
		t.Errorf("count = %d, want 1", got.PhraseCounts["Cojum Dip"])
	}
}

func TestKindByExtension(t *testing.T) {
	cases := []struct {
		url  string
		kind string
		ok   bool
	}{
		{"/a/song.mp3", "audio", true},
		{"/a/SONG.MP3", "audio", true},
		{"/a/clip.webm?dl=1", "video", true},
		{"/a/page.html", "", false},
		{"/a/noext", "", false},
	}
	for _, tc := range cases {
		kind, ok := kindByExtension(tc.url)
		if kind != tc.kind || ok != tc.ok {
			t.Errorf("kindByExtension(%q) = %q,%v want %q,%v", tc.url, kind, ok, tc.kind, tc.ok)
		}
	}
}
