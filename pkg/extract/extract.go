// Package extract analyzes fetched page bodies: it counts phrase
// occurrences in the visible text and pulls out candidate media links.
// The fetcher consumes it through small interfaces, so alternative
// analyzers can be swapped in.
package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"derp/pkg/logger"
)

// Media is one candidate media resource found in a page
type Media struct {
	URL  string
	Kind string // image, video, audio, embed
	Alt  string
}

// Analysis is the outcome of analyzing one page body
type Analysis struct {
	PhrasesFound []string
	PhraseCounts map[string]int
	TextLength   int
	Media        []Media
}

// Relevant reports whether the page is worth keeping: it mentions a
// phrase or contains media.
func (a Analysis) Relevant() bool {
	return len(a.PhrasesFound) > 0 || len(a.Media) > 0
}

// Summary renders a short human-readable verdict for catalog notes
func (a Analysis) Summary() string {
	var parts []string
	if len(a.PhrasesFound) > 0 {
		parts = append(parts, "phrases: "+strings.Join(a.PhrasesFound, ", "))
	}
	if len(a.Media) > 0 {
		parts = append(parts, "media links found")
	}
	if len(parts) == 0 {
		return "no phrase or media matches"
	}
	return strings.Join(parts, "; ")
}

// Analyzer scans page text for the configured phrases and collects
// media references.
type Analyzer struct {
	phrases []string
	logger  logger.Logger
}

// NewAnalyzer creates an analyzer for the given phrase list
func NewAnalyzer(phrases []string, log logger.Logger) *Analyzer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Analyzer{phrases: phrases, logger: log}
}

// Analyze parses the page and runs both the phrase scan and media
// extraction. A page that fails to parse yields an empty analysis
// rather than an error: archived pages of this era are full of broken
// markup and the html parser is lenient by design.
func (a *Analyzer) Analyze(page []byte) Analysis {
	analysis := Analysis{PhraseCounts: make(map[string]int)}

	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		a.logger.WarnWithFields("page did not parse", map[string]interface{}{
			"error": err.Error(),
		})
		return analysis
	}

	text := strings.ToLower(visibleText(doc))
	analysis.TextLength = len(text)

	for _, phrase := range a.phrases {
		if n := strings.Count(text, strings.ToLower(phrase)); n > 0 {
			analysis.PhrasesFound = append(analysis.PhrasesFound, phrase)
			analysis.PhraseCounts[phrase] = n
		}
	}

	analysis.Media = extractMedia(doc)
	return analysis
}

// visibleText collects the text of the document, skipping script and
// style subtrees.
func visibleText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}

var mediaExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp",
	".mp4", ".avi", ".flv", ".wmv", ".mov", ".webm",
	".mp3", ".wav", ".ogg", ".flac", ".m4a", ".wma",
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".flac": true, ".m4a": true, ".wma": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".flv": true, ".wmv": true, ".mov": true, ".webm": true,
}

func extractMedia(doc *html.Node) []Media {
	var media []Media
	add := func(url, kind, alt string) {
		if validMediaURL(url) {
			media = append(media, Media{URL: url, Kind: kind, Alt: alt})
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				add(attrVal(n, "src"), "image", attrVal(n, "alt"))
			case "video":
				add(attrVal(n, "src"), "video", "")
			case "audio":
				add(attrVal(n, "src"), "audio", "")
			case "source":
				kind := "audio"
				if strings.Contains(attrVal(n, "type"), "video") {
					kind = "video"
				}
				add(attrVal(n, "src"), kind, "")
			case "embed":
				add(attrVal(n, "src"), "embed", "")
			case "object":
				add(attrVal(n, "data"), "embed", "")
			case "a":
				if href := attrVal(n, "href"); href != "" {
					if kind, ok := kindByExtension(href); ok {
						add(href, kind, "")
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return media
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// validMediaURL filters out data URLs, tracking pixels, and anything
// without a recognizable media extension.
func validMediaURL(url string) bool {
	if url == "" || strings.HasPrefix(url, "data:") {
		return false
	}

	lower := strings.ToLower(url)
	if strings.Contains(lower, "1x1") || strings.Contains(lower, "pixel") {
		return false
	}

	for _, ext := range mediaExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// kindByExtension classifies a link by the media extension in its
// path, if any.
func kindByExtension(url string) (string, bool) {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	if i := strings.LastIndex(lower, "."); i >= 0 {
		ext := lower[i:]
		switch {
		case audioExtensions[ext]:
			return "audio", true
		case videoExtensions[ext]:
			return "video", true
		}
	}
	return "", false
}
