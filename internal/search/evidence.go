package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/ppiankov/verity/internal/model"
)

// NoEvidenceMarker is embedded in the judgment prompt when retrieval
// succeeded but returned nothing usable
const NoEvidenceMarker = "No evidence available."

const (
	maxSnippetChars = 1500
	maxRawChars     = 4000
)

// Formatter renders a search response into the evidence block of a prompt
type Formatter struct {
	classifier *AuthorityClassifier
}

// NewFormatter creates a formatter; a nil classifier keeps search order
func NewFormatter(classifier *AuthorityClassifier) *Formatter {
	return &Formatter{classifier: classifier}
}

// Format renders resp. Results are authority-ranked when a classifier is set.
func (f *Formatter) Format(resp *Response) string {
	if resp == nil {
		return NoEvidenceMarker
	}

	results := resp.Results
	if f != nil && f.classifier != nil {
		results = f.classifier.Rank(results)
	}

	var b strings.Builder
	if resp.Answer != "" {
		b.WriteString("Summary answer: ")
		b.WriteString(Sanitize(resp.Answer, maxSnippetChars))
		b.WriteString("\n")
	}

	n := 0
	for _, r := range results {
		content := Sanitize(r.Content, maxSnippetChars)
		raw := Sanitize(r.RawContent, maxRawChars)
		if content == "" && raw == "" {
			continue
		}
		n++

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s", n, strings.TrimSpace(r.Title))
		if r.Authority != model.TierUnknown {
			fmt.Fprintf(&b, " (%s source)", r.Authority)
		}
		b.WriteString("\n")
		if r.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", r.URL)
		}
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}
		if raw != "" {
			b.WriteString("Full text: ")
			b.WriteString(raw)
			b.WriteString("\n")
		}
	}

	if b.Len() == 0 {
		return NoEvidenceMarker
	}
	return strings.TrimRight(b.String(), "\n")
}

// Sanitize strips markup, collapses whitespace and truncates to max runes
func Sanitize(text string, max int) string {
	if strings.ContainsAny(text, "<&") {
		text = visibleText(text)
	}
	text = strings.Join(strings.Fields(text), " ")

	if max > 0 && utf8.RuneCountInString(text) > max {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:max])) + "..."
	}
	return text
}

// visibleText extracts text nodes from an HTML fragment, skipping scripts and styles
func visibleText(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg":
				return
			}
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return buf.String()
}
