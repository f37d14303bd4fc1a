package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// NotFoundText is the observed content when a selector matches nothing.
// It is diffed like any other content.
const NotFoundText = "<Element not found>"

// Result is the outcome of one extraction
type Result struct {
	Text  string
	Found bool
}

// String renders the result as observed content.
func (r Result) String() string {
	if !r.Found {
		return NotFoundText
	}
	return r.Text
}

// Extractor finds the first element matching a Selector and returns its text.
type Extractor struct {
	logger zerolog.Logger
}

// New creates an Extractor that reports selector and parse problems to logger.
func New(logger zerolog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With().Str("component", "extractor").Logger(),
	}
}

// Extract returns the normalized text of the first element matched by sel.
func (e *Extractor) Extract(markup string, sel Selector) Result {
	if sel.Kind() == Invalid {
		e.logger.Error().
			Err(sel.Err()).
			Str("selector", sel.String()).
			Msg("Selector cannot match, treating as not found")
		return Result{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to parse HTML")
		return Result{}
	}

	switch sel.Kind() {
	case RegexOverClass:
		for _, root := range doc.Nodes {
			if n := firstClassMatch(root, sel); n != nil {
				return Result{Text: strings.TrimSpace(textContent(n)), Found: true}
			}
		}
		return Result{}
	default:
		match := doc.FindMatcher(sel.css).First()
		if match.Length() == 0 {
			return Result{}
		}
		return Result{Text: strings.TrimSpace(match.Text()), Found: true}
	}
}

// firstClassMatch walks the tree in document order and returns the first
// element whose class list, joined by single spaces, matches the pattern.
func firstClassMatch(n *html.Node, sel Selector) *html.Node {
	if n.Type == html.ElementNode {
		if classes, ok := classAttr(n); ok && sel.pattern.MatchString(classes) {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstClassMatch(c, sel); found != nil {
			return found
		}
	}
	return nil
}

func classAttr(n *html.Node) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			return strings.Join(strings.Fields(a.Val), " "), true
		}
	}
	return "", false
}

// textContent concatenates all descendant text nodes.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
