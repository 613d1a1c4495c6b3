package freetext

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// maxInputChars is the ceiling applied to text before it is sent to the
// model. Oversized input degrades by truncation, never by failure.
const maxInputChars = 15000

var whitespaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
var blankLineRunRe = regexp.MustCompile(`\n{3,}`)

// strippedTags are elements that never carry recipe content.
var strippedTags = []string{
	"script", "style", "nav", "header", "footer", "aside",
	"noscript", "iframe", "svg",
}

// reducer turns fetched HTML into compact markdown-ish text suitable for a
// prompt. Readability isolates the main article; when it cannot, the
// fallback strips non-content elements and converts what remains.
type reducer struct {
	converter *md.Converter
}

func newReducer() *reducer {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &reducer{converter: converter}
}

// Reduce converts an HTML document into plain prompt text, whitespace
// collapsed and truncated to maxInputChars.
func (r *reducer) Reduce(body []byte, pageURL string) string {
	content := r.mainContent(body, pageURL)

	markdown, err := r.converter.ConvertString(content)
	if err != nil {
		// Conversion failure still leaves usable text in the raw markup.
		markdown = content
	}

	return truncateAtBoundary(collapseWhitespace(markdown), maxInputChars)
}

func (r *reducer) mainContent(body []byte, pageURL string) string {
	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		return article.Content
	}
	return stripNonContent(body)
}

// stripNonContent removes non-content elements and renders the body.
func stripNonContent(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}

	removeElements(doc, strippedTags)

	if node := findElement(doc, "body"); node != nil {
		return renderNode(node)
	}
	return renderNode(doc)
}

func removeElements(n *html.Node, tags []string) {
	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[tag] = true
	}

	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && tagSet[node.Data] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func findElement(n *html.Node, tag string) *html.Node {
	var result *html.Node
	var find func(*html.Node)
	find = func(node *html.Node) {
		if result != nil {
			return
		}
		if node.Type == html.ElementNode && node.Data == tag {
			result = node
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(n)
	return result
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func collapseWhitespace(s string) string {
	s = whitespaceRunRe.ReplaceAllString(s, " ")
	s = blankLineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncateAtBoundary cuts s to at most limit characters, preferring a
// paragraph break and then a line break near the cut so a step is not
// chopped mid-sentence.
func truncateAtBoundary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := s[:limit]
	for _, sep := range []string{"\n\n", "\n"} {
		if idx := strings.LastIndex(cut, sep); idx > limit/2 {
			return strings.TrimSpace(cut[:idx])
		}
	}
	return strings.TrimSpace(cut)
}
