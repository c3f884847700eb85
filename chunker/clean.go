package chunker

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	jsonDebris = regexp.MustCompile(`['"{}:]+`)
	cvePattern = regexp.MustCompile(`\b(CVE-\d+-\d+)`)
)

// CleanHTML returns the visible text of raw, one text node per line
// before whitespace is collapsed. Quotes, braces and colons left over from
// embedded JSON are removed.
func CleanHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, iframe").Remove()

	var parts []string
	for _, n := range doc.Find("body").Nodes {
		collectText(n, &parts)
	}

	text := strings.Join(parts, "\n")
	text = jsonDebris.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// MarkCVEs prefixes every CVE identifier with VULNERABILITY_.
func MarkCVEs(text string) string {
	return cvePattern.ReplaceAllString(text, "VULNERABILITY_$1")
}
