package sources

import (
	"strings"

	"golang.org/x/net/html"
)

const maxSnippetRunes = 500

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "iframe": true,
}

// PlainText flattens an HTML fragment into whitespace-normalized text of at
// most maxRunes runes. Input that is not HTML passes through unchanged.
func PlainText(fragment string, maxRunes int) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type: html.ElementNode,
		Data: "body",
	})
	var text string
	if err != nil {
		text = fragment
	} else {
		var sb strings.Builder
		for _, n := range nodes {
			collectText(n, &sb)
		}
		text = sb.String()
	}
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes > 0 {
		runes := []rune(text)
		if len(runes) > maxRunes {
			text = strings.TrimSpace(string(runes[:maxRunes])) + "…"
		}
	}
	return text
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skipTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
