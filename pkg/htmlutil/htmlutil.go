package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node under node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText strips non-printable runes, trims the ends and collapses runs of
// whitespace into one space.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	return innerWhitespace.ReplaceAllString(s, " ")
}

// Text is the cleaned text content of the whole selection.
func Text(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
		buffer.WriteByte(' ')
	}
	return CleanText(buffer.String())
}

// HiddenInputs collects the name and value of every `<input type="hidden">`
// under sel. Inputs without a name are skipped.
func HiddenInputs(sel *goquery.Selection) map[string]string {
	out := map[string]string{}
	sel.Find("input").Each(func(_ int, input *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(input.AttrOr("type", "")), "hidden") {
			return
		}
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		out[name] = input.AttrOr("value", "")
	})
	return out
}

// DataAttributes returns every `data-*` attribute of the first node in sel
// keyed without the prefix.
func DataAttributes(sel *goquery.Selection) map[string]string {
	out := map[string]string{}
	if sel.Length() == 0 {
		return out
	}
	for _, attr := range sel.Nodes[0].Attr {
		key, ok := strings.CutPrefix(attr.Key, "data-")
		if !ok || key == "" {
			continue
		}
		out[key] = attr.Val
	}
	return out
}
