// Package normalize converts raw job posting HTML into canonical plain text,
// extracts requirement bullets, and computes content fingerprints. All
// functions are pure: malformed-but-present input degrades, it never errors.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jonathan/job-discovery/internal/types"
)

// hashSeparator joins fingerprint fields. A unit-separator control byte
// cannot appear in legitimate titles or company names, so empty fields can
// never collide with shifted content.
const hashSeparator = "\x1f"

var (
	blockTags = map[string]bool{
		"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
		"section": true, "article": true, "tr": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
	ignoreTags = map[string]bool{"script": true, "style": true, "noscript": true}

	whitespaceRE     = regexp.MustCompile(`\s+`)
	sectionHeadingRE = regexp.MustCompile(`(?i)\b(requirements?|qualifications?|responsibilit(y|ies)|what you.ll need|who you are)\b`)
)

// HTMLToText converts HTML into normalized plain text: markup stripped,
// intra-line whitespace collapsed, paragraph boundaries preserved as single
// newlines. Unparseable input yields whatever text could be recovered.
func HTMLToText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return strings.TrimSpace(rawHTML)
	}

	var b strings.Builder
	for _, node := range doc.Selection.Nodes {
		writeText(&b, node)
	}

	lines := make([]string, 0)
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.TrimSpace(whitespaceRE.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// writeText walks the node tree, emitting text content and inserting
// newlines around block-level elements.
func writeText(b *strings.Builder, node *html.Node) {
	if node.Type == html.ElementNode {
		if ignoreTags[node.Data] {
			return
		}
		if blockTags[node.Data] {
			b.WriteString("\n")
		}
	}
	if node.Type == html.TextNode {
		b.WriteString(node.Data)
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeText(b, child)
	}
	if node.Type == html.ElementNode && blockTags[node.Data] {
		b.WriteString("\n")
	}
}

// ExtractRequirements returns the bullet lines found under headings that name
// a requirements-like section (Requirements, Qualifications,
// Responsibilities). A section without list markup falls back to its text
// lines. No matching heading means no requirements: the result is an empty
// slice, never an error.
func ExtractRequirements(rawHTML string) []types.Requirement {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return []types.Requirement{}
	}
	doc.Find("script, style, noscript").Remove()

	requirements := make([]types.Requirement, 0)
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, heading *goquery.Selection) {
		if !sectionHeadingRE.MatchString(heading.Text()) {
			return
		}
		requirements = append(requirements, sectionRequirements(heading)...)
	})
	return requirements
}

// sectionRequirements collects bullets from the siblings following a matched
// heading, stopping at the next heading.
func sectionRequirements(heading *goquery.Selection) []types.Requirement {
	items := make([]types.Requirement, 0)

	for sibling := heading.Next(); sibling.Length() > 0; sibling = sibling.Next() {
		tag := goquery.NodeName(sibling)
		if strings.HasPrefix(tag, "h") && len(tag) == 2 {
			break
		}

		bullets := sibling.Find("li")
		if tag == "li" {
			bullets = sibling
		}
		if bullets.Length() > 0 {
			bullets.Each(func(_ int, li *goquery.Selection) {
				if text := collapse(li.Text()); text != "" {
					items = append(items, types.Requirement{Type: "bullet", Value: text})
				}
			})
			continue
		}

		// Prose-only section: keep non-empty lines as text entries.
		for _, line := range strings.Split(sibling.Text(), "\n") {
			if text := collapse(line); text != "" {
				items = append(items, types.Requirement{Type: "text", Value: text})
			}
		}
	}
	return items
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// ComputeHash returns the deterministic content fingerprint over title,
// company name and normalized JD text. Fields are lowercased and trimmed so
// cosmetic differences do not defeat content dedup.
func ComputeHash(title, companyName, jdText string) string {
	normalized := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(companyName)),
		strings.ToLower(strings.TrimSpace(jdText)),
	}, hashSeparator)

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
