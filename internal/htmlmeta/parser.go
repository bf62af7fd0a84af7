package htmlmeta

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Metadata contains the information extracted from one page.
type Metadata struct {
	// Title is the text of the <title> tag.
	Title string `json:"title,omitempty"`

	// Description is the meta description, or og:description when absent.
	Description string `json:"description,omitempty"`

	// OGTitle is the OpenGraph title.
	OGTitle string `json:"og_title,omitempty"`

	// OGImage is the OpenGraph image, resolved against the page URL.
	OGImage string `json:"og_image,omitempty"`

	// Canonical is the rel=canonical URL, resolved against the page URL.
	Canonical string `json:"canonical,omitempty"`

	// ProfileLinks are rel=me anchors and JSON-LD sameAs entries.
	ProfileLinks []string `json:"profile_links,omitempty"`

	// Emails are addresses found in the page text and mailto links.
	Emails []string `json:"emails,omitempty"`
}

// Parser extracts Metadata from HTML content.
type Parser struct {
	// baseURL resolves relative URLs.
	baseURL *url.URL
}

// NewParser creates a parser for a page fetched from baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content. Malformed markup is tolerated.
func (p *Parser) Parse(content io.Reader) (*Metadata, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{}
	tags := make(map[string]string)
	var text strings.Builder
	links := newStringSet()
	emails := newStringSet()

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "title":
				if meta.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name := getAttr(n, "name")
				if name == "" {
					name = getAttr(n, "property")
				}
				if content := strings.TrimSpace(getAttr(n, "content")); name != "" && content != "" {
					if _, ok := tags[strings.ToLower(name)]; !ok {
						tags[strings.ToLower(name)] = content
					}
				}
			case "link":
				if hasRel(n, "canonical") && meta.Canonical == "" {
					meta.Canonical = p.resolveURL(getAttr(n, "href"))
				}
				if hasRel(n, "me") {
					links.add(p.resolveURL(getAttr(n, "href")))
				}
			case "a":
				href := strings.TrimSpace(getAttr(n, "href"))
				if addr, ok := strings.CutPrefix(href, "mailto:"); ok {
					addr, _, _ = strings.Cut(addr, "?")
					emails.add(strings.ToLower(addr))
				} else if hasRel(n, "me") {
					links.add(p.resolveURL(href))
				}
			case "script":
				if strings.EqualFold(getAttr(n, "type"), "application/ld+json") && n.FirstChild != nil {
					for _, s := range sameAs([]byte(n.FirstChild.Data)) {
						links.add(p.resolveURL(s))
					}
					return
				}
			}
		case html.TextNode:
			text.WriteString(n.Data)
			text.WriteString(" ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	meta.OGTitle = tags["og:title"]
	meta.Description = tags["description"]
	if meta.Description == "" {
		meta.Description = tags["og:description"]
	}
	if img := tags["og:image"]; img != "" {
		meta.OGImage = p.resolveURL(img)
	}
	for _, e := range emailRegex.FindAllString(text.String(), -1) {
		emails.add(strings.ToLower(e))
	}
	meta.ProfileLinks = links.values()
	meta.Emails = emails.values()
	return meta, nil
}

// ParseBytes parses body fetched from pageURL. It returns an empty Metadata
// when the body cannot be parsed.
func ParseBytes(pageURL string, body []byte) *Metadata {
	p, err := NewParser(pageURL)
	if err != nil {
		return &Metadata{}
	}
	meta, err := p.Parse(bytes.NewReader(body))
	if err != nil {
		return &Metadata{}
	}
	return meta
}

// sameAs collects JSON-LD sameAs entries from an object or a list of objects.
func sameAs(data []byte) []string {
	var v any
	if err := json.Unmarshal(bytes.TrimSpace(data), &v); err != nil {
		return nil
	}
	var out []string
	var visit func(any)
	visit = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				visit(item)
			}
		case map[string]any:
			switch s := t["sameAs"].(type) {
			case string:
				out = append(out, s)
			case []any:
				for _, item := range s {
					if str, ok := item.(string); ok {
						out = append(out, str)
					}
				}
			}
			if graph, ok := t["@graph"]; ok {
				visit(graph)
			}
		}
	}
	visit(v)
	return out
}

// resolveURL resolves a relative URL against the base URL.
// Script, data and fragment-only links resolve to "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "data:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(u).String()
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasRel(n *html.Node, rel string) bool {
	for _, r := range strings.Fields(getAttr(n, "rel")) {
		if strings.EqualFold(r, rel) {
			return true
		}
	}
	return false
}

// stringSet keeps insertion order and drops empty and duplicate values.
type stringSet struct {
	seen  map[string]bool
	order []string
}

func newStringSet() *stringSet {
	return &stringSet{seen: make(map[string]bool)}
}

func (s *stringSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.order = append(s.order, v)
}

func (s *stringSet) values() []string {
	return s.order
}
