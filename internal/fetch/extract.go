package fetch

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rankriot/scanner/internal/canon"
	"github.com/rankriot/scanner/internal/model"
)

// extracted holds the SEO fields and discovered links pulled out of one
// HTML document, generalizing the teacher's internal/crawler/parser.go
// Parser.Parse into the richer §3 Page shape.
type extracted struct {
	Title             string
	H1, H2, H3        []string
	MetaDescription   string
	CanonicalURL      string
	HasRobotsNoindex  bool
	HasRobotsNofollow bool
	ImageCount        int
	JSCount           int
	CSSCount          int
	OpenGraph         model.OpenGraph
	TwitterCard       model.TwitterCard
	StructuredData    []model.StructuredData
	Links             []model.PageLink
}

func extractFromDocument(doc *goquery.Document, pageURL string) extracted {
	e := extracted{
		OpenGraph:   model.OpenGraph{},
		TwitterCard: model.TwitterCard{},
	}

	e.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta[name='description']").Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			e.MetaDescription = strings.TrimSpace(content)
		}
	})

	doc.Find("link[rel='canonical']").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			e.CanonicalURL = strings.TrimSpace(href)
		}
	})

	doc.Find("meta[name='robots']").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		lower := strings.ToLower(content)
		if strings.Contains(lower, "noindex") {
			e.HasRobotsNoindex = true
		}
		if strings.Contains(lower, "nofollow") {
			e.HasRobotsNofollow = true
		}
	})

	e.H1 = headingTexts(doc, "h1")
	e.H2 = headingTexts(doc, "h2")
	e.H3 = headingTexts(doc, "h3")

	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		if !strings.HasPrefix(prop, "og:") {
			return
		}
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		e.OpenGraph[strings.TrimPrefix(prop, "og:")] = content
	})

	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if !strings.HasPrefix(name, "twitter:") {
			return
		}
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		e.TwitterCard[strings.TrimPrefix(name, "twitter:")] = content
	})

	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		var block model.StructuredData
		if err := json.Unmarshal([]byte(s.Text()), &block); err != nil {
			return
		}
		e.StructuredData = append(e.StructuredData, block)
	})

	linkSeen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		dest, err := canon.Canonicalize(href, pageURL)
		if err != nil {
			return
		}
		if _, dup := linkSeen[dest]; dup {
			return
		}
		linkSeen[dest] = struct{}{}

		rel, _ := s.Attr("rel")
		linkType := model.LinkExternal
		if canon.SameSite(pageURL, dest) {
			linkType = model.LinkInternal
		}
		anchor := strings.TrimSpace(s.Text())

		e.Links = append(e.Links, model.PageLink{
			DestinationURL: dest,
			AnchorText:     anchor,
			LinkType:       linkType,
			IsFollowed:     !strings.Contains(strings.ToLower(rel), "nofollow"),
		})
	})

	e.ImageCount = countResourceLinks(doc, &e, pageURL, linkSeen, "img", "src")
	e.JSCount = countResourceLinks(doc, &e, pageURL, linkSeen, "script", "src")
	e.CSSCount = countStylesheetLinks(doc, &e, pageURL, linkSeen)

	return e
}

func headingTexts(doc *goquery.Document, tag string) []string {
	var out []string
	doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// countResourceLinks tallies selector[attr] elements, also appending each as
// a resource link (deduped against linkSeen, shared with anchor links).
func countResourceLinks(doc *goquery.Document, e *extracted, pageURL string, linkSeen map[string]struct{}, selector, attr string) int {
	count := 0
	doc.Find(selector + "[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
		count++
		src, ok := s.Attr(attr)
		if !ok {
			return
		}
		dest, err := canon.Canonicalize(src, pageURL)
		if err != nil {
			return
		}
		if _, dup := linkSeen[dest]; dup {
			return
		}
		linkSeen[dest] = struct{}{}
		e.Links = append(e.Links, model.PageLink{
			DestinationURL: dest,
			LinkType:       model.LinkResource,
			IsFollowed:     true,
		})
	})
	return count
}

func countStylesheetLinks(doc *goquery.Document, e *extracted, pageURL string, linkSeen map[string]struct{}) int {
	count := 0
	doc.Find("link[rel='stylesheet'][href]").Each(func(_ int, s *goquery.Selection) {
		count++
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		dest, err := canon.Canonicalize(href, pageURL)
		if err != nil {
			return
		}
		if _, dup := linkSeen[dest]; dup {
			return
		}
		linkSeen[dest] = struct{}{}
		e.Links = append(e.Links, model.PageLink{
			DestinationURL: dest,
			LinkType:       model.LinkResource,
			IsFollowed:     true,
		})
	})
	return count
}

func isHTMLContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
