package parser

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/region-maps/models"
	"golang.org/x/net/html"
)

const (
	ListingSuffix = ".html"
	ExtractSuffix = ".pbf"
)

type Parser struct{}

// ParseListing extracts child regions from the subregion table of a listing page.
// Links are resolved against pageURL. Rows without a child listing link are skipped;
// the source link is optional. Directory and Depth are left for the caller.
func (p *Parser) ParseListing(doc *goquery.Document, pageURL string) ([]models.Region, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing URL %q: %w", pageURL, err)
	}

	var regions []models.Region
	doc.Find("table#subregions tr").Each(func(i int, row *goquery.Selection) {
		nameLink := firstLinkWithSuffix(row.Find("td.subregion > a"), ListingSuffix)
		if nameLink == nil {
			return
		}
		name := models.CleanRegionName(lastText(nameLink))
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
			return
		}

		href, _ := nameLink.Attr("href")
		listingURL, err := resolve(base, href)
		if err != nil {
			return
		}

		region := models.Region{Name: name, ListingURL: listingURL}
		if src := firstLinkWithSuffix(row.Find("td > a"), ExtractSuffix); src != nil {
			srcHref, _ := src.Attr("href")
			if sourceURL, err := resolve(base, srcHref); err == nil {
				region.SourceURL = sourceURL
			}
		}
		regions = append(regions, region)
	})

	return regions, nil
}

func firstLinkWithSuffix(links *goquery.Selection, suffix string) *goquery.Selection {
	var found *goquery.Selection
	links.EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if ok && strings.HasSuffix(strings.TrimSpace(href), suffix) {
			found = a
			return false
		}
		return true
	})
	return found
}

func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// lastText returns the last non-blank text node under the selection, in document order.
// Listing labels sometimes wrap a qualifier after the visible name.
func lastText(s *goquery.Selection) string {
	var last string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				last = t
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return last
}
