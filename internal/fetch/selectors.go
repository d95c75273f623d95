package fetch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors maps a site's article URLs to the CSS selectors of its text and
// quoted persons.
type Selectors struct {
	Pattern *regexp.Regexp
	Article string
	Persons string
}

// DefaultSelectors covers the sites fetched over plain HTTP.
var DefaultSelectors = []Selectors{
	{
		Pattern: regexp.MustCompile(`^https?://yle\.fi/.*$`),
		Article: ".yle__article__heading--h1, .yle__article__paragraph",
		Persons: ".yle__article__quote__source, .yle__article__strong:not(:first-child:last-child)",
	},
	{
		Pattern: regexp.MustCompile(`^https://www\.is\.fi/.*$`),
		Article: ".article-title-40, .article-ingress-20, p.article-body",
		Persons: ".article-personlink",
	},
	{
		Pattern: regexp.MustCompile(`^https://iltalehti\.fi/.*$`),
		Article: ".article-headline, .article-description, .article-body .paragraph",
		Persons: "p.paragraph strong",
	},
}

func match(selectors []Selectors, url string) (Selectors, bool) {
	for _, s := range selectors {
		if s.Pattern.MatchString(url) {
			return s, true
		}
	}
	return Selectors{}, false
}

// Extract collects the article text, one matched element per line, and the
// person mentions.
func (s Selectors) Extract(doc *goquery.Document) *Result {
	var b strings.Builder
	doc.Find(s.Article).Each(func(_ int, el *goquery.Selection) {
		b.WriteString(el.Text())
		b.WriteString("\n")
	})

	persons := []string{}
	if s.Persons != "" {
		doc.Find(s.Persons).Each(func(_ int, el *goquery.Selection) {
			persons = append(persons, el.Text())
		})
	}
	return &Result{Content: b.String(), Persons: persons}
}
