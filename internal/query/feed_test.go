package query

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Uutiset</title>
<item><title>Hallitus esittelee budjetin</title><link>https://yle.fi/a/1</link>
  <description>&lt;p&gt;Budjetti &lt;b&gt;julki&lt;/b&gt;&lt;/p&gt;</description>
  <pubDate>Tue, 05 Mar 2024 10:00:00 +0000</pubDate></item>
<item><title>Urheilua</title><link>https://yle.fi/a/2</link>
  <description>Jääkiekko</description>
  <pubDate>Tue, 05 Mar 2024 11:00:00 +0000</pubDate></item>
<item><title>Vanha budjettiuutinen</title><link>https://yle.fi/a/3</link>
  <pubDate>Mon, 01 Jan 2024 11:00:00 +0000</pubDate></item>
</channel></rss>`

func TestFeedFiltersWindowAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	f := NewFeed(srv.URL, "Yle Uutiset")
	assert.Equal(t, "rss:yle_uutiset", f.Name())

	p := NewPaginator(resty.New())
	rows, err := p.Scrape(context.Background(), f, Params{
		Query: "budjet",
		From:  day("2024-03-01"),
		To:    day("2024-03-29"),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://yle.fi/a/1", rows[0].URL)
	assert.Equal(t, "Budjetti julki", rows[0].Lead)
	assert.Equal(t, "2024-03-05T10:00:00Z", rows[0].DateModified)
}

func TestExtractSourceName(t *testing.T) {
	assert.Equal(t, "Hs", extractSourceName("https://www.hs.fi/rss/tuoreimmat.xml"))
	assert.Equal(t, "Yle", extractSourceName("https://feeds.yle.fi/uutiset"))
}
