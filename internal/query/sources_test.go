package query

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPage(offset, limit int) Page {
	return Page{
		Params: Params{Query: "sote uudistus"},
		Window: Window{From: day("2024-03-04"), To: day("2024-03-11")},
		Offset: offset,
		Limit:  limit,
	}
}

func TestYleRequestAndParse(t *testing.T) {
	y := Yle{Endpoint: "https://yle.example/v1/search", AppID: "app", AppKey: "key"}
	req, err := y.BuildRequest(testPage(200, 100))
	require.NoError(t, err)
	assert.Equal(t, "https://yle.example/v1/search", req.URL)
	assert.Equal(t, "2024-03-04", req.Query.Get("timeFrom"))
	assert.Equal(t, "2024-03-11", req.Query.Get("timeTo"))
	assert.Equal(t, "200", req.Query.Get("offset"))
	assert.Equal(t, "sote uudistus", req.Query.Get("query"))

	body := `{"meta":{"count":12000},"data":[
		{"id":"3-123","url":{"full":"https://yle.fi/a/3-123"},"headline":"Otsikko","datePublished":"2024-03-05T10:00:00+0200","lead":"Ingressi"}
	]}`
	rows, err := y.ParsePage(testPage(0, 100), []byte(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Result{
		ID:           "3-123",
		URL:          "https://yle.fi/a/3-123",
		Title:        "Otsikko",
		DateModified: "2024-03-05T10:00:00+0200",
		Lead:         "Ingressi",
	}, rows[0])
}

func TestILParseUsesUpdatedOrPublished(t *testing.T) {
	body := `{"response":[
		{"article_id":"a1","title":"T1","updated_at":"2024-03-05","published_at":"2024-03-04","lead":"L1","category":{"category_name":"politiikka"}},
		{"article_id":"a2","title":"T2","published_at":"2024-03-06","lead":"L2","category":{"category_name":"urheilu"}}
	]}`
	rows, err := IL{}.ParsePage(testPage(0, 200), []byte(body))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://iltalehti.fi/politiikka/a/a1", rows[0].URL)
	assert.Equal(t, "2024-03-05", rows[0].DateModified)
	assert.Equal(t, "2024-03-06", rows[1].DateModified)
}

func TestSanomaRequestPath(t *testing.T) {
	hs := NewHS("https://www.hs.fi/api/search")
	req, err := hs.BuildRequest(testPage(100, 100))
	require.NoError(t, err)

	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local).UnixMilli()
	assert.True(t, strings.HasPrefix(req.URL, "https://www.hs.fi/api/search/sote%20uudistus/kaikki/custom/new/100/100/"))
	assert.Contains(t, req.URL, "/"+itoa64(from)+"/")
}

func TestSanomaParseSkipsReplicaLinks(t *testing.T) {
	body := `[
		{"id":1,"href":"/politiikka/art-1.html","title":"A","displayDate":"2024-03-05T08:00:00.000Z","ingress":"I"},
		{"id":2,"href":"https://nakoislehti.hs.fi/x","title":"B","displayDate":"2024-03-05T08:00:00.000Z"},
		{"id":3,"href":"https://www.hs.fi/talous/art-3.html","title":"C","displayDate":"2024-03-06T08:00:00.000Z"}
	]`
	rows, err := NewHS("").ParsePage(testPage(0, 100), []byte(body))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, "https://www.hs.fi/politiikka/art-1.html", rows[0].URL)
	assert.Equal(t, "I", rows[0].Lead)
	assert.Equal(t, "", rows[1].Lead)

	is := NewIS("")
	rows, err = is.ParsePage(testPage(0, 100), []byte(`[{"id":"9","href":"/a.html","title":"X","displayDate":"d"}]`))
	require.NoError(t, err)
	assert.Equal(t, "https://www.is.fi/a.html", rows[0].URL)
	assert.Equal(t, "is", is.Name())
}

func TestNewsAPIPaging(t *testing.T) {
	t.Setenv("TEST_NEWSAPI_KEY", "secret")
	n := NewNewsAPI("https://newsapi.example/v2/everything", "TEST_NEWSAPI_KEY", "fi")
	require.True(t, n.IsConfigured())

	req, err := n.BuildRequest(testPage(200, 100))
	require.NoError(t, err)
	assert.Equal(t, "3", req.Query.Get("page"))
	assert.Equal(t, "secret", req.Header["X-Api-Key"])

	body := `{"status":"ok","articles":[
		{"url":"https://a.fi/1","title":" Hello ","publishedAt":"2024-03-05T10:00:00Z","description":"d"},
		{"url":"https://removed.com","title":"[Removed]"}
	]}`
	rows, err := n.ParsePage(testPage(0, 100), []byte(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Hello", rows[0].Title)

	_, err = n.ParsePage(testPage(0, 100), []byte(`{"status":"error","message":"rateLimited"}`))
	assert.Error(t, err)
}

func TestNewsAPIWithoutKey(t *testing.T) {
	n := NewNewsAPI("https://newsapi.example", "TEST_NEWSAPI_KEY_UNSET", "")
	_, err := n.BuildRequest(testPage(0, 100))
	assert.Error(t, err)
}

func TestFlexString(t *testing.T) {
	var f struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
	}
	require.NoError(t, jsonUnmarshal(`{"a":123,"b":"x"}`, &f))
	assert.Equal(t, flexString("123"), f.A)
	assert.Equal(t, flexString("x"), f.B)
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }

func jsonUnmarshal(s string, v any) error { return json.Unmarshal([]byte(s), v) }
