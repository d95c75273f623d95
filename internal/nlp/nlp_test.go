package nlp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tok(lemma, tag string) Token {
	return Token{Form: lemma, Lemma: lemma, NERTag: tag}
}

func TestExtractEntities(t *testing.T) {
	sentences := []Sentence{
		{
			tok("Sanna", "<EnamexPrsHum>"),
			tok("Marin", "</EnamexPrsHum>"),
			tok("vierailla", ""),
			tok("Helsinki", "<EnamexLocPpl/>"),
		},
		{
			tok("Euroopan", "<EnamexOrgPlt>"),
			tok("unioni", ""),
			tok("komissio", "</EnamexOrgPlt>"),
		},
	}

	got := ExtractEntities(sentences)
	assert.Equal(t, []Entity{
		{Type: "EnamexPrsHum", Name: "Sanna Marin"},
		{Type: "EnamexLocPpl", Name: "Helsinki"},
		{Type: "EnamexOrgPlt", Name: "Euroopan unioni komissio"},
	}, got)
}

func TestExtractEntitiesEmpty(t *testing.T) {
	got := ExtractEntities(nil)
	require.NotNil(t, got)
	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestEntityJSON(t *testing.T) {
	b, err := json.Marshal([]Entity{{Type: "PERSON", Name: "Orpo"}})
	require.NoError(t, err)
	assert.Equal(t, `[["PERSON","Orpo"]]`, string(b))

	var back []Entity
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "Orpo", back[0].Name)
}

func TestTaggableLines(t *testing.T) {
	long := strings.Repeat("ä", MaxLineLength+10)
	lines := TaggableLines("  eka  \n\n" + long + "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "eka", lines[0])
	assert.Equal(t, MaxLineLength, len([]rune(lines[1])))
}

func TestNERClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Sanna Marin puhui", r.URL.Query().Get("text"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[["Sanna","Sanna","N","","<EnamexPrsHum>","","",""],["Marin","Marin","N","","</EnamexPrsHum>","","",""],["puhui","puhua","V","","","","",""]]]`))
	}))
	defer srv.Close()

	sentences, err := NewNERClient(srv.URL, resty.New()).Tag(context.Background(), "Sanna Marin puhui")
	require.NoError(t, err)
	require.Len(t, sentences, 1)
	assert.Equal(t, "puhua", sentences[0][2].Lemma)
	assert.Equal(t, []Entity{{Type: "EnamexPrsHum", Name: "Sanna Marin"}}, ExtractEntities(sentences))
}

func TestParserClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "Teksti.", string(body))
		w.Write([]byte("1\tTeksti\tteksti\tNOUN\n"))
	}))
	defer srv.Close()

	out, err := NewParserClient(srv.URL, resty.New()).Parse(context.Background(), "Teksti.")
	require.NoError(t, err)
	assert.Equal(t, "1\tTeksti\tteksti\tNOUN\n", out)
}

func TestParserClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewParserClient(srv.URL, resty.New()).Parse(context.Background(), "x")
	assert.Error(t, err)
}

func TestSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sentimentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"Hyvä päivä", "Huono ilta."}, req.Sentences)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"scores":[[0.1,0.1,0.8],[0.6,0.2,0.2]]}`))
	}))
	defer srv.Close()

	score, ok, err := TextSentiment(context.Background(), NewSentimentClient(srv.URL, resty.New()), "Hyvä päivä. Huono ilta.")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.15, score, 1e-9)
}

func TestScoreEmpty(t *testing.T) {
	_, ok := Score(nil)
	assert.False(t, ok)
}

func TestAnnif(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "15", r.PostForm.Get("limit"))
		assert.Equal(t, "0.2", r.PostForm.Get("threshold"))
		assert.Equal(t, "teksti", r.PostForm.Get("text"))
		w.Write([]byte(`{"results":[{"uri":"http://www.yso.fi/onto/yso/p1","label":"a","score":0.5}]}`))
	}))
	defer srv.Close()

	raw, err := NewAnnifClient(srv.URL, resty.New()).Suggest(context.Background(), "teksti")
	require.NoError(t, err)
	uris, err := SubjectURIs(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"<http://www.yso.fi/onto/yso/p1>"}, uris)

	assert.Equal(t, "http://annif:5000/v1/projects/yso-fi/suggest", SuggestURL("http://annif:5000", "yso-fi"))
}
