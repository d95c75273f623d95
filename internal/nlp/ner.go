package nlp

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MaxLineLength is the longest line the tagger accepts, in characters.
const MaxLineLength = 4090

// Token is one tagged word: form, lemma, morphological analysis, NER
// analysis and NER tag, followed by fields this package ignores.
type Token struct {
	Form        string
	Lemma       string
	Analysis    string
	NERAnalysis string
	NERTag      string
}

func (t *Token) UnmarshalJSON(b []byte) error {
	var fields []string
	if err := json.Unmarshal(b, &fields); err != nil {
		return eris.Wrap(err, "ner: decode token")
	}
	if len(fields) < 5 {
		return eris.Errorf("ner: token has %d fields, want at least 5", len(fields))
	}
	*t = Token{
		Form:        fields[0],
		Lemma:       fields[1],
		Analysis:    fields[2],
		NERAnalysis: fields[3],
		NERTag:      fields[4],
	}
	return nil
}

// Sentence is a tagged sentence.
type Sentence []Token

// Entity is a named entity, serialized as a [type, name] pair.
type Entity struct {
	Type string
	Name string
}

func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Type, e.Name})
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return eris.Wrap(err, "ner: decode entity")
	}
	if len(pair) != 2 {
		return eris.Errorf("ner: entity has %d fields, want 2", len(pair))
	}
	e.Type, e.Name = pair[0], pair[1]
	return nil
}

var (
	singleTag = regexp.MustCompile(`^<(\w+)/>$`)
	openTag   = regexp.MustCompile(`^<(\w+)>$`)
	closeTag  = regexp.MustCompile(`^</(\w+)>$`)
)

// ExtractEntities walks the tag stream. <Tag/> marks a one-token entity,
// <Tag> opens a multi-token entity and </Tag> closes it; the entity name is
// the space-joined lemmas from the opening to the closing token.
func ExtractEntities(sentences []Sentence) []Entity {
	entities := []Entity{}
	var open bool
	var name string
	for _, sentence := range sentences {
		for _, tok := range sentence {
			if open {
				name += " " + tok.Lemma
			}
			switch {
			case singleTag.MatchString(tok.NERTag):
				entities = append(entities, Entity{Type: singleTag.FindStringSubmatch(tok.NERTag)[1], Name: tok.Lemma})
			case openTag.MatchString(tok.NERTag):
				open, name = true, tok.Lemma
			case closeTag.MatchString(tok.NERTag):
				entities = append(entities, Entity{Type: closeTag.FindStringSubmatch(tok.NERTag)[1], Name: name})
				open, name = false, ""
			}
		}
	}
	return entities
}

// TaggableLines splits text into trimmed, non-empty lines, truncating those
// longer than MaxLineLength.
func TaggableLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if n := utf8.RuneCountInString(line); n > MaxLineLength {
			zap.L().Warn("line too long for ner tagging, truncating", zap.Int("length", n))
			line = string([]rune(line)[:MaxLineLength])
		}
		lines = append(lines, line)
	}
	return lines
}

// NERClient calls a FiNER-compatible tagging service.
type NERClient struct {
	URL    string
	client *resty.Client
}

// NewNERClient creates a tagger client.
func NewNERClient(url string, client *resty.Client) *NERClient {
	return &NERClient{URL: url, client: client}
}

// Tag tags one line of text.
func (n *NERClient) Tag(ctx context.Context, line string) ([]Sentence, error) {
	var sentences []Sentence
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParam("text", line).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		Post(n.URL)
	if err != nil {
		return nil, eris.Wrap(err, "ner: request")
	}
	if err := checkStatus(resp, "ner"); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.Body(), &sentences); err != nil {
		return nil, eris.Wrap(err, "ner: decode response")
	}
	return sentences, nil
}
