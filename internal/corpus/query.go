package corpus

import (
	"math/rand/v2"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/rotisserie/eris"
)

// Filter selects tweets from a corpus frame.
type Filter struct {
	// From and To bound created_at inclusively; zero values leave the range open.
	From time.Time
	To   time.Time
	// Authors keeps only tweets by these usernames when non-empty.
	Authors []string
	// Contains is a regular expression matched against the text. An invalid
	// expression is matched literally.
	Contains     string
	DropRetweets bool
	// Sample keeps this many random tweets when positive.
	Sample int
	Rand   *rand.Rand
}

// Query flattens the corpus and applies filter.
func (c *Corpus) Query(filter Filter, loc *time.Location) *table.Frame {
	f := c.Frame(loc)

	match := func(string) bool { return true }
	if filter.Contains != "" {
		if re, err := regexp.Compile(filter.Contains); err == nil {
			match = re.MatchString
		} else {
			match = func(s string) bool { return strings.Contains(s, filter.Contains) }
		}
	}

	f = f.Filter(func(r table.Row) bool {
		ts, ok := table.Time(r["created_at"])
		if !filter.From.IsZero() && (!ok || ts.Before(filter.From)) {
			return false
		}
		if !filter.To.IsZero() && (!ok || ts.After(filter.To)) {
			return false
		}
		if filter.DropRetweets && r["retweeted"] != nil {
			return false
		}
		if len(filter.Authors) > 0 && !slices.Contains(filter.Authors, table.String(r["author_username"])) {
			return false
		}
		return match(table.String(r["text"]))
	})

	if filter.Sample > 0 {
		rnd := filter.Rand
		if rnd == nil {
			rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		f = f.Sample(filter.Sample, rnd)
	}
	return f
}

var (
	mentionPattern = regexp.MustCompile(`@[\p{L}\p{N}_]+`)
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
)

// Mentions returns the @handles in text.
func Mentions(text string) []string {
	return nonNil(mentionPattern.FindAllString(text, -1))
}

// Hashtags returns the #tags in text.
func Hashtags(text string) []string {
	return nonNil(hashtagPattern.FindAllString(text, -1))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// MergeMetadata left-joins the user metadata CSV at path onto f, matching
// author_username with the CSV column twitter.
func MergeMetadata(f *table.Frame, path string) (*table.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: open metadata %s", path)
	}
	defer file.Close()

	meta, err := table.ReadCSV(file)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read metadata %s", path)
	}
	if !meta.Has("twitter") {
		return nil, eris.Errorf("corpus: metadata %s has no twitter column", path)
	}
	return f.LeftJoin(meta, "author_username", "twitter"), nil
}
