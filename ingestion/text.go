package ingestion

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// englishLemmas loads the English dictionary once per process.
var englishLemmas = sync.OnceValues(func() (*golem.Lemmatizer, error) {
	return golem.New(en.New())
})

// Lemmatizer reduces product descriptions to the dictionary forms of their
// content words. A Lemmatizer is not safe for concurrent use.
type Lemmatizer struct {
	stopwords map[string]struct{}
	lower     cases.Caser
	dict      *golem.Lemmatizer
}

// NewLemmatizer creates a Lemmatizer with the English stop-word list and
// dictionary. If the dictionary cannot be loaded, words are kept as written.
func NewLemmatizer() *Lemmatizer {
	dict, err := englishLemmas()
	if err != nil {
		slog.Warn("english lemma dictionary unavailable, keeping words as written", "err", err)
	}
	return &Lemmatizer{
		stopwords: defaultStopwords(),
		lower:     cases.Lower(language.English),
		dict:      dict,
	}
}

// Lemmatize lowercases text, drops stop words and tokens that are not
// purely alphabetic, and replaces each remaining word with its dictionary
// lemma. Words missing from the dictionary are kept. Tokens keep their order.
func (l *Lemmatizer) Lemmatize(text string) string {
	text = l.lower.String(norm.NFKC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || !isAlpha(w) {
			continue
		}
		if _, stop := l.stopwords[w]; stop {
			continue
		}
		if l.dict != nil {
			if lemma := l.dict.Lemma(w); lemma != "" {
				w = lemma
			}
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// hashArrow matches the key separator of the hash notation: a closing quote
// followed by =>. Arrows inside quoted values are left alone.
var hashArrow = regexp.MustCompile(`"\s*=>`)

// specEntry is one key/value pair in a product_specifications blob.
type specEntry struct {
	Key   *string `json:"key"`
	Value any     `json:"value"`
}

// ParseSpecifications converts the catalog's Ruby-hash notation
//
//	{"product_specification"=>[{"key"=>"Color", "value"=>"Red"}, ...]}
//
// into a JSON object with sorted keys. Entries without a key are skipped;
// the first value for a repeated key wins. Anything unparseable yields "{}".
func ParseSpecifications(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "{}"
	}
	var doc struct {
		ProductSpecification json.RawMessage `json:"product_specification"`
	}
	if err := json.Unmarshal([]byte(hashArrow.ReplaceAllString(raw, `":`)), &doc); err != nil {
		return "{}"
	}

	var entries []specEntry
	if err := json.Unmarshal(doc.ProductSpecification, &entries); err != nil {
		var single specEntry
		if err := json.Unmarshal(doc.ProductSpecification, &single); err != nil {
			return "{}"
		}
		entries = []specEntry{single}
	}

	specs := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Key == nil || strings.TrimSpace(*e.Key) == "" {
			continue
		}
		key := strings.TrimSpace(*e.Key)
		if _, seen := specs[key]; seen {
			continue
		}
		specs[key] = valueString(e.Value)
	}
	// encoding/json writes map keys in sorted order.
	var out strings.Builder
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(specs); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// SplitCategoryTree splits a product_category_tree value such as
// ["Clothing >> Women's Clothing >> Tops"] into its ordered levels.
func SplitCategoryTree(raw string) []string {
	raw = strings.TrimSpace(raw)
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		raw = strings.Join(list, " >> ")
	} else {
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, `["`), `"]`)
	}

	var levels []string
	for _, part := range strings.Split(raw, ">>") {
		if part = strings.TrimSpace(part); part != "" {
			levels = append(levels, part)
		}
	}
	return levels
}

// JoinCategory renders category levels as the stored Category value.
func JoinCategory(levels []string) string {
	return strings.Join(levels, " > ")
}

// ParseImageList decodes the image column, a JSON list of URLs. A bare
// URL is accepted as a one-element list.
func ParseImageList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
			return []string{raw}
		}
		return nil
	}
	urls := make([]string, 0, len(list))
	for _, u := range list {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and",
		"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
		"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
		"down", "during", "each", "few", "for", "from", "further", "get", "had", "has",
		"have", "having", "he", "her", "here", "hers", "herself", "him", "himself", "his",
		"how", "i", "if", "in", "into", "is", "it", "its", "itself", "just", "let", "may",
		"me", "might", "more", "most", "must", "my", "myself", "no", "nor", "not", "now",
		"of", "off", "on", "once", "only", "or", "other", "our", "ours", "ourselves",
		"out", "over", "own", "same", "shall", "she", "should", "so", "some", "such",
		"than", "that", "the", "their", "theirs", "them", "themselves", "then", "there",
		"these", "they", "this", "those", "through", "to", "too", "under", "until", "up",
		"upon", "us", "very", "was", "we", "were", "what", "when", "where", "which",
		"while", "who", "whom", "why", "will", "with", "would", "you", "your", "yours",
		"yourself", "yourselves",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
