// Package prompt renders the grounding prompt sent to the re-ranking model.
//
// Rendering is a pure function of the query and the retrieved rows: no
// clock, no database counts, no scores. Rows keep retrieval order.
package prompt

import (
	"errors"
	"strings"

	"github.com/poiesic/retailrag/core"
	"github.com/tmc/langchaingo/prompts"
)

// ErrNoRows is returned when there is nothing to ground the prompt on.
var ErrNoRows = errors.New("prompt needs at least one retrieved row")

const defaultTemplate = `You are an assistant helping a shopper find products in a retail catalog.
Select only the 3 best products without duplicates from the candidates below that match the shopper's request.
List them in order of relevance, one per line, with the product name and a short reason.

Shopper request:
{{.query}}

Candidates (Name | Category | Specifications):
{{range $i, $row := .rows}}{{add1 $i}}. {{$row.Name}} | {{$row.Category}} | {{$row.Specifications}}
{{end}}`

// Row is one retrieved product as rendered in the prompt.
type Row struct {
	Name           string
	Category       string
	Specifications string
}

// Builder renders grounding prompts from a langchaingo prompt template.
type Builder struct {
	template prompts.PromptTemplate
}

// Option configures a Builder.
type Option func(*Builder) error

// WithTemplate replaces the default Go template. The template receives
// "query" (string) and "rows" ([]Row); sprig functions are available.
func WithTemplate(tmpl string) Option {
	return func(b *Builder) error {
		if strings.TrimSpace(tmpl) == "" {
			return errors.New("prompt template must not be empty")
		}
		b.template = newTemplate(tmpl)
		return nil
	}
}

// NewBuilder creates a Builder with the default template.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{template: newTemplate(defaultTemplate)}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newTemplate(tmpl string) prompts.PromptTemplate {
	return prompts.NewPromptTemplate(tmpl, []string{"query", "rows"})
}

// Build renders the prompt for the shopper query and the retrieved rows.
func (b *Builder) Build(query core.Query, rows []core.Retrieved) (string, error) {
	if len(rows) == 0 {
		return "", ErrNoRows
	}
	rendered := make([]Row, len(rows))
	for i, r := range rows {
		rendered[i] = Row{
			Name:           oneLine(r.Name),
			Category:       oneLine(r.Category),
			Specifications: oneLine(r.Specifications),
		}
	}
	return b.template.Format(map[string]any{
		"query": QueryText(query),
		"rows":  rendered,
	})
}

// QueryText renders the shopper query verbatim. An image reference is
// appended on its own line.
func QueryText(q core.Query) string {
	switch {
	case q.Text != "" && q.ImageURI != "":
		return q.Text + "\nReference image: " + q.ImageURI
	case q.ImageURI != "":
		return "Reference image: " + q.ImageURI
	}
	return q.Text
}

// oneLine keeps each table row on one line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
