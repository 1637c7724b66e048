package ingestion

import (
	"strings"

	"github.com/poiesic/retailrag/core"
)

// Drop reasons reported in Result.Dropped.
const (
	DropMissingID          = "missing uniq_id"
	DropMissingDescription = "missing description"
	DropMissingImage       = "missing image"
	DropMissingSpecs       = "missing specifications"
	DropMissingCategory    = "missing category tree"
	DropDuplicate          = "duplicate uniq_id"
	DropEmptyLemma         = "description empty after lemmatization"
	DropNoImageURLs        = "no image urls"
	DropImageFailed        = "image materialization failed"
	DropEmbeddingFailed    = "embedding failed"
)

// Drop records why a source row did not reach the store.
type Drop struct {
	UniqID string
	Reason string
	Err    error
}

// Clean projects, filters, de-duplicates and normalizes raw rows. Output
// order follows input order and the first occurrence of a uniq_id wins.
func Clean(raw []RawRecord, lemmatizer *Lemmatizer) ([]*Record, []Drop) {
	if lemmatizer == nil {
		lemmatizer = NewLemmatizer()
	}
	var (
		out   []*Record
		drops []Drop
		seen  = make(map[string]struct{}, len(raw))
	)
	for _, r := range raw {
		id := strings.TrimSpace(r.UniqID)
		if reason := missingField(r, id); reason != "" {
			drops = append(drops, Drop{UniqID: id, Reason: reason})
			continue
		}
		if _, dup := seen[id]; dup {
			drops = append(drops, Drop{UniqID: id, Reason: DropDuplicate})
			continue
		}
		seen[id] = struct{}{}

		description := lemmatizer.Lemmatize(r.Description)
		if description == "" {
			drops = append(drops, Drop{UniqID: id, Reason: DropEmptyLemma})
			continue
		}
		urls := ParseImageList(r.Image)
		if len(urls) == 0 {
			drops = append(drops, Drop{UniqID: id, Reason: DropNoImageURLs})
			continue
		}
		levels := SplitCategoryTree(r.ProductCategoryTree)
		if len(levels) == 0 {
			drops = append(drops, Drop{UniqID: id, Reason: DropMissingCategory})
			continue
		}

		out = append(out, &Record{
			Product: &core.Product{
				UniqID:         id,
				Name:           strings.TrimSpace(r.ProductName),
				Description:    description,
				Brand:          strings.TrimSpace(r.Brand),
				Category:       JoinCategory(levels),
				Specifications: ParseSpecifications(r.ProductSpecifications),
			},
			CategoryLevels: levels,
			ImageURLs:      urls,
		})
	}
	return out, drops
}

func missingField(r RawRecord, id string) string {
	switch {
	case id == "":
		return DropMissingID
	case strings.TrimSpace(r.Description) == "":
		return DropMissingDescription
	case strings.TrimSpace(r.Image) == "":
		return DropMissingImage
	case strings.TrimSpace(r.ProductSpecifications) == "":
		return DropMissingSpecs
	case strings.TrimSpace(r.ProductCategoryTree) == "":
		return DropMissingCategory
	}
	return ""
}
