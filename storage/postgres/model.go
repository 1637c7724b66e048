package postgres

import (
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/retailrag/core"
	"gorm.io/datatypes"
)

// catalogRow is the gorm model for one catalog table row. The table name is
// always supplied per statement.
type catalogRow struct {
	UniqID               string          `gorm:"column:uniq_id;primaryKey"`
	Name                 string          `gorm:"column:name"`
	Description          string          `gorm:"column:description"`
	Brand                string          `gorm:"column:brand"`
	Category             string          `gorm:"column:category"`
	Specifications       datatypes.JSON  `gorm:"column:specifications"`
	ImageURI             string          `gorm:"column:image_uri"`
	Ordinal              int             `gorm:"column:ordinal"`
	TextEmbeddings       pgvector.Vector `gorm:"column:text_embeddings"`
	ImageEmbeddings      pgvector.Vector `gorm:"column:image_embeddings"`
	MultimodalEmbeddings pgvector.Vector `gorm:"column:multimodal_embeddings"`
}

func toRow(p *core.Product, ordinal int) catalogRow {
	specs := p.Specifications
	if specs == "" {
		specs = "{}"
	}
	return catalogRow{
		UniqID:               p.UniqID,
		Name:                 p.Name,
		Description:          p.Description,
		Brand:                p.Brand,
		Category:             p.Category,
		Specifications:       datatypes.JSON(specs),
		ImageURI:             p.ImageURI,
		Ordinal:              ordinal,
		TextEmbeddings:       pgvector.NewVector(p.TextEmbeddings),
		ImageEmbeddings:      pgvector.NewVector(p.ImageEmbeddings),
		MultimodalEmbeddings: pgvector.NewVector(p.MultimodalEmbeddings),
	}
}

// searchRow receives one ranked hit.
type searchRow struct {
	UniqID           string  `gorm:"column:uniq_id"`
	Name             string  `gorm:"column:name"`
	Category         string  `gorm:"column:category"`
	Specifications   string  `gorm:"column:specifications"`
	CosineSimilarity float64 `gorm:"column:cosine_similarity"`
}

func (r searchRow) retrieved() core.Retrieved {
	return core.Retrieved{
		UniqID:           r.UniqID,
		Name:             r.Name,
		Category:         r.Category,
		Specifications:   r.Specifications,
		CosineSimilarity: r.CosineSimilarity,
	}
}
