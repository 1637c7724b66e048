package ingestion

import (
	"strings"

	"github.com/poiesic/retailrag/core"
)

// Source columns read from the catalog CSV.
const (
	colUniqID         = "uniq_id"
	colProductName    = "product_name"
	colDescription    = "description"
	colBrand          = "brand"
	colImage          = "image"
	colSpecifications = "product_specifications"
	colCategoryTree   = "product_category_tree"
)

// sourceColumns is the projection applied to the raw frame.
var sourceColumns = []string{
	colUniqID, colProductName, colDescription, colBrand,
	colImage, colSpecifications, colCategoryTree,
}

// RawRecord is one projected CSV row before cleaning.
type RawRecord struct {
	UniqID                string
	ProductName           string
	Description           string
	Brand                 string
	Image                 string
	ProductSpecifications string
	ProductCategoryTree   string
}

// Record is a cleaned row moving through the pipeline.
type Record struct {
	Product *core.Product

	// CategoryLevels holds c0_name, c1_name, ... in order.
	CategoryLevels []string

	// ImageURLs are the source image links, in listing order.
	ImageURLs []string
}

// Caption is the text sent to the text and multimodal endpoints.
func (r *Record) Caption() string {
	name := strings.TrimSpace(r.Product.Name)
	if name == "" {
		return r.Product.Description
	}
	return name + ". " + r.Product.Description
}
