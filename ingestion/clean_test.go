package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRecord(id string) RawRecord {
	return RawRecord{
		UniqID:                id,
		ProductName:           "Desk Lamp " + id,
		Description:           "Bright lamps for desks",
		Brand:                 "Acme",
		Image:                 `["http://img/` + id + `.jpg"]`,
		ProductSpecifications: `{"product_specification"=>[{"key"=>"Color", "value"=>"Red"}]}`,
		ProductCategoryTree:   `["Home >> Lighting >> Lamps"]`,
	}
}

func TestClean(t *testing.T) {
	noDesc := rawRecord("d")
	noDesc.Description = "  "
	noImage := rawRecord("i")
	noImage.Image = ""
	noSpecs := rawRecord("s")
	noSpecs.ProductSpecifications = ""
	noTree := rawRecord("c")
	noTree.ProductCategoryTree = ""
	stopOnly := rawRecord("x")
	stopOnly.Description = "it is the"
	dup := rawRecord("a")
	dup.ProductName = "second copy"

	records, drops := Clean([]RawRecord{
		rawRecord("a"), noDesc, noImage, noSpecs, noTree, stopOnly, dup, rawRecord("b"), {UniqID: ""},
	}, nil)

	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Product.UniqID)
	assert.Equal(t, "Desk Lamp a", records[0].Product.Name, "first occurrence wins")
	assert.Equal(t, "b", records[1].Product.UniqID)

	p := records[0].Product
	assert.Equal(t, "bright lamp desk", p.Description)
	assert.Equal(t, "Acme", p.Brand)
	assert.Equal(t, "Home > Lighting > Lamps", p.Category)
	assert.Equal(t, []string{"Home", "Lighting", "Lamps"}, records[0].CategoryLevels)
	assert.Equal(t, `{"Color":"Red"}`, p.Specifications)
	assert.Equal(t, []string{"http://img/a.jpg"}, records[0].ImageURLs)
	assert.Empty(t, p.ImageURI, "image uri is set by materialization")

	reasons := make(map[string]string)
	for _, d := range drops {
		reasons[d.UniqID] = d.Reason
	}
	assert.Equal(t, DropMissingDescription, reasons["d"])
	assert.Equal(t, DropMissingImage, reasons["i"])
	assert.Equal(t, DropMissingSpecs, reasons["s"])
	assert.Equal(t, DropMissingCategory, reasons["c"])
	assert.Equal(t, DropEmptyLemma, reasons["x"])
	assert.Equal(t, DropDuplicate, reasons["a"])
	assert.Equal(t, DropMissingID, reasons[""])
	assert.Len(t, drops, 7)
}

func TestClean_Deterministic(t *testing.T) {
	raw := []RawRecord{rawRecord("z"), rawRecord("y"), rawRecord("z"), rawRecord("x")}

	first, _ := Clean(raw, nil)
	second, _ := Clean(raw, NewLemmatizer())

	ids := func(rs []*Record) string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Product.UniqID)
		}
		return strings.Join(out, ",")
	}
	assert.Equal(t, "z,y,x", ids(first))
	assert.Equal(t, ids(first), ids(second))
}

func TestRecordCaption(t *testing.T) {
	records, _ := Clean([]RawRecord{rawRecord("a")}, nil)
	require.Len(t, records, 1)
	assert.Equal(t, "Desk Lamp a. bright lamp desk", records[0].Caption())

	records[0].Product.Name = ""
	assert.Equal(t, "bright lamp desk", records[0].Caption())
}
