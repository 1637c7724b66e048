package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIndexes(t *testing.T) {
	specs := CatalogIndexes(IndexScaNN, 100)
	require.Len(t, specs, 3)

	names := []string{specs[0].Name, specs[1].Name, specs[2].Name}
	assert.Equal(t, []string{
		"rag_text_embeddings_index",
		"rag_image_embeddings_index",
		"rag_multimodal_embeddings_index",
	}, names)

	for _, s := range specs {
		require.NoError(t, s.Validate())
		assert.Equal(t, DistanceCosine, s.Distance)
		assert.Equal(t, 100, s.NumLeaves)
		assert.Equal(t, IndexScaNN, s.Method)
	}
}

func TestIndexSpecValidate(t *testing.T) {
	valid := IndexSpec{Name: "idx", Column: "text_embeddings", Method: IndexIVFFlat, Distance: DistanceCosine, NumLeaves: 1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(s *IndexSpec)
	}{
		{"zero leaves", func(s *IndexSpec) { s.NumLeaves = 0 }},
		{"l2 distance", func(s *IndexSpec) { s.Distance = "l2" }},
		{"unknown method", func(s *IndexSpec) { s.Method = "hnsw2" }},
		{"non embedding column", func(s *IndexSpec) { s.Column = "name" }},
		{"bad name", func(s *IndexSpec) { s.Name = "idx; drop table x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidIndex)
		})
	}
}

func TestParseIndexMethod(t *testing.T) {
	m, err := ParseIndexMethod("scann")
	require.NoError(t, err)
	assert.Equal(t, IndexScaNN, m)

	m, err = ParseIndexMethod("ivfflat")
	require.NoError(t, err)
	assert.Equal(t, IndexIVFFlat, m)

	_, err = ParseIndexMethod("SCANN")
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"catalog", "product_embeddings", "_t1", strings.Repeat("a", 63)} {
		assert.NoError(t, ValidateIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1table", "a-b", "a b", "x;drop", strings.Repeat("a", 64)} {
		assert.ErrorIs(t, ValidateIdentifier(bad), ErrInvalidIdentifier, bad)
	}
}

func TestIsEmbeddingColumn(t *testing.T) {
	assert.True(t, IsEmbeddingColumn("text_embeddings"))
	assert.True(t, IsEmbeddingColumn("image_embeddings"))
	assert.True(t, IsEmbeddingColumn("multimodal_embeddings"))
	assert.False(t, IsEmbeddingColumn("name"))
	assert.False(t, IsEmbeddingColumn(""))
}
