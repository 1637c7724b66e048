package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModalityOf(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		image   string
		want    Modality
		wantErr error
	}{
		{name: "neither", wantErr: ErrInvalidInput},
		{name: "whitespace only", text: "  ", image: "\t", wantErr: ErrInvalidInput},
		{name: "text only", text: "women's cycling shorts", want: ModalityText},
		{name: "image only", image: "gs://b/obj.jpg", want: ModalityImage},
		{name: "both", text: "red sneakers", image: "gs://b/shoe.jpg", want: ModalityMultimodal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ModalityOf(tt.text, tt.image)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsGSURI(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"gs://bucket/object.jpg", true},
		{"gs://my-bucket/images/abc_0.jpg", true},
		{"gs://b/obj.jpg", true},
		{"gs://bucket/", false},
		{"gs://bucket", false},
		{"http://bucket/object.jpg", false},
		{"bucket/object.jpg", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGSURI(tt.uri))
		})
	}
}

func TestValidateQuery(t *testing.T) {
	t.Run("text only needs no image", func(t *testing.T) {
		m, err := ValidateQuery(Query{Text: "cycling shorts"})
		require.NoError(t, err)
		assert.Equal(t, ModalityText, m)
	})

	t.Run("image must be gs uri", func(t *testing.T) {
		_, err := ValidateQuery(Query{ImageURI: "https://example.com/a.jpg"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("multimodal with valid uri", func(t *testing.T) {
		m, err := ValidateQuery(Query{Text: "red sneakers", ImageURI: "gs://shop-bucket/shoe.jpg"})
		require.NoError(t, err)
		assert.Equal(t, ModalityMultimodal, m)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := ValidateQuery(Query{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestValidateProduct(t *testing.T) {
	valid := func() *Product {
		return &Product{
			UniqID:               "u1",
			Description:          "cotton short",
			ImageURI:             "gs://bucket/images/u1_0.jpg",
			TextEmbeddings:       make([]float32, 4),
			ImageEmbeddings:      make([]float32, 4),
			MultimodalEmbeddings: make([]float32, 4),
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *Product) *Product
		wantErr bool
	}{
		{name: "valid", mutate: func(p *Product) *Product { return p }},
		{name: "nil", mutate: func(p *Product) *Product { return nil }, wantErr: true},
		{name: "missing id", mutate: func(p *Product) *Product { p.UniqID = ""; return p }, wantErr: true},
		{name: "missing description", mutate: func(p *Product) *Product { p.Description = " "; return p }, wantErr: true},
		{name: "missing image", mutate: func(p *Product) *Product { p.ImageURI = ""; return p }, wantErr: true},
		{name: "short vector", mutate: func(p *Product) *Product { p.ImageEmbeddings = make([]float32, 3); return p }, wantErr: true},
		{name: "nil vector", mutate: func(p *Product) *Product { p.MultimodalEmbeddings = nil; return p }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.mutate(valid()), 4)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProduct)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
