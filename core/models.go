package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// DefaultEmbeddingDimension is the vector width of every embedding column.
const DefaultEmbeddingDimension = 768

// Modality selects the embedding endpoint and the stored column used for a query.
type Modality int

const (
	// ModalityText embeds a caption only.
	ModalityText Modality = iota
	// ModalityImage embeds an image reference only.
	ModalityImage
	// ModalityMultimodal embeds a caption and an image together.
	ModalityMultimodal
)

// Modalities lists every modality in the order embeddings are scheduled per row.
var Modalities = []Modality{ModalityText, ModalityImage, ModalityMultimodal}

func (m Modality) String() string {
	switch m {
	case ModalityText:
		return "text"
	case ModalityImage:
		return "image"
	case ModalityMultimodal:
		return "multimodal"
	}
	return "unknown"
}

// Column returns the catalog table column holding embeddings of this modality.
func (m Modality) Column() string {
	switch m {
	case ModalityText:
		return "text_embeddings"
	case ModalityImage:
		return "image_embeddings"
	case ModalityMultimodal:
		return "multimodal_embeddings"
	}
	return ""
}

// IndexName returns the ANN index name for this modality's column.
func (m Modality) IndexName() string {
	return "rag_" + m.Column() + "_index"
}

// Product is a single catalog row.
type Product struct {
	UniqID         string
	Name           string
	Description    string
	Brand          string
	Category       string
	Specifications string // canonical JSON object
	ImageURI       string // gs://bucket/path

	TextEmbeddings       []float32
	ImageEmbeddings      []float32
	MultimodalEmbeddings []float32
}

// Embedding returns the product's vector for the given modality.
func (p *Product) Embedding(m Modality) []float32 {
	switch m {
	case ModalityText:
		return p.TextEmbeddings
	case ModalityImage:
		return p.ImageEmbeddings
	case ModalityMultimodal:
		return p.MultimodalEmbeddings
	}
	return nil
}

// SetEmbedding stores a vector for the given modality.
func (p *Product) SetEmbedding(m Modality, v []float32) {
	switch m {
	case ModalityText:
		p.TextEmbeddings = v
	case ModalityImage:
		p.ImageEmbeddings = v
	case ModalityMultimodal:
		p.MultimodalEmbeddings = v
	}
}

// Query is a shopper request. At least one field must be non-empty.
type Query struct {
	Text     string
	ImageURI string
}

// Retrieved is one similarity search hit.
type Retrieved struct {
	UniqID           string
	Name             string
	Category         string
	Specifications   string
	CosineSimilarity float64
}

// ContentKey hashes the given parts into a stable hex key.
// Parts are length-prefixed so ("ab","c") and ("a","bc") differ.
func ContentKey(parts ...string) string {
	h, _ := blake2b.New(16, nil)
	for _, p := range parts {
		var n [8]byte
		l := uint64(len(p))
		for i := 0; i < 8; i++ {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
