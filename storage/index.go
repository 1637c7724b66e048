package storage

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/poiesic/retailrag/core"
)

// IndexMethod names the ANN index access method.
type IndexMethod string

const (
	// IndexScaNN builds a ScaNN index (alloydb_scann extension).
	IndexScaNN IndexMethod = "scann"
	// IndexIVFFlat builds a pgvector IVFFlat index.
	IndexIVFFlat IndexMethod = "ivfflat"
)

// Distance names the similarity function an index is built for.
type Distance string

// DistanceCosine is the only supported distance.
const DistanceCosine Distance = "cosine"

// ParseIndexMethod validates a configured method name.
func ParseIndexMethod(s string) (IndexMethod, error) {
	switch m := IndexMethod(s); m {
	case IndexScaNN, IndexIVFFlat:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown index method %q", ErrInvalidIndex, s)
}

// IndexSpec describes one ANN index.
type IndexSpec struct {
	Name      string
	Column    string
	Method    IndexMethod
	Distance  Distance
	NumLeaves int
}

// Validate checks the spec before any SQL is built from it.
func (s IndexSpec) Validate() error {
	if err := ValidateIdentifier(s.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	if !IsEmbeddingColumn(s.Column) {
		return fmt.Errorf("%w: %q is not an embedding column", ErrInvalidIndex, s.Column)
	}
	if _, err := ParseIndexMethod(string(s.Method)); err != nil {
		return err
	}
	if s.Distance != DistanceCosine {
		return fmt.Errorf("%w: unsupported distance %q", ErrInvalidIndex, s.Distance)
	}
	if s.NumLeaves < 1 {
		return fmt.Errorf("%w: num_leaves must be at least 1, got %d", ErrInvalidIndex, s.NumLeaves)
	}
	return nil
}

// CatalogIndexes returns the three ANN indexes every catalog table carries,
// sharing method, distance and leaf count.
func CatalogIndexes(method IndexMethod, numLeaves int) []IndexSpec {
	specs := make([]IndexSpec, 0, len(core.Modalities))
	for _, m := range core.Modalities {
		specs = append(specs, IndexSpec{
			Name:      m.IndexName(),
			Column:    m.Column(),
			Method:    method,
			Distance:  DistanceCosine,
			NumLeaves: numLeaves,
		})
	}
	return specs
}

// IsEmbeddingColumn reports whether column holds one of the three embeddings.
func IsEmbeddingColumn(column string) bool {
	return slices.ContainsFunc(core.Modalities, func(m core.Modality) bool {
		return m.Column() == column
	})
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxIdentifierLength is the Postgres NAMEDATALEN limit minus one.
const maxIdentifierLength = 63

// ValidateIdentifier accepts plain SQL identifiers used for database,
// table and index names.
func ValidateIdentifier(name string) error {
	if name == "" || len(name) > maxIdentifierLength || !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}
