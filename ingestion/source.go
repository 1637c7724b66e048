package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/poiesic/retailrag/blob"
)

// OpenSource opens a catalog CSV from a gs:// URI or a local path.
func OpenSource(ctx context.Context, blobs blob.Store, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "gs://") {
		if blobs == nil {
			return nil, ErrBlobStoreRequired
		}
		return blobs.Open(ctx, source)
	}
	return os.Open(source)
}

// ReadCatalog parses a catalog CSV with a header row, projecting the
// columns the pipeline uses. Columns may appear in any order; extra
// columns are ignored.
func ReadCatalog(r io.Reader) ([]RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	var missing []string
	for _, col := range sourceColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	field := func(row []string, col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []RawRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(records)+2, err)
		}
		records = append(records, RawRecord{
			UniqID:                field(row, colUniqID),
			ProductName:           field(row, colProductName),
			Description:           field(row, colDescription),
			Brand:                 field(row, colBrand),
			Image:                 field(row, colImage),
			ProductSpecifications: field(row, colSpecifications),
			ProductCategoryTree:   field(row, colCategoryTree),
		})
	}
	return records, nil
}
