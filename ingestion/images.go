package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/retailrag/blob"
)

const (
	defaultImageWorkers = 16
	defaultImageFolder  = "images"
	maxImageBytes       = 32 << 20
)

// errImageTooLarge fails a download that exceeds the image size limit.
var errImageTooLarge = errors.New("image exceeds size limit")

// imageMaterializer copies product images from their source URLs into the
// object store so the embedding endpoints can read them by gs:// URI.
type imageMaterializer struct {
	blobs     blob.Store
	client    *http.Client
	pool      *ants.Pool
	bucket    string
	folder    string
	maxImages int
	maxBytes  int64
}

// imageJob is one (row, k) download.
type imageJob struct {
	row int
	k   int
	url string
	dst string
}

// objectURI returns the destination of the k-th image of uniqID.
func (m *imageMaterializer) objectURI(uniqID string, k int) string {
	return blob.Join(m.bucket, m.folder, fmt.Sprintf("%s_%d.jpg", uniqID, k))
}

// materialize sets ImageURI on every record whose first successful image
// lands in the store and returns the rest as drops. Existing objects are
// not uploaded again.
func (m *imageMaterializer) materialize(ctx context.Context, records []*Record) ([]*Record, []Drop, error) {
	var jobs []imageJob
	for i, r := range records {
		n := min(len(r.ImageURLs), m.maxImages)
		for k := 0; k < n; k++ {
			jobs = append(jobs, imageJob{row: i, k: k, url: r.ImageURLs[k], dst: m.objectURI(r.Product.UniqID, k)})
		}
	}

	// results[row][k] is nil on success.
	results := make([][]error, len(records))
	for i, r := range records {
		results[i] = make([]error, min(len(r.ImageURLs), m.maxImages))
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			results[job.row][job.k] = m.copyImage(ctx, job)
		})
		if err != nil {
			wg.Done()
			results[job.row][job.k] = err
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		kept  []*Record
		drops []Drop
	)
	for i, r := range records {
		var lastErr error
		for k, err := range results[i] {
			if err == nil {
				r.Product.ImageURI = m.objectURI(r.Product.UniqID, k)
				break
			}
			lastErr = err
		}
		if r.Product.ImageURI == "" {
			drops = append(drops, Drop{UniqID: r.Product.UniqID, Reason: DropImageFailed, Err: lastErr})
			continue
		}
		kept = append(kept, r)
	}
	return kept, drops, nil
}

// copyImage downloads job.url into job.dst unless the object exists.
func (m *imageMaterializer) copyImage(ctx context.Context, job imageJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exists, err := m.blobs.Exists(ctx, job.dst)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", job.url, resp.StatusCode)
	}

	limit := m.maxBytes
	if limit <= 0 {
		limit = maxImageBytes
	}
	if resp.ContentLength > limit {
		return fmt.Errorf("fetching %s: %w (%d bytes)", job.url, errImageTooLarge, resp.ContentLength)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	body := &cappedReader{r: io.LimitReader(resp.Body, limit+1), remaining: limit}
	if err := m.blobs.Put(ctx, job.dst, contentType, body); err != nil {
		return fmt.Errorf("copying %s: %w", job.url, err)
	}
	return nil
}

// cappedReader fails once more than remaining bytes have been read, so an
// oversized body is never stored truncated.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return 0, errImageTooLarge
	}
	return n, err
}
