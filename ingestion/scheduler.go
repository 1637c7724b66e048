// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/core"
)

// slot holds one task's outcome.
type slot struct {
	vector []float32
	err    error
}

// embedScheduler fans out three embedding tasks per row onto a bounded
// pool. Task (row, modality) writes slot 3*row+modality, so results line
// up with rows regardless of completion order.
type embedScheduler struct {
	pool     *ants.Pool
	embedder ai.Embedder
}

// slotIndex is the positional address of a task's result.
func slotIndex(row int, m core.Modality) int {
	return len(core.Modalities)*row + int(m)
}

// embedChunk embeds every row of chunk. Rows with any failed task come back
// as drops; the rest carry all three vectors. If ctx is cancelled, in-flight
// tasks are awaited and ctx.Err() is returned.
func (s *embedScheduler) embedChunk(ctx context.Context, chunk []*Record) ([]*Record, []Drop, error) {
	slots := make([]slot, len(core.Modalities)*len(chunk))

	var wg sync.WaitGroup
	for row, r := range chunk {
		caption := r.Caption()
		imageURI := r.Product.ImageURI
		for _, m := range core.Modalities {
			idx := slotIndex(row, m)
			wg.Add(1)
			err := s.pool.Submit(func() {
				defer wg.Done()
				if err := ctx.Err(); err != nil {
					slots[idx].err = err
					return
				}
				slots[idx].vector, slots[idx].err = ai.Embed(ctx, s.embedder, m, caption, imageURI)
			})
			if err != nil {
				wg.Done()
				slots[idx].err = fmt.Errorf("submitting %s task: %w", m, err)
			}
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
	for row, r := range chunk {
		var errs []error
		for _, m := range core.Modalities {
			if err := slots[slotIndex(row, m)].err; err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m, err))
			}
		}
		if len(errs) > 0 {
			drops = append(drops, Drop{UniqID: r.Product.UniqID, Reason: DropEmbeddingFailed, Err: errors.Join(errs...)})
			continue
		}
		for _, m := range core.Modalities {
			r.Product.SetEmbedding(m, slots[slotIndex(row, m)].vector)
		}
		kept = append(kept, r)
	}
	return kept, drops, nil
}

// chunked splits items into consecutive chunks of at most size.
func chunked[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
