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


package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/poiesic/retailrag/core"
)

var (
	// ErrURIRequired indicates the store was opened without a database URI.
	ErrURIRequired = errors.New("database uri is required")

	// ErrInvalidDimension indicates a non-positive vector dimension.
	ErrInvalidDimension = errors.New("vector dimension must be positive")
)

// Postgres SQLSTATE codes mapped to core.ErrSchema.
var schemaCodes = map[pq.ErrorCode]bool{
	"42P01": true, // undefined_table
	"42703": true, // undefined_column
	"42804": true, // datatype_mismatch
	"42704": true, // undefined_object
	"22000": true, // data_exception, raised by pgvector on dimension mismatch
}

const queryCanceled pq.ErrorCode = "57014"

// classify maps driver and context errors onto the core taxonomy, keeping
// the original error in the message. Already classified errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{core.ErrStoreUnavailable, core.ErrStoreTimeout, core.ErrSchema} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", core.ErrStoreTimeout, op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == queryCanceled:
			return fmt.Errorf("%w: %s: %v", core.ErrStoreTimeout, op, err)
		case schemaCodes[pqErr.Code]:
			return fmt.Errorf("%w: %s: %v", core.ErrSchema, op, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "28":
			return fmt.Errorf("%w: %s: %v", core.ErrStoreUnavailable, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %s: %v", core.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
