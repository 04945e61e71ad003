package sequence

import (
	"context"
	"fmt"

	"github.com/altiplano-erp/altiplano-erp/internal/platform/db"
)

// Counter allocates identifiers from the id_counters table. It runs
// against whatever DBTX it is given, so callers decide the transaction
// boundary.
type Counter struct {
	q db.DBTX
}

func NewCounter(q db.DBTX) *Counter {
	return &Counter{q: q}
}

// Next increments the counter for the kind and returns the formatted id.
// The upsert serializes concurrent callers on the counter row, so two
// transactions can never observe the same value.
func (c *Counter) Next(ctx context.Context, k Kind) (string, error) {
	const query = `
INSERT INTO id_counters (kind, value)
VALUES ($1, 1)
ON CONFLICT (kind) DO UPDATE SET value = id_counters.value + 1
RETURNING value`

	var n int64
	if err := c.q.QueryRow(ctx, query, string(k)).Scan(&n); err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", k, err)
	}
	return Format(k, n)
}
