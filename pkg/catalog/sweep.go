package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/replica"
)

// RecoverOrphanLocks scans every catalog row left INTERMEDIATE for
// longer than olderThan and commits it to STALE through the ordinary
// finalize commit path: no separate write path exists for this, and a
// recovered row is indistinguishable from one a failed close would
// have produced. A row whose modify_ts does not parse has no known age
// and is recovered only when olderThan is zero. It returns the number of
// rows recovered.
func (c *Catalog) RecoverOrphanLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	rows, err := c.store.AllRows()
	if err != nil {
		return 0, errs.Wrap(errs.SysLibraryError, "catalog.RecoverOrphanLocks", err)
	}

	cutoff := cutoffTime(ctx, olderThan)
	recovered := 0
	for _, row := range rows {
		if row.DataStatus != strconv.Itoa(int(replica.Intermediate)) {
			continue
		}
		modifyTS, err := strconv.ParseInt(row.ModifyTS, 10, 64)
		if err != nil && olderThan > 0 {
			continue
		}
		if time.Unix(modifyTS, 0).After(cutoff) {
			continue
		}

		payload, err := staleTransitionPayload(row)
		if err != nil {
			return recovered, errs.Wrap(errs.SysInternalErr, "catalog.RecoverOrphanLocks", err)
		}
		if err := c.Commit(ctx, payload); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// cutoffTime lets tests inject "now" via context; production callers
// never set it and get the real wall clock.
type nowKey struct{}

func cutoffTime(ctx context.Context, olderThan time.Duration) time.Time {
	if now, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return now.Add(-olderThan)
	}
	return time.Now().Add(-olderThan)
}

func staleTransitionPayload(row Row) (json.RawMessage, error) {
	before := row.Canonical
	after := row.Canonical
	after.DataStatus = strconv.Itoa(int(replica.Stale))
	after.DataIsDirty = "0"

	return json.Marshal(finalizePayload{
		DataID: row.DataID,
		Replicas: []replicaPair{
			{Before: before, After: after},
		},
	})
}
