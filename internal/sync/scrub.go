package sync

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// scrubTable is the tombstone-reconciliation backstop: a full local-id
// vs remote-id set difference that catches rows the incremental
// watermark sync missed a delete for (a permanently deleted record
// never emits a SystemModStamp change, so it never appears in an
// incremental query). It diffs a dumped local id file against a fresh
// "select Id from X" query and deletes whatever is local-only.
//
// Remote ids are collected into a set first since SOQL offers no
// ordering guarantee matching DumpIDs' ascending order; local ids are
// still streamed rather than buffered, since the local dump is the
// side under our control and typically much larger than the resulting
// orphan set.
func (e *Engine) scrubTable(ctx context.Context, schemaDriver types.SchemaDriver, table string) (int, error) {
	remoteIDs, err := e.remoteIDSet(ctx, table)
	if err != nil {
		return 0, errors.Wrapf(err, "scrub %s: fetch remote ids", table)
	}

	pr, pw := io.Pipe()
	dumpErrCh := make(chan error, 1)
	go func() {
		dumpErrCh <- schemaDriver.DumpIDs(ctx, table, pw)
		pw.Close()
	}()

	var orphans []string
	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		id := scanner.Text()
		if id == "" {
			continue
		}
		if _, ok := remoteIDs[types.CanonicalID(id)]; !ok {
			orphans = append(orphans, id)
		}
	}
	if err := scanner.Err(); err != nil {
		pr.Close()
		<-dumpErrCh
		return 0, errors.Wrapf(err, "scrub %s: read id dump", table)
	}
	if err := <-dumpErrCh; err != nil {
		return 0, errors.Wrapf(err, "scrub %s: dump local ids", table)
	}

	if len(orphans) == 0 {
		return 0, nil
	}

	tx, err := schemaDriver.Begin(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range orphans {
		n, err := schemaDriver.Delete(ctx, tx, table, id)
		if err != nil {
			tx.Rollback(ctx)
			return deleted, errors.Wrapf(err, "scrub %s: delete orphan %s", table, id)
		}
		deleted += n
	}

	if err := tx.Commit(ctx); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// remoteIDSet queries every remote id for table and returns it as a
// lookup set keyed by the 15-char canonical id, matching the form
// DumpIDs writes locally.
func (e *Engine) remoteIDSet(ctx context.Context, table string) (map[string]struct{}, error) {
	soql := fmt.Sprintf("select Id from %s", table)
	stream, err := e.Remote.Query(ctx, soql, false)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	for stream.Next(ctx) {
		rec := stream.Record()
		id, _ := rec["Id"].(string)
		if id != "" {
			ids[types.CanonicalID(id)] = struct{}{}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
