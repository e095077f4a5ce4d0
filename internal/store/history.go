package store

import (
	"fmt"
	"time"

	"github.com/lazypower/attention/internal/aggregate"
	"github.com/lazypower/attention/internal/event"
)

const historyColumns = `seq, kind, structure_kind, handle, origin_id, navigated_relation, delta,
	interest_contribution, start_date, end_date, num_collapsed, event_count_on_creation, durations, score`

// SaveEntry writes the history entry at position seq of a context, creating
// the context if needed. An existing row at seq is overwritten in place, which
// is how a fold into the last entry is persisted.
func (db *DB) SaveEntry(contextID string, seq int, a aggregate.Aggregate) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("save entry %s/%d: %w", contextID, seq, err)
	}
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save entry: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO contexts (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, contextID, now, now); err != nil {
		return fmt.Errorf("touch context: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO history (id, context_id, `+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_id, seq) DO UPDATE SET
			kind = excluded.kind,
			structure_kind = excluded.structure_kind,
			handle = excluded.handle,
			origin_id = excluded.origin_id,
			navigated_relation = excluded.navigated_relation,
			delta = excluded.delta,
			interest_contribution = excluded.interest_contribution,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			num_collapsed = excluded.num_collapsed,
			event_count_on_creation = excluded.event_count_on_creation,
			durations = excluded.durations,
			score = excluded.score
	`, db.ids.next(), contextID, seq,
		a.Kind.String(), a.StructureKind, a.Handle, a.OriginID, a.NavigatedRelation, a.Delta,
		a.InterestContribution, a.Date.UnixMilli(), a.EndDate.UnixMilli(),
		a.NumCollapsedEvents, a.EventCountOnCreation, a.DurationsText(), a.Score,
	); err != nil {
		return fmt.Errorf("save entry %s/%d: %w", contextID, seq, err)
	}

	return tx.Commit()
}

type historyRow struct {
	id        string
	seq       int
	durations string
	agg       aggregate.Aggregate
}

// LoadHistory returns the persisted history of a context, oldest first.
//
// Rows whose duration text does not parse are moved to the quarantine table
// and the remaining rows are renumbered so positions stay contiguous.
func (db *DB) LoadHistory(contextID string) ([]aggregate.Aggregate, error) {
	rows, err := db.Query(`
		SELECT id, `+historyColumns+`
		FROM history WHERE context_id = ? ORDER BY seq
	`, contextID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var all []historyRow
	for rows.Next() {
		var (
			r              historyRow
			kind           string
			startMs, endMs int64
		)
		if err := rows.Scan(&r.id, &r.seq, &kind, &r.agg.StructureKind, &r.agg.Handle,
			&r.agg.OriginID, &r.agg.NavigatedRelation, &r.agg.Delta, &r.agg.InterestContribution,
			&startMs, &endMs, &r.agg.NumCollapsedEvents, &r.agg.EventCountOnCreation,
			&r.durations, &r.agg.Score); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.agg.Kind = event.ParseKind(kind)
		r.agg.Date = time.UnixMilli(startMs).UTC()
		r.agg.EndDate = time.UnixMilli(endMs).UTC()
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}
	rows.Close()

	var (
		out  []aggregate.Aggregate
		kept []historyRow
		bad  []historyRow
		why  []error
	)
	for _, r := range all {
		agg, err := r.agg.WithDurationsText(r.durations)
		if err != nil {
			bad = append(bad, r)
			why = append(why, err)
			continue
		}
		kept = append(kept, r)
		out = append(out, agg)
	}
	if len(bad) > 0 {
		if err := db.quarantine(contextID, bad, why, kept); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *DB) quarantine(contextID string, bad []historyRow, why []error, kept []historyRow) error {
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin quarantine: %w", err)
	}
	defer tx.Rollback()

	for i, r := range bad {
		if _, err := tx.Exec(`
			INSERT INTO quarantine (id, context_id, seq, handle, reason, raw, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, db.ids.next(), contextID, r.seq, r.agg.Handle, why[i].Error(), r.durations, now); err != nil {
			return fmt.Errorf("quarantine %s/%d: %w", contextID, r.seq, err)
		}
		if _, err := tx.Exec(`DELETE FROM history WHERE id = ?`, r.id); err != nil {
			return fmt.Errorf("quarantine %s/%d: %w", contextID, r.seq, err)
		}
	}

	// Ascending order never collides with a row that has yet to move.
	for i, r := range kept {
		if r.seq == i {
			continue
		}
		if _, err := tx.Exec(`UPDATE history SET seq = ? WHERE id = ?`, i, r.id); err != nil {
			return fmt.Errorf("renumber %s/%d: %w", contextID, r.seq, err)
		}
	}
	return tx.Commit()
}

// DeleteHistory removes every history entry of a context and returns how
// many were removed. The context row itself is kept.
func (db *DB) DeleteHistory(contextID string) (int64, error) {
	result, err := db.Exec(`DELETE FROM history WHERE context_id = ?`, contextID)
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// HistoryLen returns the number of persisted entries of a context.
func (db *DB) HistoryLen(contextID string) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM history WHERE context_id = ?`, contextID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
