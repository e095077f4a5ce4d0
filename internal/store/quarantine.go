package store

import "fmt"

// QuarantinedEntry is a history row that failed to decode on load.
type QuarantinedEntry struct {
	ID        string `json:"id"`
	ContextID string `json:"context_id"`
	Seq       int    `json:"seq"`
	Handle    string `json:"handle"`
	Reason    string `json:"reason"`
	Raw       string `json:"raw"`
	CreatedAt int64  `json:"created_at"`
}

// Quarantined returns the quarantined rows of a context, oldest first.
func (db *DB) Quarantined(contextID string) ([]QuarantinedEntry, error) {
	rows, err := db.Query(`
		SELECT id, context_id, seq, handle, reason, raw, created_at
		FROM quarantine WHERE context_id = ? ORDER BY created_at, id
	`, contextID)
	if err != nil {
		return nil, fmt.Errorf("get quarantined: %w", err)
	}
	defer rows.Close()

	var out []QuarantinedEntry
	for rows.Next() {
		var q QuarantinedEntry
		if err := rows.Scan(&q.ID, &q.ContextID, &q.Seq, &q.Handle, &q.Reason, &q.Raw, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quarantined: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
