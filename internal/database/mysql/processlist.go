package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/koustreak/dbguard/internal/database"
)

// ProcessList returns the server's sessions, as SHOW FULL PROCESSLIST does.
// Used to confirm that a killed statement is no longer running.
func (p *Pool) ProcessList(ctx context.Context) ([]database.Process, error) {
	const q = `
		SELECT id, user, db, command, time, state, info
		FROM information_schema.processlist
		ORDER BY id`

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("process list: %w", err)
	}
	defer rows.Close()

	var procs []database.Process
	for rows.Next() {
		var pr database.Process
		var db, state, info sql.NullString
		if err := rows.Scan(&pr.ID, &pr.User, &db, &pr.Command, &pr.Time, &state, &info); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		pr.DB = db.String
		pr.State = state.String
		pr.Info = info.String
		procs = append(procs, pr)
	}
	return procs, rows.Err()
}
