package postgres

import (
	"context"
	"fmt"

	"github.com/koustreak/dbguard/internal/database"
)

// ProcessList returns client backends from pg_stat_activity.
func (p *Pool) ProcessList(ctx context.Context) ([]database.Process, error) {
	const q = `
		SELECT pid,
		       coalesce(usename, ''),
		       coalesce(datname, ''),
		       coalesce(backend_type, ''),
		       coalesce(extract(epoch FROM now() - query_start)::bigint, 0),
		       coalesce(state, ''),
		       coalesce(query, '')
		FROM pg_stat_activity
		WHERE backend_type = 'client backend'
		ORDER BY pid`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("process list: %w", err)
	}
	defer rows.Close()

	var procs []database.Process
	for rows.Next() {
		var pr database.Process
		var pid int32
		if err := rows.Scan(&pid, &pr.User, &pr.DB, &pr.Command, &pr.Time, &pr.State, &pr.Info); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		pr.ID = uint64(pid)
		procs = append(procs, pr)
	}
	return procs, rows.Err()
}
