// Package postdb is the thin adapter over the relational data layer that
// supplies fetch functions to the cache manager. The schema and its SQL
// functions live outside this subsystem; the cache core only ever sees
// the returned maps.
package postdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// DB wraps the Postgres connection pool.
type DB struct {
	conn *sql.DB
}

// Init opens the Postgres pool and verifies the connection.
func Init(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	return &DB{conn: conn}, nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// PostByID loads one post through the data layer's get_post_by_id
// function. Returns nil with no error when the post does not exist, so
// the cache manager can pass the absence through uncached.
func (d *DB) PostByID(ctx context.Context, postID int64) (map[string]any, error) {
	rows, err := d.query(ctx, "SELECT * FROM get_post_by_id($1)", postID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// CommentsForPost loads a post's comments through get_comments.
func (d *DB) CommentsForPost(ctx context.Context, postID int64) ([]map[string]any, error) {
	return d.query(ctx, "SELECT * FROM get_comments($1, NULL)", postID)
}

// PopularPosts loads the current popular posts for the refresh sweep.
func (d *DB) PopularPosts(ctx context.Context, limit int) ([]map[string]any, error) {
	return d.query(ctx, "SELECT * FROM get_popular_posts($1)", limit)
}

// query runs a statement and converts every row into a map keyed by
// column name, with values reduced to JSON-representable types.
func (d *DB) query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	rows, err := d.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		dests := make([]any, len(cols))
		for i, t := range types {
			if t.DatabaseTypeName() == "JSONB" || t.DatabaseTypeName() == "JSON" {
				dests[i] = &pqtype.NullRawMessage{}
			} else {
				dests[i] = new(any)
			}
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(dests[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize reduces driver scan results to the plain types the codec can
// round-trip: strings, float64s, bools, nested maps and slices, nil.
func normalize(dest any) any {
	switch v := dest.(type) {
	case *pqtype.NullRawMessage:
		if !v.Valid {
			return nil
		}
		var decoded any
		if err := json.Unmarshal(v.RawMessage, &decoded); err != nil {
			return string(v.RawMessage)
		}
		return decoded
	case *any:
		switch val := (*v).(type) {
		case nil:
			return nil
		case []byte:
			return string(val)
		case time.Time:
			return val.UTC().Format(time.RFC3339)
		case int64:
			return float64(val)
		default:
			return val
		}
	}
	return nil
}
