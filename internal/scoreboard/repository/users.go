package repository

import (
	"context"
	"strconv"
	"strings"

	"arbiter/internal/common/db"
)

// UsernameLookup resolves user ids to display names for standings rows.
type UsernameLookup interface {
	UsernamesByID(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

type MySQLUsernameLookup struct {
	db db.Database
}

func NewUsernameLookup(database db.Database) UsernameLookup {
	return &MySQLUsernameLookup{db: database}
}

func (r *MySQLUsernameLookup) UsernamesByID(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	placeholders := make([]string, len(userIDs))
	args := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := "SELECT id, username FROM users WHERE id IN (" + strings.Join(placeholders, ", ") + ")"
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       int64
			username string
		)
		if err := rows.Scan(&id, &username); err != nil {
			return nil, err
		}
		names[id] = username
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Unknown ids still need a deterministic sort key.
	for _, id := range userIDs {
		if _, ok := names[id]; !ok {
			names[id] = "user-" + strconv.FormatInt(id, 10)
		}
	}
	return names, nil
}
