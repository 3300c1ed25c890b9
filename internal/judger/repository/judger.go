package repository

import (
	"context"
	"errors"
	"time"

	"arbiter/internal/common/db"
)

var (
	ErrJudgerNotFound = errors.New("judger not found")
)

// Judger is a registered judge worker. KeyHash is the bcrypt hash of the
// worker's shared key; the plaintext is only shown once at registration.
type Judger struct {
	ID        int64
	Name      string
	KeyHash   string
	IPAddress string
	LastPing  *time.Time
	CreatedAt time.Time
}

type JudgerRepository interface {
	Create(ctx context.Context, tx db.Transaction, judger *Judger) (int64, error)
	GetByName(ctx context.Context, name string) (*Judger, error)
	RecordHeartbeat(ctx context.Context, name, ipAddress string, at time.Time) error
	List(ctx context.Context) ([]*Judger, error)
}

type MySQLJudgerRepository struct {
	db db.Database
}

func NewJudgerRepository(database db.Database) JudgerRepository {
	return &MySQLJudgerRepository{db: database}
}

const judgerColumns = "id, name, key_hash, ip_address, last_ping, created_at"

func (r *MySQLJudgerRepository) Create(ctx context.Context, tx db.Transaction, judger *Judger) (int64, error) {
	if judger == nil {
		return 0, errors.New("judger is nil")
	}
	if judger.Name == "" {
		return 0, errors.New("name is required")
	}
	if judger.KeyHash == "" {
		return 0, errors.New("keyHash is required")
	}

	query := "INSERT INTO judgers (name, key_hash, ip_address) VALUES (?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, judger.Name, judger.KeyHash, judger.IPAddress)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	judger.ID = id
	return id, nil
}

func (r *MySQLJudgerRepository) GetByName(ctx context.Context, name string) (*Judger, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	query := "SELECT " + judgerColumns + " FROM judgers WHERE name = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, name)
	judger := &Judger{}
	var (
		ipAddress *string
		lastPing  *time.Time
	)
	if err := row.Scan(
		&judger.ID,
		&judger.Name,
		&judger.KeyHash,
		&ipAddress,
		&lastPing,
		&judger.CreatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrJudgerNotFound
		}
		return nil, err
	}
	if ipAddress != nil {
		judger.IPAddress = *ipAddress
	}
	judger.LastPing = lastPing
	return judger, nil
}

func (r *MySQLJudgerRepository) RecordHeartbeat(ctx context.Context, name, ipAddress string, at time.Time) error {
	if name == "" {
		return errors.New("name is required")
	}
	result, err := r.db.Exec(
		ctx,
		"UPDATE judgers SET ip_address = ?, last_ping = ? WHERE name = ?",
		ipAddress, at, name,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByName(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *MySQLJudgerRepository) List(ctx context.Context) ([]*Judger, error) {
	query := "SELECT " + judgerColumns + " FROM judgers ORDER BY name ASC"
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var judgers []*Judger
	for rows.Next() {
		judger := &Judger{}
		var (
			ipAddress *string
			lastPing  *time.Time
		)
		if err := rows.Scan(
			&judger.ID,
			&judger.Name,
			&judger.KeyHash,
			&ipAddress,
			&lastPing,
			&judger.CreatedAt,
		); err != nil {
			return nil, err
		}
		if ipAddress != nil {
			judger.IPAddress = *ipAddress
		}
		judger.LastPing = lastPing
		judgers = append(judgers, judger)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return judgers, nil
}
