package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
)

const (
	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 5 * time.Minute
	problemCacheKeyPrefix       = "problem:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// Problem carries the metadata a judger needs to run a submission.
// TimeLimit is milliseconds, MemoryLimit is kilobytes. TestDataKey is the
// object-storage key of the problem's test-data pack.
type Problem struct {
	ID          int64
	Title       string
	TimeLimit   int64
	MemoryLimit int64
	TestDataKey string
	IsPublic    bool
	CreatedAt   time.Time
}

type ProblemRepository interface {
	Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error)
	List(ctx context.Context, publicOnly bool) ([]*Problem, error)
}

type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) ProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const problemColumns = "id, title, time_limit, memory_limit, test_data_key, is_public, created_at"

func (r *MySQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}
	if problem.Title == "" {
		return 0, errors.New("title is required")
	}
	if problem.TimeLimit <= 0 {
		return 0, errors.New("timeLimit is required")
	}
	if problem.MemoryLimit <= 0 {
		return 0, errors.New("memoryLimit is required")
	}

	query := "INSERT INTO problems (title, time_limit, memory_limit, test_data_key, is_public) VALUES (?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx, query,
		problem.Title, problem.TimeLimit, problem.MemoryLimit, problem.TestDataKey, problem.IsPublic,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	problem.ID = id
	if r.cache != nil && tx == nil {
		if payload := marshalProblem(problem); payload != "" {
			_ = r.cache.Set(ctx, problemCacheKey(id), payload, cache.JitterTTL(r.ttl))
		}
	}
	return id, nil
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	if problemID <= 0 {
		return nil, errors.New("problemID is required")
	}
	if r.cache != nil && tx == nil {
		problem, err := cache.GetWithCached[*Problem](
			ctx,
			r.cache,
			problemCacheKey(problemID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(problem *Problem) bool { return problem == nil },
			marshalProblem,
			unmarshalProblem,
			func(ctx context.Context) (*Problem, error) {
				problem, err := r.getByIDFromDB(ctx, nil, problemID)
				if err != nil {
					if errors.Is(err, ErrProblemNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return problem, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, ErrProblemNotFound
		}
		return problem, nil
	}
	return r.getByIDFromDB(ctx, tx, problemID)
}

func (r *MySQLProblemRepository) List(ctx context.Context, publicOnly bool) ([]*Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems"
	if publicOnly {
		query += " WHERE is_public = 1"
	}
	query += " ORDER BY id ASC"
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []*Problem
	for rows.Next() {
		problem := &Problem{}
		if err := rows.Scan(
			&problem.ID,
			&problem.Title,
			&problem.TimeLimit,
			&problem.MemoryLimit,
			&problem.TestDataKey,
			&problem.IsPublic,
			&problem.CreatedAt,
		); err != nil {
			return nil, err
		}
		problems = append(problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return problems, nil
}

func (r *MySQLProblemRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems WHERE id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, problemID)
	problem := &Problem{}
	if err := row.Scan(
		&problem.ID,
		&problem.Title,
		&problem.TimeLimit,
		&problem.MemoryLimit,
		&problem.TestDataKey,
		&problem.IsPublic,
		&problem.CreatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return problem, nil
}

func problemCacheKey(problemID int64) string {
	return problemCacheKeyPrefix + strconv.FormatInt(problemID, 10)
}

func marshalProblem(problem *Problem) string {
	if problem == nil {
		return ""
	}
	data, err := json.Marshal(problem)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(data string) (*Problem, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var problem Problem
	if err := json.Unmarshal([]byte(data), &problem); err != nil {
		return nil, err
	}
	return &problem, nil
}
