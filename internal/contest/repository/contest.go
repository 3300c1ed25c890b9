package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"

	"github.com/shopspring/decimal"
)

const (
	defaultContestCacheTTL      = 10 * time.Minute
	defaultContestCacheEmptyTTL = 2 * time.Minute
	contestCacheKeyPrefix       = "contest:"
)

var (
	ErrContestNotFound        = errors.New("contest not found")
	ErrContestProblemNotFound = errors.New("contest problem not found")
)

// Contest is a timed competition. Problems hold the ordered problem set;
// scoreboard columns follow this order.
type Contest struct {
	ID        int64
	Title     string
	StartTime time.Time
	EndTime   time.Time
	CreatedAt time.Time
	Problems  []*ContestProblem
}

// Running reports whether the contest window contains now.
func (c *Contest) Running(now time.Time) bool {
	return !now.Before(c.StartTime) && now.Before(c.EndTime)
}

// ContestProblem attaches a problem to a contest with a display name and a
// point value.
type ContestProblem struct {
	ID        int64
	ContestID int64
	ProblemID int64
	Name      string
	Points    decimal.Decimal
	Position  int
}

type ContestRepository interface {
	Create(ctx context.Context, tx db.Transaction, contest *Contest) (int64, error)

	// GetByID returns the contest with its ordered problem set.
	GetByID(ctx context.Context, tx db.Transaction, contestID int64) (*Contest, error)

	// GetProblem resolves one contest problem by its own id, scoped to the
	// contest.
	GetProblem(ctx context.Context, contestID, contestProblemID int64) (*ContestProblem, error)
}

type MySQLContestRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewContestRepository(database db.Database, cacheClient cache.Cache) ContestRepository {
	return NewContestRepositoryWithTTL(database, cacheClient, defaultContestCacheTTL, defaultContestCacheEmptyTTL)
}

func NewContestRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ContestRepository {
	if ttl <= 0 {
		ttl = defaultContestCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultContestCacheEmptyTTL
	}
	return &MySQLContestRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func (r *MySQLContestRepository) Create(ctx context.Context, tx db.Transaction, contest *Contest) (int64, error) {
	if contest == nil {
		return 0, errors.New("contest is nil")
	}
	if contest.Title == "" {
		return 0, errors.New("title is required")
	}
	if !contest.EndTime.After(contest.StartTime) {
		return 0, errors.New("endTime must be after startTime")
	}

	querier := db.GetQuerier(r.db, tx)
	result, err := querier.Exec(
		ctx,
		"INSERT INTO contests (title, start_time, end_time) VALUES (?, ?, ?)",
		contest.Title, contest.StartTime, contest.EndTime,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	contest.ID = id

	for i, problem := range contest.Problems {
		problem.ContestID = id
		problem.Position = i
		res, err := querier.Exec(
			ctx,
			"INSERT INTO contest_problems (contest_id, problem_id, name, points, position) VALUES (?, ?, ?, ?, ?)",
			id, problem.ProblemID, problem.Name, problem.Points.String(), problem.Position,
		)
		if err != nil {
			return 0, err
		}
		problemID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		problem.ID = problemID
	}
	return id, nil
}

func (r *MySQLContestRepository) GetByID(ctx context.Context, tx db.Transaction, contestID int64) (*Contest, error) {
	if contestID <= 0 {
		return nil, errors.New("contestID is required")
	}
	if r.cache != nil && tx == nil {
		contest, err := cache.GetWithCached[*Contest](
			ctx,
			r.cache,
			contestCacheKey(contestID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(contest *Contest) bool { return contest == nil },
			marshalContest,
			unmarshalContest,
			func(ctx context.Context) (*Contest, error) {
				contest, err := r.getByIDFromDB(ctx, nil, contestID)
				if err != nil {
					if errors.Is(err, ErrContestNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return contest, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if contest == nil {
			return nil, ErrContestNotFound
		}
		return contest, nil
	}
	return r.getByIDFromDB(ctx, tx, contestID)
}

func (r *MySQLContestRepository) GetProblem(ctx context.Context, contestID, contestProblemID int64) (*ContestProblem, error) {
	if contestID <= 0 || contestProblemID <= 0 {
		return nil, errors.New("contestID and contestProblemID are required")
	}
	contest, err := r.GetByID(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}
	for _, problem := range contest.Problems {
		if problem.ID == contestProblemID {
			return problem, nil
		}
	}
	return nil, ErrContestProblemNotFound
}

func (r *MySQLContestRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, contestID int64) (*Contest, error) {
	querier := db.GetQuerier(r.db, tx)

	row := querier.QueryRow(
		ctx,
		"SELECT id, title, start_time, end_time, created_at FROM contests WHERE id = ? LIMIT 1",
		contestID,
	)
	contest := &Contest{}
	if err := row.Scan(
		&contest.ID,
		&contest.Title,
		&contest.StartTime,
		&contest.EndTime,
		&contest.CreatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}

	rows, err := querier.Query(
		ctx,
		"SELECT id, contest_id, problem_id, name, points, position FROM contest_problems WHERE contest_id = ? ORDER BY position ASC, id ASC",
		contestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		problem := &ContestProblem{}
		var points string
		if err := rows.Scan(
			&problem.ID,
			&problem.ContestID,
			&problem.ProblemID,
			&problem.Name,
			&points,
			&problem.Position,
		); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(points)
		if err != nil {
			return nil, err
		}
		problem.Points = parsed
		contest.Problems = append(contest.Problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contest, nil
}

func contestCacheKey(contestID int64) string {
	return contestCacheKeyPrefix + strconv.FormatInt(contestID, 10)
}

func marshalContest(contest *Contest) string {
	if contest == nil {
		return ""
	}
	data, err := json.Marshal(contest)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalContest(data string) (*Contest, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var contest Contest
	if err := json.Unmarshal([]byte(data), &contest); err != nil {
		return nil, err
	}
	return &contest, nil
}
