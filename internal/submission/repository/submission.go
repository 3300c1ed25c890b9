package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"arbiter/internal/common/db"

	"github.com/shopspring/decimal"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Submission is a single judge submission record. Judger is empty while the
// submission is unclaimed; Output is an opaque payload owned by the judger.
type Submission struct {
	ID               int64
	UserID           int64
	ProblemID        int64
	ContestID        int64
	ContestProblemID int64
	Language         string
	Body             string
	Verdict          Verdict
	Judger           string
	Output           json.RawMessage
	Score            decimal.Decimal
	CreatedAt        time.Time
}

// Pending reports whether the submission is claimable by a judger.
func (s *Submission) Pending() bool {
	return s.Verdict == VerdictWaiting && s.Judger == ""
}

// ListFilter narrows submission listings. Zero values mean "any".
type ListFilter struct {
	ContestID int64
	ProblemID int64
	UserID    int64
	Limit     int
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*Submission, error)

	// FirstPending returns the oldest unclaimed submission (by id), or nil
	// when the queue is empty.
	FirstPending(ctx context.Context) (*Submission, error)

	// ClaimByID conditionally assigns the judger column. The write only
	// lands when the column is still empty; the caller must re-read the row
	// to confirm ownership.
	ClaimByID(ctx context.Context, id int64, judger string) (bool, error)

	ApplyResult(ctx context.Context, id int64, verdict Verdict, score decimal.Decimal, output json.RawMessage) error
	ResetForRejudge(ctx context.Context, id int64) error

	ListByContest(ctx context.Context, contestID int64) ([]*Submission, error)
	List(ctx context.Context, filter ListFilter) ([]*Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "id, user_id, problem_id, contest_id, contest_problem_id, language, body, verdict, judger, output, score, created_at"

// Create inserts a submission record and backfills the generated id.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.Language == "" {
		return errors.New("language is required")
	}
	if submission.Verdict == "" {
		submission.Verdict = VerdictWaiting
	}
	if len(submission.Output) == 0 {
		submission.Output = json.RawMessage("{}")
	}

	query := `
		INSERT INTO submissions
		(user_id, problem_id, contest_id, contest_problem_id, language, body, verdict, judger, output, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.UserID,
		submission.ProblemID,
		nullInt64(submission.ContestID),
		nullInt64(submission.ContestProblemID),
		submission.Language,
		submission.Body,
		string(submission.Verdict),
		submission.Judger,
		string(submission.Output),
		submission.Score.String(),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	submission.ID = id
	return nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*Submission, error) {
	if id <= 0 {
		return nil, errors.New("id is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, id)
	submission, err := scanSubmissionRow(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

// FirstPending selects the oldest claimable submission, FIFO by id.
func (r *MySQLSubmissionRepository) FirstPending(ctx context.Context) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE verdict = ? AND judger = '' ORDER BY id ASC LIMIT 1"
	row := r.db.QueryRow(ctx, query, string(VerdictWaiting))
	submission, err := scanSubmissionRow(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return submission, nil
}

// ClaimByID writes the judger name only if the column is still empty.
func (r *MySQLSubmissionRepository) ClaimByID(ctx context.Context, id int64, judger string) (bool, error) {
	if id <= 0 {
		return false, errors.New("id is required")
	}
	if judger == "" {
		return false, errors.New("judger is required")
	}
	result, err := r.db.Exec(
		ctx,
		"UPDATE submissions SET judger = ? WHERE id = ? AND judger = ''",
		judger, id,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ApplyResult records the final verdict for a judged submission.
func (r *MySQLSubmissionRepository) ApplyResult(ctx context.Context, id int64, verdict Verdict, score decimal.Decimal, output json.RawMessage) error {
	if id <= 0 {
		return errors.New("id is required")
	}
	if len(output) == 0 {
		output = json.RawMessage("{}")
	}
	result, err := r.db.Exec(
		ctx,
		"UPDATE submissions SET verdict = ?, score = ?, output = ? WHERE id = ?",
		string(verdict), score.String(), string(output), id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// RowsAffected is zero both for a missing row and for an update that
		// changed nothing; distinguish with a read.
		if _, err := r.GetByID(ctx, nil, id); err != nil {
			return err
		}
	}
	return nil
}

// ResetForRejudge returns a submission to the pending state.
func (r *MySQLSubmissionRepository) ResetForRejudge(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("id is required")
	}
	_, err := r.db.Exec(
		ctx,
		"UPDATE submissions SET verdict = ?, judger = '', output = '{}', score = 0 WHERE id = ?",
		string(VerdictWaiting), id,
	)
	return err
}

// ListByContest returns all contest submissions in chronological order.
// Standings depend on this ordering.
func (r *MySQLSubmissionRepository) ListByContest(ctx context.Context, contestID int64) ([]*Submission, error) {
	if contestID <= 0 {
		return nil, errors.New("contestID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE contest_id = ? ORDER BY created_at ASC, id ASC"
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// List returns submissions matching the filter, newest first.
func (r *MySQLSubmissionRepository) List(ctx context.Context, filter ListFilter) ([]*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions"
	var conds []string
	var args []interface{}
	if filter.ContestID > 0 {
		conds = append(conds, "contest_id = ?")
		args = append(args, filter.ContestID)
	}
	if filter.ProblemID > 0 {
		conds = append(conds, "problem_id = ?")
		args = append(args, filter.ProblemID)
	}
	if filter.UserID > 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmissionRow(row rowScanner) (*Submission, error) {
	submission := &Submission{}
	var (
		contestID        *int64
		contestProblemID *int64
		verdict          string
		output           string
		score            string
	)
	if err := row.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&contestID,
		&contestProblemID,
		&submission.Language,
		&submission.Body,
		&verdict,
		&submission.Judger,
		&output,
		&score,
		&submission.CreatedAt,
	); err != nil {
		return nil, err
	}
	if contestID != nil {
		submission.ContestID = *contestID
	}
	if contestProblemID != nil {
		submission.ContestProblemID = *contestProblemID
	}
	submission.Verdict = Verdict(verdict)
	submission.Output = json.RawMessage(output)
	parsed, err := decimal.NewFromString(score)
	if err != nil {
		return nil, err
	}
	submission.Score = parsed
	return submission, nil
}

func scanSubmissions(rows db.Rows) ([]*Submission, error) {
	var submissions []*Submission
	for rows.Next() {
		submission, err := scanSubmissionRow(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func nullInt64(v int64) interface{} {
	if v <= 0 {
		return nil
	}
	return v
}
