package service

import (
	"context"
	"errors"
	"sort"
	"time"

	contestrepo "arbiter/internal/contest/repository"
	scoreboardrepo "arbiter/internal/scoreboard/repository"
	submissionrepo "arbiter/internal/submission/repository"
	pkgerrors "arbiter/pkg/errors"

	"github.com/shopspring/decimal"
)

// Config holds the dependencies of ScoreboardService.
type Config struct {
	Contests    contestrepo.ContestRepository
	Submissions submissionrepo.SubmissionRepository
	Usernames   scoreboardrepo.UsernameLookup
}

// ScoreboardService computes contest standings. Standings are recomputed on
// every request from the submission log; there is no cached or incremental
// state to drift.
type ScoreboardService struct {
	cfg Config
}

func NewScoreboardService(cfg Config) (*ScoreboardService, error) {
	if cfg.Contests == nil {
		return nil, errors.New("contest repository is required")
	}
	if cfg.Submissions == nil {
		return nil, errors.New("submission repository is required")
	}
	if cfg.Usernames == nil {
		return nil, errors.New("username lookup is required")
	}
	return &ScoreboardService{cfg: cfg}, nil
}

// Cell is the governing submission for one (contestant, problem) pair.
type Cell struct {
	SubmissionID int64
	Verdict      submissionrepo.Verdict
	// Minute is whole minutes from contest start to the governing
	// submission.
	Minute int64
}

// Row is one contestant's standing.
type Row struct {
	UserID   int64
	Username string
	Score    decimal.Decimal
	Penalty  int64
	// Cells is keyed by contest-problem id.
	Cells map[int64]*Cell
}

// Standings is the computed scoreboard for one contest.
type Standings struct {
	ContestID int64
	Problems  []*contestrepo.ContestProblem
	Rows      []*Row
}

// ComputeStandings folds the contest's submission log, in chronological
// order, into per-contestant rows.
//
// The governing cell for a (contestant, problem) pair is the latest
// submission seen, except that an accepted cell is frozen: once a contestant
// has solved a problem, later submissions to it change nothing. An accepted
// governing cell contributes the problem's point value to the score and the
// whole minutes from contest start to the penalty.
func (s *ScoreboardService) ComputeStandings(ctx context.Context, contestID int64) (*Standings, error) {
	if contestID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("contest id is required")
	}

	contest, err := s.cfg.Contests.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, contestrepo.ErrContestNotFound) {
			return nil, pkgerrors.New(pkgerrors.ContestNotFound)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}

	submissions, err := s.cfg.Submissions.ListByContest(ctx, contestID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}

	points := make(map[int64]decimal.Decimal, len(contest.Problems))
	for _, problem := range contest.Problems {
		points[problem.ID] = problem.Points
	}

	rows := make(map[int64]*Row)
	for _, submission := range submissions {
		problemPoints, known := points[submission.ContestProblemID]
		if !known {
			continue
		}

		row, ok := rows[submission.UserID]
		if !ok {
			row = &Row{
				UserID: submission.UserID,
				Score:  decimal.Zero,
				Cells:  make(map[int64]*Cell),
			}
			rows[submission.UserID] = row
		}

		prev := row.Cells[submission.ContestProblemID]
		if prev != nil && prev.Verdict.IsAccepted() {
			// Solved cells are frozen for display and scoring alike.
			continue
		}

		cell := &Cell{
			SubmissionID: submission.ID,
			Verdict:      submission.Verdict,
			Minute:       minutesSince(contest.StartTime, submission.CreatedAt),
		}
		row.Cells[submission.ContestProblemID] = cell

		if cell.Verdict.IsAccepted() {
			row.Score = row.Score.Add(problemPoints)
			row.Penalty += cell.Minute
		}
	}

	userIDs := make([]int64, 0, len(rows))
	for userID := range rows {
		userIDs = append(userIDs, userID)
	}
	usernames, err := s.cfg.Usernames.UsernamesByID(ctx, userIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}

	ordered := make([]*Row, 0, len(rows))
	for _, row := range rows {
		row.Username = usernames[row.UserID]
		ordered = append(ordered, row)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Score.Equal(b.Score) {
			return a.Score.GreaterThan(b.Score)
		}
		if a.Penalty != b.Penalty {
			return a.Penalty < b.Penalty
		}
		return a.Username < b.Username
	})

	return &Standings{
		ContestID: contestID,
		Problems:  contest.Problems,
		Rows:      ordered,
	}, nil
}

func minutesSince(start, at time.Time) int64 {
	delta := at.Sub(start)
	if delta < 0 {
		return 0
	}
	return int64(delta / time.Minute)
}
