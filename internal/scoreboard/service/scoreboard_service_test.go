package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"arbiter/internal/common/db"
	contestrepo "arbiter/internal/contest/repository"
	submissionrepo "arbiter/internal/submission/repository"
	pkgerrors "arbiter/pkg/errors"

	"github.com/shopspring/decimal"
)

var contestStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeContestRepo struct {
	contests map[int64]*contestrepo.Contest
}

func (r *fakeContestRepo) Create(ctx context.Context, tx db.Transaction, contest *contestrepo.Contest) (int64, error) {
	return 0, nil
}

func (r *fakeContestRepo) GetByID(ctx context.Context, tx db.Transaction, contestID int64) (*contestrepo.Contest, error) {
	contest, ok := r.contests[contestID]
	if !ok {
		return nil, contestrepo.ErrContestNotFound
	}
	return contest, nil
}

func (r *fakeContestRepo) GetProblem(ctx context.Context, contestID, contestProblemID int64) (*contestrepo.ContestProblem, error) {
	contest, err := r.GetByID(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}
	for _, problem := range contest.Problems {
		if problem.ID == contestProblemID {
			return problem, nil
		}
	}
	return nil, contestrepo.ErrContestProblemNotFound
}

type fakeSubmissionRepo struct {
	byContest map[int64][]*submissionrepo.Submission
}

func (r *fakeSubmissionRepo) Create(ctx context.Context, tx db.Transaction, submission *submissionrepo.Submission) error {
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, tx db.Transaction, id int64) (*submissionrepo.Submission, error) {
	return nil, submissionrepo.ErrSubmissionNotFound
}

func (r *fakeSubmissionRepo) FirstPending(ctx context.Context) (*submissionrepo.Submission, error) {
	return nil, nil
}

func (r *fakeSubmissionRepo) ClaimByID(ctx context.Context, id int64, judger string) (bool, error) {
	return false, nil
}

func (r *fakeSubmissionRepo) ApplyResult(ctx context.Context, id int64, verdict submissionrepo.Verdict, score decimal.Decimal, output json.RawMessage) error {
	return nil
}

func (r *fakeSubmissionRepo) ResetForRejudge(ctx context.Context, id int64) error {
	return nil
}

func (r *fakeSubmissionRepo) ListByContest(ctx context.Context, contestID int64) ([]*submissionrepo.Submission, error) {
	return r.byContest[contestID], nil
}

func (r *fakeSubmissionRepo) List(ctx context.Context, filter submissionrepo.ListFilter) ([]*submissionrepo.Submission, error) {
	return nil, nil
}

type fakeUsernames map[int64]string

func (f fakeUsernames) UsernamesByID(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := f[id]; ok {
			names[id] = name
		} else {
			names[id] = "unknown"
		}
	}
	return names, nil
}

func points(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func testContest() *contestrepo.Contest {
	return &contestrepo.Contest{
		ID:        1,
		Title:     "Spring Round",
		StartTime: contestStart,
		EndTime:   contestStart.Add(5 * time.Hour),
		Problems: []*contestrepo.ContestProblem{
			{ID: 101, ContestID: 1, ProblemID: 7, Name: "A", Points: points("100"), Position: 0},
			{ID: 102, ContestID: 1, ProblemID: 8, Name: "B", Points: points("300"), Position: 1},
		},
	}
}

func sub(id, userID, contestProblemID int64, verdict submissionrepo.Verdict, minute int64) *submissionrepo.Submission {
	return &submissionrepo.Submission{
		ID:               id,
		UserID:           userID,
		ContestID:        1,
		ContestProblemID: contestProblemID,
		Verdict:          verdict,
		CreatedAt:        contestStart.Add(time.Duration(minute) * time.Minute),
	}
}

func newTestService(t *testing.T, contest *contestrepo.Contest, submissions []*submissionrepo.Submission, usernames fakeUsernames) *ScoreboardService {
	t.Helper()
	contests := map[int64]*contestrepo.Contest{}
	if contest != nil {
		contests[contest.ID] = contest
	}
	svc, err := NewScoreboardService(Config{
		Contests:    &fakeContestRepo{contests: contests},
		Submissions: &fakeSubmissionRepo{byContest: map[int64][]*submissionrepo.Submission{1: submissions}},
		Usernames:   usernames,
	})
	if err != nil {
		t.Fatalf("NewScoreboardService: %v", err)
	}
	return svc
}

func TestStandingsPenaltyBreaksScoreTie(t *testing.T) {
	// Both solve problem A; the earlier accept ranks first.
	submissions := []*submissionrepo.Submission{
		sub(1, 10, 101, submissionrepo.VerdictAccepted, 5),
		sub(2, 20, 101, submissionrepo.VerdictAccepted, 10),
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice", 20: "bob"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	if len(standings.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(standings.Rows))
	}
	if standings.Rows[0].Username != "alice" || standings.Rows[1].Username != "bob" {
		t.Fatalf("order = %s, %s; want alice, bob", standings.Rows[0].Username, standings.Rows[1].Username)
	}
	if standings.Rows[0].Penalty != 5 || standings.Rows[1].Penalty != 10 {
		t.Fatalf("penalties = %d, %d; want 5, 10", standings.Rows[0].Penalty, standings.Rows[1].Penalty)
	}
	if !standings.Rows[0].Score.Equal(points("100")) {
		t.Fatalf("score = %s, want 100", standings.Rows[0].Score)
	}
}

func TestStandingsScoreOutranksPenalty(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		// bob solves only A, instantly.
		sub(1, 20, 101, submissionrepo.VerdictAccepted, 0),
		// alice solves A and B, slowly.
		sub(2, 10, 101, submissionrepo.VerdictAccepted, 60),
		sub(3, 10, 102, submissionrepo.VerdictAccepted, 120),
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice", 20: "bob"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	if standings.Rows[0].Username != "alice" {
		t.Fatalf("leader = %s, want alice", standings.Rows[0].Username)
	}
	if !standings.Rows[0].Score.Equal(points("400")) {
		t.Fatalf("alice score = %s, want 400", standings.Rows[0].Score)
	}
	if standings.Rows[0].Penalty != 180 {
		t.Fatalf("alice penalty = %d, want 180", standings.Rows[0].Penalty)
	}
}

func TestStandingsUsernameBreaksFullTie(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		sub(1, 20, 101, submissionrepo.VerdictAccepted, 7),
		sub(2, 10, 101, submissionrepo.VerdictAccepted, 7),
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice", 20: "bob"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	if standings.Rows[0].Username != "alice" || standings.Rows[1].Username != "bob" {
		t.Fatalf("order = %s, %s; want alice, bob", standings.Rows[0].Username, standings.Rows[1].Username)
	}
}

func TestStandingsAcceptedCellIsFrozen(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		sub(1, 10, 101, submissionrepo.VerdictAccepted, 5),
		// Later submissions to a solved problem change nothing.
		sub(2, 10, 101, submissionrepo.VerdictWrongAnswer, 20),
		sub(3, 10, 101, submissionrepo.VerdictAccepted, 30),
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	row := standings.Rows[0]
	if !row.Score.Equal(points("100")) {
		t.Fatalf("score = %s, want 100 (no double count)", row.Score)
	}
	if row.Penalty != 5 {
		t.Fatalf("penalty = %d, want 5", row.Penalty)
	}
	cell := row.Cells[101]
	if cell == nil || cell.SubmissionID != 1 || !cell.Verdict.IsAccepted() {
		t.Fatalf("governing cell = %+v, want frozen first accept", cell)
	}
}

func TestStandingsLaterSubmissionOverwritesNonAccepted(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		sub(1, 10, 101, submissionrepo.VerdictWrongAnswer, 5),
		sub(2, 10, 101, submissionrepo.VerdictTimeLimitExceeded, 12),
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	row := standings.Rows[0]
	cell := row.Cells[101]
	if cell == nil || cell.SubmissionID != 2 || cell.Verdict != submissionrepo.VerdictTimeLimitExceeded {
		t.Fatalf("governing cell = %+v, want latest submission", cell)
	}
	if !row.Score.IsZero() || row.Penalty != 0 {
		t.Fatalf("score/penalty = %s/%d, want 0/0", row.Score, row.Penalty)
	}
}

func TestStandingsRejectionThenAccept(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		sub(1, 10, 101, submissionrepo.VerdictWrongAnswer, 5),
		sub(2, 10, 101, submissionrepo.VerdictAccepted, 42),
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	row := standings.Rows[0]
	if !row.Score.Equal(points("100")) || row.Penalty != 42 {
		t.Fatalf("score/penalty = %s/%d, want 100/42", row.Score, row.Penalty)
	}
}

func TestStandingsPenaltyIsWholeMinutes(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		{
			ID:               1,
			UserID:           10,
			ContestID:        1,
			ContestProblemID: 101,
			Verdict:          submissionrepo.VerdictAccepted,
			CreatedAt:        contestStart.Add(9*time.Minute + 59*time.Second),
		},
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	if standings.Rows[0].Penalty != 9 {
		t.Fatalf("penalty = %d, want 9 (truncated minutes)", standings.Rows[0].Penalty)
	}
}

func TestStandingsIgnoresUnknownContestProblem(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		sub(1, 10, 999, submissionrepo.VerdictAccepted, 5),
	}
	svc := newTestService(t, testContest(), submissions, fakeUsernames{10: "alice"})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	if len(standings.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(standings.Rows))
	}
}

func TestStandingsEmptyContest(t *testing.T) {
	svc := newTestService(t, testContest(), nil, fakeUsernames{})

	standings, err := svc.ComputeStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeStandings: %v", err)
	}
	if len(standings.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(standings.Rows))
	}
	if len(standings.Problems) != 2 {
		t.Fatalf("problems = %d, want 2", len(standings.Problems))
	}
}

func TestStandingsMissingContest(t *testing.T) {
	svc := newTestService(t, nil, nil, fakeUsernames{})

	_, err := svc.ComputeStandings(context.Background(), 42)
	if pkgerrors.GetCode(err) != pkgerrors.ContestNotFound {
		t.Fatalf("code = %v, want ContestNotFound", pkgerrors.GetCode(err))
	}
}

func TestStandingsDeterministic(t *testing.T) {
	submissions := []*submissionrepo.Submission{
		sub(1, 30, 101, submissionrepo.VerdictAccepted, 3),
		sub(2, 10, 101, submissionrepo.VerdictAccepted, 3),
		sub(3, 20, 101, submissionrepo.VerdictAccepted, 3),
	}
	usernames := fakeUsernames{10: "alice", 20: "bob", 30: "carol"}

	var first []string
	for i := 0; i < 10; i++ {
		svc := newTestService(t, testContest(), submissions, usernames)
		standings, err := svc.ComputeStandings(context.Background(), 1)
		if err != nil {
			t.Fatalf("ComputeStandings: %v", err)
		}
		order := make([]string, 0, len(standings.Rows))
		for _, row := range standings.Rows {
			order = append(order, row.Username)
		}
		if first == nil {
			first = order
			continue
		}
		for j := range order {
			if order[j] != first[j] {
				t.Fatalf("run %d order %v differs from %v", i, order, first)
			}
		}
	}
	if first[0] != "alice" || first[1] != "bob" || first[2] != "carol" {
		t.Fatalf("order = %v, want alphabetical on full tie", first)
	}
}
