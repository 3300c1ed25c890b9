package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"arbiter/internal/common/db"
	contestrepo "arbiter/internal/contest/repository"
	problemrepo "arbiter/internal/problem/repository"
	"arbiter/internal/submission/repository"
	pkgerrors "arbiter/pkg/errors"

	"github.com/shopspring/decimal"
)

type stubSubmissionRepo struct {
	created []*repository.Submission
	nextID  int64
}

func (r *stubSubmissionRepo) Create(ctx context.Context, tx db.Transaction, submission *repository.Submission) error {
	r.nextID++
	submission.ID = r.nextID
	clone := *submission
	r.created = append(r.created, &clone)
	return nil
}

func (r *stubSubmissionRepo) GetByID(ctx context.Context, tx db.Transaction, id int64) (*repository.Submission, error) {
	for _, s := range r.created {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, repository.ErrSubmissionNotFound
}

func (r *stubSubmissionRepo) FirstPending(ctx context.Context) (*repository.Submission, error) {
	return nil, nil
}

func (r *stubSubmissionRepo) ClaimByID(ctx context.Context, id int64, judger string) (bool, error) {
	return false, nil
}

func (r *stubSubmissionRepo) ApplyResult(ctx context.Context, id int64, verdict repository.Verdict, score decimal.Decimal, output json.RawMessage) error {
	return nil
}

func (r *stubSubmissionRepo) ResetForRejudge(ctx context.Context, id int64) error {
	return nil
}

func (r *stubSubmissionRepo) ListByContest(ctx context.Context, contestID int64) ([]*repository.Submission, error) {
	return nil, nil
}

func (r *stubSubmissionRepo) List(ctx context.Context, filter repository.ListFilter) ([]*repository.Submission, error) {
	return r.created, nil
}

type stubProblemRepo struct {
	problems map[int64]*problemrepo.Problem
}

func (r *stubProblemRepo) Create(ctx context.Context, tx db.Transaction, problem *problemrepo.Problem) (int64, error) {
	return 0, nil
}

func (r *stubProblemRepo) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*problemrepo.Problem, error) {
	p, ok := r.problems[problemID]
	if !ok {
		return nil, problemrepo.ErrProblemNotFound
	}
	return p, nil
}

func (r *stubProblemRepo) List(ctx context.Context, publicOnly bool) ([]*problemrepo.Problem, error) {
	return nil, nil
}

type stubContestRepo struct {
	contests map[int64]*contestrepo.Contest
}

func (r *stubContestRepo) Create(ctx context.Context, tx db.Transaction, contest *contestrepo.Contest) (int64, error) {
	return 0, nil
}

func (r *stubContestRepo) GetByID(ctx context.Context, tx db.Transaction, contestID int64) (*contestrepo.Contest, error) {
	contest, ok := r.contests[contestID]
	if !ok {
		return nil, contestrepo.ErrContestNotFound
	}
	return contest, nil
}

func (r *stubContestRepo) GetProblem(ctx context.Context, contestID, contestProblemID int64) (*contestrepo.ContestProblem, error) {
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

func newTestSubmissionService(t *testing.T, contests map[int64]*contestrepo.Contest, opts ...func(*Config)) (*SubmissionService, *stubSubmissionRepo) {
	t.Helper()
	repo := &stubSubmissionRepo{}
	cfg := Config{
		Submissions: repo,
		Problems: &stubProblemRepo{problems: map[int64]*problemrepo.Problem{
			7: {ID: 7, Title: "Two Sum", TimeLimit: 1000, MemoryLimit: 262144},
		}},
		Contests: &stubContestRepo{contests: contests},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := NewSubmissionService(cfg)
	if err != nil {
		t.Fatalf("NewSubmissionService: %v", err)
	}
	return svc, repo
}

func runningContest() map[int64]*contestrepo.Contest {
	now := time.Now().UTC()
	return map[int64]*contestrepo.Contest{
		1: {
			ID:        1,
			Title:     "Spring Round",
			StartTime: now.Add(-time.Hour),
			EndTime:   now.Add(time.Hour),
			Problems: []*contestrepo.ContestProblem{
				{ID: 101, ContestID: 1, ProblemID: 7, Name: "A", Points: decimal.RequireFromString("100")},
			},
		},
	}
}

func TestSubmitPractice(t *testing.T) {
	svc, repo := newTestSubmissionService(t, nil)

	submission, err := svc.Submit(context.Background(), SubmitInput{
		UserID:    2,
		ProblemID: 7,
		Language:  "cpp",
		Body:      "int main() {}",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submission.ID == 0 {
		t.Fatal("submission id not set")
	}
	if submission.Verdict != repository.VerdictWaiting {
		t.Fatalf("verdict = %q, want WJ", submission.Verdict)
	}
	if submission.Judger != "" {
		t.Fatalf("judger = %q, want empty", submission.Judger)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created = %d, want 1", len(repo.created))
	}
}

func TestSubmitContestResolvesProblem(t *testing.T) {
	svc, _ := newTestSubmissionService(t, runningContest())

	submission, err := svc.Submit(context.Background(), SubmitInput{
		UserID:           2,
		ContestID:        1,
		ContestProblemID: 101,
		Language:         "cpp",
		Body:             "int main() {}",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submission.ProblemID != 7 {
		t.Fatalf("problem id = %d, want 7 (resolved from contest)", submission.ProblemID)
	}
	if submission.ContestProblemID != 101 {
		t.Fatalf("contest problem id = %d, want 101", submission.ContestProblemID)
	}
}

func TestSubmitContestWindow(t *testing.T) {
	now := time.Now().UTC()
	contests := map[int64]*contestrepo.Contest{
		1: {
			ID:        1,
			StartTime: now.Add(time.Hour),
			EndTime:   now.Add(2 * time.Hour),
			Problems: []*contestrepo.ContestProblem{
				{ID: 101, ContestID: 1, ProblemID: 7, Name: "A"},
			},
		},
		2: {
			ID:        2,
			StartTime: now.Add(-2 * time.Hour),
			EndTime:   now.Add(-time.Hour),
			Problems: []*contestrepo.ContestProblem{
				{ID: 201, ContestID: 2, ProblemID: 7, Name: "A"},
			},
		},
	}
	svc, _ := newTestSubmissionService(t, contests)

	_, err := svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ContestID: 1, ContestProblemID: 101, Language: "cpp", Body: "x",
	})
	if pkgerrors.GetCode(err) != pkgerrors.ContestNotStarted {
		t.Fatalf("code = %v, want ContestNotStarted", pkgerrors.GetCode(err))
	}

	_, err = svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ContestID: 2, ContestProblemID: 201, Language: "cpp", Body: "x",
	})
	if pkgerrors.GetCode(err) != pkgerrors.ContestEnded {
		t.Fatalf("code = %v, want ContestEnded", pkgerrors.GetCode(err))
	}
}

func TestSubmitForeignContestProblem(t *testing.T) {
	svc, _ := newTestSubmissionService(t, runningContest())

	_, err := svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ContestID: 1, ContestProblemID: 999, Language: "cpp", Body: "x",
	})
	if pkgerrors.GetCode(err) != pkgerrors.ProblemNotInContest {
		t.Fatalf("code = %v, want ProblemNotInContest", pkgerrors.GetCode(err))
	}
}

func TestSubmitUnknownContest(t *testing.T) {
	svc, _ := newTestSubmissionService(t, nil)

	_, err := svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ContestID: 404, ContestProblemID: 1, Language: "cpp", Body: "x",
	})
	if pkgerrors.GetCode(err) != pkgerrors.ContestNotFound {
		t.Fatalf("code = %v, want ContestNotFound", pkgerrors.GetCode(err))
	}
}

func TestSubmitUnknownProblem(t *testing.T) {
	svc, _ := newTestSubmissionService(t, nil)

	_, err := svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ProblemID: 404, Language: "cpp", Body: "x",
	})
	if pkgerrors.GetCode(err) != pkgerrors.ProblemNotFound {
		t.Fatalf("code = %v, want ProblemNotFound", pkgerrors.GetCode(err))
	}
}

func TestSubmitBodyTooLarge(t *testing.T) {
	svc, _ := newTestSubmissionService(t, nil, func(cfg *Config) {
		cfg.MaxBodyBytes = 16
	})

	_, err := svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ProblemID: 7, Language: "cpp", Body: strings.Repeat("a", 17),
	})
	if pkgerrors.GetCode(err) != pkgerrors.CodeTooLarge {
		t.Fatalf("code = %v, want CodeTooLarge", pkgerrors.GetCode(err))
	}
}

func TestSubmitLanguageAllowlist(t *testing.T) {
	svc, _ := newTestSubmissionService(t, nil, func(cfg *Config) {
		cfg.Languages = []string{"cpp", "python"}
	})

	if _, err := svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ProblemID: 7, Language: "Python", Body: "print(1)",
	}); err != nil {
		t.Fatalf("allowlisted language rejected: %v", err)
	}

	_, err := svc.Submit(context.Background(), SubmitInput{
		UserID: 2, ProblemID: 7, Language: "cobol", Body: "x",
	})
	if pkgerrors.GetCode(err) != pkgerrors.LanguageNotSupported {
		t.Fatalf("code = %v, want LanguageNotSupported", pkgerrors.GetCode(err))
	}
}
