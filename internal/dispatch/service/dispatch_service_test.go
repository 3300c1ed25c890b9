package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"arbiter/internal/common/db"
	problemrepo "arbiter/internal/problem/repository"
	submissionrepo "arbiter/internal/submission/repository"
	pkgerrors "arbiter/pkg/errors"

	"github.com/shopspring/decimal"
)

type memorySubmissionRepo struct {
	mu          sync.Mutex
	submissions map[int64]*submissionrepo.Submission
	nextID      int64
}

func newMemorySubmissionRepo() *memorySubmissionRepo {
	return &memorySubmissionRepo{
		submissions: make(map[int64]*submissionrepo.Submission),
		nextID:      1,
	}
}

func (r *memorySubmissionRepo) add(s *submissionrepo.Submission) *submissionrepo.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	if clone.ID == 0 {
		clone.ID = r.nextID
		r.nextID++
	} else if clone.ID >= r.nextID {
		r.nextID = clone.ID + 1
	}
	if clone.Verdict == "" {
		clone.Verdict = submissionrepo.VerdictWaiting
	}
	if len(clone.Output) == 0 {
		clone.Output = json.RawMessage("{}")
	}
	r.submissions[clone.ID] = &clone
	return &clone
}

func (r *memorySubmissionRepo) Create(ctx context.Context, tx db.Transaction, submission *submissionrepo.Submission) error {
	r.add(submission)
	return nil
}

func (r *memorySubmissionRepo) snapshot(id int64) submissionrepo.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.submissions[id]
}

func (r *memorySubmissionRepo) FirstPending(ctx context.Context) (*submissionrepo.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *submissionrepo.Submission
	for _, s := range r.submissions {
		if !s.Pending() {
			continue
		}
		if oldest == nil || s.ID < oldest.ID {
			oldest = s
		}
	}
	if oldest == nil {
		return nil, nil
	}
	clone := *oldest
	return &clone, nil
}

func (r *memorySubmissionRepo) ClaimByID(ctx context.Context, id int64, judger string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok || s.Judger != "" {
		return false, nil
	}
	s.Judger = judger
	return true, nil
}

func (r *memorySubmissionRepo) GetByID(ctx context.Context, tx db.Transaction, id int64) (*submissionrepo.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, submissionrepo.ErrSubmissionNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *memorySubmissionRepo) ApplyResult(ctx context.Context, id int64, verdict submissionrepo.Verdict, score decimal.Decimal, output json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return submissionrepo.ErrSubmissionNotFound
	}
	s.Verdict = verdict
	s.Score = score
	if len(output) == 0 {
		output = json.RawMessage("{}")
	}
	s.Output = output
	return nil
}

func (r *memorySubmissionRepo) ResetForRejudge(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return submissionrepo.ErrSubmissionNotFound
	}
	s.Verdict = submissionrepo.VerdictWaiting
	s.Judger = ""
	s.Output = json.RawMessage("{}")
	s.Score = decimal.Zero
	return nil
}

func (r *memorySubmissionRepo) ListByContest(ctx context.Context, contestID int64) ([]*submissionrepo.Submission, error) {
	return nil, nil
}

func (r *memorySubmissionRepo) List(ctx context.Context, filter submissionrepo.ListFilter) ([]*submissionrepo.Submission, error) {
	return nil, nil
}

type memoryProblemRepo struct {
	problems map[int64]*problemrepo.Problem
}

func (r *memoryProblemRepo) Create(ctx context.Context, tx db.Transaction, problem *problemrepo.Problem) (int64, error) {
	return 0, nil
}

func (r *memoryProblemRepo) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*problemrepo.Problem, error) {
	p, ok := r.problems[problemID]
	if !ok {
		return nil, problemrepo.ErrProblemNotFound
	}
	return p, nil
}

func (r *memoryProblemRepo) List(ctx context.Context, publicOnly bool) ([]*problemrepo.Problem, error) {
	return nil, nil
}

func newTestService(t *testing.T, repo *memorySubmissionRepo, opts ...func(*Config)) *DispatchService {
	t.Helper()
	cfg := Config{
		Submissions: repo,
		Problems: &memoryProblemRepo{problems: map[int64]*problemrepo.Problem{
			7: {ID: 7, Title: "Two Sum", TimeLimit: 1000, MemoryLimit: 262144, TestDataKey: "7/data.zip"},
		}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := NewDispatchService(cfg)
	if err != nil {
		t.Fatalf("NewDispatchService: %v", err)
	}
	return svc
}

func pendingSubmission(id int64) *submissionrepo.Submission {
	return &submissionrepo.Submission{
		ID:        id,
		UserID:    1,
		ProblemID: 7,
		Language:  "cpp",
		Body:      "int main() {}",
		Verdict:   submissionrepo.VerdictWaiting,
		CreatedAt: time.Now(),
	}
}

func TestClaimAssignsOldestPending(t *testing.T) {
	repo := newMemorySubmissionRepo()
	repo.add(pendingSubmission(3))
	repo.add(pendingSubmission(1))
	repo.add(pendingSubmission(2))
	svc := newTestService(t, repo)

	claimed, err := svc.Claim(context.Background(), "judger-a")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed submission")
	}
	if claimed.Submission.ID != 1 {
		t.Fatalf("claimed id = %d, want 1", claimed.Submission.ID)
	}
	if claimed.Submission.Judger != "judger-a" {
		t.Fatalf("claimed judger = %q, want judger-a", claimed.Submission.Judger)
	}
	if claimed.Problem == nil || claimed.Problem.ID != 7 {
		t.Fatal("claim payload should embed the problem")
	}
	if got := repo.snapshot(1).Judger; got != "judger-a" {
		t.Fatalf("stored judger = %q, want judger-a", got)
	}
}

func TestClaimEmptyQueueReturnsNil(t *testing.T) {
	svc := newTestService(t, newMemorySubmissionRepo())

	claimed, err := svc.Claim(context.Background(), "judger-a")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil claim, got submission %d", claimed.Submission.ID)
	}
}

func TestClaimSkipsAlreadyJudged(t *testing.T) {
	repo := newMemorySubmissionRepo()
	done := pendingSubmission(1)
	done.Verdict = submissionrepo.VerdictAccepted
	done.Judger = "judger-b"
	repo.add(done)
	repo.add(pendingSubmission(2))
	svc := newTestService(t, repo)

	claimed, err := svc.Claim(context.Background(), "judger-a")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.Submission.ID != 2 {
		t.Fatalf("expected to claim submission 2, got %+v", claimed)
	}
}

func TestConcurrentClaimsNeverShareASubmission(t *testing.T) {
	repo := newMemorySubmissionRepo()
	const pending = 5
	for i := 1; i <= pending; i++ {
		repo.add(pendingSubmission(int64(i)))
	}
	svc := newTestService(t, repo)

	const workers = 20
	var wg sync.WaitGroup
	claims := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			name := "judger-" + string(rune('a'+worker%26))
			claimed, err := svc.Claim(context.Background(), name)
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			if claimed != nil {
				claims <- claimed.Submission.ID
			}
		}(i)
	}
	wg.Wait()
	close(claims)

	seen := make(map[int64]bool)
	for id := range claims {
		if seen[id] {
			t.Fatalf("submission %d claimed twice", id)
		}
		seen[id] = true
	}
	if len(seen) > pending {
		t.Fatalf("claimed %d submissions, only %d existed", len(seen), pending)
	}
}

func TestReportRejectsUnknownVerdict(t *testing.T) {
	repo := newMemorySubmissionRepo()
	s := repo.add(pendingSubmission(1))
	repo.mu.Lock()
	repo.submissions[1].Judger = "judger-a"
	repo.mu.Unlock()
	svc := newTestService(t, repo)

	for _, verdict := range []string{"", "ok", "wj", "ACC"} {
		err := svc.ReportResult(context.Background(), "judger-a", Result{
			SubmissionID: s.ID,
			Verdict:      submissionrepo.Verdict(verdict),
		})
		if err == nil {
			t.Fatalf("verdict %q: expected error", verdict)
		}
	}
	// WJ is in the vocabulary but is not a final outcome.
	err := svc.ReportResult(context.Background(), "judger-a", Result{
		SubmissionID: s.ID,
		Verdict:      submissionrepo.VerdictWaiting,
	})
	if pkgerrors.GetCode(err) != pkgerrors.InvalidVerdict {
		t.Fatalf("WJ report: code = %v, want InvalidVerdict", pkgerrors.GetCode(err))
	}
	if got := repo.snapshot(1); got.Verdict != submissionrepo.VerdictWaiting {
		t.Fatalf("submission mutated by rejected report: verdict = %q", got.Verdict)
	}
}

func TestReportRejectsWrongJudger(t *testing.T) {
	repo := newMemorySubmissionRepo()
	s := repo.add(pendingSubmission(1))
	repo.mu.Lock()
	repo.submissions[1].Judger = "judger-a"
	repo.mu.Unlock()
	svc := newTestService(t, repo)

	err := svc.ReportResult(context.Background(), "judger-b", Result{
		SubmissionID: s.ID,
		Verdict:      submissionrepo.VerdictAccepted,
	})
	if pkgerrors.GetCode(err) != pkgerrors.ClaimNotHeld {
		t.Fatalf("code = %v, want ClaimNotHeld", pkgerrors.GetCode(err))
	}
	if got := repo.snapshot(1); got.Verdict != submissionrepo.VerdictWaiting {
		t.Fatalf("submission mutated by rejected report: verdict = %q", got.Verdict)
	}
}

func TestReportLegacyModeAcceptsAnyJudger(t *testing.T) {
	repo := newMemorySubmissionRepo()
	s := repo.add(pendingSubmission(1))
	repo.mu.Lock()
	repo.submissions[1].Judger = "judger-a"
	repo.mu.Unlock()
	svc := newTestService(t, repo, func(cfg *Config) {
		cfg.SkipOwnershipCheck = true
	})

	err := svc.ReportResult(context.Background(), "judger-b", Result{
		SubmissionID: s.ID,
		Verdict:      submissionrepo.VerdictWrongAnswer,
		Output:       json.RawMessage(`{"case":3}`),
	})
	if err != nil {
		t.Fatalf("ReportResult: %v", err)
	}
	if got := repo.snapshot(1); got.Verdict != submissionrepo.VerdictWrongAnswer {
		t.Fatalf("verdict = %q, want WA", got.Verdict)
	}
}

func TestReportRecordsResult(t *testing.T) {
	repo := newMemorySubmissionRepo()
	s := repo.add(pendingSubmission(1))
	repo.mu.Lock()
	repo.submissions[1].Judger = "judger-a"
	repo.mu.Unlock()
	svc := newTestService(t, repo)

	score := decimal.RequireFromString("100")
	err := svc.ReportResult(context.Background(), "judger-a", Result{
		SubmissionID: s.ID,
		Verdict:      submissionrepo.VerdictAccepted,
		Score:        score,
		Output:       json.RawMessage(`{"time_ms":12,"memory_kb":1024}`),
	})
	if err != nil {
		t.Fatalf("ReportResult: %v", err)
	}
	got := repo.snapshot(1)
	if got.Verdict != submissionrepo.VerdictAccepted {
		t.Fatalf("verdict = %q, want AC", got.Verdict)
	}
	if !got.Score.Equal(score) {
		t.Fatalf("score = %s, want 100", got.Score)
	}
}

func TestReportUnknownSubmission(t *testing.T) {
	svc := newTestService(t, newMemorySubmissionRepo())

	err := svc.ReportResult(context.Background(), "judger-a", Result{
		SubmissionID: 404,
		Verdict:      submissionrepo.VerdictAccepted,
	})
	if pkgerrors.GetCode(err) != pkgerrors.SubmissionNotFound {
		t.Fatalf("code = %v, want SubmissionNotFound", pkgerrors.GetCode(err))
	}
}

func TestReportRejectsMalformedOutput(t *testing.T) {
	repo := newMemorySubmissionRepo()
	s := repo.add(pendingSubmission(1))
	repo.mu.Lock()
	repo.submissions[1].Judger = "judger-a"
	repo.mu.Unlock()
	svc := newTestService(t, repo)

	err := svc.ReportResult(context.Background(), "judger-a", Result{
		SubmissionID: s.ID,
		Verdict:      submissionrepo.VerdictAccepted,
		Output:       json.RawMessage(`{broken`),
	})
	if err == nil {
		t.Fatal("expected error for malformed output")
	}
	if got := repo.snapshot(1); got.Verdict != submissionrepo.VerdictWaiting {
		t.Fatalf("submission mutated by rejected report: verdict = %q", got.Verdict)
	}
}

func TestRejudgeResetsJudgedSubmission(t *testing.T) {
	repo := newMemorySubmissionRepo()
	s := repo.add(pendingSubmission(1))
	repo.mu.Lock()
	repo.submissions[1].Judger = "judger-a"
	repo.submissions[1].Verdict = submissionrepo.VerdictWrongAnswer
	repo.submissions[1].Output = json.RawMessage(`{"case":3}`)
	repo.submissions[1].Score = decimal.RequireFromString("40")
	repo.mu.Unlock()
	svc := newTestService(t, repo)

	if err := svc.Rejudge(context.Background(), s.ID); err != nil {
		t.Fatalf("Rejudge: %v", err)
	}
	got := repo.snapshot(1)
	if !got.Pending() {
		t.Fatalf("submission not pending after rejudge: verdict=%q judger=%q", got.Verdict, got.Judger)
	}
	if string(got.Output) != "{}" {
		t.Fatalf("output = %s, want {}", got.Output)
	}
	if !got.Score.IsZero() {
		t.Fatalf("score = %s, want 0", got.Score)
	}
}

func TestRejudgePendingIsIdempotent(t *testing.T) {
	repo := newMemorySubmissionRepo()
	s := repo.add(pendingSubmission(1))
	svc := newTestService(t, repo)

	before := repo.snapshot(1)
	if err := svc.Rejudge(context.Background(), s.ID); err != nil {
		t.Fatalf("Rejudge: %v", err)
	}
	if err := svc.Rejudge(context.Background(), s.ID); err != nil {
		t.Fatalf("Rejudge twice: %v", err)
	}
	after := repo.snapshot(1)
	if before.Verdict != after.Verdict || before.Judger != after.Judger || string(before.Output) != string(after.Output) {
		t.Fatalf("rejudge of pending submission changed state: before=%+v after=%+v", before, after)
	}
}

func TestRejudgeUnknownSubmission(t *testing.T) {
	svc := newTestService(t, newMemorySubmissionRepo())

	err := svc.Rejudge(context.Background(), 404)
	if pkgerrors.GetCode(err) != pkgerrors.SubmissionNotFound {
		t.Fatalf("code = %v, want SubmissionNotFound", pkgerrors.GetCode(err))
	}
}

func TestSanitizeDataKey(t *testing.T) {
	valid := []string{"7/data.zip", "7/cases/01.in", "a.txt", "pack.tar.zst"}
	for _, key := range valid {
		if _, err := sanitizeDataKey(key); err != nil {
			t.Errorf("sanitizeDataKey(%q): unexpected error %v", key, err)
		}
	}

	invalid := []string{"", "  ", "/etc/passwd", "../secrets", "7/../../x", "..", "a\\b"}
	for _, key := range invalid {
		if _, err := sanitizeDataKey(key); err == nil {
			t.Errorf("sanitizeDataKey(%q): expected error", key)
		}
	}
}
