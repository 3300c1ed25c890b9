package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"

	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	problemrepo "arbiter/internal/problem/repository"
	submissionrepo "arbiter/internal/submission/repository"
	pkgerrors "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the dependencies of DispatchService.
type Config struct {
	Submissions submissionrepo.SubmissionRepository
	Problems    problemrepo.ProblemRepository

	// Storage serves test-data objects; DataBucket/DataRoot scope the keys
	// judgers may fetch.
	Storage    storage.ObjectStorage
	DataBucket string
	DataRoot   string

	// Producer publishes verdict events after a successful report. Optional.
	Producer     mq.Producer
	VerdictTopic string

	// SkipOwnershipCheck restores the legacy behavior of accepting a result
	// from any authenticated judger, not just the one holding the claim.
	SkipOwnershipCheck bool
}

// DispatchService hands pending submissions to polling judgers and ingests
// their results. Claiming is a compare-and-set on the submission's judger
// column, so concurrent pollers never receive the same submission.
type DispatchService struct {
	cfg Config
}

func NewDispatchService(cfg Config) (*DispatchService, error) {
	if cfg.Submissions == nil {
		return nil, errors.New("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, errors.New("problem repository is required")
	}
	if cfg.Producer != nil && cfg.VerdictTopic == "" {
		return nil, errors.New("verdict topic is required when a producer is configured")
	}
	return &DispatchService{cfg: cfg}, nil
}

// ClaimedSubmission is the poll payload: the claimed submission plus the
// problem metadata the judger needs, so no second round trip is required.
type ClaimedSubmission struct {
	Submission *submissionrepo.Submission
	Problem    *problemrepo.Problem
}

// Claim assigns the oldest pending submission to the calling judger.
// A nil result with a nil error means there is nothing to do right now,
// including the case where another judger won the race for the same row.
func (s *DispatchService) Claim(ctx context.Context, judgerName string) (*ClaimedSubmission, error) {
	if judgerName == "" {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("judger name is required")
	}

	pending, err := s.cfg.Submissions.FirstPending(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.DispatchUnavailable)
	}
	if pending == nil {
		return nil, nil
	}

	// The write only lands when the judger column is still empty. Losing
	// here just means another poller got the row first.
	claimed, err := s.cfg.Submissions.ClaimByID(ctx, pending.ID, judgerName)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.DispatchUnavailable)
	}
	if !claimed {
		return nil, nil
	}

	// Re-read to confirm ownership rather than trusting the row count.
	submission, err := s.cfg.Submissions.GetByID(ctx, nil, pending.ID)
	if err != nil {
		if errors.Is(err, submissionrepo.ErrSubmissionNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.DispatchUnavailable)
	}
	if submission.Judger != judgerName {
		return nil, nil
	}

	problem, err := s.cfg.Problems.GetByID(ctx, nil, submission.ProblemID)
	if err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound).
				WithDetail("problem_id", submission.ProblemID)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.DispatchUnavailable)
	}

	logger.Info(ctx, "submission claimed",
		zap.Int64("submission_id", submission.ID),
		zap.String("judger", judgerName))
	return &ClaimedSubmission{Submission: submission, Problem: problem}, nil
}

// Result is a judger's verdict for one submission.
type Result struct {
	SubmissionID int64
	Verdict      submissionrepo.Verdict
	Score        decimal.Decimal
	Output       json.RawMessage
}

// ReportResult validates and records a judging result. On a validation or
// ownership failure the submission is left untouched.
func (s *DispatchService) ReportResult(ctx context.Context, judgerName string, result Result) error {
	if judgerName == "" {
		return pkgerrors.New(pkgerrors.InvalidParams).WithMessage("judger name is required")
	}
	if result.SubmissionID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams).WithMessage("submission id is required")
	}
	if !result.Verdict.IsFinal() {
		return pkgerrors.New(pkgerrors.InvalidVerdict).
			WithDetail("verdict", string(result.Verdict))
	}
	if len(result.Output) > 0 && !json.Valid(result.Output) {
		return pkgerrors.New(pkgerrors.InvalidParams).WithMessage("output must be valid JSON")
	}
	if result.Score.IsNegative() {
		return pkgerrors.New(pkgerrors.InvalidParams).WithMessage("score must not be negative")
	}

	submission, err := s.cfg.Submissions.GetByID(ctx, nil, result.SubmissionID)
	if err != nil {
		if errors.Is(err, submissionrepo.ErrSubmissionNotFound) {
			return pkgerrors.New(pkgerrors.SubmissionNotFound)
		}
		return pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	if !s.cfg.SkipOwnershipCheck && submission.Judger != judgerName {
		return pkgerrors.New(pkgerrors.ClaimNotHeld).
			WithDetail("submission_id", result.SubmissionID).
			WithDetail("claimed_by", submission.Judger)
	}

	if err := s.cfg.Submissions.ApplyResult(ctx, result.SubmissionID, result.Verdict, result.Score, result.Output); err != nil {
		if errors.Is(err, submissionrepo.ErrSubmissionNotFound) {
			return pkgerrors.New(pkgerrors.SubmissionNotFound)
		}
		return pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}

	s.publishVerdictEvent(ctx, submission, result)
	logger.Info(ctx, "submission judged",
		zap.Int64("submission_id", result.SubmissionID),
		zap.String("judger", judgerName),
		zap.String("verdict", string(result.Verdict)))
	return nil
}

// Rejudge returns a submission to the pending state. Rejudging a submission
// that is already pending is a no-op with identical final state.
func (s *DispatchService) Rejudge(ctx context.Context, submissionID int64) error {
	if submissionID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams).WithMessage("submission id is required")
	}
	if _, err := s.cfg.Submissions.GetByID(ctx, nil, submissionID); err != nil {
		if errors.Is(err, submissionrepo.ErrSubmissionNotFound) {
			return pkgerrors.New(pkgerrors.SubmissionNotFound)
		}
		return pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	if err := s.cfg.Submissions.ResetForRejudge(ctx, submissionID); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.RejudgeFailed)
	}
	logger.Info(ctx, "submission requeued", zap.Int64("submission_id", submissionID))
	return nil
}

// FetchTestData streams a test-data object for a judger. Keys are confined to
// the configured data root; ".zst" objects are decompressed on the fly, in
// which case the returned size is -1.
func (s *DispatchService) FetchTestData(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if s.cfg.Storage == nil {
		return nil, 0, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("test-data storage not configured")
	}
	cleaned, err := sanitizeDataKey(key)
	if err != nil {
		return nil, 0, err
	}
	objectKey := cleaned
	if s.cfg.DataRoot != "" {
		objectKey = path.Join(s.cfg.DataRoot, cleaned)
	}

	stat, err := s.cfg.Storage.StatObject(ctx, s.cfg.DataBucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, pkgerrors.New(pkgerrors.TestDataNotFound)
		}
		return nil, 0, pkgerrors.Wrap(err, pkgerrors.StorageError)
	}
	reader, err := s.cfg.Storage.GetObject(ctx, s.cfg.DataBucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, pkgerrors.New(pkgerrors.TestDataNotFound)
		}
		return nil, 0, pkgerrors.Wrap(err, pkgerrors.StorageError)
	}

	if strings.HasSuffix(objectKey, ".zst") {
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			_ = reader.Close()
			return nil, 0, pkgerrors.Wrap(err, pkgerrors.StorageError)
		}
		return &zstdReadCloser{decoder: decoder, underlying: reader}, -1, nil
	}
	return reader, stat.SizeBytes, nil
}

func sanitizeDataKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", pkgerrors.New(pkgerrors.InvalidParams).WithMessage("file key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", pkgerrors.New(pkgerrors.InvalidParams).WithMessage("invalid file key")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", pkgerrors.New(pkgerrors.InvalidParams).WithMessage("invalid file key")
	}
	return cleaned, nil
}

// verdictEvent is the payload published to the verdict topic.
type verdictEvent struct {
	SubmissionID int64  `json:"submission_id"`
	UserID       int64  `json:"user_id"`
	ProblemID    int64  `json:"problem_id"`
	ContestID    int64  `json:"contest_id,omitempty"`
	Verdict      string `json:"verdict"`
	Score        string `json:"score"`
	Judger       string `json:"judger"`
}

func (s *DispatchService) publishVerdictEvent(ctx context.Context, submission *submissionrepo.Submission, result Result) {
	if s.cfg.Producer == nil {
		return
	}
	event := verdictEvent{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		ContestID:    submission.ContestID,
		Verdict:      string(result.Verdict),
		Score:        result.Score.String(),
		Judger:       submission.Judger,
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn(ctx, "failed to marshal verdict event", zap.Error(err))
		return
	}
	message := mq.NewMessage(body)
	message.ID = uuid.NewString()
	if err := s.cfg.Producer.Publish(ctx, s.cfg.VerdictTopic, message); err != nil {
		// Fire and forget: the verdict is already durable in the database.
		logger.Warn(ctx, "failed to publish verdict event",
			zap.Int64("submission_id", submission.ID),
			zap.Error(err))
	}
}

type zstdReadCloser struct {
	decoder    *zstd.Decoder
	underlying io.Closer
}

func (r *zstdReadCloser) Read(p []byte) (int, error) {
	return r.decoder.Read(p)
}

func (r *zstdReadCloser) Close() error {
	r.decoder.Close()
	return r.underlying.Close()
}
