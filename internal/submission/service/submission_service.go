package service

import (
	"context"
	"errors"
	"strings"
	"time"

	contestrepo "arbiter/internal/contest/repository"
	problemrepo "arbiter/internal/problem/repository"
	"arbiter/internal/submission/repository"
	pkgerrors "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 256 * 1024

// Config holds the dependencies of SubmissionService.
type Config struct {
	Submissions repository.SubmissionRepository
	Problems    problemrepo.ProblemRepository
	Contests    contestrepo.ContestRepository

	// Languages is the accepted language allowlist; empty accepts any
	// non-empty language string.
	Languages []string

	// MaxBodyBytes caps the source body size.
	MaxBodyBytes int
}

// SubmissionService handles submission intake and reads.
type SubmissionService struct {
	cfg       Config
	languages map[string]struct{}
}

func NewSubmissionService(cfg Config) (*SubmissionService, error) {
	if cfg.Submissions == nil {
		return nil, errors.New("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, errors.New("problem repository is required")
	}
	if cfg.Contests == nil {
		return nil, errors.New("contest repository is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	languages := make(map[string]struct{}, len(cfg.Languages))
	for _, language := range cfg.Languages {
		languages[strings.ToLower(language)] = struct{}{}
	}
	return &SubmissionService{cfg: cfg, languages: languages}, nil
}

// SubmitInput is a new submission. For contest submissions ContestID and
// ContestProblemID are set and the problem id is resolved from the contest;
// practice submissions set ProblemID directly.
type SubmitInput struct {
	UserID           int64
	ProblemID        int64
	ContestID        int64
	ContestProblemID int64
	Language         string
	Body             string
}

// Submit validates and stores a new pending submission.
func (s *SubmissionService) Submit(ctx context.Context, input SubmitInput) (*repository.Submission, error) {
	if input.UserID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("user id is required")
	}
	if input.Language == "" {
		return nil, pkgerrors.New(pkgerrors.RequiredFieldEmpty).WithMessage("language is required")
	}
	if len(s.languages) > 0 {
		if _, ok := s.languages[strings.ToLower(input.Language)]; !ok {
			return nil, pkgerrors.New(pkgerrors.LanguageNotSupported).
				WithDetail("language", input.Language)
		}
	}
	if input.Body == "" {
		return nil, pkgerrors.New(pkgerrors.RequiredFieldEmpty).WithMessage("source body is required")
	}
	if len(input.Body) > s.cfg.MaxBodyBytes {
		return nil, pkgerrors.New(pkgerrors.CodeTooLarge).
			WithDetail("max_bytes", s.cfg.MaxBodyBytes)
	}

	submission := &repository.Submission{
		UserID:   input.UserID,
		Language: input.Language,
		Body:     input.Body,
		Verdict:  repository.VerdictWaiting,
	}

	if input.ContestID > 0 {
		contest, err := s.cfg.Contests.GetByID(ctx, nil, input.ContestID)
		if err != nil {
			if errors.Is(err, contestrepo.ErrContestNotFound) {
				return nil, pkgerrors.New(pkgerrors.ContestNotFound)
			}
			return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
		}
		now := time.Now().UTC()
		if now.Before(contest.StartTime) {
			return nil, pkgerrors.New(pkgerrors.ContestNotStarted)
		}
		if !now.Before(contest.EndTime) {
			return nil, pkgerrors.New(pkgerrors.ContestEnded)
		}
		contestProblem, err := s.cfg.Contests.GetProblem(ctx, input.ContestID, input.ContestProblemID)
		if err != nil {
			if errors.Is(err, contestrepo.ErrContestProblemNotFound) {
				return nil, pkgerrors.New(pkgerrors.ProblemNotInContest)
			}
			return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
		}
		submission.ContestID = input.ContestID
		submission.ContestProblemID = contestProblem.ID
		submission.ProblemID = contestProblem.ProblemID
	} else {
		submission.ProblemID = input.ProblemID
	}

	if _, err := s.cfg.Problems.GetByID(ctx, nil, submission.ProblemID); err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}

	if err := s.cfg.Submissions.Create(ctx, nil, submission); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.SubmissionCreateFailed)
	}
	logger.Info(ctx, "submission received",
		zap.Int64("submission_id", submission.ID),
		zap.Int64("user_id", submission.UserID),
		zap.Int64("problem_id", submission.ProblemID))
	return submission, nil
}

// Get returns one submission by id.
func (s *SubmissionService) Get(ctx context.Context, id int64) (*repository.Submission, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("submission id is required")
	}
	submission, err := s.cfg.Submissions.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, pkgerrors.New(pkgerrors.SubmissionNotFound)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	return submission, nil
}

// List returns submissions matching the filter, newest first.
func (s *SubmissionService) List(ctx context.Context, filter repository.ListFilter) ([]*repository.Submission, error) {
	submissions, err := s.cfg.Submissions.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	return submissions, nil
}
