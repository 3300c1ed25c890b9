package controller

import (
	"encoding/json"
	"strconv"
	"time"

	dispatchservice "arbiter/internal/dispatch/service"
	"arbiter/internal/submission/repository"
	"arbiter/internal/submission/service"
	"arbiter/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles the submission CRUD surface.
type SubmissionController struct {
	submissionService *service.SubmissionService
	dispatchService   *dispatchservice.DispatchService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submissionService *service.SubmissionService, dispatchService *dispatchservice.DispatchService) *SubmissionController {
	return &SubmissionController{
		submissionService: submissionService,
		dispatchService:   dispatchService,
	}
}

// Create handles submission intake, both in-contest and practice.
func (h *SubmissionController) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	submission, err := h.submissionService.Submit(c.Request.Context(), service.SubmitInput{
		UserID:           req.UserID,
		ProblemID:        req.ProblemID,
		ContestID:        req.ContestID,
		ContestProblemID: req.ContestProblemID,
		Language:         req.Language,
		Body:             req.Body,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submissionPayload(submission, false))
}

// Get returns one submission, including its source body.
func (h *SubmissionController) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submissionService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submissionPayload(submission, true))
}

// List returns submissions matching the query filters, newest first.
func (h *SubmissionController) List(c *gin.Context) {
	filter := repository.ListFilter{
		ContestID: queryInt64(c, "contest_id"),
		ProblemID: queryInt64(c, "problem_id"),
		UserID:    queryInt64(c, "user_id"),
		Limit:     int(queryInt64(c, "limit")),
	}
	submissions, err := h.submissionService.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]SubmissionPayload, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, submissionPayload(submission, false))
	}
	response.Success(c, ListResponse{Items: items})
}

// Rejudge requeues a submission. Admin surface.
func (h *SubmissionController) Rejudge(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	if err := h.dispatchService.Rejudge(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, RejudgeResponse{SubmissionID: id})
}

func queryInt64(c *gin.Context, name string) int64 {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func submissionPayload(submission *repository.Submission, withBody bool) SubmissionPayload {
	payload := SubmissionPayload{
		ID:               submission.ID,
		UserID:           submission.UserID,
		ProblemID:        submission.ProblemID,
		ContestID:        submission.ContestID,
		ContestProblemID: submission.ContestProblemID,
		Language:         submission.Language,
		Verdict:          string(submission.Verdict),
		Judger:           submission.Judger,
		Output:           submission.Output,
		Score:            submission.Score.String(),
		CreatedAt:        submission.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withBody {
		payload.Body = submission.Body
	}
	return payload
}

// CreateRequest is a new submission. contest_id + contest_problem_id for
// contest submissions, problem_id for practice.
type CreateRequest struct {
	UserID           int64  `json:"user_id" binding:"required"`
	ProblemID        int64  `json:"problem_id"`
	ContestID        int64  `json:"contest_id"`
	ContestProblemID int64  `json:"contest_problem_id"`
	Language         string `json:"language" binding:"required"`
	Body             string `json:"body" binding:"required"`
}

// SubmissionPayload is a submission in responses. Body is only present on
// single-submission reads.
type SubmissionPayload struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	ProblemID        int64           `json:"problem_id"`
	ContestID        int64           `json:"contest_id,omitempty"`
	ContestProblemID int64           `json:"contest_problem_id,omitempty"`
	Language         string          `json:"language"`
	Body             string          `json:"body,omitempty"`
	Verdict          string          `json:"verdict"`
	Judger           string          `json:"judger,omitempty"`
	Output           json.RawMessage `json:"output"`
	Score            string          `json:"score"`
	CreatedAt        string          `json:"created_at"`
}

// ListResponse wraps a submission listing.
type ListResponse struct {
	Items []SubmissionPayload `json:"items"`
}

// RejudgeResponse acknowledges a rejudge.
type RejudgeResponse struct {
	SubmissionID int64 `json:"submission_id"`
}
