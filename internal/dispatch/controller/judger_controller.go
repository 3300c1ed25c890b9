package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"arbiter/internal/dispatch/service"
	judgerservice "arbiter/internal/judger/service"
	submissionrepo "arbiter/internal/submission/repository"
	"arbiter/pkg/utils/contextkey"
	"arbiter/pkg/utils/logger"
	"arbiter/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	judgerNameHeader = "X-Judger-Name"
	judgerKeyHeader  = "X-Judger-Key"

	judgerNameContextKey = "judger_name"
)

// JudgerAuthMiddleware authenticates every judger request by name and key.
// Auth is stateless; there is no session between polls.
func JudgerAuthMiddleware(judgerService *judgerservice.JudgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.GetHeader(judgerNameHeader))
		key := strings.TrimSpace(c.GetHeader(judgerKeyHeader))
		if _, err := judgerService.Authenticate(c.Request.Context(), name, key); err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Set(judgerNameContextKey, name)
		ctx := context.WithValue(c.Request.Context(), contextkey.JudgerName, name)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// JudgerController handles the worker-facing dispatch endpoints.
type JudgerController struct {
	dispatchService *service.DispatchService
	judgerService   *judgerservice.JudgerService
}

// NewJudgerController creates a new JudgerController.
func NewJudgerController(dispatchService *service.DispatchService, judgerService *judgerservice.JudgerService) *JudgerController {
	return &JudgerController{
		dispatchService: dispatchService,
		judgerService:   judgerService,
	}
}

// Poll hands the oldest pending submission to the caller, if any.
func (h *JudgerController) Poll(c *gin.Context) {
	name := c.GetString(judgerNameContextKey)
	claimed, err := h.dispatchService.Claim(c.Request.Context(), name)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claimed == nil {
		response.Success(c, PollResponse{Available: false})
		return
	}
	response.Success(c, PollResponse{
		Available: true,
		Submission: &SubmissionPayload{
			ID:       claimed.Submission.ID,
			Language: claimed.Submission.Language,
			Body:     claimed.Submission.Body,
			Problem: ProblemPayload{
				ID:          claimed.Problem.ID,
				Title:       claimed.Problem.Title,
				TimeLimit:   claimed.Problem.TimeLimit,
				MemoryLimit: claimed.Problem.MemoryLimit,
				TestDataKey: claimed.Problem.TestDataKey,
			},
		},
	})
}

// Report ingests a judging result.
func (h *JudgerController) Report(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	name := c.GetString(judgerNameContextKey)
	err := h.dispatchService.ReportResult(c.Request.Context(), name, service.Result{
		SubmissionID: req.SubmissionID,
		Verdict:      req.Verdict(),
		Score:        req.Score,
		Output:       req.Output,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ReportResponse{SubmissionID: req.SubmissionID})
}

// Heartbeat records the caller's address and ping time.
func (h *JudgerController) Heartbeat(c *gin.Context) {
	name := c.GetString(judgerNameContextKey)
	if err := h.judgerService.Heartbeat(c.Request.Context(), name, c.ClientIP()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, HeartbeatResponse{PingedAt: time.Now().UTC().Format(time.RFC3339)})
}

// File streams test-data bytes for the given key.
func (h *JudgerController) File(c *gin.Context) {
	key := c.Query("key")
	reader, size, err := h.dispatchService.FetchTestData(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	if size >= 0 {
		c.DataFromReader(http.StatusOK, size, "application/octet-stream", reader, nil)
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		logger.Warn(c.Request.Context(), "test-data stream interrupted",
			zap.String("key", key),
			zap.Error(err))
	}
}

// RegisterJudger creates a judger and returns its plaintext key once. Admin
// surface.
func (h *JudgerController) RegisterJudger(c *gin.Context) {
	var req RegisterJudgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	key, err := h.judgerService.Register(c.Request.Context(), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, RegisterJudgerResponse{Name: req.Name, Key: key})
}

// ListJudgers returns registry rows with liveness. Admin surface.
func (h *JudgerController) ListJudgers(c *gin.Context) {
	statuses, err := h.judgerService.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]JudgerStatusPayload, 0, len(statuses))
	for _, status := range statuses {
		item := JudgerStatusPayload{
			Name:      status.Name,
			IPAddress: status.IPAddress,
			Online:    status.Online,
		}
		if status.LastPing != nil {
			item.LastPing = status.LastPing.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	response.Success(c, JudgerListResponse{Items: items})
}

// PollResponse is the poll payload. Submission is nil when no work is
// available.
type PollResponse struct {
	Available  bool               `json:"available"`
	Submission *SubmissionPayload `json:"submission,omitempty"`
}

// SubmissionPayload carries everything a judger needs to run a submission.
type SubmissionPayload struct {
	ID       int64          `json:"id"`
	Language string         `json:"language"`
	Body     string         `json:"body"`
	Problem  ProblemPayload `json:"problem"`
}

// ProblemPayload is the problem metadata embedded in a poll response.
type ProblemPayload struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	TimeLimit   int64  `json:"time_limit"`
	MemoryLimit int64  `json:"memory_limit"`
	TestDataKey string `json:"test_data_key"`
}

// ReportRequest is a judging result report.
type ReportRequest struct {
	SubmissionID int64           `json:"submission_id" binding:"required"`
	VerdictRaw   string          `json:"verdict" binding:"required"`
	Score        decimal.Decimal `json:"score"`
	Output       json.RawMessage `json:"output"`
}

// Verdict returns the typed verdict; validity is checked by the service.
func (r ReportRequest) Verdict() submissionrepo.Verdict {
	return submissionrepo.Verdict(r.VerdictRaw)
}

// ReportResponse acknowledges a recorded result.
type ReportResponse struct {
	SubmissionID int64 `json:"submission_id"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	PingedAt string `json:"pinged_at"`
}

// RegisterJudgerRequest names a new judger.
type RegisterJudgerRequest struct {
	Name string `json:"name" binding:"required"`
}

// RegisterJudgerResponse carries the generated key. The key is not stored in
// plaintext and cannot be retrieved again.
type RegisterJudgerResponse struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// JudgerStatusPayload is one registry row with liveness.
type JudgerStatusPayload struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address,omitempty"`
	LastPing  string `json:"last_ping,omitempty"`
	Online    bool   `json:"online"`
}

// JudgerListResponse lists registered judgers.
type JudgerListResponse struct {
	Items []JudgerStatusPayload `json:"items"`
}
