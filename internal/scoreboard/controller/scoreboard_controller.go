package controller

import (
	"strconv"

	"arbiter/internal/scoreboard/service"
	"arbiter/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ScoreboardController serves contest standings.
type ScoreboardController struct {
	scoreboardService *service.ScoreboardService
}

// NewScoreboardController creates a new ScoreboardController.
func NewScoreboardController(scoreboardService *service.ScoreboardService) *ScoreboardController {
	return &ScoreboardController{scoreboardService: scoreboardService}
}

// Get returns the current standings for one contest.
func (h *ScoreboardController) Get(c *gin.Context) {
	contestID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || contestID <= 0 {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	standings, err := h.scoreboardService.ComputeStandings(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	problems := make([]ProblemColumn, 0, len(standings.Problems))
	for _, problem := range standings.Problems {
		problems = append(problems, ProblemColumn{
			ContestProblemID: problem.ID,
			Name:             problem.Name,
			Points:           problem.Points.String(),
		})
	}

	rows := make([]StandingsRow, 0, len(standings.Rows))
	for rank, row := range standings.Rows {
		item := StandingsRow{
			Rank:     rank + 1,
			UserID:   row.UserID,
			Username: row.Username,
			Score:    row.Score.String(),
			Penalty:  row.Penalty,
			Cells:    make(map[string]StandingsCell, len(row.Cells)),
		}
		for contestProblemID, cell := range row.Cells {
			item.Cells[strconv.FormatInt(contestProblemID, 10)] = StandingsCell{
				SubmissionID: cell.SubmissionID,
				Verdict:      string(cell.Verdict),
				Minute:       cell.Minute,
			}
		}
		rows = append(rows, item)
	}

	response.Success(c, StandingsResponse{
		ContestID: standings.ContestID,
		Problems:  problems,
		Rows:      rows,
	})
}

// ProblemColumn describes one scoreboard column.
type ProblemColumn struct {
	ContestProblemID int64  `json:"contest_problem_id"`
	Name             string `json:"name"`
	Points           string `json:"points"`
}

// StandingsCell is the governing submission for one cell.
type StandingsCell struct {
	SubmissionID int64  `json:"submission_id"`
	Verdict      string `json:"verdict"`
	Minute       int64  `json:"minute"`
}

// StandingsRow is one ranked contestant.
type StandingsRow struct {
	Rank     int                      `json:"rank"`
	UserID   int64                    `json:"user_id"`
	Username string                   `json:"username"`
	Score    string                   `json:"score"`
	Penalty  int64                    `json:"penalty"`
	Cells    map[string]StandingsCell `json:"cells"`
}

// StandingsResponse is the scoreboard payload.
type StandingsResponse struct {
	ContestID int64          `json:"contest_id"`
	Problems  []ProblemColumn `json:"problems"`
	Rows      []StandingsRow `json:"rows"`
}
