package command

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRegistryKeys(t *testing.T) {
	commands := Registry()
	for _, key := range []string{
		"judger poll", "judger report", "judger heartbeat", "judger file", "judger list",
		"judger register",
		"submission create", "submission get", "submission list", "submission rejudge",
		"scoreboard show",
	} {
		if _, ok := commands[key]; !ok {
			t.Errorf("missing command %q", key)
		}
	}
}

func TestBuildRequestPathParameter(t *testing.T) {
	cmd := Registry()["submission get"]
	params := Params{}
	params.Set("id", "42")

	spec, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if spec.Path != "/api/v1/submissions/42" {
		t.Fatalf("path = %q", spec.Path)
	}
	if spec.Method != "GET" {
		t.Fatalf("method = %q", spec.Method)
	}

	_, err = BuildRequest(cmd, Params{})
	if err == nil {
		t.Fatal("expected error for missing path parameter")
	}
}

func TestBuildRequestQueryString(t *testing.T) {
	cmd := Registry()["submission list"]
	params := Params{}
	params.Set("contest_id", "1")
	params.Set("limit", "20")

	spec, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if !strings.HasPrefix(spec.Path, "/api/v1/submissions?") {
		t.Fatalf("path = %q", spec.Path)
	}
	if !strings.Contains(spec.Path, "contest_id=1") || !strings.Contains(spec.Path, "limit=20") {
		t.Fatalf("query missing filters: %q", spec.Path)
	}
	if spec.Body != nil {
		t.Fatal("GET request should carry no body")
	}
}

func TestBuildReportRequest(t *testing.T) {
	cmd := Registry()["judger report"]
	params := Params{}
	params.Set("id", "7")
	params.Set("verdict", "ac")
	params.Set("score", "100.5")
	params.Set("output", `{"time_ms": 12}`)

	spec, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}

	var payload struct {
		SubmissionID int64           `json:"submission_id"`
		Verdict      string          `json:"verdict"`
		Score        json.Number     `json:"score"`
		Output       json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(spec.Body, &payload); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if payload.SubmissionID != 7 {
		t.Fatalf("submission_id = %d", payload.SubmissionID)
	}
	if payload.Verdict != "AC" {
		t.Fatalf("verdict = %q, want uppercased AC", payload.Verdict)
	}
	if payload.Score.String() != "100.5" {
		t.Fatalf("score = %q", payload.Score)
	}
	if string(payload.Output) != `{"time_ms": 12}` {
		t.Fatalf("output = %s", payload.Output)
	}
}

func TestBuildReportRejectsBadInput(t *testing.T) {
	cmd := Registry()["judger report"]

	params := Params{}
	params.Set("id", "not-a-number")
	params.Set("verdict", "AC")
	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatal("expected error for non-numeric id")
	}

	params = Params{}
	params.Set("id", "7")
	params.Set("verdict", "AC")
	params.Set("output", "{broken")
	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatal("expected error for malformed output json")
	}
}

func TestBuildSubmissionCreateRequest(t *testing.T) {
	cmd := Registry()["submission create"]
	params := Params{}
	params.Set("user_id", "2")
	params.Set("language", "cpp")
	params.Set("body", "int main() {}")
	params.Set("contest_id", "1")
	params.Set("contest_problem_id", "101")

	spec, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(spec.Body, &payload); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if payload["language"] != "cpp" {
		t.Fatalf("language = %v", payload["language"])
	}
	if payload["body"] != "int main() {}" {
		t.Fatalf("body = %v", payload["body"])
	}
	if payload["contest_id"] != float64(1) || payload["contest_problem_id"] != float64(101) {
		t.Fatalf("contest fields = %v / %v", payload["contest_id"], payload["contest_problem_id"])
	}
	if _, ok := payload["problem_id"]; ok {
		t.Fatal("unset problem_id should not appear in payload")
	}
}

func TestBuildSubmissionCreateRequiresBody(t *testing.T) {
	cmd := Registry()["submission create"]
	params := Params{}
	params.Set("user_id", "2")
	params.Set("language", "cpp")

	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatal("expected error for missing body")
	}
}
