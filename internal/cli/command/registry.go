package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "judger",
			Action:       "poll",
			Method:       "POST",
			PathTemplate: "/api/v1/judger/poll",
		},
		{
			Service:      "judger",
			Action:       "report",
			Method:       "POST",
			PathTemplate: "/api/v1/judger/report",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldInt64, Required: true},
				{Name: "verdict", Prompt: "verdict (AC/WA/TLE/...)", Type: FieldString, Required: true},
				{Name: "score", Prompt: "score", Type: FieldDecimal, Required: false},
				{Name: "output", Prompt: "output (JSON)", Type: FieldJSON, Required: false},
				{Name: "output_file", Prompt: "output_file", Type: FieldFile, Required: false},
			},
		},
		{
			Service:      "judger",
			Action:       "heartbeat",
			Method:       "POST",
			PathTemplate: "/api/v1/judger/heartbeat",
		},
		{
			Service:      "judger",
			Action:       "file",
			Method:       "GET",
			PathTemplate: "/api/v1/judger/file",
			Fields: []Field{
				{Name: "key", Prompt: "file key", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "judger",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/judgers",
		},
		{
			Service:      "judger",
			Action:       "register",
			Method:       "POST",
			PathTemplate: "/api/v1/judgers",
			Fields: []Field{
				{Name: "name", Prompt: "judger name", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "submission",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions",
			Fields: []Field{
				{Name: "user_id", Prompt: "user_id", Type: FieldInt64, Required: true},
				{Name: "language", Prompt: "language", Type: FieldString, Required: true},
				{Name: "body", Prompt: "source body", Type: FieldString, Required: true},
				{Name: "body_file", Prompt: "body_file", Type: FieldFile, Required: false},
				{Name: "problem_id", Prompt: "problem_id", Type: FieldInt64, Required: false},
				{Name: "contest_id", Prompt: "contest_id", Type: FieldInt64, Required: false},
				{Name: "contest_problem_id", Prompt: "contest_problem_id", Type: FieldInt64, Required: false},
			},
		},
		{
			Service:      "submission",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "submission",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions",
			Fields: []Field{
				{Name: "contest_id", Prompt: "contest_id", Type: FieldInt64, Required: false},
				{Name: "problem_id", Prompt: "problem_id", Type: FieldInt64, Required: false},
				{Name: "user_id", Prompt: "user_id", Type: FieldInt64, Required: false},
				{Name: "limit", Prompt: "limit", Type: FieldInt64, Required: false},
			},
		},
		{
			Service:      "submission",
			Action:       "rejudge",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/:id/rejudge",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "scoreboard",
			Action:       "show",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id/scoreboard",
			Fields: []Field{
				{Name: "id", Prompt: "contest_id", Type: FieldInt64, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// BuildRequest creates an HTTP request spec based on the command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	if cmd.Method == "GET" {
		query := url.Values{}
		for _, field := range cmd.Fields {
			if field.Name == "id" || field.Type == FieldFile {
				continue
			}
			if value := params.Get(field.Name); value != "" {
				query.Set(field.Name, value)
			}
		}
		if encoded := query.Encode(); encoded != "" {
			path += "?" + encoded
		}
		return RequestSpec{Method: cmd.Method, Path: path}, nil
	}

	payload, err := buildPayload(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}
	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}
	return RequestSpec{Method: cmd.Method, Path: path, Body: body}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", value)
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service {
	case "judger":
		switch cmd.Action {
		case "report":
			return buildReportPayload(params)
		case "register":
			name := strings.TrimSpace(params.Get("name"))
			if name == "" {
				return nil, fmt.Errorf("name is required")
			}
			return map[string]interface{}{"name": name}, nil
		}
	case "submission":
		if cmd.Action == "create" {
			return buildSubmissionCreatePayload(params)
		}
	}
	return nil, nil
}

func buildReportPayload(params Params) (interface{}, error) {
	submissionID, err := ParseInt64(params.Get("id"))
	if err != nil {
		return nil, fmt.Errorf("invalid submission id: %w", err)
	}
	payload := map[string]interface{}{
		"submission_id": submissionID,
		"verdict":       strings.ToUpper(params.Get("verdict")),
	}
	if score := params.Get("score"); score != "" {
		payload["score"] = json.RawMessage(score)
	}

	output := params.Get("output")
	if output == "" && params.Get("output_file") != "" {
		output, err = ReadFile(params.Get("output_file"))
		if err != nil {
			return nil, err
		}
	}
	if output != "" {
		outputJSON, err := ParseJSON(output)
		if err != nil {
			return nil, fmt.Errorf("invalid output: %w", err)
		}
		payload["output"] = outputJSON
	}
	return payload, nil
}

func buildSubmissionCreatePayload(params Params) (interface{}, error) {
	userID, err := ParseInt64(params.Get("user_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid user_id: %w", err)
	}

	body := params.Get("body")
	if (body == "" || body == "_file_") && params.Get("body_file") != "" {
		body, err = ReadFile(params.Get("body_file"))
		if err != nil {
			return nil, err
		}
	}
	if body == "" {
		return nil, fmt.Errorf("body is required")
	}

	payload := map[string]interface{}{
		"user_id":  userID,
		"language": params.Get("language"),
		"body":     body,
	}
	for _, key := range []string{"problem_id", "contest_id", "contest_problem_id"} {
		if value := params.Get(key); value != "" {
			parsed, err := ParseInt64(value)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			payload[key] = parsed
		}
	}
	return payload, nil
}
