package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"arbiter/internal/cli/command"
	httpclient "arbiter/internal/cli/http"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// Session holds REPL state: the HTTP client plus the credentials applied to
// every request.
type Session struct {
	client      *httpclient.Client
	commands    map[string]command.Command
	credentials *httpclient.Credentials
	prettyJSON  bool
	out         io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, credentials *httpclient.Credentials, prettyJSON bool) *Session {
	return &Session{
		client:      client,
		commands:    commands,
		credentials: credentials,
		prettyJSON:  prettyJSON,
		out:         os.Stdout,
	}
}

func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ojctl> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".ojctl_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    s.completer(),
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.handleSystemCommand(line) {
			return nil
		}
		if err := s.handleCommand(ctx, rl, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

// handleSystemCommand handles non-HTTP commands; it returns true when the
// session should end.
func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true
	case "help":
		s.printHelp()
		return false
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return false
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|judger|token")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "judger":
		if len(parts) < 3 {
			s.printLine("usage: set judger <name> <key>")
			return
		}
		s.credentials.JudgerName = parts[1]
		s.credentials.JudgerKey = parts[2]
		s.printLine("judger credentials updated")
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <admin_token>")
			return
		}
		s.credentials.AdminToken = parts[1]
		s.printLine("admin token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleCommand(ctx context.Context, rl *readline.Instance, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}

	if err := s.promptMissing(rl, cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) promptMissing(rl *readline.Instance, cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Has(field.Name) && params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(rl, field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(rl *readline.Instance, prompt string) (string, error) {
	rl.SetPrompt(prompt + ": ")
	defer rl.SetPrompt("ojctl> ")
	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) completer() readline.AutoCompleter {
	keys := make([]string, 0, len(s.commands))
	for key := range s.commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	items := make([]readline.PrefixCompleterInterface, 0, len(keys)+2)
	for _, key := range keys {
		parts := strings.SplitN(key, " ", 2)
		items = append(items, readline.PcItem(parts[0], readline.PcItem(parts[1])))
	}
	items = append(items,
		readline.PcItem("set",
			readline.PcItem("base"),
			readline.PcItem("timeout"),
			readline.PcItem("judger"),
			readline.PcItem("token")),
		readline.PcItem("help"),
		readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|judger|token")
	s.printLine("examples:")
	s.printLine("  judger poll")
	s.printLine("  judger report id=42 verdict=AC score=100 output='{\"time_ms\":12}'")
	s.printLine("  scoreboard show id=1")
	s.printLine("  submission rejudge id=42")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
