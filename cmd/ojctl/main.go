package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"arbiter/internal/cli/command"
	"arbiter/internal/cli/config"
	httpclient "arbiter/internal/cli/http"
	"arbiter/internal/cli/repl"
)

const defaultConfigPath = "configs/ojctl.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	judgerName := flag.String("judger", "", "Judger name for worker endpoints")
	judgerKey := flag.String("key", "", "Judger key for worker endpoints")
	adminToken := flag.String("token", "", "Admin bearer token")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *judgerName != "" {
		cfg.JudgerName = *judgerName
	}
	if *judgerKey != "" {
		cfg.JudgerKey = *judgerKey
	}
	if *adminToken != "" {
		cfg.AdminToken = *adminToken
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	credentials := &httpclient.Credentials{
		JudgerName: cfg.JudgerName,
		JudgerKey:  cfg.JudgerKey,
		AdminToken: cfg.AdminToken,
	}
	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() httpclient.Credentials {
		return *credentials
	})

	commands := command.Registry()
	session := repl.New(client, commands, credentials, cfg.PrettyJSON != nil && *cfg.PrettyJSON)
	if err := session.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}
