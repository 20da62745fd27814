package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/agent"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/browser"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/config"
	"github.com/nguyentuongbachhy/Interact-UI-Agent/internal/llm"
)

type cliOptions struct {
	task       string
	url        string
	maxSteps   int
	maxRetries int
	headless   bool
	single     bool
}

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	opts := parseFlags(cfg)
	if err := config.ValidateBudgets(opts.maxSteps, opts.maxRetries); err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}

	if opts.task == "" {
		task, cancelled, err := promptTask()
		if err != nil {
			log.Fatal().Err(err).Msg("prompt task failed")
		}
		if cancelled {
			fmt.Println("Cancelled.")
			return
		}
		opts.task = task
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	oracle, err := llm.NewClient(cfg.Provider, log.With().Str("comp", "llm").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("llm init")
	}

	launcher, err := browser.NewLauncher(ctx, opts.headless)
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer launcher.Close()

	ctrl, err := launcher.NewController(ctx, opts.url, log.With().Str("comp", "browser").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("browser controller")
	}
	defer ctrl.Close(ctx)

	runner := agent.NewRunner(
		agent.Config{MaxSteps: opts.maxSteps, MaxRetriesPerStep: opts.maxRetries},
		oracle,
		ctrl,
		log.With().Str("comp", "agent").Logger(),
	)

	if opts.single {
		result := runner.RunSingle(ctx, opts.task)
		printJSON(result)
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	result := runner.Run(ctx, opts.task)
	printJSON(result)
	if !result.TaskCompleted {
		os.Exit(1)
	}
}

func parseFlags(cfg *config.Config) cliOptions {
	task := flag.String("task", "", "Task description")
	url := flag.String("url", "", "Initial URL to open before the run")
	maxSteps := flag.Int("max-steps", cfg.MaxSteps, "Max agent steps")
	maxRetries := flag.Int("max-retries", cfg.MaxRetries, "Max retries per step")
	headless := flag.Bool("headless", cfg.Headless, "Run browser headless")
	single := flag.Bool("single", false, "Execute a single autonomous step and exit")
	flag.Parse()
	return cliOptions{
		task:       strings.TrimSpace(*task),
		url:        strings.TrimSpace(*url),
		maxSteps:   *maxSteps,
		maxRetries: *maxRetries,
		headless:   *headless,
		single:     *single,
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("marshal result")
		return
	}
	fmt.Println(string(out))
}

func promptTask() (string, bool, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter a task (leave empty to cancel): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", true, nil
	}

	const maxTaskLength = 2000
	if len(line) > maxTaskLength {
		fmt.Printf("Task too long (max %d characters), truncated\n", maxTaskLength)
		line = line[:maxTaskLength]
	}

	var sanitized strings.Builder
	for _, r := range line {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			sanitized.WriteRune(r)
		}
	}
	return sanitized.String(), false, nil
}
