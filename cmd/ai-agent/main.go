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
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/ai"
	"github.com/Kizito2001/defi-swap-supply/internal/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// usage: ai-agent [-model m] [-json] [question...]
// Without a question it reads one per line from stdin.
func main() {
	model := flag.String("model", "", "OpenRouter model (default AI_MODEL)")
	asJSON := flag.Bool("json", false, "print answers as JSON")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.DateTime})

	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.OpenRouterAPIKey == "" {
		logger.Fatal("OPENROUTER_API_KEY is not set")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := ai.NewAgent(ctx, agentConfig(cfg, *model, logger))
	if err != nil {
		logger.WithError(err).Fatal("failed to create AI agent")
	}
	defer agent.Close()

	out := printText
	if *asJSON {
		out = printJSON
	}

	if q := strings.TrimSpace(strings.Join(flag.Args(), " ")); q != "" {
		res, err := agent.Ask(ctx, q)
		if err != nil {
			logger.WithError(err).Error("question failed")
			os.Exit(1)
		}
		out(res)
		return
	}
	repl(ctx, agent, out)
}

func agentConfig(cfg *config.Config, model string, logger *logrus.Logger) ai.AgentConfig {
	if model == "" {
		model = cfg.AIModel
	}
	return ai.AgentConfig{
		ClickHouseAddr:     cfg.ClickHouseAddr,
		ClickHouseDatabase: cfg.ClickHouseDatabase,
		ClickHouseUsername: cfg.ClickHouseUsername,
		ClickHousePassword: cfg.ClickHousePassword,
		OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
		Model:              model,
		Logger:             logger,
	}
}

func printText(res *ai.AskResult) {
	fmt.Printf("SQL:\n%s\n\nAnswer:\n%s\n", res.SQL, res.Answer)
	if res.Truncated {
		fmt.Printf("(based on the first %d rows)\n", res.Rows)
	}
}

func printJSON(res *ai.AskResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

// repl stops on EOF, an empty line, "exit", "quit" or a signal.
func repl(ctx context.Context, agent *ai.Agent, out func(*ai.AskResult)) {
	fmt.Fprintln(os.Stderr, `ask about past runs, e.g. "how many runs failed at the supply step this week?"`)

	in := bufio.NewScanner(os.Stdin)
	for ctx.Err() == nil {
		fmt.Fprint(os.Stderr, "> ")
		if !in.Scan() {
			return
		}
		switch q := strings.TrimSpace(in.Text()); q {
		case "", "exit", "quit":
			return
		default:
			start := time.Now()
			res, err := agent.Ask(ctx, q)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			out(res)
			fmt.Fprintf(os.Stderr, "(%s)\n\n", time.Since(start).Round(time.Millisecond))
		}
	}
}
