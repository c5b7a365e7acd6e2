package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultModel is used when AgentConfig.Model is empty.
const DefaultModel = "openai/gpt-4.1-mini"

// AgentConfig holds configuration for the AI agent.
type AgentConfig struct {
	// ClickHouse connection settings.
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// OpenRouter / LLM settings.
	OpenRouterAPIKey string
	// Model name as understood by OpenRouter, e.g. "openai/gpt-4.1-mini".
	Model string

	Logger *logrus.Logger
}

// Agent provides NL→SQL over the runs table using an LLM and ClickHouse.
type Agent struct {
	llm      llms.Model
	db       *sql.DB
	database string
	logger   *logrus.Logger
}

// NewAgent creates a new Agent with its own ClickHouse and LLM clients.
func NewAgent(ctx context.Context, cfg AgentConfig) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ClickHouseDatabase == "" {
		cfg.ClickHouseDatabase = "default"
	}

	// Initialise LLM backed by OpenRouter (OpenAI-compatible API).
	llm, err := openai.New(
		openai.WithToken(cfg.OpenRouterAPIKey),
		openai.WithBaseURL("https://openrouter.ai/api/v1"),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter LLM: %w", err)
	}

	// Create ClickHouse *sql.DB using the stdlib wrapper.
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseAddr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		},
	})

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse from AI agent: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":     cfg.ClickHouseAddr,
		"database": cfg.ClickHouseDatabase,
		"model":    cfg.Model,
	}).Info("initialized AI agent")

	return &Agent{
		llm:      llm,
		db:       db,
		database: cfg.ClickHouseDatabase,
		logger:   cfg.Logger,
	}, nil
}

// Close closes underlying resources.
func (a *Agent) Close() error {
	if a.db != nil {
		a.logger.Debug("closing AI agent ClickHouse connection")
		return a.db.Close()
	}
	return nil
}

// AskResult is the structured result of an Ask call.
type AskResult struct {
	SQL       string `json:"sql"`
	Answer    string `json:"answer"`
	Rows      int    `json:"rows"`      // rows passed to the summary
	Truncated bool   `json:"truncated"` // more than maxResultRows matched
}

const (
	maxResultRows = 200
	queryTimeout  = 15 * time.Second
)

// Ask generates SQL for the question, runs it and summarises the rows.
func (a *Agent) Ask(ctx context.Context, question string) (*AskResult, error) {
	sqlQuery, err := a.generateSQL(ctx, question)
	if err != nil {
		return nil, err
	}

	res, err := a.runQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	a.logger.WithFields(logrus.Fields{"rows": res.rows, "truncated": res.truncated}).Debug("ai query done")

	answer, err := a.summariseResult(ctx, question, sqlQuery, res)
	if err != nil {
		return nil, err
	}

	return &AskResult{
		SQL:       sqlQuery,
		Answer:    answer,
		Rows:      res.rows,
		Truncated: res.truncated,
	}, nil
}

// generateSQL asks the LLM for a single read-only SELECT over the runs table.
func (a *Agent) generateSQL(ctx context.Context, question string) (string, error) {
	resp, err := llms.GenerateFromSinglePrompt(
		ctx,
		a.llm,
		sqlPrompt(a.database, question),
		llms.WithMaxTokens(512),
	)
	if err != nil {
		return "", fmt.Errorf("LLM SQL generation failed: %w", err)
	}

	sqlQuery := sanitizeSQL(resp)
	if err := validateSQL(sqlQuery); err != nil {
		return "", err
	}

	a.logger.WithField("sql", sqlQuery).Debug("generated SQL from question")
	return sqlQuery, nil
}

func sqlPrompt(database, question string) string {
	return fmt.Sprintf(`
You are an expert ClickHouse SQL generator.

Use ONLY the following table:
%s

Rules:
- Return a single SELECT query in ClickHouse SQL.
- Do NOT include any explanation or comments, only the SQL.
- The table is %s.runs.
- Use timestamp for time filtering.
- A run succeeded when status = 'success'; failed runs name the step in failed_step.
- Use aggregate functions like sum, avg, count when appropriate.
- If user asks for "top" or "biggest" something, use ORDER BY ... DESC and LIMIT.
- Never modify data: no INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE.

User question:
%s
`, runsSchemaDescription(database), database, question)
}

type queryResult struct {
	json      string
	rows      int
	truncated bool
}

// runQuery executes the generated SQL and encodes at most maxResultRows rows
// as a JSON array of objects.
func (a *Agent) runQuery(ctx context.Context, sqlQuery string) (*queryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := a.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	res := &queryResult{}
	out := make([]map[string]any, 0)
	for rows.Next() {
		if len(out) == maxResultRows {
			res.truncated = true
			break
		}
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rows to JSON: %w", err)
	}
	res.json = string(data)
	res.rows = len(out)
	return res, nil
}

// summariseResult asks the LLM to answer the question given SQL + JSON results.
func (a *Agent) summariseResult(ctx context.Context, question, sqlQuery string, res *queryResult) (string, error) {
	note := ""
	if res.truncated {
		note = fmt.Sprintf(" (only the first %d rows are shown)", maxResultRows)
	}
	prompt := fmt.Sprintf(`
You are a helpful assistant reviewing a wallet's swap-and-supply runs: each run swaps
token_in for token_out on a DEX and deposits the output into a lending pool.

User question:
%s

SQL that was executed:
%s

Query results in JSON (array of objects, can be empty)%s:
%s

Instructions:
- If the result set is empty, say that no data was found for the question.
- Otherwise, answer the question concisely using bullet points and short sentences.
- Include key numbers (amounts, counts, durations, tx hashes) rounded reasonably.
- Do not restate the raw JSON.
`, question, sqlQuery, note, res.json)

	resp, err := llms.GenerateFromSinglePrompt(
		ctx,
		a.llm,
		prompt,
		llms.WithMaxTokens(512),
	)
	if err != nil {
		return "", fmt.Errorf("LLM summarisation failed: %w", err)
	}

	return strings.TrimSpace(resp), nil
}

var (
	fenced     = regexp.MustCompile("(?s)```(?i:sql)?\\s*(.*?)(```|$)")
	fromRuns   = regexp.MustCompile(`\bFROM\s+([A-Z0-9_]+\.)?RUNS\b`)
	writeWords = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|RENAME|ATTACH|DETACH|OPTIMIZE|GRANT|REVOKE|KILL|SYSTEM)\b`)
)

// sanitizeSQL extracts the query from LLM output: the first fenced block if
// there is one, without a leading "sql" tag or trailing semicolon.
func sanitizeSQL(s string) string {
	s = strings.TrimSpace(s)
	if m := fenced.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if len(s) > 3 && strings.EqualFold(s[:3], "sql") && (s[3] == ' ' || s[3] == '\n') {
		s = strings.TrimSpace(s[4:])
	}
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// validateSQL accepts a single SELECT over the runs table and nothing that
// writes or administers.
func validateSQL(s string) error {
	if s == "" {
		return fmt.Errorf("empty SQL generated by LLM")
	}

	upper := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(upper, "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed, got: %s", upper[:min(20, len(upper))])
	}
	if kw := writeWords.FindString(upper); kw != "" {
		return fmt.Errorf("disallowed SQL keyword %q in generated query", kw)
	}
	if strings.Contains(s, ";") {
		return fmt.Errorf("multiple statements or semicolons are not allowed")
	}
	if !fromRuns.MatchString(upper) {
		return fmt.Errorf("query must target the runs table")
	}
	return nil
}
