package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT count() FROM runs", "SELECT count() FROM runs"},
		{"SELECT count() FROM runs;", "SELECT count() FROM runs"},
		{"```sql\nSELECT count() FROM runs;\n```", "SELECT count() FROM runs"},
		{"```\nSELECT 1 FROM runs\n```\nthis counts runs", "SELECT 1 FROM runs"},
		{"sql SELECT 1 FROM runs", "SELECT 1 FROM runs"},
		{"Here is the query:\n```SQL\nSELECT status FROM runs\n```", "SELECT status FROM runs"},
		{"```sql\nSELECT 1 FROM runs", "SELECT 1 FROM runs"},
		{"  \n", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeSQL(tt.in), tt.in)
	}
}

func TestValidateSQL(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain", "SELECT count() FROM runs WHERE status = 'failed'", false},
		{"qualified", "SELECT sum(amount_in) FROM defi.runs", false},
		{"lower case", "select token_out, count() from runs group by token_out", false},
		{"empty", "", true},
		{"not select", "SHOW TABLES", true},
		{"delete", "SELECT 1 FROM runs WHERE 1 IN (DELETE FROM runs)", true},
		{"drop", "SELECT 1 FROM runs; DROP TABLE runs", true},
		{"semicolon", "SELECT 1 FROM runs; SELECT 2 FROM runs", true},
		{"other table", "SELECT * FROM system.users", true},
		{"prefix match", "SELECT * FROM runs_backup", true},
		{"newline before keyword", "SELECT 1 FROM runs WHERE 1 IN (\nDROP\nTABLE runs)", true},
		{"keyword inside identifier", "SELECT updated FROM runs", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSQL(tt.sql)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSQLPromptNamesDatabase(t *testing.T) {
	p := sqlPrompt("defi", "how many runs failed today?")
	assert.Contains(t, p, "The table is defi.runs.")
	assert.Contains(t, p, "Database: defi")
	assert.Contains(t, p, "failed_step")
	assert.Contains(t, p, "how many runs failed today?")
	assert.Contains(t, p, "0.3%)")
}

func TestNewAgent_RequiresAPIKey(t *testing.T) {
	_, err := NewAgent(context.Background(), AgentConfig{ClickHouseAddr: "localhost:9000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}
