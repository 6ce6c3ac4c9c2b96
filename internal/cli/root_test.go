package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"migrate", "expand", "sync", "cleanup", "preview", "export-ics", "serve"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	tests := []struct {
		command string
		flag    string
		def     string
	}{
		{"expand", "dry-run", "false"},
		{"expand", "months", "0"},
		{"expand", "master", "0"},
		{"sync", "authoritative", "false"},
		{"sync", "community", "0"},
		{"cleanup", "keep-rules", "false"},
		{"cleanup", "dry-run", "false"},
		{"cleanup", "from-date", ""},
		{"preview", "months", "3"},
		{"export-ics", "output", ""},
		{"serve", "no-http", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "preview")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCleanup_RequiresFlags(t *testing.T) {
	_, err := execute(t, "cleanup", "--community", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from-date")
}

func TestCleanup_RejectsBadDate(t *testing.T) {
	_, err := execute(t, "cleanup", "--community", "1", "--from-date", "2025/01/01")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPreview_Text(t *testing.T) {
	out, err := execute(t, "preview",
		"--frequency", "MONTHLY_BY_WEEK", "--week-of-month", "4", "--weekday", "MON",
		"--base-date", "2024-12-01", "--months", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-12-23 MON")
	assert.Contains(t, out, "2025-01-27 MON")
	assert.Contains(t, out, "2025-03-24 MON")
}

func TestPreview_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "preview",
		"--frequency", "weekly", "--interval", "2", "--weekday", "MON",
		"--start-date", "2025-06-16", "--base-date", "2025-06-16", "--months", "1")
	require.NoError(t, err)

	var res PreviewResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"2025-06-16", "2025-06-30", "2025-07-14"}, res.Dates)
	assert.Equal(t, "every 2 weeks on MON", res.Rule)
}

func TestPreview_InvalidRule(t *testing.T) {
	_, err := execute(t, "preview", "--frequency", "MONTHLY_BY_WEEK", "--weekday", "MON")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnwrapJoined(t *testing.T) {
	a, b := errors.New("slot 1"), errors.New("slot 2")
	assert.Equal(t, []error{a, b}, unwrapJoined(errors.Join(a, b)))
	assert.Nil(t, unwrapJoined(fmt.Errorf("failed to get rule 3: %w", a)))
	assert.Nil(t, unwrapJoined(nil))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitPartial, GetExitCode(partial("sync", 2)))
	assert.NoError(t, partial("sync", 0))
}
