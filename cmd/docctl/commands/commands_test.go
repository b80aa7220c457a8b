package commands

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"loan-intake/internal/batch"
	"loan-intake/internal/documents"
	"loan-intake/internal/intake"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ENV", "dev")
	t.Setenv("DATABASE_URL", "memory")
	t.Setenv("LOG_LEVEL", "error")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportWritesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hr.xlsx")
	out, err := run(t, "export", "hr_letter", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("hr_letter")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"id", "created_at"}, rows[0][:2])
}

func TestExportRejectsUnknownFamily(t *testing.T) {
	_, err := run(t, "export", "passport", "--out", filepath.Join(t.TempDir(), "x.xlsx"))
	assert.ErrorContains(t, err, "unknown family")
}

func TestProcessNeedsInput(t *testing.T) {
	_, err := run(t, "process")
	assert.ErrorContains(t, err, "at least one path")
}

func TestProcessEmptyDirectory(t *testing.T) {
	out, err := run(t, "process", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "no documents found")
}

func TestPrintItem(t *testing.T) {
	ok := batch.Item{Key: "a.png", Outcome: intake.Outcome{DocumentType: documents.HRLetter, RecordID: 7}}
	bad := batch.Item{Key: "b.png", Code: intake.CodeGateway, Err: errors.New("boom")}

	var buf bytes.Buffer
	processJSON = false
	printItem(&buf, ok)
	printItem(&buf, bad)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ok    a.png"))
	assert.Contains(t, lines[0], "record=7")
	assert.Equal(t, "FAIL  b.png  gateway_error: boom", lines[1])

	buf.Reset()
	processJSON = true
	t.Cleanup(func() { processJSON = false })
	printItem(&buf, bad)
	assert.JSONEq(t, `{"key":"b.png","ok":false,"code":"gateway_error","error":"boom"}`, buf.String())
}
