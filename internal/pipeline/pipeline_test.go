package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ericksa/ptextract/internal/agent"
	"github.com/ericksa/ptextract/internal/extract"
	"github.com/ericksa/ptextract/internal/history"
	"github.com/ericksa/ptextract/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// echoConversation answers every prompt with one well-formed line per
// value in the prompt table.
type echoConversation struct {
	prompts []string
	mangle  func(n int, reply string) string
}

func (c *echoConversation) Send(ctx context.Context, content string) error {
	c.prompts = append(c.prompts, content)
	return nil
}

func (c *echoConversation) AwaitReply(ctx context.Context, after agent.Watermark) (string, agent.Watermark, error) {
	n := len(c.prompts) - 1
	lines := strings.Split(c.prompts[n], "\n")[2:] // preamble, table header
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s | 30 | 0\n", strings.TrimSpace(l))
	}
	reply := b.String()
	if c.mangle != nil {
		reply = c.mangle(n, reply)
	}
	return reply, agent.Watermark{CreatedAt: int64(n + 1)}, nil
}

type fakeOpener struct {
	conv *echoConversation
	err  error
	name string
}

func (o *fakeOpener) Open(ctx context.Context, name string) (extract.Conversation, error) {
	o.name = name
	if o.err != nil {
		return nil, o.err
	}
	return o.conv, nil
}

type memRecorder struct{ runs []history.Run }

func (m *memRecorder) Record(ctx context.Context, r history.Run) error {
	m.runs = append(m.runs, r)
	return nil
}

type countingArchiver struct{ paths []string }

func (a *countingArchiver) Archive(ctx context.Context, runID, p string) (string, error) {
	a.paths = append(a.paths, p)
	return "runs/" + runID + "/" + filepath.Base(p), nil
}

func workbook(t *testing.T, header string, values []string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellStr("Sheet1", "A1", "Vendor"))
	require.NoError(t, f.SetCellStr("Sheet1", "B1", header))
	for i, v := range values {
		row := i + 2
		require.NoError(t, f.SetCellStr("Sheet1", fmt.Sprintf("A%d", row), fmt.Sprintf("vendor %d", i)))
		if v != "" {
			require.NoError(t, f.SetCellStr("Sheet1", fmt.Sprintf("B%d", row), v))
		}
	}
	path := filepath.Join(t.TempDir(), "vendors.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func terms(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Net %d days", i+1)
	}
	return out
}

func TestProcess_Saved(t *testing.T) {
	values := append([]string{"Net 0 days"}, terms(25)...)
	values = append(values, "Net 3 days", "")
	path := workbook(t, sheet.CanonicalColumn, values)

	opener := &fakeOpener{conv: &echoConversation{}}
	rec := &memRecorder{}
	arch := &countingArchiver{}
	svc := New(opener, Options{AssistantName: "Payment term extractor", BatchSize: 20, Recorder: rec, Archiver: arch})

	out, err := svc.Process(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "Payment term extractor", opener.name)
	assert.Equal(t, StatusSaved, out.Status)
	assert.Equal(t, sheet.CanonicalColumn, out.Column)
	// first unique value dropped, duplicate collapsed, missing kept as Unknown
	assert.Equal(t, 26, out.UniqueTerms)
	require.NotNil(t, out.Result)
	assert.Len(t, out.Result.Terms, 26)
	assert.Equal(t, sheet.Unknown, out.Result.Terms[25].Description)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "pt_output_vendors.xlsx"), out.OutputPath)
	assert.FileExists(t, out.OutputPath)
	assert.Equal(t, "Payment terms saved successfully to "+out.OutputPath, out.Message())

	assert.Equal(t, []string{path, out.OutputPath}, arch.paths)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, out.RunID, rec.runs[0].ID)
	assert.Equal(t, 2, rec.runs[0].Chunks)
	assert.Equal(t, 26, rec.runs[0].Terms)
	assert.Equal(t, "saved", rec.runs[0].Status)
}

func TestProcess_MismatchKeepsEarlierChunks(t *testing.T) {
	path := workbook(t, sheet.CanonicalColumn, append([]string{"header"}, terms(45)...))
	conv := &echoConversation{mangle: func(n int, reply string) string {
		if n == 1 {
			return "only | 1 | 1\n"
		}
		return reply
	}}
	rec := &memRecorder{}
	svc := New(&fakeOpener{conv: conv}, Options{BatchSize: 20, Recorder: rec})

	out, err := svc.Process(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, out.Status)
	assert.True(t, out.Result.Aborted)
	assert.Len(t, out.Result.Terms, 20)
	assert.Len(t, conv.prompts, 2)
	assert.True(t, rec.runs[0].Aborted)
}

func TestProcess_NoTerms(t *testing.T) {
	path := workbook(t, sheet.CanonicalColumn, append([]string{"header"}, terms(3)...))
	conv := &echoConversation{mangle: func(int, string) string { return "I cannot help with that." }}

	out, err := New(&fakeOpener{conv: conv}, Options{}).Process(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Equal(t, StatusNoTerms, out.Status)
	assert.Equal(t, "No payment terms found in the responses.", out.Message())
	assert.NoFileExists(t, sheet.OutputPath(path))
}

func TestProcess_GuessesColumn(t *testing.T) {
	path := workbook(t, "Conditions", append([]string{"header"}, "Within 10 days", "net 30"))

	out, err := New(&fakeOpener{conv: &echoConversation{}}, Options{}).Process(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "Conditions", out.Column)
	assert.Equal(t, StatusSaved, out.Status)
}

func TestProcess_ColumnUnknown(t *testing.T) {
	path := workbook(t, "Conditions", []string{"upon receipt", "immediately"})

	out, err := New(&fakeOpener{conv: &echoConversation{}}, Options{}).Process(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Equal(t, StatusColumnUnknown, out.Status)
	assert.Equal(t, []string{"Vendor", "Conditions"}, out.Columns)
	assert.Contains(t, out.Message(), "Vendor, Conditions")
}

func TestProcess_ExplicitColumn(t *testing.T) {
	path := workbook(t, "Conditions", []string{"upon receipt", "immediately", "eom"})

	out, err := New(&fakeOpener{conv: &echoConversation{}}, Options{}).Process(context.Background(), Request{Path: path, Column: "2"})
	require.NoError(t, err)
	assert.Equal(t, "Conditions", out.Column)
	assert.Equal(t, 2, out.UniqueTerms)
}

func TestProcess_LoadFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a workbook"), 0644))
	rec := &memRecorder{}

	out, err := New(&fakeOpener{conv: &echoConversation{}}, Options{Recorder: rec}).Process(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Equal(t, StatusLoadFailed, out.Status)
	assert.Equal(t, "Failed to process the file. Please try uploading again.", out.Message())
	require.Len(t, rec.runs, 1)
	assert.NotEmpty(t, rec.runs[0].Reason)
}

func TestProcess_AssistantMissing(t *testing.T) {
	rec := &memRecorder{}
	opener := &fakeOpener{err: fmt.Errorf("lookup: %w", agent.ErrAssistantNotFound)}

	_, err := New(opener, Options{Recorder: rec}).Process(context.Background(), Request{Path: "/nope.xlsx"})
	assert.True(t, errors.Is(err, agent.ErrAssistantNotFound))
	assert.Empty(t, rec.runs)
}
