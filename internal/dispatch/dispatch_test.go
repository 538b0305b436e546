package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsearch-app/docsearch/internal/config"
	"github.com/docsearch-app/docsearch/internal/embed"
	"github.com/docsearch-app/docsearch/internal/engine"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Chunking.Size = 10
	cfg.Chunking.Overlap = 2
	cfg.Embeddings.Provider = "static"
	cfg.Storage.IndexDir = t.TempDir()

	eng, err := engine.New(cfg, embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// runScript feeds the input lines through a dispatcher and returns every
// response line decoded. parentAlive is pinned to true so only the
// script controls the loop.
func runScript(t *testing.T, eng *engine.Engine, input string) []map[string]any {
	t.Helper()

	var out bytes.Buffer
	d := New(eng, strings.NewReader(input), &out)
	d.parentAlive = func() bool { return true }

	require.NoError(t, d.Run(context.Background()))
	return decodeLines(t, out.String())
}

func decodeLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var responses []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		var resp map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp),
			"response is not one JSON object per line: %s", scanner.Text())
		responses = append(responses, resp)
	}
	return responses
}

// findAction returns the first response carrying the given action.
func findAction(responses []map[string]any, action string) map[string]any {
	for _, r := range responses {
		if r["action"] == action {
			return r
		}
	}
	return nil
}

func TestDispatcher_InvalidJSON(t *testing.T) {
	responses := runScript(t, newTestEngine(t), "this is not json\n{\"action\":\"exit\"}\n")
	require.NotEmpty(t, responses)

	assert.Equal(t, false, responses[0]["success"])
	errMsg, _ := responses[0]["error"].(string)
	assert.True(t, strings.HasPrefix(errMsg, "Invalid JSON: "), "got %q", errMsg)
}

func TestDispatcher_UnknownAction(t *testing.T) {
	responses := runScript(t, newTestEngine(t), `{"action":"teleport"}`+"\n"+`{"action":"exit"}`+"\n")
	require.NotEmpty(t, responses)

	assert.Equal(t, false, responses[0]["success"])
	assert.Equal(t, "Unknown action: teleport", responses[0]["error"])
}

func TestDispatcher_ExitAcknowledged(t *testing.T) {
	responses := runScript(t, newTestEngine(t), `{"action":"exit"}`+"\n")
	require.Len(t, responses, 1)
	assert.Equal(t, true, responses[0]["success"])
	assert.Equal(t, "exit", responses[0]["action"])
}

func TestDispatcher_IndexSearchStats(t *testing.T) {
	eng := newTestEngine(t)

	docs := t.TempDir()
	content := "The cat is a small domesticated feline animal kept as a pet " +
		"cats purr and chase mice around the house feline friends sleep many hours"
	require.NoError(t, os.WriteFile(filepath.Join(docs, "cats.txt"), []byte(content), 0o644))

	folder, err := json.Marshal(docs)
	require.NoError(t, err)

	script := `{"action":"index","folder":` + string(folder) + `,"incremental":false}` + "\n" +
		`{"action":"exit"}` + "\n"
	responses := runScript(t, eng, script)

	indexResp := findAction(responses, "index")
	require.NotNil(t, indexResp)
	assert.Equal(t, true, indexResp["success"])
	assert.Equal(t, float64(1), indexResp["total_documents"])
	assert.Greater(t, indexResp["total_chunks"], float64(0))

	// Index is persisted; a second dispatcher run can search it
	responses = runScript(t, eng,
		`{"action":"search","query":"feline pets","limit":5}`+"\n"+
			`{"action":"stats"}`+"\n"+
			`{"action":"exit"}`+"\n")

	searchResp := findAction(responses, "search")
	require.NotNil(t, searchResp)
	assert.Equal(t, true, searchResp["success"])

	results, ok := searchResp["results"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, results)

	row, ok := results[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, row["file_path"], "cats.txt")
	assert.Equal(t, "cats.txt", row["file_name"])
	score, ok := row["score"].(float64)
	require.True(t, ok)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	preview, _ := row["preview"].(string)
	assert.NotEmpty(t, preview)
	assert.LessOrEqual(t, len([]rune(preview)), 200)
	_, hasPage := row["page_number"]
	assert.False(t, hasPage, "plain-text results must omit page_number")

	statsResp := findAction(responses, "stats")
	require.NotNil(t, statsResp)
	stats, ok := statsResp["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), stats["total_documents"])
	assert.Greater(t, stats["total_chunks"], float64(0))
	assert.Greater(t, stats["total_size"], float64(0))
}

func TestDispatcher_StatusIdle(t *testing.T) {
	responses := runScript(t, newTestEngine(t),
		`{"action":"status"}`+"\n"+`{"action":"exit"}`+"\n")

	statusResp := findAction(responses, "status")
	require.NotNil(t, statusResp)
	assert.Equal(t, true, statusResp["success"])
	assert.Equal(t, false, statusResp["indexing"])
}

func TestDispatcher_Clear(t *testing.T) {
	eng := newTestEngine(t)
	responses := runScript(t, eng,
		`{"action":"clear"}`+"\n"+`{"action":"exit"}`+"\n")

	clearResp := findAction(responses, "clear")
	require.NotNil(t, clearResp)
	assert.Equal(t, true, clearResp["success"])
}

func TestDispatcher_ParentDeathTerminatesLoop(t *testing.T) {
	eng := newTestEngine(t)

	// Input that never delivers a line, so only liveness polling can end
	// the loop.
	blocked, _ := io.Pipe()

	var out bytes.Buffer
	d := New(eng, blocked, &out)
	d.pollInterval = 10 * time.Millisecond
	d.parentAlive = func() bool { return false }

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not exit on parent death")
	}

	responses := decodeLines(t, out.String())
	require.NotEmpty(t, responses)
	last := responses[len(responses)-1]
	assert.Equal(t, false, last["success"])
	assert.Equal(t, "exit", last["action"])
	assert.Contains(t, last["error"], "parent process terminated")
}

func TestDispatcher_ClosedInputEndsRun(t *testing.T) {
	eng := newTestEngine(t)

	var out bytes.Buffer
	d := New(eng, strings.NewReader(""), &out)
	d.parentAlive = func() bool { return true }

	require.NoError(t, d.Run(context.Background()))
	assert.Empty(t, out.String())
}

func TestMakePreview(t *testing.T) {
	assert.Equal(t, "one two three", makePreview("one\ntwo\r\nthree"))

	long := strings.Repeat("word ", 100)
	preview := makePreview(long)
	assert.Len(t, []rune(preview), 200)
}
