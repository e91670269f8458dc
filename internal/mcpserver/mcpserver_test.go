package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/ispitch/internal/store"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

func connect(t *testing.T, st store.Store) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ss, err := New(st, "test").Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), res.IsError
}

func seeded(t *testing.T) *store.MemStore {
	t.Helper()
	st := store.NewMemStore()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a1", "a2"} {
		a := analysis.NewPending(id, "u1", id+".wav", base.Add(time.Duration(i)*time.Minute))
		a.Status = analysis.StatusCompleted
		a.Score = analysis.IntPtr(70 + i)
		a.SpeechAnalysis = &analysis.SpeechAnalysis{FillerWordsAnalysis: analysis.FillerWordsAnalysis{Total: 2}}
		a.AudioAnalysis = &analysis.AudioAnalysis{Duration: 60, SpeechRate: 120}
		if _, err := st.Save(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func TestListTools(t *testing.T) {
	t.Parallel()
	cs := connect(t, store.NewMemStore())

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, want := range []string{"get_analysis", "list_analyses", "analysis_stats"} {
		if !got[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

func TestGetAnalysis(t *testing.T) {
	t.Parallel()
	cs := connect(t, seeded(t))

	text, isErr := call(t, cs, "get_analysis", map[string]any{"id": "a2"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var a analysis.Analysis
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		t.Fatalf("decode: %v (%s)", err, text)
	}
	if a.ID != "a2" || a.Score == nil || *a.Score != 71 {
		t.Errorf("analysis = %+v", a)
	}

	if text, isErr := call(t, cs, "get_analysis", map[string]any{"id": "missing"}); !isErr {
		t.Errorf("missing analysis returned %s", text)
	}
	if _, isErr := call(t, cs, "get_analysis", map[string]any{"id": "a1", "user_id": "other"}); !isErr {
		t.Error("foreign analysis was returned")
	}
}

func TestListAnalyses(t *testing.T) {
	t.Parallel()
	cs := connect(t, seeded(t))

	text, isErr := call(t, cs, "list_analyses", map[string]any{"user_id": "u1", "page_size": 1})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var body struct {
		Analyses []analysis.Summary `json:"analyses"`
		Metadata analysis.Page      `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Analyses) != 1 || body.Analyses[0].ID != "a2" {
		t.Errorf("analyses = %+v", body.Analyses)
	}
	if !body.Metadata.HasMore || body.Metadata.Total != 2 {
		t.Errorf("metadata = %+v", body.Metadata)
	}

	if _, isErr := call(t, cs, "list_analyses", map[string]any{"user_id": "u1", "page_size": 51}); !isErr {
		t.Error("page_size 51 accepted")
	}
}

func TestAnalysisStats(t *testing.T) {
	t.Parallel()
	cs := connect(t, seeded(t))

	text, isErr := call(t, cs, "analysis_stats", map[string]any{"user_id": "u1", "range": "day"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var st analysis.Stats
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.TotalAnalyses != 2 || st.TotalFillerWords != 4 || st.TotalDuration != 2 {
		t.Errorf("stats = %+v", st)
	}

	if _, isErr := call(t, cs, "analysis_stats", map[string]any{"user_id": "u1", "range": "week"}); !isErr {
		t.Error("invalid range accepted")
	}
}
