package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
)

func connect(t *testing.T, cfg Config) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	server := NewServer(cfg)
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callText(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestServer_ListsTools(t *testing.T) {
	cs := connect(t, Config{Services: newTestServices(), TransportMode: "stdio"})

	res, err := cs.ListTools(context.Background(), &sdkmcp.ListToolsParams{})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, def := range buildToolCatalog() {
		require.True(t, names[def.Name], def.Name)
	}
}

func TestServer_ToolCallsUseDefaultUser(t *testing.T) {
	cs := connect(t, Config{Services: newTestServices(), TransportMode: "stdio", DefaultUser: "u1"})

	text, isErr := callText(t, cs, "get_processed_event", map[string]any{"event_id": "e1"})
	require.False(t, isErr, text)

	var rec event.ProcessedEventRecord
	require.NoError(t, json.Unmarshal([]byte(text), &rec))
	require.Equal(t, "u1", rec.UserID)
	require.Equal(t, "abc", rec.Hash)
}

func TestServer_ErrorsAreReportedInBand(t *testing.T) {
	cs := connect(t, Config{Services: newTestServices(), TransportMode: "stdio", DefaultUser: "u1"})

	text, isErr := callText(t, cs, "get_processed_event", map[string]any{"event_id": "missing"})
	require.True(t, isErr)

	var apiErr APIError
	require.NoError(t, json.Unmarshal([]byte(text), &apiErr))
	require.Equal(t, "EVENT_NOT_FOUND", apiErr.Code)
}

func TestServer_ProcessEvents(t *testing.T) {
	cs := connect(t, Config{Services: newTestServices(), TransportMode: "stdio"})

	text, isErr := callText(t, cs, "process_events", map[string]any{
		"events": []map[string]any{
			{"id": "e1", "title": "Dentist", "start": "2026-03-02T09:00:00Z", "end": "2026-03-02T10:00:00Z"},
		},
	})
	require.False(t, isErr, text)

	var out struct {
		Outcomes []struct {
			EventID string `json:"event_id"`
			State   string `json:"state"`
		} `json:"outcomes"`
		TotalProcessed int `json:"total_processed"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Equal(t, 1, out.TotalProcessed)
	require.Equal(t, "e1", out.Outcomes[0].EventID)
}

type resolverStub map[string]string

func (r resolverStub) ResolveUser(ctx context.Context, token string) (string, error) {
	if userID, ok := r[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid api key")
}

func TestServer_HTTPAuthRequiresBearerToken(t *testing.T) {
	cs := connect(t, Config{
		Services:      newTestServices(),
		TransportMode: "http",
		AuthEnabled:   true,
		Resolver:      resolverStub{"secret": "u1"},
	})

	// In-memory requests carry no headers, so tool calls are rejected.
	_, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: "get_budget_limits", Arguments: map[string]any{}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unauthorized")
}

func TestServer_ReadsDocs(t *testing.T) {
	cs := connect(t, Config{Services: newTestServices(), TransportMode: "stdio"})

	res, err := cs.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "insight://docs/pipeline"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "filtered_irrelevant")
}
