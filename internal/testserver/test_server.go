// Package testserver runs the full insight stack behind the streamable HTTP
// transport for end-to-end tests.
package testserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/brain"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/mcp"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/orchestrator"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/sqlite"
)

const (
	// FilterReply is what the stub model answers to relevance prompts.
	FilterReply = `{"isRelevant": true, "relevanceReason": "meeting with a client", "confidence": 0.8, "suggestedAction": "process"}`
	// ExtractReply is what the stub model answers to extraction prompts.
	ExtractReply = `{"eventType":"client_session","isClientRelated":true,"clientEmails":["jane@client.com"],` +
		`"sessionType":"individual","topics":["goals"],"actionItems":["send recap"],"notes":"","confidence":0.85,` +
		`"suggestedAction":"process"}`
)

// StubProvider answers every prompt with a fixed reply and counts calls.
type StubProvider struct {
	Calls atomic.Int32
}

func (p *StubProvider) GenerateCompletion(ctx context.Context, model string, messages []llm.Message, structured bool) (string, error) {
	p.Calls.Add(1)
	if len(messages) > 0 && strings.Contains(messages[0].Content, "You classify") {
		return FilterReply, nil
	}
	return ExtractReply, nil
}

type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Provider *StubProvider
	Token    string
	UserID   string
}

// New starts a server with authentication on and registers token for userID.
func New(t *testing.T, token, userID string) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	catalog := llm.DefaultCatalog()
	provider := &StubProvider{}

	detector := event.NewDetector(sqlite.NewProcessedEventRepository(db), nil)
	costs := cost.NewTracker(sqlite.NewUsageRepository(db), catalog, cost.DefaultConfig(), nil)
	limiter := ratelimit.New(catalog, ratelimit.DefaultConfig(), nil)
	controller := concurrency.NewController(4, nil, nil)

	orch, err := orchestrator.New(orchestrator.Deps{
		Detector:   detector,
		Filter:     brain.NewFilter(provider, nil),
		Extractor:  brain.NewExtractor(provider, nil),
		Limiter:    limiter,
		Costs:      costs,
		Controller: controller,
		Catalog:    catalog,
	}, orchestrator.DefaultConfig())
	require.NoError(t, err)

	apiKeys := sqlite.NewAPIKeyRepository(db)
	server := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Processor:   orch,
			Costs:       costs,
			Events:      detector,
			Concurrency: controller,
			RateLimits:  limiter,
			Activity:    activity.NewService(sqlite.NewActivityRepository(db), nil),
		},
		Resolver:      apiKeys,
		AuthEnabled:   true,
		TransportMode: "http",
		Version:       "test",
	})
	handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return server }, nil)
	httpServer := httptest.NewServer(handler)

	ts := &TestServer{
		Server:   httpServer,
		DB:       db,
		Provider: provider,
		Token:    token,
		UserID:   userID,
	}

	require.NoError(t, apiKeys.Create(context.Background(), userID, token, "test"))

	t.Cleanup(func() {
		httpServer.Close()
		_ = db.Close()
	})

	return ts
}

// Connect opens a client session that sends token as a bearer credential.
// An empty token sends no Authorization header.
func (ts *TestServer) Connect(t *testing.T, token string) *sdkmcp.ClientSession {
	t.Helper()

	httpClient := &http.Client{Transport: bearerTransport{token: token, base: http.DefaultTransport}}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "testserver-client", Version: "test"}, nil)
	session, err := client.Connect(context.Background(), &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL,
		HTTPClient: httpClient,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (b bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if b.token == "" {
		return b.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.base.RoundTrip(req)
}
