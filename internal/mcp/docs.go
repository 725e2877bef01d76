package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `insight turns calendar events into structured, cost-bounded insight about a wellness practice.

Core concepts:
- Event: a calendar item (id, title, description, start, end, attendees). Only title, description, times and attendee emails affect its fingerprint.
- Processed event: the stored outcome for one event version. Unchanged events are never analyzed twice.
- Two stages: a cheap relevance filter, then structured extraction for relevant events only.
- Budget: daily and monthly USD ceilings per user. Over budget, work moves to the free-tier model.

Default workflow:
1) Send events with process_events. Include contacts so known clients are recognised.
2) Read outcomes: one per input event, in input order (skipped, filtered_irrelevant, extracted, extraction_failed).
3) Check spend with get_cost_stats and get_budget_limits; adjust with set_budget_limits.
4) Use get_processed_event to re-read a stored analysis without paying for it again.

Docs:
- insight://docs/index
- insight://docs/pipeline
- insight://docs/budgets
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "insight://docs/index",
		Name:        "docs_index",
		Title:       "insight docs index",
		Description: "Entry point: which tools exist and which doc to read next.",
		Content: `# insight: docs index

## Tools

- ` + "`process_events`" + `: analyze a batch of events for the calling user.
- ` + "`get_processed_event`" + `: stored analysis for one event.
- ` + "`get_cost_stats`" + `, ` + "`get_budget_limits`" + `, ` + "`set_budget_limits`" + `, ` + "`get_model_recommendation`" + `: spend and budgets.
- ` + "`get_concurrency_stats`" + `, ` + "`adjust_concurrency`" + `: how many model calls run at once.
- ` + "`check_rate_limit`" + `: remaining request capacity for a model.
- ` + "`get_recent_activity`" + `: completed and failed model calls, budget alerts and cost reports.

## Docs

- ` + "`insight://docs/pipeline`" + `: what happens to each event.
- ` + "`insight://docs/budgets`" + `: how spend steers model choice.
`,
	},
	{
		URI:         "insight://docs/pipeline",
		Name:        "docs_pipeline",
		Title:       "Event pipeline",
		Description: "Deduplication, filtering, extraction and the terminal state of each event.",
		Content: `# Event pipeline

Every event ends in exactly one state:

| State | Meaning |
|---|---|
| ` + "`skipped`" + ` | Same fingerprint as the stored analysis; no model call. |
| ` + "`filtered_irrelevant`" + ` | The filter decided the event carries no client insight. |
| ` + "`extracted`" + ` | Full analysis stored. |
| ` + "`extraction_failed`" + ` | A model or parse failure; the reason is stored. |

## Fingerprint

SHA-256 over title, description, start, end and the sorted, lower-cased attendee emails.
Location, display names, response statuses and the ` + "`updated`" + ` marker do not count,
so touching them never triggers a paid re-analysis.

## Filter

Obvious cases (spam, personal blocks, known clients) are decided by rules. Only
ambiguous events reach the model. Model output that cannot be parsed counts as
relevant so nothing is silently dropped.

## Failures

One failing event never fails the batch. A failed event keeps its
` + "`extraction_failed`" + ` record until its content changes.
`,
	},
	{
		URI:         "insight://docs/budgets",
		Name:        "docs_budgets",
		Title:       "Budgets and model choice",
		Description: "Daily and monthly ceilings, alerts, free-tier fallback and rate limits.",
		Content: `# Budgets and model choice

- Usage is recorded for every model call and summed over rolling windows (day, week, month).
- Alerts fire at the warning threshold (default 90%) and again at 100%.
- When spend passes the threshold, batches slow down: half the batch size, twice the delay.
- Over budget, ` + "`get_model_recommendation`" + ` points at the free-tier model.
- With ` + "`enforce_budget`" + `, over-budget runs use only the free-tier model, and events fail with
  ` + "`BUDGET_EXCEEDED`" + ` when it has no capacity left.
- Rate limits are per user and model. A limited premium model falls back to the free tier
  before waiting.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
