package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/provider"
)

// ErrNoSubmission reports that a tool loop ended without the model ever
// producing a parseable submission, even in the forced final round. Callers
// downgrade conservatively instead of trusting free text.
var ErrNoSubmission = errors.New("tool loop ended without a submission")

const searchResultsPerQuery = 5

// toolAction is one turn of the research tool loop. The model answers every
// turn with exactly one of these; findings are read ONLY from a submit
// action's submission payload, never from free text.
type toolAction struct {
	Action     string          `json:"action"` // search | scrape | submit
	Query      string          `json:"query,omitempty"`
	URL        string          `json:"url,omitempty"`
	Submission json.RawMessage `json:"submission,omitempty"`
}

type toolLoopResult struct {
	SearchesRun  int
	URLsScraped  []string
	QueriesRun   []state.ExecutedQuery
	ToolCalls    int
	ForcedSubmit bool
}

// runToolLoop drives the search/scrape/submit protocol for a step. It runs at
// most maxCalls model turns plus one forced submit-only round, executing
// search and scrape actions against the injected tools, and decodes the final
// submission into out. searchBudget caps how many search actions are honored.
func (d Deps) runToolLoop(ctx context.Context, task, systemPrompt, userPrompt string, maxCalls, searchBudget int, out interface{}) (toolLoopResult, error) {
	res := toolLoopResult{}
	msgs := []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	for call := 0; call < maxCalls; call++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var action toolAction
		if err := d.Gateway.CompleteJSON(ctx, task, msgs, &action); err != nil {
			return res, err
		}
		res.ToolCalls++

		switch action.Action {
		case "search":
			msgs = append(msgs, assistantAction(action))
			if res.SearchesRun >= searchBudget {
				msgs = append(msgs, toolResult("Search budget exhausted. Gather no more sources; submit your findings now."))
				continue
			}
			res.SearchesRun++
			res.QueriesRun = append(res.QueriesRun, state.ExecutedQuery{Query: action.Query, Timestamp: nowISO()})
			results, err := d.Searcher.Search(ctx, action.Query, searchResultsPerQuery)
			if err != nil {
				d.logf("tool loop search failed for %q: %v", action.Query, err)
				msgs = append(msgs, toolResult(fmt.Sprintf("Search failed: %v. Try a different query or submit.", err)))
				continue
			}
			if len(res.QueriesRun) > 0 {
				res.QueriesRun[len(res.QueriesRun)-1].ResultsCount = len(results)
			}
			msgs = append(msgs, toolResult("Search results:\n"+jsonTrunc(results, 12000)))

		case "scrape":
			msgs = append(msgs, assistantAction(action))
			res.URLsScraped = append(res.URLsScraped, action.URL)
			text, err := d.Scraper.Scrape(ctx, action.URL)
			if err != nil {
				d.logf("tool loop scrape failed for %s: %v", action.URL, err)
				text = fmt.Sprintf("[Scrape error: %v]", err)
			}
			msgs = append(msgs, toolResult("Page content:\n"+text))

		case "submit":
			if err := json.Unmarshal(action.Submission, out); err != nil {
				msgs = append(msgs, assistantAction(action),
					toolResult(fmt.Sprintf("Submission did not match the required schema (%v). Resubmit with the exact schema.", err)))
				continue
			}
			return res, nil

		default:
			msgs = append(msgs, assistantAction(action),
				toolResult(fmt.Sprintf("Unknown action %q. Valid actions: search, scrape, submit.", action.Action)))
		}
	}

	// Forced final round: the model gets exactly one submit-only chance.
	res.ForcedSubmit = true
	msgs = append(msgs, toolResult("You have used every tool call. Respond now with a single submit action containing your complete submission. No other action is accepted."))
	var action toolAction
	if err := d.Gateway.CompleteJSON(ctx, task, msgs, &action); err != nil {
		return res, fmt.Errorf("%w: %v", ErrNoSubmission, err)
	}
	res.ToolCalls++
	if action.Action != "submit" {
		return res, ErrNoSubmission
	}
	if err := json.Unmarshal(action.Submission, out); err != nil {
		return res, fmt.Errorf("%w: %v", ErrNoSubmission, err)
	}
	return res, nil
}

func assistantAction(a toolAction) provider.Message {
	raw, _ := json.Marshal(a)
	return provider.Message{Role: "assistant", Content: string(raw)}
}

func toolResult(content string) provider.Message {
	return provider.Message{Role: "user", Content: content}
}
