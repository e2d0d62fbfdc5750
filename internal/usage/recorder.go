package usage

import (
	"context"

	"github.com/nugget/briefer/internal/config"
	"github.com/nugget/briefer/internal/llm"
)

// Recorder prices model calls and writes them to a Store. It satisfies
// the agent's usage recorder interface.
type Recorder struct {
	store     *Store
	pricing   map[string]config.PricingEntry
	sessionID string
	source    string
}

// NewRecorder returns a recorder tagging every record with sessionID
// and source.
func NewRecorder(store *Store, pricing map[string]config.PricingEntry, sessionID, source string) *Recorder {
	return &Recorder{store: store, pricing: pricing, sessionID: sessionID, source: source}
}

// RecordUsage stores the usage of one model call.
func (r *Recorder) RecordUsage(ctx context.Context, queryID, model string, round int, u llm.Usage) error {
	return r.store.Record(ctx, Record{
		QueryID:      queryID,
		SessionID:    r.sessionID,
		Model:        model,
		Provider:     "anthropic",
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CostUSD:      ComputeCost(model, u.InputTokens, u.OutputTokens, r.pricing),
		Round:        round,
		Source:       r.source,
	})
}
