package cost

import "sync"

// Tracker accumulates token usage and estimated spend across one hunt run.
// Collaborators record usage as they make API calls; the runner snapshots
// the totals when the run finishes. All methods are safe for concurrent use
// and are no-ops on a nil receiver, so callers never have to check whether
// accounting is wired in.
type Tracker struct {
	mu     sync.Mutex
	calc   *Calculator
	input  int64
	output int64
	spend  float64
}

// Usage is a point-in-time snapshot of a Tracker.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// NewTracker creates a Tracker that prices usage with the given calculator.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc}
}

// RecordClaude adds one Claude API call's usage to the run totals.
func (t *Tracker) RecordClaude(model string, input, output int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += input
	t.output += output
	t.spend += t.calc.Claude(model, int(input), int(output))
}

// RecordOpenAI adds one OpenAI chat completion's usage to the run totals.
func (t *Tracker) RecordOpenAI(model string, input, output int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += input
	t.output += output
	t.spend += t.calc.OpenAI(model, int(input), int(output))
}

// RecordEmbedding adds one embeddings call's usage to the run totals.
func (t *Tracker) RecordEmbedding(model string, tokens int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += tokens
	t.spend += t.calc.Embedding(model, int(tokens))
}

// Snapshot returns the accumulated totals.
func (t *Tracker) Snapshot() Usage {
	if t == nil {
		return Usage{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Usage{
		InputTokens:  t.input,
		OutputTokens: t.output,
		Cost:         t.spend,
	}
}

// Reset clears the totals so the Tracker can meter a new run.
func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = 0
	t.output = 0
	t.spend = 0
}
