package ragstream

import "strings"

// Accumulator collects the cumulative result of one streaming query.
//
// It is created when the stream opens and mutated only by the single
// reader goroutine while frames arrive, so it needs no locking. The
// accumulated text is exactly the ordered concatenation of every fragment
// applied so far and never shrinks for the lifetime of one call.
// Consumers observe it through value-copy Snapshots.
type Accumulator struct {
	text          strings.Builder
	sources       []Source
	promptVersion string
	loading       bool
	err           error
	done          bool
}

// Snapshot is an immutable copy of the accumulator state at one point in
// the stream. A new snapshot is emitted after every applied fragment.
type Snapshot struct {
	// Text is the answer accumulated so far.
	Text string

	// Sources is the final citation list. Empty until the terminal frame
	// arrives, and empty afterwards if the server never sent one.
	Sources []Source

	// PromptVersion is the server's prompt template version. Empty until
	// the terminal frame arrives.
	PromptVersion string

	// Loading is true while the stream is still being consumed.
	Loading bool

	// Done is true once the terminal frame has been applied.
	Done bool
}

// QueryResult is the completed outcome of one streaming query.
type QueryResult struct {
	// Answer is the full concatenated answer text.
	Answer string

	// Sources is the citation list from the terminal frame (empty if the
	// server never sent one).
	Sources []Source

	// PromptVersion is the prompt template version from the terminal
	// frame (empty if never sent).
	PromptVersion string
}

func newAccumulator() *Accumulator {
	return &Accumulator{loading: true}
}

// appendChunk appends one answer fragment.
func (a *Accumulator) appendChunk(chunk string) {
	a.text.WriteString(chunk)
}

// complete applies the terminal frame. Sources and version are set at
// most once; a nil source list leaves the prior (empty) value in place.
func (a *Accumulator) complete(sources []Source, promptVersion string) {
	if sources != nil {
		a.sources = sources
	}
	if promptVersion != "" {
		a.promptVersion = promptVersion
	}
	a.done = true
	a.loading = false
}

// finish clears the loading flag at end of stream. Text accumulated so
// far stays visible whether or not a terminal frame ever arrived.
func (a *Accumulator) finish() {
	a.loading = false
}

// fail records a terminal error and clears the loading flag.
func (a *Accumulator) fail(err error) {
	a.err = err
	a.loading = false
}

// Err returns the terminal error, if any.
func (a *Accumulator) Err() error {
	return a.err
}

// Snapshot returns a value copy of the current state.
func (a *Accumulator) Snapshot() Snapshot {
	s := Snapshot{
		Text:          a.text.String(),
		PromptVersion: a.promptVersion,
		Loading:       a.loading,
		Done:          a.done,
	}
	if len(a.sources) > 0 {
		s.Sources = make([]Source, len(a.sources))
		copy(s.Sources, a.sources)
	}
	return s
}

// Result returns the completed outcome.
func (a *Accumulator) Result() QueryResult {
	snap := a.Snapshot()
	return QueryResult{
		Answer:        snap.Text,
		Sources:       snap.Sources,
		PromptVersion: snap.PromptVersion,
	}
}
