package ragstream

// framePrefix is the fixed marker that introduces every logical record on
// the query event stream. Lines without it (blank keep-alive lines, ":"
// comments) carry no frames and are skipped.
const framePrefix = "data: "

// Frame is one decoded record from the query event stream.
//
// A frame carries either an incremental answer fragment (Chunk) or the
// terminal marker (Done) with the final source list and prompt version.
// Both may co-occur on the terminal frame; the fragment is applied first.
type Frame struct {
	// Chunk is an incremental piece of the answer text. Empty when the
	// frame carries no fragment.
	Chunk string `json:"chunk,omitempty"`

	// Done marks the terminal frame. Frames arriving after it are a
	// protocol violation and are ignored.
	Done bool `json:"done,omitempty"`

	// Sources is the final citation list, present only on the terminal
	// frame and only when the server retrieved any.
	Sources []Source `json:"sources,omitempty"`

	// PromptVersion identifies the prompt template the server used.
	PromptVersion string `json:"prompt_version,omitempty"`
}

// Source is a citation attached to a completed answer.
type Source struct {
	// URI locates the cited document (e.g. "s3://bucket/key").
	URI string `json:"uri"`

	// Score is the relevance score assigned by the retriever, where
	// higher is more relevant.
	Score float64 `json:"score"`
}
