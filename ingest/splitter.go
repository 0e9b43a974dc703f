package ingest

import (
	"strings"
	"unicode/utf8"
)

// Per-language chunk sizes in runes. Languages with longer average words
// get smaller chunks so each stays within the embedding model's sweet
// spot.
var chunkSizes = map[string]int{
	"en": 400,
	"fr": 200,
	"es": 300,
}

const (
	defaultChunkSize    = 400
	defaultChunkOverlap = 50
)

// defaultSeparators is ordered from coarsest to finest; the final empty
// separator forces a hard split when nothing else matches.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter breaks text into chunks of at most ChunkSize runes, trying
// separators from coarsest to finest and overlapping consecutive chunks
// by ChunkOverlap runes.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewSplitter returns a splitter sized for the given language.
func NewSplitter(language string) *Splitter {
	size, ok := chunkSizes[language]
	if !ok {
		size = defaultChunkSize
	}
	return &Splitter{
		ChunkSize:    size,
		ChunkOverlap: defaultChunkOverlap,
		Separators:   defaultSeparators,
	}
}

// Split breaks text into chunks. Chunks are trimmed of surrounding
// whitespace; empty chunks are dropped.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.splitRecursive(text, s.Separators)
}

func (s *Splitter) splitRecursive(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= s.ChunkSize {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	sep, remaining := pickSeparator(text, seps)
	if sep == "" {
		return s.splitEvery(text)
	}

	var chunks []string
	var pending []string
	for _, part := range splitKeepSep(text, sep) {
		if utf8.RuneCountInString(part) <= s.ChunkSize {
			pending = append(pending, part)
			continue
		}
		// Flush what fits, then break the oversized part with finer
		// separators.
		chunks = append(chunks, s.merge(pending)...)
		pending = nil
		chunks = append(chunks, s.splitRecursive(part, remaining)...)
	}
	return append(chunks, s.merge(pending)...)
}

// merge greedily packs parts into chunks of at most ChunkSize runes,
// seeding each new chunk with the overlap tail of the previous one.
func (s *Splitter) merge(parts []string) []string {
	var out []string
	var window []string
	total := 0

	emit := func() {
		if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
			out = append(out, chunk)
		}
	}

	for _, part := range parts {
		plen := utf8.RuneCountInString(part)
		if total+plen > s.ChunkSize && total > 0 {
			emit()
			for len(window) > 0 && (total > s.ChunkOverlap || total+plen > s.ChunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, part)
		total += plen
	}
	emit()
	return out
}

// splitEvery hard-splits text into ChunkSize-rune windows advancing by
// ChunkSize-ChunkOverlap runes.
func (s *Splitter) splitEvery(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.ChunkOverlap
	if step < 1 {
		step = s.ChunkSize
	}

	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// pickSeparator returns the first separator present in text and the
// finer separators after it.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// splitKeepSep splits on sep, reattaching the separator to the end of
// each piece so rejoining is lossless.
func splitKeepSep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
