package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter_LanguageSizes(t *testing.T) {
	assert.Equal(t, 400, NewSplitter("en").ChunkSize)
	assert.Equal(t, 200, NewSplitter("fr").ChunkSize)
	assert.Equal(t, 300, NewSplitter("es").ChunkSize)
	assert.Equal(t, 400, NewSplitter("de").ChunkSize)
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks := NewSplitter("en").Split("  a short paragraph  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Nil(t, NewSplitter("en").Split(""))
	assert.Nil(t, NewSplitter("en").Split("  \n\n  "))
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 80; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog. ")
	}

	splitter := NewSplitter("en")
	chunks := splitter.Split(sb.String())
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), splitter.ChunkSize,
			"chunk %d exceeds chunk size", i)
		assert.NotEmpty(t, c)
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	first := strings.Repeat("alpha ", 40)
	second := strings.Repeat("beta ", 40)
	chunks := NewSplitter("en").Split(first + "\n\n" + second)

	require.Len(t, chunks, 2)
	assert.NotContains(t, chunks[0], "beta")
	assert.NotContains(t, chunks[1], "alpha")
}

func TestSplit_AllContentRetained(t *testing.T) {
	sentences := make([]string, 40)
	for i := range sentences {
		sentences[i] = strings.Repeat("word", 3) + "-" + string(rune('a'+i%26))
	}
	text := strings.Join(sentences, ". ") + "."

	chunks := NewSplitter("en").Split(text)
	joined := strings.Join(chunks, " ")
	for _, s := range sentences {
		assert.Contains(t, joined, s)
	}
}

func TestSplit_HardSplitWithoutSeparators(t *testing.T) {
	splitter := &Splitter{ChunkSize: 10, ChunkOverlap: 3, Separators: defaultSeparators}
	chunks := splitter.Split(strings.Repeat("x", 25))

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	// Windows advance by size-overlap, so consecutive chunks share a tail.
	assert.Equal(t, "xxxxxxxxxx", chunks[0])
	require.Greater(t, len(chunks), 1)
}

func TestSplit_OverlapCarriesContext(t *testing.T) {
	splitter := &Splitter{ChunkSize: 20, ChunkOverlap: 8, Separators: defaultSeparators}
	chunks := splitter.Split("one two three four five six seven eight nine ten")

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		firstWord := strings.Fields(chunks[i])[0]
		assert.Contains(t, chunks[i-1], firstWord,
			"chunk %d does not begin with overlap from chunk %d", i, i-1)
	}
}

func TestSplit_MultiByteSafe(t *testing.T) {
	splitter := &Splitter{ChunkSize: 10, ChunkOverlap: 2, Separators: defaultSeparators}
	chunks := splitter.Split(strings.Repeat("é", 25))

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk is not valid UTF-8: %q", c)
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
}

func TestDetectLanguage(t *testing.T) {
	english := "The individualized education program describes the special education services a school will provide to meet a student's unique needs."
	french := "Le programme d'éducation individualisé décrit les services que l'école fournira pour répondre aux besoins particuliers de l'élève concerné."

	assert.Equal(t, "en", DetectLanguage(english))
	assert.Equal(t, "fr", DetectLanguage(french))
	assert.Equal(t, "en", DetectLanguage(""))
}

func TestDetectLanguage_SamplesRuneSafely(t *testing.T) {
	// A detection sample cut at the kilobyte mark must not tear a
	// multi-byte character.
	text := strings.Repeat("é", 2000)
	lang := DetectLanguage(text)
	assert.NotEmpty(t, lang)
}
