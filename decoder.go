package ragstream

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"
)

// DecodeMode selects how the response body is turned into lines.
//
// Both modes produce identical output for identical byte streams,
// including streams whose chunk boundaries fall inside a line or inside a
// multi-byte UTF-8 sequence. DecodeBuffered leans on the runtime's
// buffered reader; DecodeManual does the chunk-by-chunk decode with an
// explicit carry buffer itself, for transports that only expose raw
// chunked reads and for exercising the carry path directly.
type DecodeMode int

const (
	// DecodeBuffered reads the body through a bufio.Reader.
	DecodeBuffered DecodeMode = iota

	// DecodeManual reads raw chunks and carries partial UTF-8 sequences
	// and partial lines across chunk boundaries.
	DecodeManual
)

// lineDecoder yields complete newline-delimited lines from a byte stream.
//
// NextLine returns the next complete line without its trailing newline.
// At end of stream it returns any residual unterminated line together
// with io.EOF; subsequent calls return "" and io.EOF.
type lineDecoder interface {
	NextLine() (string, error)
}

func newLineDecoder(mode DecodeMode, r io.Reader) lineDecoder {
	if mode == DecodeManual {
		return &manualDecoder{r: r}
	}
	return &bufferedDecoder{r: bufio.NewReader(r)}
}

// bufferedDecoder splits the stream into lines with a bufio.Reader.
type bufferedDecoder struct {
	r    *bufio.Reader
	done bool
}

func (d *bufferedDecoder) NextLine() (string, error) {
	if d.done {
		return "", io.EOF
	}
	line, err := d.r.ReadString('\n')
	if err == nil {
		return strings.TrimSuffix(line, "\n"), nil
	}
	if err == io.EOF {
		d.done = true
		return line, io.EOF
	}
	return "", err
}

// manualDecoder reads raw chunks and reassembles lines itself. Two carry
// buffers survive chunk boundaries: byteCarry holds the trailing bytes of
// an incomplete UTF-8 sequence, textCarry holds the decoded tail after
// the last newline. The final flush at end of stream converts any
// leftover incomplete bytes to replacement characters, mirroring what a
// streaming text decoder does on its closing call.
type manualDecoder struct {
	r         io.Reader
	byteCarry []byte
	textCarry string
	lines     []string
	eof       bool
	flushed   bool
}

const manualChunkSize = 2048

func (d *manualDecoder) NextLine() (string, error) {
	for {
		if len(d.lines) > 0 {
			line := d.lines[0]
			d.lines = d.lines[1:]
			return line, nil
		}

		if d.eof {
			if !d.flushed {
				d.flushed = true
				residual := d.textCarry + strings.ToValidUTF8(string(d.byteCarry), "�")
				d.textCarry = ""
				d.byteCarry = nil
				return residual, io.EOF
			}
			return "", io.EOF
		}

		chunk := make([]byte, manualChunkSize)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.split(d.decodeChunk(chunk[:n]))
		}
		if err == io.EOF {
			d.eof = true
			continue
		}
		if err != nil {
			return "", err
		}
	}
}

// decodeChunk converts raw bytes to text, carrying any trailing
// incomplete UTF-8 sequence to the next call.
func (d *manualDecoder) decodeChunk(p []byte) string {
	b := p
	if len(d.byteCarry) > 0 {
		b = append(d.byteCarry, p...)
		d.byteCarry = nil
	}
	complete, carry := splitIncompleteRune(b)
	if len(carry) > 0 {
		d.byteCarry = append([]byte(nil), carry...)
	}
	return string(complete)
}

// split folds decoded text into the line queue, holding back everything
// after the final newline until it can be completed.
func (d *manualDecoder) split(text string) {
	if text == "" {
		return
	}
	parts := strings.Split(d.textCarry+text, "\n")
	d.textCarry = parts[len(parts)-1]
	d.lines = append(d.lines, parts[:len(parts)-1]...)
}

// splitIncompleteRune cuts b so that complete ends on a rune boundary and
// carry holds the trailing bytes of an unfinished multi-byte sequence.
// Invalid bytes that cannot start a rune are left in complete; they decode
// to replacement characters, same as a non-streaming decode would.
func splitIncompleteRune(b []byte) (complete, carry []byte) {
	for i := len(b) - 1; i >= 0 && len(b)-i < utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}
