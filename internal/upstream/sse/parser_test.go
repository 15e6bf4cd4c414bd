package sse

import (
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader hands out the underlying bytes in fixed-size chunks so tests
// can exercise field boundaries that straddle reads.
type chunkReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func collect(t *testing.T, r io.Reader) []Event {
	t.Helper()
	parser := NewParser(r)
	var out []Event
	for {
		event, err := parser.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, event)
	}
}

func TestParserBasicStream(t *testing.T) {
	input := "retry: 400\ntag: a/b\ndata: x\n\ntag: c\ndata: y\ndata: z\n\n"
	events := collect(t, strings.NewReader(input))
	require.Len(t, events, 2)
	assert.Equal(t, Event{Tag: "a/b", Data: "x"}, events[0])
	assert.Equal(t, Event{Tag: "c", Data: "yz"}, events[1])
}

func TestParserEveryChunkSize(t *testing.T) {
	input := "retry: 400\ntag: a/b\ndata: x\n\ntag: c\ndata: y\ndata: z\n\n"
	want := []Event{{Tag: "a/b", Data: "x"}, {Tag: "c", Data: "yz"}}
	for chunk := 1; chunk <= len(input); chunk++ {
		events := collect(t, &chunkReader{data: []byte(input), chunk: chunk})
		assert.Equal(t, want, events, "chunk size %d", chunk)
	}
}

func TestParserRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var b strings.Builder
		var want []Event
		n := rng.Intn(8) + 1
		for i := 0; i < n; i++ {
			tag := randomToken(rng)
			data := randomToken(rng)
			b.WriteString("tag: " + tag + "\n")
			b.WriteString("data: " + data + "\n\n")
			want = append(want, Event{Tag: tag, Data: data})
		}
		chunk := rng.Intn(len(b.String())) + 1
		events := collect(t, &chunkReader{data: []byte(b.String()), chunk: chunk})
		require.Equal(t, want, events, "round %d chunk %d", round, chunk)
	}
}

func randomToken(rng *rand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789/_."
	n := rng.Intn(20) + 1
	out := make([]byte, n)
	for i := range out {
		out[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(out)
}

func TestParserDropsPartialRecordAtEOF(t *testing.T) {
	events := collect(t, strings.NewReader("tag: a\ndata: trunc"))
	assert.Empty(t, events)
}

func TestParserSkipsBlankLinesAndIncompleteRecords(t *testing.T) {
	events := collect(t, strings.NewReader("\n\ntag: only-a-tag\n\ndata: only-data\n\ntag: ok\ndata: v\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, Event{Tag: "ok", Data: "v"}, events[0])
}

func TestParserRetryValueDiscarded(t *testing.T) {
	events := collect(t, strings.NewReader("retry: 10000\ntag: t\ndata: d\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, Event{Tag: "t", Data: "d"}, events[0])
}
