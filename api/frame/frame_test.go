package frame

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader 按给定的分片逐次返回数据，模拟网络分片。
type chunkReader struct {
	pieces [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.pieces) > 0 && len(r.pieces[0]) == 0 {
		r.pieces = r.pieces[1:]
	}
	if len(r.pieces) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.pieces[0])
	r.pieces[0] = r.pieces[0][n:]
	return n, nil
}

func splitBytes(b []byte, cuts []int) [][]byte {
	if len(b) == 0 {
		return nil
	}
	marks := make([]bool, len(b))
	for _, c := range cuts {
		marks[c%len(b)] = true
	}
	var out [][]byte
	prev := 0
	for i := 1; i < len(b); i++ {
		if marks[i] {
			out = append(out, b[prev:i])
			prev = i
		}
	}
	return append(out, b[prev:])
}

func decodeAll(t *testing.T, r io.Reader, format Format) ([]Frame, *Decoder) {
	t.Helper()
	d := NewDecoder(r, format)
	var out []Frame
	for {
		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, d
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

// =============================================================================
// Encoding
// =============================================================================

func TestEncode_WireFormats(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		frame  Frame
		want   string
	}{
		{"bare chunk", FormatBare, Chunk{Payload: "graph TD\n"}, `{"chunk":"graph TD\n","done":false}`},
		{"bare final", FormatBare, Final{Payload: "A-->B"}, `{"final":"A-->B","done":true}`},
		{"bare empty final", FormatBare, Final{}, `{"final":"","done":true}`},
		{"bare error", FormatBare, Error{Message: "boom"}, `{"error":"boom","done":true}`},
		{"event chunk", FormatEvent, Chunk{Payload: "x"}, "data: {\"type\":\"chunk\",\"data\":\"x\"}\n\n"},
		{"event final", FormatEvent, Final{Payload: "y"}, "data: {\"type\":\"final\",\"data\":\"y\",\"ok\":true}\n\n"},
		{"event error", FormatEvent, Error{Message: "z"}, "data: {\"type\":\"error\",\"message\":\"z\",\"ok\":false}\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.format, tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "application/json", FormatBare.ContentType())
	assert.Equal(t, "text/event-stream", FormatEvent.ContentType())
	assert.Equal(t, "bare", FormatBare.String())
	assert.Equal(t, "event", FormatEvent.String())

	for in, want := range map[string]Format{"bare": FormatBare, "JSON": FormatBare, " event ": FormatEvent, "sse": FormatEvent} {
		f, ok := ParseFormat(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, f, in)
	}
	_, ok := ParseFormat("xml")
	assert.False(t, ok)
}

func TestWriter_FlushesAndTerminates(t *testing.T) {
	rec := httptest.NewRecorder()
	PrepareHeaders(rec.Header(), FormatEvent)
	w := NewWriter(rec, FormatEvent)

	require.NoError(t, w.Write(Chunk{Payload: "a"}))
	assert.True(t, rec.Flushed)
	assert.False(t, w.Terminated())

	require.NoError(t, w.Write(Final{Payload: "a"}))
	assert.True(t, w.Terminated())

	assert.ErrorIs(t, w.Write(Chunk{Payload: "late"}), ErrTerminated)
	assert.ErrorIs(t, w.Write(Error{Message: "late"}), ErrTerminated)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "data: "))
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriter_WriteFailureTerminates(t *testing.T) {
	w := NewWriter(failWriter{}, FormatBare)
	err := w.Write(Chunk{Payload: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.True(t, w.Terminated())
	assert.ErrorIs(t, w.Write(Chunk{Payload: "y"}), ErrTerminated)
}

func TestWriter_NilFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatBare)
	assert.Error(t, w.Write(nil))
	assert.False(t, w.Terminated())
	assert.Zero(t, buf.Len())
}

// =============================================================================
// ObjectSplitter
// =============================================================================

func TestObjectSplitter(t *testing.T) {
	tests := []struct {
		name   string
		pieces []string
		want   []string
	}{
		{
			name:   "adjacent objects",
			pieces: []string{`{"a":1}{"b":2}`},
			want:   []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:   "braces and quotes inside strings",
			pieces: []string{`{"chunk":"A{B}\"}{\"","done":false}`},
			want:   []string{`{"chunk":"A{B}\"}{\"","done":false}`},
		},
		{
			name:   "split inside escape",
			pieces: []string{`{"chunk":"x\`, `"y","done":false}`},
			want:   []string{`{"chunk":"x\"y","done":false}`},
		},
		{
			name:   "escaped backslash before quote",
			pieces: []string{`{"c":"\\`, `"}`},
			want:   []string{`{"c":"\\"}`},
		},
		{
			name:   "nested objects",
			pieces: []string{`{"a":{"b":`, `{"c":1}}}`},
			want:   []string{`{"a":{"b":{"c":1}}}`},
		},
		{
			name:   "garbage between objects discarded",
			pieces: []string{"noise }\n{\"a\":1}\r\n  ", "junk{\"b\":2}"},
			want:   []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:   "multi-byte rune split",
			pieces: []string{"{\"c\":\"\xe6\xb5", "\x81\"}"},
			want:   []string{`{"c":"流"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s ObjectSplitter
			var got []string
			for _, p := range tt.pieces {
				for _, obj := range s.Feed([]byte(p)) {
					got = append(got, string(obj))
				}
			}
			assert.Equal(t, tt.want, got)
			assert.Zero(t, s.Buffered())
		})
	}
}

func TestObjectSplitter_KeepsIncompleteObject(t *testing.T) {
	var s ObjectSplitter
	assert.Empty(t, s.Feed([]byte(`xx{"a":"b`)))
	assert.Equal(t, len(`{"a":"b`), s.Buffered())
	got := s.Feed([]byte(`"}`))
	require.Len(t, got, 1)
	assert.Equal(t, `{"a":"b"}`, string(got[0]))
}

// =============================================================================
// EventSplitter
// =============================================================================

func TestEventSplitter(t *testing.T) {
	tests := []struct {
		name   string
		pieces []string
		want   []Event
	}{
		{
			name:   "single record",
			pieces: []string{"data: {\"a\":1}\n\n"},
			want:   []Event{{Data: `{"a":1}`}},
		},
		{
			name:   "crlf and split lines",
			pieces: []string{"da", "ta: x\r", "\n\r\ndata:y\n", "\n"},
			want:   []Event{{Data: "x"}, {Data: "y"}},
		},
		{
			name:   "multiple data lines joined",
			pieces: []string{"data: one\ndata: two\n\n"},
			want:   []Event{{Data: "one\ntwo"}},
		},
		{
			name:   "event name and comments",
			pieces: []string{": ping\n\nevent: error\ndata: {\"error\":\"x\"}\n\n"},
			want:   []Event{{Name: "error", Data: `{"error":"x"}`}},
		},
		{
			name:   "unterminated record waits",
			pieces: []string{"data: pending\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s EventSplitter
			var got []Event
			for _, p := range tt.pieces {
				got = append(got, s.Feed([]byte(p))...)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Decoding
// =============================================================================

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		in      string
		want    Frame
		wantErr bool
	}{
		{`{"chunk":"a","done":false}`, Chunk{Payload: "a"}, false},
		{`{"final":"b","done":true}`, Final{Payload: "b"}, false},
		{`{"mermaidCode":"c","done":true}`, Final{Payload: "c"}, false},
		{`{"fixedCode":"d","done":true}`, Final{Payload: "d"}, false},
		{`{"error":"e"}`, Error{Message: "e"}, false},
		{`{"done":true}`, Final{}, false},
		{`{"other":1}`, nil, true},
		{`{"chunk":`, nil, true},
	}
	for _, tt := range tests {
		got, err := DecodeObject([]byte(tt.in))
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMalformed, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		ev      Event
		want    Frame
		wantErr bool
	}{
		{Event{Data: `{"type":"chunk","data":"a"}`}, Chunk{Payload: "a"}, false},
		{Event{Data: `{"type":"final","data":"b","ok":true}`}, Final{Payload: "b"}, false},
		{Event{Data: `{"type":"error","message":"c","ok":false}`}, Error{Message: "c"}, false},
		{Event{Name: "error", Data: `{"error":"d"}`}, Error{Message: "d"}, false},
		{Event{Name: "error", Data: `plain text`}, Error{Message: "plain text"}, false},
		{Event{Data: "[DONE]"}, nil, false},
		{Event{Data: `{"type":"mystery"}`}, nil, true},
		{Event{Data: `not json`}, nil, true},
	}
	for _, tt := range tests {
		got, err := DecodeEvent(tt.ev)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMalformed, tt.ev.Data)
			continue
		}
		require.NoError(t, err, tt.ev.Data)
		assert.Equal(t, tt.want, got, tt.ev.Data)
	}
}

func TestDecoder_DropsMalformedRecords(t *testing.T) {
	in := `{"chunk":"a","done":false}{"bogus":true}{"final":"a","done":true}`
	frames, d := decodeAll(t, strings.NewReader(in), FormatBare)
	assert.Equal(t, []Frame{Chunk{Payload: "a"}, Final{Payload: "a"}}, frames)
	assert.Equal(t, 1, d.Malformed())
}

func TestDecoder_EventStreamSkipsDone(t *testing.T) {
	in := "data: {\"type\":\"chunk\",\"data\":\"x\"}\n\ndata: garbage\n\ndata: [DONE]\n\n"
	frames, d := decodeAll(t, strings.NewReader(in), FormatEvent)
	assert.Equal(t, []Frame{Chunk{Payload: "x"}}, frames)
	assert.Equal(t, 1, d.Malformed())
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestDecoder_PropagatesReadError(t *testing.T) {
	boom := errors.New("reset")
	d := NewDecoder(io.MultiReader(strings.NewReader(`{"chunk":"a","done":false}`), errReader{boom}), FormatBare)

	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, Chunk{Payload: "a"}, f)

	_, err = d.Next()
	assert.ErrorIs(t, err, boom)
	_, err = d.Next()
	assert.ErrorIs(t, err, boom)
}

// =============================================================================
// Property: deframing is independent of network fragmentation
// =============================================================================

var trickySuffixes = []string{"", "{", "}", `"`, `\`, `\"`, "流程", "\n", "\r\n\r\n", "data: x", "```", "}{"}

func buildFrames(words []string, marks []int) []Frame {
	frames := make([]Frame, 0, len(words)+1)
	var all strings.Builder
	for i, w := range words {
		p := w
		if len(marks) > 0 {
			p += trickySuffixes[marks[i%len(marks)]%len(trickySuffixes)]
		}
		all.WriteString(p)
		frames = append(frames, Chunk{Payload: p})
	}
	return append(frames, Final{Payload: all.String()})
}

func TestProperty_DeframingIsChunkingInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	for _, format := range []Format{FormatBare, FormatEvent} {
		properties.Property(format.String()+" frames survive arbitrary splits", prop.ForAll(
			func(words []string, marks []int, cuts []int) bool {
				want := buildFrames(words, marks)

				var wire bytes.Buffer
				w := NewWriter(&wire, format)
				for _, f := range want {
					if err := w.Write(f); err != nil {
						t.Logf("write failed: %v", err)
						return false
					}
				}

				d := NewDecoder(&chunkReader{pieces: splitBytes(wire.Bytes(), cuts)}, format)
				var got []Frame
				for {
					f, err := d.Next()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						t.Logf("decode failed: %v", err)
						return false
					}
					got = append(got, f)
				}

				if len(got) != len(want) {
					t.Logf("frame count mismatch: want %d, got %d", len(want), len(got))
					return false
				}
				for i := range want {
					if got[i] != want[i] {
						t.Logf("frame %d mismatch: want %v, got %v", i, want[i], got[i])
						return false
					}
				}
				return d.Malformed() == 0
			},
			gen.SliceOf(gen.AlphaString()),
			gen.SliceOf(gen.IntRange(0, len(trickySuffixes)-1)),
			gen.SliceOf(gen.IntRange(0, 4096)),
		))
	}

	properties.TestingRun(t)
}
