package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestUint64RoundTrip(t *testing.T) {
	v := Uint64(42)
	got, err := Unmarshal(Marshal(v))
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestStringRoundTrip(t *testing.T) {
	v := String("hello, blockmesh")
	got, err := Unmarshal(Marshal(v))
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestBlobRoundTrip(t *testing.T) {
	v := Blob([]byte{0x00, 0xff, 0x10, 0x02})
	got, err := Unmarshal(Marshal(v))
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestNestedTupleRoundTrip(t *testing.T) {
	v := Tuple(
		Uint64(7),
		String("apple"),
		Blob([]byte("carrot")),
		Tuple(Uint64(1), Uint64(2)),
	)
	got, err := Unmarshal(Marshal(v))
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestDecodeEmptyInputErrors(t *testing.T) {
	_, err := Unmarshal(nil)
	require.Error(t, err)
}

func TestDecodeTrailingBytesErrors(t *testing.T) {
	b := Marshal(Uint64(1))
	b = append(b, 0xAA)
	_, err := Unmarshal(b)
	require.Error(t, err)
}

// TestRequestEnvelopeShape exercises the exact (req_id, method, args_blob)
// shape the RPC layer nests, to guarantee peers that only agree on this
// codec decode identically regardless of argument arity.
func TestRequestEnvelopeShape(t *testing.T) {
	args := Marshal(Tuple(String("apple"), Blob([]byte{1, 2, 3})))
	env := Tuple(Uint64(99), String("putBlock0"), Blob(args))
	got, err := Unmarshal(Marshal(env))
	require.NoError(t, err)
	require.Equal(t, KindTuple, got.Kind)
	require.Len(t, got.Tuple, 3)
	require.Equal(t, uint64(99), got.Tuple[0].U64)
	require.Equal(t, "putBlock0", got.Tuple[1].Str)

	innerArgs, err := Unmarshal(got.Tuple[2].Blob)
	require.NoError(t, err)
	require.Len(t, innerArgs.Tuple, 2)
	require.Equal(t, "apple", innerArgs.Tuple[0].Str)
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := genValue(t, 3)
		got, err := Unmarshal(Marshal(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	})
}

func genValue(t *rapid.T, depth int) Value {
	if depth <= 0 {
		return genLeaf(t)
	}
	kind := rapid.IntRange(0, 3).Draw(t, "kind")
	switch kind {
	case 0, 1, 2:
		return genLeaf(t)
	default:
		n := rapid.IntRange(0, 4).Draw(t, "tupleLen")
		elems := make([]Value, n)
		for i := range elems {
			elems[i] = genValue(t, depth-1)
		}
		return Tuple(elems...)
	}
}

func genLeaf(t *rapid.T) Value {
	switch rapid.IntRange(0, 2).Draw(t, "leafKind") {
	case 0:
		return Uint64(rapid.Uint64().Draw(t, "u64"))
	case 1:
		return String(rapid.String().Draw(t, "str"))
	default:
		return Blob(rapid.SliceOf(rapid.Byte()).Draw(t, "blob"))
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		make([]byte, 5000),
	}
	var buf byteBuffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&buf, p))
	}
	for _, want := range payloads {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, len(want), len(got))
	}
}

func TestUnpackerSplitChunks(t *testing.T) {
	frame1 := Marshal(Uint64(1))
	frame2 := Marshal(String("two"))

	var framed []byte
	framed = appendFramed(framed, frame1)
	framed = appendFramed(framed, frame2)

	var up Unpacker
	// Feed one byte at a time to exercise arbitrary chunk boundaries.
	var got [][]byte
	for _, b := range framed {
		up.Feed([]byte{b})
		for {
			f, ok, err := up.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, f)
		}
	}
	require.Len(t, got, 2)

	v1, err := Unmarshal(got[0])
	require.NoError(t, err)
	require.Equal(t, uint64(1), v1.U64)

	v2, err := Unmarshal(got[1])
	require.NoError(t, err)
	require.Equal(t, "two", v2.Str)
}

func appendFramed(dst []byte, payload []byte) []byte {
	var buf byteBuffer
	_ = WriteFrame(&buf, payload)
	return append(dst, buf.data...)
}

// byteBuffer is a minimal io.Reader+io.Writer over an in-memory slice,
// used instead of bytes.Buffer so ReadFrame's io.ReadFull semantics are
// exercised against a plain slice-backed stream.
type byteBuffer struct {
	data []byte
	off  int
}

func (b *byteBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *byteBuffer) Read(p []byte) (int, error) {
	n := copy(p, b.data[b.off:])
	b.off += n
	if n == 0 && len(p) > 0 {
		return 0, errEOF
	}
	return n, nil
}

var errEOF = shortErr("byteBuffer: EOF")

type shortErr string

func (e shortErr) Error() string { return string(e) }
