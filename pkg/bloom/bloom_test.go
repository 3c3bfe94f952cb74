package bloom

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAbsenceOfFalseNegatives(t *testing.T) {
	f := New(defaultBitCount, 0)
	f.Set("apple")
	f.Set("banana")
	f.Set("carrot")

	require.True(t, f.MayContain("apple"))
	require.True(t, f.MayContain("banana"))
	require.True(t, f.MayContain("carrot"))
}

func TestUnsetKeyMayBeAbsent(t *testing.T) {
	f := New(defaultBitCount, 0)
	f.Set("apple")
	require.False(t, f.MayContain("zucchini"))
}

func TestSoundnessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfDistinct(rapid.StringN(1, 20, -1), func(s string) string { return s }).Draw(t, "keys")
		f := New(defaultBitCount, 0)
		for _, k := range keys {
			f.Set(k)
		}
		for _, k := range keys {
			require.True(t, f.MayContain(k))
		}
	})
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	f := New(1<<12, 7)
	f.Set("apple")
	f.Set("banana")

	got, ok := Deserialize(f.Serialize())
	require.True(t, ok)
	require.Equal(t, f.Seed(), got.Seed())
	require.Equal(t, f.BitCount(), got.BitCount())
	require.True(t, got.MayContain("apple"))
	require.True(t, got.MayContain("banana"))
}

func TestDeserializeRejectsShortInput(t *testing.T) {
	f := New(1<<10, 0)
	f.Set("apple")
	before := f.Serialize()

	ok := f.Deserialize([]byte{1, 2, 3})
	require.False(t, ok)
	require.Equal(t, before, f.Serialize())
}

func TestDeserializeRejectsLengthMismatch(t *testing.T) {
	other := New(1<<10, 0)
	raw := other.Serialize()
	// Truncate the bit array without fixing up bit_count.
	raw = raw[:len(raw)-1]

	f := New(1<<10, 0)
	f.Set("apple")
	before := f.Serialize()

	ok := f.Deserialize(raw)
	require.False(t, ok)
	require.Equal(t, before, f.Serialize())
}

func TestDeserializeRejectsOversizedBitCount(t *testing.T) {
	raw := make([]byte, 8)
	// bit_count far beyond maxBitCount, with no bit payload attached.
	raw[4] = 0xff
	raw[5] = 0xff
	raw[6] = 0xff
	raw[7] = 0x7f

	f := New(1<<10, 0)
	f.Set("apple")
	before := f.Serialize()

	ok := f.Deserialize(raw)
	require.False(t, ok)
	require.Equal(t, before, f.Serialize())
}

func TestPackageLevelDeserializeRejectsMalformed(t *testing.T) {
	_, ok := Deserialize(nil)
	require.False(t, ok)
}
