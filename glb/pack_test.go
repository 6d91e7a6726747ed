package glb

import (
	"bytes"
	"math/rand"
	"testing"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []PackEntry {
	r := rand.New(rand.NewSource(7))
	shared := make([]byte, 64<<10)
	r.Read(shared)
	a := append([]byte("glTF-A"), shared...)
	b := append([]byte("glTF-B"), shared...)
	return []PackEntry{
		{Name: "Mug-supplies.glb", Scale: 0.08, Payload: a},
		{Name: "Soda-Can.glb", Scale: 0.12, Payload: b},
		{Name: "empty.glb", Payload: nil},
	}
}

func TestPackRoundTrip(t *testing.T) {
	for _, layout := range []PackLayout{LayoutRaw, LayoutCDC} {
		for _, comp := range []PackCompression{PackCompNone, PackCompZlib, PackCompZstd} {
			p := &Pack{Entries: testEntries()}
			data, err := p.Marshal(layout, comp)
			require.NoError(t, err, "layout %d %s", layout, comp)

			got, gotComp, err := UnmarshalPack(data)
			require.NoError(t, err, "layout %d %s", layout, comp)
			assert.Equal(t, comp, gotComp)
			require.Len(t, got.Entries, len(p.Entries))
			for i, e := range p.Entries {
				assert.Equal(t, e.Name, got.Entries[i].Name)
				assert.Equal(t, e.Scale, got.Entries[i].Scale)
				assert.True(t, bytes.Equal(e.Payload, got.Entries[i].Payload), "entry %s", e.Name)
			}
		}
	}
}

func TestPackCDCDeduplicates(t *testing.T) {
	p := &Pack{Entries: testEntries()}
	raw, err := p.Marshal(LayoutRaw, PackCompNone)
	require.NoError(t, err)
	cdc, err := p.Marshal(LayoutCDC, PackCompNone)
	require.NoError(t, err)
	assert.Less(t, len(cdc), len(raw)*3/4)
}

func TestUnmarshalPackDetectsCorruption(t *testing.T) {
	p := &Pack{Entries: testEntries()[:1]}
	data, err := p.Marshal(LayoutRaw, PackCompNone)
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF
	_, _, err = UnmarshalPack(data)
	assert.ErrorContains(t, err, "checksum")

	_, _, err = UnmarshalPack([]byte("VOPLPACK\x01\x00"))
	assert.Error(t, err)
	_, _, err = UnmarshalPack(data[:20])
	assert.Error(t, err)
}

func TestPackRejectsBadInput(t *testing.T) {
	p := &Pack{Entries: []PackEntry{{Name: ""}}}
	_, err := p.Marshal(LayoutRaw, PackCompNone)
	assert.Error(t, err)

	p = &Pack{Entries: testEntries()}
	_, err = p.Marshal(PackLayout(9), PackCompNone)
	assert.Error(t, err)
	_, err = p.Marshal(LayoutRaw, PackCompression(9))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	for s, want := range map[string]PackCompression{"": PackCompNone, "none": PackCompNone, "zlib": PackCompZlib, "zstd": PackCompZstd} {
		got, err := ParseCompression(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if s != "" {
			assert.Equal(t, s, got.String())
		}
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestCutPointsBounds(t *testing.T) {
	data := make([]byte, 200<<10)
	rand.New(rand.NewSource(3)).Read(data)

	cuts := cutPoints(data, cdcTarget-1, cdcMin, cdcMax)
	require.NotEmpty(t, cuts)
	assert.Equal(t, len(data), cuts[len(cuts)-1])
	start := 0
	for i, end := range cuts {
		n := end - start
		assert.LessOrEqual(t, n, cdcMax)
		if i < len(cuts)-1 {
			assert.GreaterOrEqual(t, n, cdcMin)
		}
		start = end
	}
	assert.Empty(t, cutPoints(nil, cdcTarget-1, cdcMin, cdcMax))
}

func TestChunkDictReusesEqualChunks(t *testing.T) {
	d := &chunkDict{buckets: map[uint64][]int{}}
	a := d.add([]byte("pen cap"))
	b := d.add([]byte("pen barrel"))
	assert.Equal(t, a, d.add([]byte("pen cap")))
	assert.NotEqual(t, a, b)
	require.Len(t, d.blocks, 2)

	// force "pen nib" into the bucket already holding "pen cap"
	nib := []byte("pen nib")
	d.buckets[xxhash.Sum64(nib)] = []int{a}
	c := d.add(nib)
	assert.NotEqual(t, a, c)
	assert.Equal(t, nib, d.blocks[c])
	assert.Equal(t, []int{a, c}, d.buckets[xxhash.Sum64(nib)])
}
