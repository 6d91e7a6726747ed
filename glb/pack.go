package glb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// PackCompression indicates the compression used for the pack content section.
type PackCompression uint8

const (
	PackCompNone PackCompression = 0
	PackCompZlib PackCompression = 1
	PackCompZstd PackCompression = 2
)

// ParseCompression maps a flag value to a PackCompression.
func ParseCompression(s string) (PackCompression, error) {
	switch s {
	case "none", "":
		return PackCompNone, nil
	case "zlib":
		return PackCompZlib, nil
	case "zstd":
		return PackCompZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q (want none, zlib or zstd)", s)
}

func (c PackCompression) String() string {
	switch c {
	case PackCompNone:
		return "none"
	case PackCompZlib:
		return "zlib"
	case PackCompZstd:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

const (
	packMagicStr = "GLBPACK"
	packVersion1 = 1
)

// PackLayout specifies how the content section encodes entries.
type PackLayout uint8

const (
	// LayoutRaw stores entries as independent payload blobs.
	LayoutRaw PackLayout = 0
	// LayoutCDC stores a content-defined chunk dictionary and entries as
	// sequences of chunk refs. Variants of the same prop usually share
	// texture bytes, which the dictionary stores once.
	LayoutCDC PackLayout = 1
)

// CDC parameters.
const (
	cdcTarget = 4096
	cdcMin    = 2048
	cdcMax    = 16384
)

// PackEntry is one GLB file inside a pack. Scale is the factor it was
// exported with, or 0 when unknown.
type PackEntry struct {
	Name    string
	Scale   float64
	Payload []byte
}

// Pack is an ordered bundle of GLB files.
type Pack struct {
	Entries []PackEntry
}

// Marshal encodes the pack with the given layout and compression codec.
func (p *Pack) Marshal(layout PackLayout, comp PackCompression) ([]byte, error) {
	var content bytes.Buffer
	_ = binary.Write(&content, binary.LittleEndian, uint8(layout))

	switch layout {
	case LayoutRaw:
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(p.Entries)))
		for _, e := range p.Entries {
			if err := writeEntryHeader(&content, e); err != nil {
				return nil, err
			}
			_, _ = content.Write(e.Payload)
		}
	case LayoutCDC:
		_ = binary.Write(&content, binary.LittleEndian, uint32(cdcTarget))
		_ = binary.Write(&content, binary.LittleEndian, uint32(cdcMin))
		_ = binary.Write(&content, binary.LittleEndian, uint32(cdcMax))

		dict, sequences := buildCDCIndex(p.Entries, cdcTarget, cdcMin, cdcMax)
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(dict)))
		for _, blk := range dict {
			_ = binary.Write(&content, binary.LittleEndian, uint32(len(blk)))
			_, _ = content.Write(blk)
		}
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(p.Entries)))
		for i, e := range p.Entries {
			if err := writeEntryHeader(&content, e); err != nil {
				return nil, err
			}
			seq := sequences[i]
			_ = binary.Write(&content, binary.LittleEndian, uint32(len(seq)))
			for _, idx := range seq {
				_ = binary.Write(&content, binary.LittleEndian, uint32(idx))
			}
		}
	default:
		return nil, fmt.Errorf("unsupported layout: %d", layout)
	}

	var finalContent []byte
	switch comp {
	case PackCompNone:
		finalContent = content.Bytes()
	case PackCompZlib:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(content.Bytes()); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		finalContent = buf.Bytes()
	case PackCompZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		finalContent = enc.EncodeAll(content.Bytes(), nil)
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("unsupported compression: %d", comp)
	}

	var out bytes.Buffer
	out.WriteString(packMagicStr)
	_ = binary.Write(&out, binary.LittleEndian, uint8(packVersion1))
	_ = binary.Write(&out, binary.LittleEndian, uint8(comp))
	_, _ = out.Write(finalContent)
	return out.Bytes(), nil
}

// entry header: name, scale, raw payload length, xxhash64 of the payload
func writeEntryHeader(w *bytes.Buffer, e PackEntry) error {
	nb := []byte(e.Name)
	if len(nb) == 0 || len(nb) > 0xFFFF {
		return fmt.Errorf("invalid entry name length %d: %q", len(nb), e.Name)
	}
	_ = binary.Write(w, binary.LittleEndian, uint16(len(nb)))
	_, _ = w.Write(nb)
	_ = binary.Write(w, binary.LittleEndian, math.Float64bits(e.Scale))
	_ = binary.Write(w, binary.LittleEndian, uint32(len(e.Payload)))
	_ = binary.Write(w, binary.LittleEndian, xxhash.Sum64(e.Payload))
	return nil
}

type entryHeader struct {
	name   string
	scale  float64
	rawLen uint32
	sum    uint64
}

func readEntryHeader(r *bytes.Reader) (entryHeader, error) {
	var h entryHeader
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return h, err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return h, err
	}
	h.name = string(nameBytes)
	var bits uint64
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return h, err
	}
	h.scale = math.Float64frombits(bits)
	if err := binary.Read(r, binary.LittleEndian, &h.rawLen); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.sum); err != nil {
		return h, err
	}
	return h, nil
}

func (h entryHeader) entry(payload []byte) (PackEntry, error) {
	if uint32(len(payload)) != h.rawLen {
		return PackEntry{}, fmt.Errorf("%s: payload length %d, want %d", h.name, len(payload), h.rawLen)
	}
	if xxhash.Sum64(payload) != h.sum {
		return PackEntry{}, fmt.Errorf("%s: checksum mismatch", h.name)
	}
	return PackEntry{Name: h.name, Scale: h.scale, Payload: payload}, nil
}

// UnmarshalPack parses a .glbpack and returns the pack and the compression used.
// Every entry's checksum is verified.
func UnmarshalPack(data []byte) (*Pack, PackCompression, error) {
	hdrLen := len(packMagicStr) + 2
	if len(data) < hdrLen || string(data[:len(packMagicStr)]) != packMagicStr {
		return nil, 0, fmt.Errorf("not a valid .glbpack")
	}
	version := data[len(packMagicStr)]
	if version != packVersion1 {
		return nil, 0, fmt.Errorf("unsupported pack version: %d", version)
	}
	comp := PackCompression(data[len(packMagicStr)+1])
	contentBytes := data[hdrLen:]
	switch comp {
	case PackCompNone:
	case PackCompZlib:
		zr, err := zlib.NewReader(bytes.NewReader(contentBytes))
		if err != nil {
			return nil, 0, err
		}
		defer zr.Close()
		b, err := io.ReadAll(zr)
		if err != nil {
			return nil, 0, err
		}
		contentBytes = b
	case PackCompZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, 0, err
		}
		defer dec.Close()
		b, err := dec.DecodeAll(contentBytes, nil)
		if err != nil {
			return nil, 0, err
		}
		contentBytes = b
	default:
		return nil, 0, fmt.Errorf("unsupported compression: %d", comp)
	}

	r := bytes.NewReader(contentBytes)
	var lb uint8
	if err := binary.Read(r, binary.LittleEndian, &lb); err != nil {
		return nil, 0, err
	}
	switch PackLayout(lb) {
	case LayoutRaw:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, 0, err
		}
		pack := &Pack{Entries: make([]PackEntry, 0, min(int(n), 1024))}
		for i := uint32(0); i < n; i++ {
			h, err := readEntryHeader(r)
			if err != nil {
				return nil, 0, err
			}
			if int64(h.rawLen) > int64(r.Len()) {
				return nil, 0, fmt.Errorf("%s: truncated payload", h.name)
			}
			payload := make([]byte, h.rawLen)
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, 0, err
			}
			e, err := h.entry(payload)
			if err != nil {
				return nil, 0, err
			}
			pack.Entries = append(pack.Entries, e)
		}
		return pack, comp, nil
	case LayoutCDC:
		var target, minSz, maxSz uint32
		for _, v := range []*uint32{&target, &minSz, &maxSz} {
			if err := binary.Read(r, binary.LittleEndian, v); err != nil {
				return nil, 0, err
			}
		}
		var nBlocks uint32
		if err := binary.Read(r, binary.LittleEndian, &nBlocks); err != nil {
			return nil, 0, err
		}
		blocks := make([][]byte, 0, min(int(nBlocks), 4096))
		for i := uint32(0); i < nBlocks; i++ {
			var blen uint32
			if err := binary.Read(r, binary.LittleEndian, &blen); err != nil {
				return nil, 0, err
			}
			if blen > maxSz || int64(blen) > int64(r.Len()) {
				return nil, 0, fmt.Errorf("invalid block length %d", blen)
			}
			b := make([]byte, blen)
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, 0, err
			}
			blocks = append(blocks, b)
		}
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, 0, err
		}
		pack := &Pack{Entries: make([]PackEntry, 0, min(int(n), 1024))}
		for i := uint32(0); i < n; i++ {
			h, err := readEntryHeader(r)
			if err != nil {
				return nil, 0, err
			}
			var seqLen uint32
			if err := binary.Read(r, binary.LittleEndian, &seqLen); err != nil {
				return nil, 0, err
			}
			payload := make([]byte, 0, h.rawLen)
			for j := uint32(0); j < seqLen; j++ {
				var idx uint32
				if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
					return nil, 0, err
				}
				if idx >= nBlocks {
					return nil, 0, fmt.Errorf("invalid block index: %d", idx)
				}
				payload = append(payload, blocks[idx]...)
				if uint32(len(payload)) > h.rawLen {
					return nil, 0, fmt.Errorf("%s: inconsistent CDC sequence", h.name)
				}
			}
			e, err := h.entry(payload)
			if err != nil {
				return nil, 0, err
			}
			pack.Entries = append(pack.Entries, e)
		}
		return pack, comp, nil
	default:
		return nil, 0, fmt.Errorf("unknown layout: %d", lb)
	}
}

// gearTable maps each byte value to a pseudo-random word for the rolling
// chunk-boundary hash. It only affects where chunks are cut; readers never
// need it.
var gearTable = func() (g [256]uint64) {
	seed := xxhash.Sum64([]byte("glbpack-cdc-gear-seed"))
	var b [16]byte
	for i := range g {
		binary.LittleEndian.PutUint64(b[:8], seed+uint64(i)*0x9E3779B185EBCA87)
		binary.LittleEndian.PutUint64(b[8:], ^(seed + uint64(i)*0xC2B2AE3D27D4EB4F))
		if g[i] = xxhash.Sum64(b[:]); g[i] == 0 {
			g[i] = 0x9E3779B185EBCA87
		}
	}
	return g
}()

// chunkDict stores unique chunks. Chunks are keyed by their xxhash but
// compared byte for byte, and colliding chunks share a bucket; a hash hit
// alone would silently substitute another asset's bytes.
type chunkDict struct {
	blocks  [][]byte
	buckets map[uint64][]int
}

func (d *chunkDict) add(b []byte) int {
	h := xxhash.Sum64(b)
	for _, idx := range d.buckets[h] {
		if bytes.Equal(d.blocks[idx], b) {
			return idx
		}
	}
	idx := len(d.blocks)
	d.blocks = append(d.blocks, bytes.Clone(b))
	d.buckets[h] = append(d.buckets[h], idx)
	return idx
}

// cutPoints returns the end offset of every chunk of data. A boundary falls
// where the low bits of the gear hash are zero, bounded by minSz and maxSz.
func cutPoints(data []byte, mask uint64, minSz, maxSz int) []int {
	var cuts []int
	start := 0
	var h uint64
	for pos, c := range data {
		h = h<<1 + gearTable[c]
		n := pos - start + 1
		if n < minSz {
			continue
		}
		if h&mask == 0 || n >= maxSz {
			cuts = append(cuts, pos+1)
			start, h = pos+1, 0
		}
	}
	if start < len(data) {
		cuts = append(cuts, len(data))
	}
	return cuts
}

// buildCDCIndex splits every payload into content-defined chunks and
// returns the chunk dictionary plus, per entry, its chunk index sequence.
func buildCDCIndex(entries []PackEntry, target, minSz, maxSz int) ([][]byte, [][]int) {
	pow := 1 << int(math.Round(math.Log2(float64(target))))
	if pow <= 0 {
		pow = cdcTarget
	}
	mask := uint64(pow - 1)

	dict := &chunkDict{buckets: make(map[uint64][]int, 1024)}
	seqs := make([][]int, len(entries))
	for i, e := range entries {
		start := 0
		for _, end := range cutPoints(e.Payload, mask, minSz, maxSz) {
			seqs[i] = append(seqs[i], dict.add(e.Payload[start:end]))
			start = end
		}
	}
	return dict.blocks, seqs
}
