// Package snapshot writes a consistent, atomically-published copy of an
// index's graph, tag map, and vector store to a directory of files. It
// generalizes persistence.AtomicSaveToDir's approach (write every
// component to a temp file, fsync, then rename every temp file into place)
// to the three components a vamana.Index owns, and names the snapshot
// directory the way the original driver's get_save_filename does: an
// optional "skipN-" prefix, then "delN-threshold".
package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/symphony233/vamanastream/core"
)

const (
	metaFile   = "meta.bin"
	graphFile  = "graph.bin"
	tagsFile   = "tags.bin"
	vectorFile = "vectors.bin"

	// magic identifies a vamanastream snapshot directory (ASCII "VMS1").
	magic   = 0x564d5331
	version = 1
)

// Meta is the header recorded in meta.bin alongside the snapshot's three
// data files: the build parameters needed to reopen the index. meta.bin
// also stores a CRC32 checksum of each data file, the same
// corruption-detection role as FileHeader.Checksum but one per file rather
// than one over the whole thing, since graph/tags/vectors are written to
// separate files.
type Meta struct {
	Dimension    int
	MaxDegree    int
	BeamWidth    int
	Alpha        float32
	ActivePoints int
	FrozenSlots  []core.SlotID
}

// ErrChecksumMismatch is returned by Load when a data file's CRC32 does
// not match the value recorded in meta.bin at save time.
var ErrChecksumMismatch = fmt.Errorf("snapshot: checksum mismatch")

// Name builds a snapshot directory name matching the original driver's
// get_save_filename: "<prefix>skip<N>-del<D>-<threshold>" with the skip
// segment omitted when pointsToSkip is 0.
func Name(prefix string, pointsToSkip, pointsDeleted, lastPointThreshold int) string {
	final := prefix
	if pointsToSkip > 0 {
		final += fmt.Sprintf("skip%d-", pointsToSkip)
	}
	final += fmt.Sprintf("del%d-%d", pointsDeleted, lastPointThreshold)
	return final
}

// GraphSource and the other *Source interfaces are the minimal surfaces
// snapshot needs from vamana.Index's collaborators, so this package never
// imports vamana and stays reusable for any future index shape that keeps
// the same three stores.
type GraphSource interface {
	Neighbors(slot core.SlotID) []core.SlotID
	Capacity() int
}

type GraphSink interface {
	LoadRows(rows [][]core.SlotID)
}

type TagSource interface {
	Save(w io.Writer) error
}

type TagSink interface {
	Load(r io.Reader) error
}

type VectorSource interface {
	Save(w io.Writer) error
}

type VectorSink interface {
	Load(r io.Reader) error
}

// Writer bundles the three save functions Save needs;
// vamana.Index.SaveSnapshot fills it with its graph, tag map and vector
// store directly.
type Writer struct {
	Graph   GraphSource
	Tags    TagSource
	Vectors VectorSource
}

// Save atomically writes meta.bin, graph.bin, tags.bin, and vectors.bin
// into dir, following a write-to-temp-then-rename-everything pattern: a
// failure while writing removes the temp files and leaves none of the four
// in place, while the renames run one after another, so a failure partway
// through them can leave some files renamed and others not. meta's
// checksums are computed from the other three files' contents as they're
// written, so meta.bin is written last.
func Save(dir string, w Writer, meta Meta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: failed to create directory %s: %w", dir, err)
	}

	dataFiles := map[string]func(io.Writer) error{
		graphFile:  func(out io.Writer) error { return saveGraph(out, w.Graph) },
		tagsFile:   w.Tags.Save,
		vectorFile: w.Vectors.Save,
	}

	tempFiles := make([]string, 0, len(dataFiles)+1)
	defer func() {
		for _, tmp := range tempFiles {
			_ = os.Remove(tmp)
		}
	}()

	type mapping struct{ temp, target string }
	mappings := make([]mapping, 0, len(dataFiles)+1)
	checksums := make(map[string]uint32, len(dataFiles))

	for filename, write := range dataFiles {
		target := filepath.Join(dir, filename)

		tmp, err := os.CreateTemp(dir, filename+".tmp-*")
		if err != nil {
			return fmt.Errorf("snapshot: failed to create temp file for %s: %w", filename, err)
		}
		tempFiles = append(tempFiles, tmp.Name())

		cw := newChecksumWriter(tmp)
		if err := write(cw); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("snapshot: failed to write %s: %w", filename, err)
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("snapshot: failed to sync %s: %w", filename, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("snapshot: failed to close %s: %w", filename, err)
		}

		checksums[filename] = cw.sum()
		mappings = append(mappings, mapping{temp: tmp.Name(), target: target})
	}

	metaTmp, err := os.CreateTemp(dir, metaFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: failed to create temp file for %s: %w", metaFile, err)
	}
	tempFiles = append(tempFiles, metaTmp.Name())
	if err := saveMeta(metaTmp, meta, checksums); err != nil {
		_ = metaTmp.Close()
		return fmt.Errorf("snapshot: failed to write %s: %w", metaFile, err)
	}
	if err := metaTmp.Sync(); err != nil {
		_ = metaTmp.Close()
		return fmt.Errorf("snapshot: failed to sync %s: %w", metaFile, err)
	}
	if err := metaTmp.Close(); err != nil {
		return fmt.Errorf("snapshot: failed to close %s: %w", metaFile, err)
	}
	mappings = append(mappings, mapping{temp: metaTmp.Name(), target: filepath.Join(dir, metaFile)})

	for _, m := range mappings {
		if err := os.Rename(m.temp, m.target); err != nil {
			return fmt.Errorf("snapshot: failed to rename into %s: %w", m.target, err)
		}
	}
	tempFiles = nil

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

// checksumWriter tees writes to an underlying io.Writer while accumulating
// a running CRC32, the same role as persistence.ChecksumWriter.
type checksumWriter struct {
	w   io.Writer
	crc uint32
}

func newChecksumWriter(w io.Writer) *checksumWriter {
	return &checksumWriter{w: w}
}

func (c *checksumWriter) Write(p []byte) (int, error) {
	c.crc = crc32.Update(c.crc, crc32.IEEETable, p)
	return c.w.Write(p)
}

func (c *checksumWriter) sum() uint32 { return c.crc }

func saveMeta(w io.Writer, meta Meta, checksums map[string]uint32) error {
	fields := []any{
		uint32(magic),
		uint32(version),
		uint32(meta.Dimension), //nolint:gosec
		uint32(meta.MaxDegree), //nolint:gosec
		uint32(meta.BeamWidth), //nolint:gosec
		meta.Alpha,
		uint32(meta.ActivePoints), //nolint:gosec
		uint32(len(meta.FrozenSlots)),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	for _, slot := range meta.FrozenSlots {
		if err := binary.Write(w, binary.LittleEndian, uint32(slot)); err != nil {
			return err
		}
	}
	for _, name := range []string{graphFile, tagsFile, vectorFile} {
		if err := binary.Write(w, binary.LittleEndian, checksums[name]); err != nil {
			return err
		}
	}
	return nil
}

// Reader bundles the three load functions Load needs.
type Reader struct {
	Graph   GraphSink
	Tags    TagSink
	Vectors VectorSink
}

// Load reads meta.bin, graph.bin, tags.bin, and vectors.bin from dir,
// verifies each data file's CRC32 against the value recorded in meta.bin,
// and restores the three data files into r's sinks. Partial or missing
// files surface as plain errors; Load does not attempt to recover a
// half-written snapshot.
func Load(dir string, r Reader) (Meta, error) {
	meta, checksums, err := loadMeta(filepath.Join(dir, metaFile))
	if err != nil {
		return Meta{}, fmt.Errorf("snapshot: failed to read %s: %w", metaFile, err)
	}

	graphBytes, err := os.ReadFile(filepath.Join(dir, graphFile))
	if err != nil {
		return Meta{}, fmt.Errorf("snapshot: failed to open %s: %w", graphFile, err)
	}
	if err := verifyChecksum(graphFile, graphBytes, checksums); err != nil {
		return Meta{}, err
	}
	rows, err := loadGraph(bytesReader(graphBytes))
	if err != nil {
		return Meta{}, fmt.Errorf("snapshot: failed to decode %s: %w", graphFile, err)
	}
	r.Graph.LoadRows(rows)

	tagBytes, err := os.ReadFile(filepath.Join(dir, tagsFile))
	if err != nil {
		return Meta{}, fmt.Errorf("snapshot: failed to open %s: %w", tagsFile, err)
	}
	if err := verifyChecksum(tagsFile, tagBytes, checksums); err != nil {
		return Meta{}, err
	}
	if err := r.Tags.Load(bytesReader(tagBytes)); err != nil {
		return Meta{}, fmt.Errorf("snapshot: failed to decode %s: %w", tagsFile, err)
	}

	vectorBytes, err := os.ReadFile(filepath.Join(dir, vectorFile))
	if err != nil {
		return Meta{}, fmt.Errorf("snapshot: failed to open %s: %w", vectorFile, err)
	}
	if err := verifyChecksum(vectorFile, vectorBytes, checksums); err != nil {
		return Meta{}, err
	}
	if err := r.Vectors.Load(bytesReader(vectorBytes)); err != nil {
		return Meta{}, fmt.Errorf("snapshot: failed to decode %s: %w", vectorFile, err)
	}

	return meta, nil
}

func verifyChecksum(filename string, data []byte, checksums map[string]uint32) error {
	if crc32.ChecksumIEEE(data) != checksums[filename] {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, filename)
	}
	return nil
}

func bytesReader(b []byte) io.Reader { return &byteSliceReader{b: b} }

// byteSliceReader avoids pulling in bytes.Reader's full Seek/ReadAt surface
// for what loadGraph and the tag/vector Load methods only ever consume
// sequentially via io.Reader.
type byteSliceReader struct {
	b   []byte
	pos int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

func loadMeta(path string) (Meta, map[string]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, nil, err
	}
	defer f.Close()

	var gotMagic, gotVersion uint32
	if err := binary.Read(f, binary.LittleEndian, &gotMagic); err != nil {
		return Meta{}, nil, err
	}
	if gotMagic != magic {
		return Meta{}, nil, fmt.Errorf("snapshot: bad magic number 0x%x", gotMagic)
	}
	if err := binary.Read(f, binary.LittleEndian, &gotVersion); err != nil {
		return Meta{}, nil, err
	}
	if gotVersion != version {
		return Meta{}, nil, fmt.Errorf("snapshot: unsupported version %d", gotVersion)
	}

	var dim, maxDegree, beamWidth, activePoints, numFrozen uint32
	var alpha float32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return Meta{}, nil, err
	}
	if err := binary.Read(f, binary.LittleEndian, &maxDegree); err != nil {
		return Meta{}, nil, err
	}
	if err := binary.Read(f, binary.LittleEndian, &beamWidth); err != nil {
		return Meta{}, nil, err
	}
	if err := binary.Read(f, binary.LittleEndian, &alpha); err != nil {
		return Meta{}, nil, err
	}
	if err := binary.Read(f, binary.LittleEndian, &activePoints); err != nil {
		return Meta{}, nil, err
	}
	if err := binary.Read(f, binary.LittleEndian, &numFrozen); err != nil {
		return Meta{}, nil, err
	}

	frozen := make([]core.SlotID, numFrozen)
	for i := range frozen {
		var slot uint32
		if err := binary.Read(f, binary.LittleEndian, &slot); err != nil {
			return Meta{}, nil, err
		}
		frozen[i] = core.SlotID(slot)
	}

	checksums := make(map[string]uint32, 3)
	for _, name := range []string{graphFile, tagsFile, vectorFile} {
		var sum uint32
		if err := binary.Read(f, binary.LittleEndian, &sum); err != nil {
			return Meta{}, nil, err
		}
		checksums[name] = sum
	}

	meta := Meta{
		Dimension:    int(dim),
		MaxDegree:    int(maxDegree),
		BeamWidth:    int(beamWidth),
		Alpha:        alpha,
		ActivePoints: int(activePoints),
		FrozenSlots:  frozen,
	}
	return meta, checksums, nil
}

func loadGraph(r io.Reader) ([][]core.SlotID, error) {
	var capacity uint32
	if err := binary.Read(r, binary.LittleEndian, &capacity); err != nil {
		return nil, err
	}
	rows := make([][]core.SlotID, capacity)
	for i := range rows {
		var degree uint32
		if err := binary.Read(r, binary.LittleEndian, &degree); err != nil {
			return nil, err
		}
		row := make([]core.SlotID, degree)
		for j := range row {
			var n uint32
			if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
				return nil, err
			}
			row[j] = core.SlotID(n)
		}
		rows[i] = row
	}
	return rows, nil
}

// saveGraph writes every slot's neighbor list as
// [capacity: u32][degree: u32][neighbor: u32]... per slot.
func saveGraph(w io.Writer, g GraphSource) error {
	capacity := g.Capacity()
	if err := binary.Write(w, binary.LittleEndian, uint32(capacity)); err != nil { //nolint:gosec
		return err
	}
	for i := 0; i < capacity; i++ {
		neighbors := g.Neighbors(core.SlotID(i)) //nolint:gosec
		if err := binary.Write(w, binary.LittleEndian, uint32(len(neighbors))); err != nil {
			return err
		}
		for _, n := range neighbors {
			if err := binary.Write(w, binary.LittleEndian, uint32(n)); err != nil {
				return err
			}
		}
	}
	return nil
}
