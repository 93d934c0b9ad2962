package ioformat

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFloatBin(t *testing.T, path string, rows [][]float32) {
	t.Helper()
	dim := len(rows[0])

	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(len(rows))))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(dim)))
	for _, row := range rows {
		for _, x := range row {
			require.NoError(t, binary.Write(buf, binary.LittleEndian, math.Float32bits(x)))
		}
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestReadHeader(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(10)))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(5)))

	h, err := ReadHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, Header{Points: 10, Dimension: 5}, h)
}

func TestCheckSizeMatches(t *testing.T) {
	h := Header{Points: 4, Dimension: 3}
	assert.NoError(t, CheckSize(h, Float32, 8+4*3*4))
}

func TestCheckSizeMismatchReturnsFileSizeMismatch(t *testing.T) {
	h := Header{Points: 4, Dimension: 3}
	err := CheckSize(h, Float32, 8+4*3*4-1)
	assert.ErrorIs(t, err, ErrFileSizeMismatch)
}

func TestAlignedDimensionRoundsUpToMultipleOfEight(t *testing.T) {
	assert.Equal(t, 8, AlignedDimension(1))
	assert.Equal(t, 8, AlignedDimension(8))
	assert.Equal(t, 16, AlignedDimension(9))
}

func TestOpenRejectsSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))

	_, err := Open(path, Float32)
	assert.Error(t, err)
}

func TestReadBatchDecodesAndPadsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.bin")
	rows := [][]float32{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}
	writeFloatBin(t, path, rows)

	r, err := Open(path, Float32)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, Header{Points: 3, Dimension: 3}, r.Header())

	batch, err := r.ReadBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Len(t, batch[0], 8)
	assert.Equal(t, []float32{1, 2, 3, 0, 0, 0, 0, 0}, batch[0])
	assert.Equal(t, []float32{4, 5, 6, 0, 0, 0, 0, 0}, batch[1])

	rest, err := r.ReadBatch(10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []float32{7, 8, 9, 0, 0, 0, 0, 0}, rest[0])

	done, err := r.ReadBatch(1)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestSeekRepositionsReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.bin")
	rows := [][]float32{{1}, {2}, {3}}
	writeFloatBin(t, path, rows)

	r, err := Open(path, Float32)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Seek(2))
	batch, err := r.ReadBatch(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, float32(3), batch[0][0])
}

func TestSeekRejectsOutOfRangeOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.bin")
	writeFloatBin(t, path, [][]float32{{1}})

	r, err := Open(path, Float32)
	require.NoError(t, err)
	defer r.Close()

	assert.Error(t, r.Seek(5))
}

func TestReadBatchDecodesInt8(t *testing.T) {
	dir := t.TempDir()

	int8Path := filepath.Join(dir, "i8.bin")
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(1)))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(2)))
	buf.Write([]byte{0xFF, 0x02}) // -1, 2 as int8
	require.NoError(t, os.WriteFile(int8Path, buf.Bytes(), 0o600))

	r, err := Open(int8Path, Int8)
	require.NoError(t, err)
	defer r.Close()

	batch, err := r.ReadBatch(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, float32(-1), batch[0][0])
	assert.Equal(t, float32(2), batch[0][1])
}
