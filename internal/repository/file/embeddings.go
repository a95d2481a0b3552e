package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/klauspost/compress/zstd"
)

// Формат файла векторов (после распаковки zstd), little-endian:
//
//	magic "PVEC" | version u16 | count u32 | dim u32 | count × (valid u8, dim × f32)
const (
	embeddingsMagic          = "PVEC"
	embeddingsVersion uint16 = 1

	maxEmbeddingDim  = 1 << 16
	maxEmbeddingRows = 1 << 24
)

type embeddingRow struct {
	vector []float32
	valid  bool
}

type embeddingsHeader struct {
	Version uint16
	Count   uint32
	Dim     uint32
}

func writeEmbeddings(w io.Writer, rows []embeddingRow, dim int) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			_ = zw.Close()
		}
	}()

	bw := bufio.NewWriter(zw)
	if _, err := bw.WriteString(embeddingsMagic); err != nil {
		return err
	}

	header := embeddingsHeader{Version: embeddingsVersion, Count: uint32(len(rows)), Dim: uint32(dim)}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}

	zero := make([]float32, dim)
	for i, row := range rows {
		vector := row.vector
		if len(vector) == 0 {
			vector = zero
		}
		if len(vector) != dim {
			return fmt.Errorf("%w: row %d has %d dims, want %d", e.ErrDimensionMismatch, i, len(vector), dim)
		}

		var valid byte
		if row.valid {
			valid = 1
		}
		if err := bw.WriteByte(valid); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, vector); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}

	closed = true
	return zw.Close()
}

func readEmbeddings(r io.Reader) ([]embeddingRow, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, formatError(err)
	}
	defer zr.Close()

	br := bufio.NewReader(zr)

	magic := make([]byte, len(embeddingsMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, formatError(err)
	}
	if string(magic) != embeddingsMagic {
		return nil, fmt.Errorf("%w: bad magic %q", e.ErrCatalogFormat, magic)
	}

	var header embeddingsHeader
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, formatError(err)
	}
	if header.Version != embeddingsVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", e.ErrCatalogFormat, header.Version)
	}
	if header.Dim > maxEmbeddingDim || header.Count > maxEmbeddingRows {
		return nil, fmt.Errorf("%w: header out of range (count %d, dim %d)", e.ErrCatalogFormat, header.Count, header.Dim)
	}

	rows := make([]embeddingRow, 0, header.Count)
	for i := uint32(0); i < header.Count; i++ {
		valid, err := br.ReadByte()
		if err != nil {
			return nil, formatError(err)
		}
		if valid > 1 {
			return nil, fmt.Errorf("%w: row %d has bad validity flag %d", e.ErrCatalogFormat, i, valid)
		}

		vector := make([]float32, header.Dim)
		if err := binary.Read(br, binary.LittleEndian, vector); err != nil {
			return nil, formatError(err)
		}

		rows = append(rows, embeddingRow{vector: vector, valid: valid == 1})
	}

	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after %d rows", e.ErrCatalogFormat, header.Count)
	}

	return rows, nil
}

func formatError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated embeddings file", e.ErrCatalogFormat)
	}

	return fmt.Errorf("%w: %v", e.ErrCatalogFormat, err)
}
