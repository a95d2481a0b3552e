package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *domain.Catalog {
	t.Helper()

	catalog, err := domain.NewCatalog([]domain.CatalogItem{
		domain.NewCatalogItem(*domain.NewProduct("Red shoe", "Leather, size 42", "https://cdn.example.com/red.jpg", "Shoes", ""), []float32{1, 0, 0}, true),
		domain.NewCatalogItem(*domain.NewProduct("Broken", "no image", "", "Bags", "images/broken.png"), nil, false),
		domain.NewCatalogItem(*domain.NewProduct("Blue cap", "cotton", "https://cdn.example.com/cap.jpg", "Hats", ""), []float32{0, 0.6, 0.8}, true),
	})
	require.NoError(t, err)
	return catalog
}

func TestReadProducts(t *testing.T) {
	input := "\ufeffCategory,name,image_url,description,extra\n" +
		"Shoes,Red shoe,https://cdn.example.com/red.jpg,\"Leather, size 42\",x\n" +
		"Hats, Blue cap ,https://cdn.example.com/cap.jpg,cotton,y\n"

	products, err := readProducts(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "Red shoe", products[0].Name)
	assert.Equal(t, "Leather, size 42", products[0].Description)
	assert.Equal(t, "Shoes", products[0].Category)
	assert.Empty(t, products[0].ImagePath)
	assert.Equal(t, "Blue cap", products[1].Name)
}

func TestReadProducts_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing column", "name,description,category\nA,B,C\n"},
		{"ragged row", "name,description,image_url,category\nA,B,C\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readProducts(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, e.ErrCatalogFormat)
		})
	}
}

func TestEmbeddings_WriteRead(t *testing.T) {
	rows := []embeddingRow{
		{vector: []float32{0.5, -1, 2}, valid: true},
		{vector: nil, valid: false},
	}

	var buf bytes.Buffer
	require.NoError(t, writeEmbeddings(&buf, rows, 3))

	got, err := readEmbeddings(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.5, -1, 2}, got[0].vector)
	assert.True(t, got[0].valid)
	assert.Equal(t, []float32{0, 0, 0}, got[1].vector)
	assert.False(t, got[1].valid)
}

func TestEmbeddings_RejectsDimensionMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := writeEmbeddings(&buf, []embeddingRow{{vector: []float32{1, 2}, valid: true}}, 3)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestEmbeddings_WriteError(t *testing.T) {
	rows := make([]embeddingRow, 64)
	for i := range rows {
		rows[i] = embeddingRow{vector: []float32{float32(i), 1}, valid: true}
	}

	err := writeEmbeddings(failingWriter{}, rows, 2)
	assert.Error(t, err)

	err = writeEmbeddings(failingWriter{}, []embeddingRow{{vector: []float32{1}, valid: true}}, 2)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)
}

func TestEmbeddings_Corrupted(t *testing.T) {
	_, err := readEmbeddings(bytes.NewReader([]byte("not zstd at all")))
	assert.ErrorIs(t, err, e.ErrCatalogFormat)

	var buf bytes.Buffer
	require.NoError(t, writeEmbeddings(&buf, []embeddingRow{{vector: []float32{1, 2}, valid: true}}, 2))
	raw := buf.Bytes()
	_, err = readEmbeddings(bytes.NewReader(raw[:len(raw)/2]))
	assert.ErrorIs(t, err, e.ErrCatalogFormat)
}

func TestCatalogRepo_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	repo := NewCatalogRepo(filepath.Join(dir, "products.csv"), filepath.Join(dir, "embeddings", "products.pvec"))
	catalog := newTestCatalog(t)

	require.NoError(t, repo.Save(context.Background(), catalog))

	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())
	assert.Equal(t, 3, loaded.Dim)
	assert.Equal(t, 2, loaded.ValidCount())
	assert.Equal(t, catalog.Products(), loaded.Products())
	assert.Equal(t, []float32{0, 0.6, 0.8}, loaded.Items[2].Vector)
	assert.False(t, loaded.Items[1].EmbeddingValid)
	assert.Empty(t, loaded.Items[1].Vector)

	entries, err := os.ReadDir(filepath.Join(dir, "embeddings"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be cleaned up")
}

func TestCatalogRepo_Misaligned(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	repo := NewCatalogRepo(csvPath, filepath.Join(dir, "products.pvec"))
	require.NoError(t, repo.Save(context.Background(), newTestCatalog(t)))

	require.NoError(t, os.WriteFile(csvPath, []byte("name,description,image_url,category\nOnly,one,,Shoes\n"), 0o644))

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, e.ErrCatalogMisaligned)
}

func TestCatalogRepo_NonFiniteVector(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	embeddingsPath := filepath.Join(dir, "products.pvec")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,description,image_url,category\nA,,,Shoes\nB,,,Shoes\n"), 0o644))

	rows := []embeddingRow{
		{vector: []float32{float32(math.NaN()), 0}, valid: true},
		{vector: []float32{1, 0}, valid: true},
	}
	require.NoError(t, writeAtomic(embeddingsPath, func(w io.Writer) error {
		return writeEmbeddings(w, rows, 2)
	}))

	_, err := NewCatalogRepo(csvPath, embeddingsPath).Load(context.Background())
	assert.ErrorIs(t, err, e.ErrCatalogFormat)
}

func TestCatalogRepo_MissingEmbeddings(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,description,image_url,category\nA,B,,C\n"), 0o644))

	_, err := NewCatalogRepo(csvPath, filepath.Join(dir, "missing.pvec")).Load(context.Background())
	assert.ErrorIs(t, err, e.ErrEmbeddingsNotFound)
}

func TestCatalogRepo_SaveEmpty(t *testing.T) {
	dir := t.TempDir()
	err := NewCatalogRepo(filepath.Join(dir, "a.csv"), filepath.Join(dir, "a.pvec")).Save(context.Background(), &domain.Catalog{})
	assert.ErrorIs(t, err, e.ErrEmptyCatalog)
}

func TestDatasetRepo_ReadProducts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,description,image_url,category,image\nA,desc,,Shoes,images/a.png\n"), 0o644))

	products, err := NewDatasetRepo(path).ReadProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "images/a.png", products[0].ImagePath)

	_, err = NewDatasetRepo(filepath.Join(dir, "nope.csv")).ReadProducts(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImageRepo_Read(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "a.png"), []byte("\x89PNG\r\n\x1a\nrest"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.jpg"), bytes.Repeat([]byte{1}, 64), 0o644))

	repo := NewImageRepo(dir, 32)

	img, err := repo.Read(context.Background(), "images/a.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "images/a.png", img.Name)

	_, err = repo.Read(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, e.ErrNoImageSource)

	_, err = repo.Read(context.Background(), "big.jpg")
	assert.ErrorIs(t, err, e.ErrFileTooLarge)

	_, err = repo.Read(context.Background(), "images/missing.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
