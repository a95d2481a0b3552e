package minio

import (
	"testing"

	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		path   string
		want   string
	}{
		{"no prefix", "", "images/a.png", "images/a.png"},
		{"prefix", "catalog/", "images/a.png", "catalog/images/a.png"},
		{"prefix with leading slash", "/catalog", "a.png", "catalog/a.png"},
		{"dot segments", "catalog", "images/./x/../a.png", "catalog/images/a.png"},
		{"windows separators", "", "images\\a.png", "images/a.png"},
		{"spaces", "", "  a.png ", "a.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := objectKey(tt.prefix, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectKey_Rejects(t *testing.T) {
	for _, p := range []string{"", "   ", "/etc/passwd", "../secret.png", "images/../../secret.png"} {
		_, err := objectKey("catalog", p)
		assert.ErrorIs(t, err, e.ErrNoImageSource, p)
	}
}
