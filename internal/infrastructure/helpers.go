package infrastructure

import (
	"net/http"
	"path"
	"strings"

	"github.com/DRSN-tech/visual-matcher/pkg/e"
)

// MIMEFromPath возвращает MIME-тип изображения по расширению файла или ключа объекта.
// Поддерживает jpeg, jpg, png, webp, gif. Возвращает ошибку e.ErrUnsupportedMediaType для остальных.
func MIMEFromPath(p string) (string, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpeg", ".jpg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	case ".webp":
		return "image/webp", nil
	case ".gif":
		return "image/gif", nil
	default:
		return "application/octet-stream", e.ErrUnsupportedMediaType
	}
}

// DetectMIME определяет тип содержимого: по расширению, а если оно неизвестно, по первым байтам.
func DetectMIME(name string, data []byte) string {
	if mime, err := MIMEFromPath(name); err == nil {
		return mime
	}

	return http.DetectContentType(data)
}
