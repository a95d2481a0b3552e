package domain

// Image — изображение в памяти: загруженное пользователем, скачанное по URL или прочитанное из хранилища
type Image struct {
	Data     []byte // байты изображения
	MimeType string // Content-Type (image/jpeg)
	Size     int64  // фактический размер в байтах
	Name     string // имя файла или URL, для логов
}

func NewImage(data []byte, mimeType string, name string) *Image {
	return &Image{
		Data:     data,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Name:     name,
	}
}
