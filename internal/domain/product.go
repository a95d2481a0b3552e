package domain

// Product описывает товар каталога. После загрузки каталога не изменяется.
type Product struct {
	Name        string
	Description string
	ImageURL    string // может быть удалённым URI
	Category    string // свободная текстовая метка
	ImagePath   string // необязательная ссылка на локальное изображение (файл или объект MinIO)
}

func NewProduct(name, description, imageURL, category, imagePath string) *Product {
	return &Product{
		Name:        name,
		Description: description,
		ImageURL:    imageURL,
		Category:    category,
		ImagePath:   imagePath,
	}
}
