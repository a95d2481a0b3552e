package domain

import "strings"

// AllCategories — значение фильтра, отключающее фильтрацию по категории
const AllCategories = "All"

// Categories возвращает набор категорий, которые предлагаются пользователю для выбора.
func Categories() []string {
	return []string{AllCategories, "Shoes", "Bags", "Clothing", "Electronics", "Fitness", "Home", "Accessories"}
}

// IsAllCategories сообщает, отключает ли фильтр фильтрацию по категории.
// Пустой фильтр эквивалентен "All".
func IsAllCategories(filter string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || strings.EqualFold(filter, AllCategories)
}
