package core

import "strings"

// Category is one of the predefined transaction categories offered to users.
// Transactions may still carry free-form category names.
type Category struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Icon string          `json:"icon"`
	Type TransactionType `json:"type"`
}

var expenseCategories = []Category{
	{ID: "food", Name: "Food", Icon: "🍽️", Type: Expense},
	{ID: "transport", Name: "Transport", Icon: "🚗", Type: Expense},
	{ID: "shopping", Name: "Shopping", Icon: "🛍️", Type: Expense},
	{ID: "entertainment", Name: "Entertainment", Icon: "🎬", Type: Expense},
	{ID: "health", Name: "Health", Icon: "🏥", Type: Expense},
	{ID: "education", Name: "Education", Icon: "📚", Type: Expense},
	{ID: "bills", Name: "Bills", Icon: "💡", Type: Expense},
	{ID: "housing", Name: "Housing", Icon: "🏠", Type: Expense},
	{ID: "personal", Name: "Personal", Icon: "👤", Type: Expense},
	{ID: "other", Name: "Other", Icon: "📦", Type: Expense},
}

var incomeCategories = []Category{
	{ID: "salary", Name: "Salary", Icon: "💰", Type: Income},
	{ID: "freelance", Name: "Freelance", Icon: "💼", Type: Income},
	{ID: "investment", Name: "Investments", Icon: "📈", Type: Income},
	{ID: "gift", Name: "Gift", Icon: "🎁", Type: Income},
	{ID: "refund", Name: "Refund", Icon: "↩️", Type: Income},
	{ID: "other", Name: "Other", Icon: "📦", Type: Income},
}

// Categories returns the predefined categories of type t, or all of them,
// expenses first, when t is empty.
func Categories(t TransactionType) []Category {
	var src []Category
	switch t {
	case Income:
		src = incomeCategories
	case Expense:
		src = expenseCategories
	default:
		src = append(append(src, expenseCategories...), incomeCategories...)
	}
	return append([]Category(nil), src...)
}

// CategoryByID finds a predefined category. "other" exists for both types;
// the expense one is returned.
func CategoryByID(id string) (Category, bool) {
	for _, c := range Categories("") {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryByName matches display names case-insensitively.
func CategoryByName(name string) (Category, bool) {
	for _, c := range Categories("") {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Category{}, false
}
