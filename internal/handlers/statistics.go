package handlers

import "github.com/padmasuda/expensetracker/internal/models"

// Summary aggregates a list of expenses for the index view.
type Summary struct {
	Count     int
	Completed int
	Total     float64
}

// Summarize totals the amounts and counts the completed records.
func Summarize(expenses []models.Expense) Summary {
	s := Summary{Count: len(expenses)}
	for _, e := range expenses {
		s.Total += e.Amount
		if e.IsCompleted() {
			s.Completed++
		}
	}
	return s
}

// IndexViewModel is the data passed to the index view template.
type IndexViewModel struct {
	Username string
	Expenses []models.Expense
	Summary  Summary
}
