package agent

// BudgetTracker accumulates LLM cost against a ceiling.
type BudgetTracker struct {
	cost      float64
	budgetUSD float64
}

func NewBudgetTracker(budgetUSD float64) *BudgetTracker {
	return &BudgetTracker{budgetUSD: budgetUSD}
}

// AddCost records the cost of one LLM call. Negative amounts are ignored.
func (b *BudgetTracker) AddCost(amount float64) {
	if amount > 0 {
		b.cost += amount
	}
}

// IsExceeded reports whether the cost is strictly above the budget.
func (b *BudgetTracker) IsExceeded() bool {
	return b.cost > b.budgetUSD
}

func (b *BudgetTracker) Cost() float64 { return b.cost }

func (b *BudgetTracker) Budget() float64 { return b.budgetUSD }
