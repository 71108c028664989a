package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"expenseledger/models"

	"github.com/google/uuid"
)

// MemoryStore 内存实现，同时实现 ExpenseStore 与 SummaryStore（driver=memory 及测试使用）
type MemoryStore struct {
	mu           sync.RWMutex
	expenses     map[string]*models.Expense
	transactions map[string]*models.ExpenseTransaction
	byExpense    map[string][]string
	categories   map[uint]bool
	summaries    map[models.SummaryKey]*models.CategorySummary
	now          func() time.Time
}

// NewMemoryStore 创建内存存储，categoryIDs 为已存在的类别
func NewMemoryStore(categoryIDs ...uint) *MemoryStore {
	s := &MemoryStore{
		expenses:     make(map[string]*models.Expense),
		transactions: make(map[string]*models.ExpenseTransaction),
		byExpense:    make(map[string][]string),
		categories:   make(map[uint]bool),
		summaries:    make(map[models.SummaryKey]*models.CategorySummary),
		now:          time.Now,
	}
	for _, id := range categoryIDs {
		s.categories[id] = true
	}
	return s
}

// AddCategory 登记类别
func (s *MemoryStore) AddCategory(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[id] = true
}

func cloneExpense(e *models.Expense) *models.Expense {
	c := *e
	if e.LastPaymentDate != nil {
		t := *e.LastPaymentDate
		c.LastPaymentDate = &t
	}
	return &c
}

func cloneTransaction(t *models.ExpenseTransaction) *models.ExpenseTransaction {
	c := *t
	if t.AppliedAt != nil {
		at := *t.AppliedAt
		c.AppliedAt = &at
	}
	return &c
}

func cloneSummary(s *models.CategorySummary) *models.CategorySummary {
	c := *s
	if s.PercentageChange != nil {
		pc := *s.PercentageChange
		c.PercentageChange = &pc
	}
	return &c
}

func (s *MemoryStore) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExpense(e), nil
}

func (s *MemoryStore) UpdatePaymentFields(ctx context.Context, u PaymentUpdate) (*models.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[u.ExpenseID]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Version != u.ExpectedVersion {
		return nil, ErrConflict
	}
	if _, dup := s.transactions[u.Transaction.ID]; dup {
		return nil, ErrDuplicateTransaction
	}

	now := s.now()
	last := u.LastPaymentDate
	e.PaidAmount = u.PaidAmount
	e.Status = u.Status
	e.LastPaymentDate = &last
	e.Version++
	e.UpdatedAt = now

	tx := cloneTransaction(&u.Transaction)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	s.transactions[tx.ID] = tx
	s.byExpense[e.ID] = append(s.byExpense[e.ID], tx.ID)

	return cloneExpense(e), nil
}

func (s *MemoryStore) FindTransaction(ctx context.Context, id string) (*models.ExpenseTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, expenseID string) ([]models.ExpenseTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byExpense[expenseID]
	list := make([]models.ExpenseTransaction, 0, len(ids))
	for _, id := range ids {
		list = append(list, *cloneTransaction(s.transactions[id]))
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.Before(list[j].Date)
	})
	return list, nil
}

func (s *MemoryStore) CreateExpense(ctx context.Context, e *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[e.ID]; ok {
		return ErrDuplicateExpense
	}
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.expenses[e.ID] = cloneExpense(e)
	return nil
}

func (s *MemoryStore) CorrectExpense(ctx context.Context, expectedVersion int64, e *models.Expense) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[e.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return nil, ErrConflict
	}
	cur.CategoryID = e.CategoryID
	cur.Amount = e.Amount
	cur.Budget = e.Budget
	cur.Status = e.Status
	cur.DueDate = e.DueDate
	cur.Period = e.Period
	cur.Version++
	cur.UpdatedAt = s.now()
	return cloneExpense(cur), nil
}

func (s *MemoryStore) DeleteExpense(ctx context.Context, id string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[id]
	if !ok {
		return ErrNotFound
	}
	if len(s.byExpense[id]) > 0 {
		return ErrHasTransactions
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	delete(s.expenses, id)
	return nil
}

func (s *MemoryStore) ListExpenses(ctx context.Context, categoryID uint, period models.Period) ([]models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := period.String()
	var list []models.Expense
	for _, e := range s.expenses {
		if e.CategoryID == categoryID && e.Period == key {
			list = append(list, *cloneExpense(e))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) ListExpenseKeys(ctx context.Context) ([]models.SummaryKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[models.SummaryKey]struct{})
	for _, e := range s.expenses {
		p, err := models.ParsePeriod(e.Period)
		if err != nil {
			return nil, err
		}
		seen[models.SummaryKey{CategoryID: e.CategoryID, Period: p}] = struct{}{}
	}
	keys := make([]models.SummaryKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	models.SortSummaryKeys(keys)
	return keys, nil
}

func (s *MemoryStore) HasExpensesBefore(ctx context.Context, categoryID uint, period models.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := period.String()
	for _, e := range s.expenses {
		if e.CategoryID == categoryID && e.Period < key {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CategoryExists(ctx context.Context, categoryID uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories[categoryID], nil
}

func (s *MemoryStore) GetSummary(ctx context.Context, categoryID uint, period models.Period) (*models.CategorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[models.SummaryKey{CategoryID: categoryID, Period: period}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSummary(sum), nil
}

func (s *MemoryStore) PutSummary(ctx context.Context, sum *models.CategorySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneSummary(sum)
	c.PercentageChange = nil
	if c.ExpenseByCategoryID == "" {
		c.ExpenseByCategoryID = uuid.NewString()
	}
	c.UpdatedAt = s.now()
	s.summaries[c.Key()] = c
	return nil
}

func (s *MemoryStore) AddDelta(ctx context.Context, categoryID uint, period models.Period, delta models.SummaryDelta) (*models.CategorySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.SummaryKey{CategoryID: categoryID, Period: period}
	sum, ok := s.summaries[key]
	if !ok {
		sum = models.NewCategorySummary(uuid.NewString(), categoryID, period)
		sum.CreatedAt = s.now()
		s.summaries[key] = sum
	}
	sum.Add(delta)
	sum.UpdatedAt = s.now()
	return cloneSummary(sum), nil
}

func (s *MemoryStore) HasSummaryBefore(ctx context.Context, categoryID uint, period models.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, sum := range s.summaries {
		if k.CategoryID == categoryID && k.Period.Before(period) && sum.Count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListSummaryKeys(ctx context.Context) ([]models.SummaryKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]models.SummaryKey, 0, len(s.summaries))
	for k := range s.summaries {
		keys = append(keys, k)
	}
	models.SortSummaryKeys(keys)
	return keys, nil
}
