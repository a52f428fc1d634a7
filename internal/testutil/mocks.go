package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockFundRepository is a map-backed implementation of domain.FundRepository
type MockFundRepository struct {
	Funds map[uuid.UUID]*domain.Fund
	// Roles maps fundID -> userID -> assignment
	Roles map[uuid.UUID]map[uuid.UUID]*domain.FundRoleAssignment
	// Plans maps fundID -> userID -> plan
	Plans map[uuid.UUID]map[uuid.UUID]*domain.MemberContributionPlan
}

// NewMockFundRepository creates a new MockFundRepository
func NewMockFundRepository() *MockFundRepository {
	return &MockFundRepository{
		Funds: make(map[uuid.UUID]*domain.Fund),
		Roles: make(map[uuid.UUID]map[uuid.UUID]*domain.FundRoleAssignment),
		Plans: make(map[uuid.UUID]map[uuid.UUID]*domain.MemberContributionPlan),
	}
}

// Create stores a new fund at version 1
func (m *MockFundRepository) Create(ctx context.Context, fund *domain.Fund) (*domain.Fund, error) {
	stored := *fund
	stored.Version = 1
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	m.Funds[stored.ID] = &stored
	out := stored
	return &out, nil
}

// GetByID retrieves a fund by ID
func (m *MockFundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	fund, ok := m.Funds[id]
	if !ok {
		return nil, domain.ErrFundNotFound
	}
	out := *fund
	return &out, nil
}

// Update persists mutable columns with an optimistic version check
func (m *MockFundRepository) Update(ctx context.Context, fund *domain.Fund) (*domain.Fund, error) {
	stored, ok := m.Funds[fund.ID]
	if !ok {
		return nil, domain.ErrFundNotFound
	}
	if stored.Version != fund.Version {
		return nil, domain.ErrVersionMismatch
	}
	updated := *fund
	updated.Version = fund.Version + 1
	updated.UpdatedAt = time.Now().UTC()
	m.Funds[fund.ID] = &updated
	out := updated
	return &out, nil
}

// AssignRole stores a role assignment, rejecting duplicates
func (m *MockFundRepository) AssignRole(ctx context.Context, assignment *domain.FundRoleAssignment) (*domain.FundRoleAssignment, error) {
	if m.Roles[assignment.FundID] == nil {
		m.Roles[assignment.FundID] = make(map[uuid.UUID]*domain.FundRoleAssignment)
	}
	if _, exists := m.Roles[assignment.FundID][assignment.UserID]; exists {
		return nil, domain.ErrDuplicateRole
	}
	stored := *assignment
	m.Roles[assignment.FundID][assignment.UserID] = &stored
	out := stored
	return &out, nil
}

// UpdateRole changes a member's role
func (m *MockFundRepository) UpdateRole(ctx context.Context, fundID, userID uuid.UUID, role domain.Role) (*domain.FundRoleAssignment, error) {
	assignment, ok := m.Roles[fundID][userID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	assignment.Role = role
	out := *assignment
	return &out, nil
}

// RemoveRole deletes a member's role assignment
func (m *MockFundRepository) RemoveRole(ctx context.Context, fundID, userID uuid.UUID) error {
	if _, ok := m.Roles[fundID][userID]; !ok {
		return domain.ErrMemberNotFound
	}
	delete(m.Roles[fundID], userID)
	return nil
}

// GetRole retrieves a member's role assignment
func (m *MockFundRepository) GetRole(ctx context.Context, fundID, userID uuid.UUID) (*domain.FundRoleAssignment, error) {
	assignment, ok := m.Roles[fundID][userID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	out := *assignment
	return &out, nil
}

// ListRoles returns all role assignments for a fund
func (m *MockFundRepository) ListRoles(ctx context.Context, fundID uuid.UUID) ([]*domain.FundRoleAssignment, error) {
	var out []*domain.FundRoleAssignment
	for _, assignment := range m.Roles[fundID] {
		a := *assignment
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

// CountAdmins counts admins in a fund
func (m *MockFundRepository) CountAdmins(ctx context.Context, fundID uuid.UUID) (int, error) {
	count := 0
	for _, assignment := range m.Roles[fundID] {
		if assignment.Role == domain.RoleAdmin {
			count++
		}
	}
	return count, nil
}

// CreateMemberPlan stores a plan, rejecting duplicates
func (m *MockFundRepository) CreateMemberPlan(ctx context.Context, plan *domain.MemberContributionPlan) (*domain.MemberContributionPlan, error) {
	if m.Plans[plan.FundID] == nil {
		m.Plans[plan.FundID] = make(map[uuid.UUID]*domain.MemberContributionPlan)
	}
	if _, exists := m.Plans[plan.FundID][plan.UserID]; exists {
		return nil, domain.ErrDuplicateMemberPlan
	}
	stored := *plan
	m.Plans[plan.FundID][plan.UserID] = &stored
	out := stored
	return &out, nil
}

// GetMemberPlan retrieves a member's plan
func (m *MockFundRepository) GetMemberPlan(ctx context.Context, fundID, userID uuid.UUID) (*domain.MemberContributionPlan, error) {
	plan, ok := m.Plans[fundID][userID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	out := *plan
	return &out, nil
}

// ListMemberPlans returns plans for a fund, optionally active only
func (m *MockFundRepository) ListMemberPlans(ctx context.Context, fundID uuid.UUID, activeOnly bool) ([]*domain.MemberContributionPlan, error) {
	var out []*domain.MemberContributionPlan
	for _, plan := range m.Plans[fundID] {
		if activeOnly && !plan.IsActive {
			continue
		}
		p := *plan
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

// DeactivateMemberPlan flips a plan inactive
func (m *MockFundRepository) DeactivateMemberPlan(ctx context.Context, fundID, userID uuid.UUID) error {
	plan, ok := m.Plans[fundID][userID]
	if !ok {
		return domain.ErrMemberNotFound
	}
	plan.IsActive = false
	return nil
}

// ListFundIDsByStates returns the IDs of funds in any of the given states
func (m *MockFundRepository) ListFundIDsByStates(ctx context.Context, states ...domain.FundState) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, fund := range m.Funds {
		for _, state := range states {
			if fund.State == state {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// MockTransactionRepository is a slice-backed implementation of
// domain.TransactionRepository
type MockTransactionRepository struct {
	Txns []*domain.Transaction
	keys map[string]bool
}

// NewMockTransactionRepository creates a new MockTransactionRepository
func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{keys: make(map[string]bool)}
}

func txnKey(fundID uuid.UUID, idempotencyKey string) string {
	return fundID.String() + "|" + idempotencyKey
}

// Append stores a ledger transaction, rejecting duplicate idempotency keys
func (m *MockTransactionRepository) Append(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	key := txnKey(txn.FundID, txn.IdempotencyKey)
	if m.keys[key] {
		return nil, domain.ErrDuplicateTransaction
	}
	m.keys[key] = true
	stored := *txn
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.Txns = append(m.Txns, &stored)
	out := stored
	return &out, nil
}

// ListByFund returns transactions matching the filter
func (m *MockTransactionRepository) ListByFund(ctx context.Context, fundID uuid.UUID, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, txn := range m.Txns {
		if txn.FundID != fundID {
			continue
		}
		if filter.Type != nil && txn.Type != *filter.Type {
			continue
		}
		if filter.UserID != nil && (txn.UserID == nil || *txn.UserID != *filter.UserID) {
			continue
		}
		if filter.From != nil && txn.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && txn.CreatedAt.After(*filter.To) {
			continue
		}
		t := *txn
		out = append(out, &t)
	}
	return out, nil
}

// SumByType sums one transaction type for a fund
func (m *MockTransactionRepository) SumByType(ctx context.Context, fundID uuid.UUID, txnType domain.TransactionType) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, txn := range m.Txns {
		if txn.FundID == fundID && txn.Type == txnType {
			sum = sum.Add(txn.Amount)
		}
	}
	return sum, nil
}

// SumByTypeAndUser sums one transaction type per user
func (m *MockTransactionRepository) SumByTypeAndUser(ctx context.Context, fundID uuid.UUID, txnType domain.TransactionType) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal)
	for _, txn := range m.Txns {
		if txn.FundID != fundID || txn.Type != txnType || txn.UserID == nil {
			continue
		}
		sums[*txn.UserID] = sums[*txn.UserID].Add(txn.Amount)
	}
	return sums, nil
}

// Balance recomputes the fund pool from the ledger
func (m *MockTransactionRepository) Balance(ctx context.Context, fundID uuid.UUID) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, txn := range m.Txns {
		if txn.FundID != fundID {
			continue
		}
		if txn.Type == domain.TxnDisbursement {
			balance = balance.Sub(txn.Amount)
		} else {
			balance = balance.Add(txn.Amount)
		}
	}
	return balance, nil
}

// MockIdempotencyRepository is a map-backed implementation of
// domain.IdempotencyRepository. The atomic payment mocks insert through it.
type MockIdempotencyRepository struct {
	Records map[string]*domain.IdempotencyRecord
}

// NewMockIdempotencyRepository creates a new MockIdempotencyRepository
func NewMockIdempotencyRepository() *MockIdempotencyRepository {
	return &MockIdempotencyRepository{Records: make(map[string]*domain.IdempotencyRecord)}
}

func idemKey(fundID uuid.UUID, endpoint, key string) string {
	return fundID.String() + "|" + endpoint + "|" + key
}

// Get returns (nil, nil) when no record exists for the key
func (m *MockIdempotencyRepository) Get(ctx context.Context, fundID uuid.UUID, endpoint, key string) (*domain.IdempotencyRecord, error) {
	record, ok := m.Records[idemKey(fundID, endpoint, key)]
	if !ok {
		return nil, nil
	}
	out := *record
	return &out, nil
}

// Insert stores a record, rejecting duplicates
func (m *MockIdempotencyRepository) Insert(record *domain.IdempotencyRecord) error {
	key := idemKey(record.FundID, record.Endpoint, record.IdempotencyKey)
	if _, exists := m.Records[key]; exists {
		return domain.ErrConflict
	}
	stored := *record
	m.Records[key] = &stored
	return nil
}

// MockContributionRepository is a map-backed implementation of
// domain.ContributionRepository. RecordPayment writes through the wired
// transaction and idempotency mocks the way the real atomic method does.
type MockContributionRepository struct {
	Dues         map[uuid.UUID]*domain.ContributionDue
	Transactions *MockTransactionRepository
	Idempotency  *MockIdempotencyRepository
}

// NewMockContributionRepository creates a MockContributionRepository wired to
// the given ledger and idempotency mocks
func NewMockContributionRepository(txns *MockTransactionRepository, idem *MockIdempotencyRepository) *MockContributionRepository {
	return &MockContributionRepository{
		Dues:         make(map[uuid.UUID]*domain.ContributionDue),
		Transactions: txns,
		Idempotency:  idem,
	}
}

// CreateDue inserts the due unless one exists for (fund, user, month)
func (m *MockContributionRepository) CreateDue(ctx context.Context, due *domain.ContributionDue) (bool, error) {
	for _, existing := range m.Dues {
		if existing.FundID == due.FundID && existing.UserID == due.UserID && existing.MonthYear == due.MonthYear {
			return false, nil
		}
	}
	stored := *due
	stored.Version = 1
	m.Dues[stored.ID] = &stored
	return true, nil
}

// GetDueByID retrieves a due by ID
func (m *MockContributionRepository) GetDueByID(ctx context.Context, id uuid.UUID) (*domain.ContributionDue, error) {
	due, ok := m.Dues[id]
	if !ok {
		return nil, domain.ErrDueNotFound
	}
	out := *due
	return &out, nil
}

// ListByFundMonth returns a fund's dues for one month
func (m *MockContributionRepository) ListByFundMonth(ctx context.Context, fundID uuid.UUID, monthYear util.MonthYear) ([]*domain.ContributionDue, error) {
	var out []*domain.ContributionDue
	for _, due := range m.Dues {
		if due.FundID == fundID && due.MonthYear == monthYear {
			d := *due
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

// ListByUser returns one member's dues
func (m *MockContributionRepository) ListByUser(ctx context.Context, fundID, userID uuid.UUID) ([]*domain.ContributionDue, error) {
	var out []*domain.ContributionDue
	for _, due := range m.Dues {
		if due.FundID == fundID && due.UserID == userID {
			d := *due
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthYear < out[j].MonthYear })
	return out, nil
}

// ListOverdueCandidates returns pending/partial dues past their due date
func (m *MockContributionRepository) ListOverdueCandidates(ctx context.Context, fundID uuid.UUID, asOf time.Time) ([]*domain.ContributionDue, error) {
	var out []*domain.ContributionDue
	for _, due := range m.Dues {
		if due.FundID != fundID {
			continue
		}
		if due.Status != domain.DuePending && due.Status != domain.DuePartial {
			continue
		}
		if !due.DueDate.Before(asOf) {
			continue
		}
		d := *due
		out = append(out, &d)
	}
	return out, nil
}

// UpdateStatus persists a status flip with a version check
func (m *MockContributionRepository) UpdateStatus(ctx context.Context, due *domain.ContributionDue) (*domain.ContributionDue, error) {
	stored, ok := m.Dues[due.ID]
	if !ok {
		return nil, domain.ErrDueNotFound
	}
	if stored.Version != due.Version {
		return nil, domain.ErrVersionMismatch
	}
	updated := *due
	updated.Version = due.Version + 1
	m.Dues[due.ID] = &updated
	out := updated
	return &out, nil
}

// RecordPayment persists the due, ledger row, and idempotency record together
func (m *MockContributionRepository) RecordPayment(ctx context.Context, due *domain.ContributionDue, txn *domain.Transaction, record *domain.IdempotencyRecord) (*domain.ContributionDue, error) {
	stored, ok := m.Dues[due.ID]
	if !ok {
		return nil, domain.ErrDueNotFound
	}
	if stored.Version != due.Version {
		return nil, domain.ErrVersionMismatch
	}
	if _, err := m.Transactions.Append(ctx, txn); err != nil {
		return nil, err
	}
	if err := m.Idempotency.Insert(record); err != nil {
		return nil, err
	}
	updated := *due
	updated.Version = due.Version + 1
	m.Dues[due.ID] = &updated
	out := updated
	return &out, nil
}

// SumUnpaidByUser returns each member's positive remaining due balance
func (m *MockContributionRepository) SumUnpaidByUser(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal)
	for _, due := range m.Dues {
		if due.FundID != fundID {
			continue
		}
		remaining := due.RemainingBalance()
		if remaining.IsPositive() {
			sums[due.UserID] = sums[due.UserID].Add(remaining)
		}
	}
	return sums, nil
}

// MockLoanRepository is a map-backed implementation of domain.LoanRepository
type MockLoanRepository struct {
	Loans        map[uuid.UUID]*domain.Loan
	Transactions *MockTransactionRepository
}

// NewMockLoanRepository creates a MockLoanRepository wired to the ledger mock
func NewMockLoanRepository(txns *MockTransactionRepository) *MockLoanRepository {
	return &MockLoanRepository{
		Loans:        make(map[uuid.UUID]*domain.Loan),
		Transactions: txns,
	}
}

// Create stores a new loan at version 1
func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	stored := *loan
	stored.Version = 1
	m.Loans[stored.ID] = &stored
	out := stored
	return &out, nil
}

// GetByID retrieves a loan by ID
func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	loan, ok := m.Loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	out := *loan
	return &out, nil
}

// Update persists mutable columns with an optimistic version check
func (m *MockLoanRepository) Update(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	stored, ok := m.Loans[loan.ID]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	if stored.Version != loan.Version {
		return nil, domain.ErrVersionMismatch
	}
	updated := *loan
	updated.Version = loan.Version + 1
	m.Loans[loan.ID] = &updated
	out := updated
	return &out, nil
}

// Approve persists the approved loan and the disbursement together
func (m *MockLoanRepository) Approve(ctx context.Context, loan *domain.Loan, disbursement *domain.Transaction) (*domain.Loan, error) {
	updated, err := m.Update(ctx, loan)
	if err != nil {
		return nil, err
	}
	if _, err := m.Transactions.Append(ctx, disbursement); err != nil {
		return nil, err
	}
	return updated, nil
}

// ListByFund returns all loans in a fund
func (m *MockLoanRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Loan, error) {
	var out []*domain.Loan
	for _, loan := range m.Loans {
		if loan.FundID == fundID {
			l := *loan
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// CountNonTerminalByBorrower counts a borrower's open loans
func (m *MockLoanRepository) CountNonTerminalByBorrower(ctx context.Context, fundID, borrowerID uuid.UUID) (int, error) {
	count := 0
	for _, loan := range m.Loans {
		if loan.FundID == fundID && loan.BorrowerID == borrowerID && !loan.IsTerminal() {
			count++
		}
	}
	return count, nil
}

// SumOutstandingByBorrower sums outstanding principal per borrower
func (m *MockLoanRepository) SumOutstandingByBorrower(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal)
	for _, loan := range m.Loans {
		if loan.FundID != fundID || loan.IsTerminal() {
			continue
		}
		if loan.OutstandingPrincipal.IsPositive() {
			sums[loan.BorrowerID] = sums[loan.BorrowerID].Add(loan.OutstandingPrincipal)
		}
	}
	return sums, nil
}

// ListActiveByFund returns a fund's active loans
func (m *MockLoanRepository) ListActiveByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Loan, error) {
	var out []*domain.Loan
	for _, loan := range m.Loans {
		if loan.FundID == fundID && loan.Status == domain.LoanActive {
			l := *loan
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// MockFundProjectionRepository is a map-backed implementation of
// domain.FundProjectionRepository
type MockFundProjectionRepository struct {
	Projections map[uuid.UUID]*domain.FundProjection
}

// NewMockFundProjectionRepository creates a new MockFundProjectionRepository
func NewMockFundProjectionRepository() *MockFundProjectionRepository {
	return &MockFundProjectionRepository{Projections: make(map[uuid.UUID]*domain.FundProjection)}
}

// Upsert stores a projection
func (m *MockFundProjectionRepository) Upsert(ctx context.Context, projection *domain.FundProjection) error {
	stored := *projection
	m.Projections[projection.FundID] = &stored
	return nil
}

// GetByFundID retrieves a projection by fund
func (m *MockFundProjectionRepository) GetByFundID(ctx context.Context, fundID uuid.UUID) (*domain.FundProjection, error) {
	projection, ok := m.Projections[fundID]
	if !ok {
		return nil, domain.ErrFundNotFound
	}
	out := *projection
	return &out, nil
}

// MockRepaymentRepository is a map-backed implementation of
// domain.RepaymentRepository
type MockRepaymentRepository struct {
	Entries      map[uuid.UUID]*domain.RepaymentEntry
	Loans        *MockLoanRepository
	Transactions *MockTransactionRepository
	Idempotency  *MockIdempotencyRepository
}

// NewMockRepaymentRepository creates a MockRepaymentRepository wired to the
// loan, ledger, and idempotency mocks
func NewMockRepaymentRepository(loans *MockLoanRepository, txns *MockTransactionRepository, idem *MockIdempotencyRepository) *MockRepaymentRepository {
	return &MockRepaymentRepository{
		Entries:      make(map[uuid.UUID]*domain.RepaymentEntry),
		Loans:        loans,
		Transactions: txns,
		Idempotency:  idem,
	}
}

// CreateEntry inserts the entry unless one exists for (loan, month)
func (m *MockRepaymentRepository) CreateEntry(ctx context.Context, entry *domain.RepaymentEntry) (bool, error) {
	for _, existing := range m.Entries {
		if existing.LoanID == entry.LoanID && existing.MonthYear == entry.MonthYear {
			return false, nil
		}
	}
	stored := *entry
	stored.Version = 1
	m.Entries[stored.ID] = &stored
	return true, nil
}

// GetEntryByID retrieves an entry by ID
func (m *MockRepaymentRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*domain.RepaymentEntry, error) {
	entry, ok := m.Entries[id]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	out := *entry
	return &out, nil
}

// GetByLoanMonth retrieves an entry by (loan, month)
func (m *MockRepaymentRepository) GetByLoanMonth(ctx context.Context, loanID uuid.UUID, monthYear util.MonthYear) (*domain.RepaymentEntry, error) {
	for _, entry := range m.Entries {
		if entry.LoanID == loanID && entry.MonthYear == monthYear {
			out := *entry
			return &out, nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

// ListByLoan returns a loan's entries in month order
func (m *MockRepaymentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentEntry, error) {
	var out []*domain.RepaymentEntry
	for _, entry := range m.Entries {
		if entry.LoanID == loanID {
			e := *entry
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthYear < out[j].MonthYear })
	return out, nil
}

// ListOverdue returns overdue, not fully paid entries for the fund
func (m *MockRepaymentRepository) ListOverdue(ctx context.Context, fundID uuid.UUID) ([]*domain.RepaymentEntry, error) {
	var out []*domain.RepaymentEntry
	for _, entry := range m.Entries {
		if entry.FundID == fundID && entry.Status == domain.RepaymentOverdue && entry.AmountPaid.LessThan(entry.TotalDue) {
			e := *entry
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthYear < out[j].MonthYear })
	return out, nil
}

// ListOverdueCandidates returns pending/partial entries past their due date
func (m *MockRepaymentRepository) ListOverdueCandidates(ctx context.Context, fundID uuid.UUID, asOf time.Time) ([]*domain.RepaymentEntry, error) {
	var out []*domain.RepaymentEntry
	for _, entry := range m.Entries {
		if entry.FundID != fundID {
			continue
		}
		if entry.Status != domain.RepaymentPending && entry.Status != domain.RepaymentPartial {
			continue
		}
		if !entry.DueDate.Before(asOf) {
			continue
		}
		e := *entry
		out = append(out, &e)
	}
	return out, nil
}

// UpdateEntry persists mutable columns with an optimistic version check
func (m *MockRepaymentRepository) UpdateEntry(ctx context.Context, entry *domain.RepaymentEntry) (*domain.RepaymentEntry, error) {
	stored, ok := m.Entries[entry.ID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	if stored.Version != entry.Version {
		return nil, domain.ErrVersionMismatch
	}
	updated := *entry
	updated.Version = entry.Version + 1
	m.Entries[entry.ID] = &updated
	out := updated
	return &out, nil
}

// RecordPayment persists the entry, loan, ledger rows, and idempotency
// record together
func (m *MockRepaymentRepository) RecordPayment(ctx context.Context, entry *domain.RepaymentEntry, loan *domain.Loan, txns []*domain.Transaction, record *domain.IdempotencyRecord) (*domain.RepaymentEntry, error) {
	stored, ok := m.Entries[entry.ID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	if stored.Version != entry.Version {
		return nil, domain.ErrVersionMismatch
	}
	if _, err := m.Loans.Update(ctx, loan); err != nil {
		return nil, err
	}
	for _, txn := range txns {
		if _, err := m.Transactions.Append(ctx, txn); err != nil {
			return nil, err
		}
	}
	if err := m.Idempotency.Insert(record); err != nil {
		return nil, err
	}
	updated := *entry
	updated.Version = entry.Version + 1
	m.Entries[entry.ID] = &updated
	out := updated
	return &out, nil
}

// HasPenaltyFrom reports whether a penalty from the source entry was already
// carried forward
func (m *MockRepaymentRepository) HasPenaltyFrom(ctx context.Context, sourceEntryID uuid.UUID) (bool, error) {
	for _, entry := range m.Entries {
		if entry.PenaltySourceEntryID != nil && *entry.PenaltySourceEntryID == sourceEntryID {
			return true, nil
		}
	}
	return false, nil
}

// SumUnpaidInterestByUser returns each borrower's uncovered interest
func (m *MockRepaymentRepository) SumUnpaidInterestByUser(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal)
	for _, entry := range m.Entries {
		if entry.FundID != fundID || entry.AmountPaid.GreaterThanOrEqual(entry.TotalDue) {
			continue
		}
		loan, ok := m.Loans.Loans[entry.LoanID]
		if !ok {
			continue
		}
		outstanding := entry.InterestOutstanding()
		if outstanding.IsPositive() {
			sums[loan.BorrowerID] = sums[loan.BorrowerID].Add(outstanding)
		}
	}
	return sums, nil
}

// MockVotingRepository is a map-backed implementation of
// domain.VotingRepository
type MockVotingRepository struct {
	Sessions map[uuid.UUID]*domain.VotingSession
	Votes    map[uuid.UUID][]*domain.Vote
}

// NewMockVotingRepository creates a new MockVotingRepository
func NewMockVotingRepository() *MockVotingRepository {
	return &MockVotingRepository{
		Sessions: make(map[uuid.UUID]*domain.VotingSession),
		Votes:    make(map[uuid.UUID][]*domain.Vote),
	}
}

// CreateSession inserts the session, rejecting a second session per loan
func (m *MockVotingRepository) CreateSession(ctx context.Context, session *domain.VotingSession) (*domain.VotingSession, error) {
	for _, existing := range m.Sessions {
		if existing.LoanID == session.LoanID {
			return nil, domain.ErrAlreadyExists
		}
	}
	stored := *session
	m.Sessions[stored.ID] = &stored
	out := stored
	return &out, nil
}

// GetSessionByID retrieves a session by ID
func (m *MockVotingRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.VotingSession, error) {
	session, ok := m.Sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *session
	return &out, nil
}

// GetSessionByLoanID retrieves a session by loan
func (m *MockVotingRepository) GetSessionByLoanID(ctx context.Context, loanID uuid.UUID) (*domain.VotingSession, error) {
	for _, session := range m.Sessions {
		if session.LoanID == loanID {
			out := *session
			return &out, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

// CastVote inserts the vote, rejecting a duplicate (session, voter)
func (m *MockVotingRepository) CastVote(ctx context.Context, vote *domain.Vote) (*domain.Vote, error) {
	for _, existing := range m.Votes[vote.SessionID] {
		if existing.VoterID == vote.VoterID {
			return nil, domain.ErrAlreadyVoted
		}
	}
	stored := *vote
	m.Votes[vote.SessionID] = append(m.Votes[vote.SessionID], &stored)
	out := stored
	return &out, nil
}

// CountVotes tallies approvals and rejections
func (m *MockVotingRepository) CountVotes(ctx context.Context, sessionID uuid.UUID) (int, int, error) {
	approve, reject := 0, 0
	for _, vote := range m.Votes[sessionID] {
		if vote.Decision == domain.VoteApprove {
			approve++
		} else {
			reject++
		}
	}
	return approve, reject, nil
}

// ListVotes returns a session's votes in cast order
func (m *MockVotingRepository) ListVotes(ctx context.Context, sessionID uuid.UUID) ([]*domain.Vote, error) {
	var out []*domain.Vote
	for _, vote := range m.Votes[sessionID] {
		v := *vote
		out = append(out, &v)
	}
	return out, nil
}

// FinaliseSession persists a finalised session; a second finalisation fails
func (m *MockVotingRepository) FinaliseSession(ctx context.Context, session *domain.VotingSession) (*domain.VotingSession, error) {
	stored, ok := m.Sessions[session.ID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if stored.Result != domain.VotingPending {
		return nil, domain.ErrAlreadyFinalised
	}
	updated := *session
	m.Sessions[session.ID] = &updated
	out := updated
	return &out, nil
}

// MockDissolutionRepository is a map-backed implementation of
// domain.DissolutionRepository
type MockDissolutionRepository struct {
	Settlements map[uuid.UUID]*domain.DissolutionSettlement
	Funds       *MockFundRepository
}

// NewMockDissolutionRepository creates a MockDissolutionRepository wired to
// the fund mock
func NewMockDissolutionRepository(funds *MockFundRepository) *MockDissolutionRepository {
	return &MockDissolutionRepository{
		Settlements: make(map[uuid.UUID]*domain.DissolutionSettlement),
		Funds:       funds,
	}
}

// Upsert replaces the fund's settlement unless it is already confirmed
func (m *MockDissolutionRepository) Upsert(ctx context.Context, settlement *domain.DissolutionSettlement) (*domain.DissolutionSettlement, error) {
	if existing, ok := m.Settlements[settlement.FundID]; ok {
		if existing.Status == domain.SettlementConfirmed {
			return nil, domain.ErrAlreadyFinalised
		}
		settlement.ID = existing.ID
	}
	stored := *settlement
	m.Settlements[settlement.FundID] = &stored
	out := stored
	return &out, nil
}

// GetByFundID retrieves a settlement by fund
func (m *MockDissolutionRepository) GetByFundID(ctx context.Context, fundID uuid.UUID) (*domain.DissolutionSettlement, error) {
	settlement, ok := m.Settlements[fundID]
	if !ok {
		return nil, domain.ErrSettlementNotFound
	}
	out := *settlement
	return &out, nil
}

// ConfirmSettlement persists the confirmed settlement and the fund's terminal
// transition together
func (m *MockDissolutionRepository) ConfirmSettlement(ctx context.Context, settlement *domain.DissolutionSettlement, fund *domain.Fund) (*domain.DissolutionSettlement, error) {
	stored, ok := m.Settlements[settlement.FundID]
	if !ok {
		return nil, domain.ErrSettlementNotFound
	}
	if stored.Status != domain.SettlementReady {
		return nil, domain.ErrInvalidState
	}
	if _, err := m.Funds.Update(ctx, fund); err != nil {
		return nil, err
	}
	updated := *settlement
	m.Settlements[settlement.FundID] = &updated
	out := updated
	return &out, nil
}

// MockInvitationRepository is a map-backed implementation of
// domain.InvitationRepository
type MockInvitationRepository struct {
	Invitations       map[uuid.UUID]*domain.Invitation
	UpdateStatusCalls int
}

// NewMockInvitationRepository creates a new MockInvitationRepository
func NewMockInvitationRepository() *MockInvitationRepository {
	return &MockInvitationRepository{Invitations: make(map[uuid.UUID]*domain.Invitation)}
}

// Create stores an invitation, rejecting a duplicate pending one
func (m *MockInvitationRepository) Create(ctx context.Context, inv *domain.Invitation) (*domain.Invitation, error) {
	for _, existing := range m.Invitations {
		if existing.FundID == inv.FundID && existing.TargetContact == inv.TargetContact && existing.Status == domain.InvitationPending {
			return nil, domain.ErrPendingInvitation
		}
	}
	stored := *inv
	m.Invitations[stored.ID] = &stored
	out := stored
	return &out, nil
}

// GetByID retrieves an invitation by ID
func (m *MockInvitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error) {
	inv, ok := m.Invitations[id]
	if !ok {
		return nil, domain.ErrInvitationNotFound
	}
	out := *inv
	return &out, nil
}

// GetPending retrieves the pending invitation for (fund, contact)
func (m *MockInvitationRepository) GetPending(ctx context.Context, fundID uuid.UUID, targetContact string) (*domain.Invitation, error) {
	for _, inv := range m.Invitations {
		if inv.FundID == fundID && inv.TargetContact == targetContact && inv.Status == domain.InvitationPending {
			out := *inv
			return &out, nil
		}
	}
	return nil, domain.ErrInvitationNotFound
}

// UpdateStatus persists a status change
func (m *MockInvitationRepository) UpdateStatus(ctx context.Context, inv *domain.Invitation) (*domain.Invitation, error) {
	m.UpdateStatusCalls++
	if _, ok := m.Invitations[inv.ID]; !ok {
		return nil, domain.ErrInvitationNotFound
	}
	stored := *inv
	m.Invitations[inv.ID] = &stored
	out := stored
	return &out, nil
}

// ExpirePending flips pending invitations past their expiry
func (m *MockInvitationRepository) ExpirePending(ctx context.Context, asOf time.Time) (int64, error) {
	var count int64
	for _, inv := range m.Invitations {
		if inv.Status == domain.InvitationPending && inv.ExpiresAt.Before(asOf) {
			inv.Status = domain.InvitationExpired
			count++
		}
	}
	return count, nil
}

// ListByFund returns all invitations for a fund
func (m *MockInvitationRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Invitation, error) {
	var out []*domain.Invitation
	for _, inv := range m.Invitations {
		if inv.FundID == fundID {
			i := *inv
			out = append(out, &i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// MockOutboxRepository is a slice-backed implementation of
// domain.OutboxRepository
type MockOutboxRepository struct {
	Events []*domain.OutboxEvent
}

// NewMockOutboxRepository creates a new MockOutboxRepository
func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

// Enqueue stores an undispatched event
func (m *MockOutboxRepository) Enqueue(ctx context.Context, e *domain.OutboxEvent) error {
	stored := *e
	m.Events = append(m.Events, &stored)
	return nil
}

// ListDue returns undispatched events whose next attempt time has passed
func (m *MockOutboxRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	for _, e := range m.Events {
		if e.DispatchedAt == nil && !e.NextAttemptAt.After(asOf) {
			ev := *e
			out = append(out, &ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// MarkDispatched stamps an event dispatched
func (m *MockOutboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	for _, e := range m.Events {
		if e.ID == id {
			dispatched := at
			e.DispatchedAt = &dispatched
			return nil
		}
	}
	return domain.ErrNotFound
}

// RecordFailure bumps the attempt count and reschedules
func (m *MockOutboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextAttempt time.Time) error {
	for _, e := range m.Events {
		if e.ID == id {
			e.Attempts = attempts
			e.NextAttemptAt = nextAttempt
			return nil
		}
	}
	return domain.ErrNotFound
}

// MockJobLocker always grants the lock and records the jobs it ran
type MockJobLocker struct {
	mu   sync.Mutex
	Runs []string
	// Held simulates a lock owned elsewhere for (jobName, fundID) pairs
	Held map[string]bool
}

// NewMockJobLocker creates a new MockJobLocker
func NewMockJobLocker() *MockJobLocker {
	return &MockJobLocker{Held: make(map[string]bool)}
}

// WithLock runs fn unless the pair is marked held
func (m *MockJobLocker) WithLock(ctx context.Context, jobName string, fundID uuid.UUID, fn func(context.Context) error) (bool, error) {
	key := jobName + "|" + fundID.String()
	m.mu.Lock()
	if m.Held[key] {
		m.mu.Unlock()
		return false, nil
	}
	m.Runs = append(m.Runs, key)
	m.mu.Unlock()
	return true, fn(ctx)
}

// CapturePublisher records every published event for assertions
type CapturePublisher struct {
	mu     sync.Mutex
	Events []event.Event
	// Err, when set, is returned from Publish
	Err error
}

// NewCapturePublisher creates a new CapturePublisher
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

// Publish records the event
func (p *CapturePublisher) Publish(ctx context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, e)
	return nil
}

// ByType returns the recorded events of one type
func (p *CapturePublisher) ByType(t event.Type) []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Event
	for _, e := range p.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// CaptureAuditSink records every audit entry for assertions
type CaptureAuditSink struct {
	mu      sync.Mutex
	Entries []event.AuditEntry
}

// NewCaptureAuditSink creates a new CaptureAuditSink
func NewCaptureAuditSink() *CaptureAuditSink {
	return &CaptureAuditSink{}
}

// Record stores the entry
func (s *CaptureAuditSink) Record(ctx context.Context, entry event.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Entries = append(s.Entries, entry)
	return nil
}

// Actions returns the recorded action types in order
func (s *CaptureAuditSink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, entry := range s.Entries {
		out = append(out, entry.ActionType)
	}
	return out
}
