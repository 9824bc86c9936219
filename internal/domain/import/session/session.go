// Package session holds the review state of one parsed statement between
// parsing and commit: categorization outcomes, duplicate decisions and the
// user's resolutions.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

var (
	ErrBlocked      = errors.New("session has unresolved conflicts or duplicates")
	ErrDirty        = errors.New("categories changed; reprocess the session before committing")
	ErrIndex        = errors.New("transaction index out of range")
	ErrNotCandidate = errors.New("category is not a candidate for this transaction")
	ErrNotDuplicate = errors.New("transaction is not a duplicate")
	ErrUnknownCat   = errors.New("unknown category")
	ErrCommitted    = errors.New("session already committed")
	ErrCommitting   = errors.New("session commit already in progress")
)

// Status is the derived review state of one transaction.
type Status struct {
	// Conflict blocks commit: several categories matched and none was chosen.
	Conflict bool `json:"conflict"`
	// DuplicateUnresolved blocks commit: a duplicate with no import/skip decision.
	DuplicateUnresolved bool `json:"duplicate_unresolved"`
	// Uncategorized is informational only.
	Uncategorized bool `json:"uncategorized"`
}

// Blocking reports whether the status prevents a commit.
func (s Status) Blocking() bool {
	return s.Conflict || s.DuplicateUnresolved
}

// snapshot is the categorization verdict as first parsed. It never changes.
type snapshot struct {
	categoryID *uuid.UUID
	isConflict bool
}

// Transaction is a parsed row under review.
type Transaction struct {
	ledger.CanonicalTransaction
	Index      int        `json:"index"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	IsConflict bool       `json:"is_conflict"`
	// Candidates lists the matching categories of a conflict in display order.
	Candidates      []uuid.UUID `json:"candidates,omitempty"`
	IsDuplicate     bool        `json:"is_duplicate"`
	ImportDuplicate bool        `json:"import_duplicate"`
	SkipDuplicate   bool        `json:"skip_duplicate"`

	initial snapshot
}

// WasUncategorized reports whether no category matched at first parse.
// It stays true after a later keyword change assigns a category.
func (t Transaction) WasUncategorized() bool {
	return t.initial.categoryID == nil && !t.initial.isConflict
}

// Status derives the review state from the current fields.
func (t Transaction) Status() Status {
	return Status{
		Conflict:            t.IsConflict && t.CategoryID == nil,
		DuplicateUnresolved: t.IsDuplicate && !t.ImportDuplicate && !t.SkipDuplicate,
		Uncategorized:       t.WasUncategorized() && t.CategoryID == nil,
	}
}

// Summary counts the session's states.
type Summary struct {
	Total                int             `json:"total"`
	Conflicts            int             `json:"conflicts"`
	Duplicates           int             `json:"duplicates"`
	DuplicatesUnresolved int             `json:"duplicates_unresolved"`
	Uncategorized        int             `json:"uncategorized"`
	ToImport             int             `json:"to_import"`
	TotalDebited         decimal.Decimal `json:"total_debited"`
	ParseErrors          int             `json:"parse_errors"`
	Dirty                bool            `json:"dirty"`
	Blocking             bool            `json:"blocking"`
}

// Plan is what a commit writes: rows inserted with the duplicate check and
// duplicates the user chose to import anyway, which bypass it.
type Plan struct {
	Normal             []Transaction
	ExplicitDuplicates []Transaction
	Skipped            int
	TotalDebited       decimal.Decimal
}

// Count returns the number of rows the plan writes.
func (p Plan) Count() int {
	return len(p.Normal) + len(p.ExplicitDuplicates)
}

// Session is the review state of one file. It is safe for concurrent use.
type Session struct {
	ID           uuid.UUID
	FileName     string
	SourceFormat string
	CreatedAt    time.Time

	mu          sync.Mutex
	txns        []Transaction
	categories  []categorization.Category
	parseErrors []parser.ParseError
	dirty       bool
	committing  bool
	committed   bool
}

// New categorizes txns against categories, flags the rows whose signature
// is in duplicates and returns the session. Duplicates default to skipped.
func New(fileName, sourceFormat string, txns []ledger.CanonicalTransaction, parseErrors []parser.ParseError,
	categories []categorization.Category, duplicates map[ledger.Signature]struct{}) *Session {
	s := &Session{
		ID:           uuid.New(),
		FileName:     fileName,
		SourceFormat: sourceFormat,
		CreatedAt:    time.Now(),
		categories:   slices.Clone(categories),
		parseErrors:  slices.Clone(parseErrors),
		txns:         make([]Transaction, len(txns)),
	}
	categorization.SortByDisplayOrder(s.categories)

	outcomes := categorization.Categorize(txns, s.categories)
	for i, c := range txns {
		_, dup := duplicates[c.Signature()]
		tx := Transaction{
			CanonicalTransaction: c,
			Index:                i,
			IsDuplicate:          dup,
			SkipDuplicate:        dup,
		}
		tx.apply(outcomes[i])
		tx.initial = snapshot{categoryID: tx.CategoryID, isConflict: tx.IsConflict}
		s.txns[i] = tx
	}
	return s
}

func (t *Transaction) apply(o categorization.Outcome) {
	t.CategoryID = o.CategoryID
	t.IsConflict = o.IsConflict
	t.Candidates = o.Candidates
}

// Transactions returns a copy of the rows.
func (s *Session) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.txns)
}

// Transaction returns row i.
func (s *Session) Transaction(i int) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.txns) {
		return Transaction{}, fmt.Errorf("%w: %d", ErrIndex, i)
	}
	return s.txns[i], nil
}

// ParseErrors returns the row errors reported while parsing the file.
func (s *Session) ParseErrors() []parser.ParseError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.parseErrors)
}

// Categories returns the category list the session works with.
func (s *Session) Categories() []categorization.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories)
}

// ResolveConflict assigns one of the conflict candidates of row i.
func (s *Session) ResolveConflict(i int, categoryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.row(i)
	if err != nil {
		return err
	}
	if !slices.Contains(tx.Candidates, categoryID) {
		return fmt.Errorf("%w: %s", ErrNotCandidate, categoryID)
	}
	tx.CategoryID = &categoryID
	return nil
}

// SetCategory assigns any category to row i, or clears it with nil.
func (s *Session) SetCategory(i int, categoryID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.row(i)
	if err != nil {
		return err
	}
	if categoryID != nil {
		if categorization.FindByID(s.categories, *categoryID) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownCat, *categoryID)
		}
		id := *categoryID
		categoryID = &id
	}
	tx.CategoryID = categoryID
	return nil
}

// SetDuplicateDecision chooses whether duplicate row i is imported.
func (s *Session) SetDuplicateDecision(i int, importIt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.row(i)
	if err != nil {
		return err
	}
	if !tx.IsDuplicate {
		return fmt.Errorf("%w: row %d", ErrNotDuplicate, i)
	}
	tx.ImportDuplicate, tx.SkipDuplicate = importIt, !importIt
	return nil
}

// ImportAllDuplicates marks every duplicate for import.
func (s *Session) ImportAllDuplicates() {
	s.setAllDuplicates(true)
}

// SkipAllDuplicates marks every duplicate as skipped.
func (s *Session) SkipAllDuplicates() {
	s.setAllDuplicates(false)
}

func (s *Session) setAllDuplicates(importIt bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.txns {
		if s.txns[i].IsDuplicate {
			s.txns[i].ImportDuplicate, s.txns[i].SkipDuplicate = importIt, !importIt
		}
	}
}

// UpdateCategories replaces the category list after a keyword or category
// change and marks the session dirty. Rows keep their categories until
// Reprocess runs.
func (s *Session) UpdateCategories(categories []categorization.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = slices.Clone(categories)
	categorization.SortByDisplayOrder(s.categories)
	s.dirty = true
}

// Dirty reports whether the categories changed since the last categorization.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Reprocess re-runs categorization over every row with the current
// category list. Manual choices are replaced by the new outcomes; the
// first-parse snapshot is kept.
func (s *Session) Reprocess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	txns := make([]ledger.CanonicalTransaction, len(s.txns))
	for i, tx := range s.txns {
		txns[i] = tx.CanonicalTransaction
	}
	for i, o := range categorization.Categorize(txns, s.categories) {
		s.txns[i].apply(o)
	}
	s.dirty = false
}

// Blocking reports whether any row blocks the commit.
func (s *Session) Blocking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocking()
}

func (s *Session) blocking() bool {
	for _, tx := range s.txns {
		if tx.Status().Blocking() {
			return true
		}
	}
	return false
}

// Ready reports whether the session can be committed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.committed && !s.committing && !s.dirty && !s.blocking()
}

// Summary counts the session's states.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Total:        len(s.txns),
		ParseErrors:  len(s.parseErrors),
		Dirty:        s.dirty,
		TotalDebited: decimal.Zero,
	}
	for _, tx := range s.txns {
		st := tx.Status()
		if st.Conflict {
			sum.Conflicts++
		}
		if tx.IsDuplicate {
			sum.Duplicates++
		}
		if st.DuplicateUnresolved {
			sum.DuplicatesUnresolved++
		}
		if st.Uncategorized {
			sum.Uncategorized++
		}
		if st.Blocking() {
			sum.Blocking = true
		}
		if !tx.IsDuplicate || tx.ImportDuplicate {
			sum.ToImport++
			sum.TotalDebited = sum.TotalDebited.Add(tx.AmountOut)
		}
	}
	return sum
}

// Plan partitions the rows for commit without reserving the session. It
// fails while the session is dirty, blocking, committed or mid-commit.
func (s *Session) Plan() (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan()
}

// BeginCommit returns the commit plan and reserves the session for that
// one commit. Until MarkCommitted or AbortCommit, Plan and BeginCommit fail
// with ErrCommitting.
func (s *Session) BeginCommit() (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.plan()
	if err != nil {
		return Plan{}, err
	}
	s.committing = true
	return p, nil
}

// AbortCommit releases a reservation taken by BeginCommit.
func (s *Session) AbortCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false
}

// MarkCommitted closes the session to further commits.
func (s *Session) MarkCommitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false
	s.committed = true
}

func (s *Session) plan() (Plan, error) {
	switch {
	case s.committed:
		return Plan{}, ErrCommitted
	case s.committing:
		return Plan{}, ErrCommitting
	case s.dirty:
		return Plan{}, ErrDirty
	case s.blocking():
		return Plan{}, ErrBlocked
	}

	p := Plan{TotalDebited: decimal.Zero}
	for _, tx := range s.txns {
		switch {
		case !tx.IsDuplicate:
			p.Normal = append(p.Normal, tx)
		case tx.ImportDuplicate:
			p.ExplicitDuplicates = append(p.ExplicitDuplicates, tx)
		default:
			p.Skipped++
			continue
		}
		p.TotalDebited = p.TotalDebited.Add(tx.AmountOut)
	}
	return p, nil
}

func (s *Session) row(i int) (*Transaction, error) {
	if i < 0 || i >= len(s.txns) {
		return nil, fmt.Errorf("%w: %d", ErrIndex, i)
	}
	return &s.txns[i], nil
}
