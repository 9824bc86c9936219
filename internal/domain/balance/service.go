// Package balance summarizes money in and out of the ledger over a period.
package balance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// ErrInvalidPeriod is returned when the period ends before it starts.
var ErrInvalidPeriod = errors.New("period end is before its start")

// Repository is the read side of the ledger used for summaries.
type Repository interface {
	QueryTransactionsByDateRange(ctx context.Context, start, end time.Time) ([]ledger.Transaction, error)
	ListCategories(ctx context.Context) ([]categorization.Category, error)
}

// Service handles balance business logic
type Service struct {
	repo Repository
}

// NewService creates a new balance service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CategoryTotal is the money moved through one category.
type CategoryTotal struct {
	// CategoryID is nil for uncategorized transactions.
	CategoryID *uuid.UUID      `json:"category_id,omitempty"`
	Name       string          `json:"name"`
	Count      int             `json:"count"`
	Out        decimal.Decimal `json:"out"`
	In         decimal.Decimal `json:"in"`
}

// Net returns In - Out.
func (c CategoryTotal) Net() decimal.Decimal {
	return c.In.Sub(c.Out)
}

// DailyBalance is the net flow of one day and the running total up to it.
type DailyBalance struct {
	Date    time.Time       `json:"date"`
	Net     decimal.Decimal `json:"net"`
	Running decimal.Decimal `json:"running"`
}

// Summary holds the complete summary for a period.
type Summary struct {
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	Transactions int             `json:"transactions"`
	TotalOut     decimal.Decimal `json:"total_out"`
	TotalIn      decimal.Decimal `json:"total_in"`
	Categories   []CategoryTotal `json:"categories"`
	History      []DailyBalance  `json:"history"`
	// Highest and Lowest are the extremes of the running total.
	Highest decimal.Decimal `json:"highest"`
	Lowest  decimal.Decimal `json:"lowest"`
	// AverageDailyOut spreads TotalOut over every day of the period.
	AverageDailyOut decimal.Decimal `json:"average_daily_out"`
}

// Net returns TotalIn - TotalOut.
func (s Summary) Net() decimal.Decimal {
	return s.TotalIn.Sub(s.TotalOut)
}

// Summarize totals the ledger between start and end, both inclusive.
func (s *Service) Summarize(ctx context.Context, start, end time.Time) (*Summary, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidPeriod, start.Format(ledger.DateLayout), end.Format(ledger.DateLayout))
	}

	txns, err := s.repo.QueryTransactionsByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return Summarize(start, end, txns, categories), nil
}

// Summarize computes a Summary from already loaded transactions.
func Summarize(start, end time.Time, txns []ledger.Transaction, categories []categorization.Category) *Summary {
	sum := &Summary{
		Start:        start,
		End:          end,
		Transactions: len(txns),
		TotalOut:     decimal.Zero,
		TotalIn:      decimal.Zero,
	}

	byCategory := make(map[uuid.UUID]*CategoryTotal)
	uncategorized := &CategoryTotal{Name: categorization.Uncategorized, Out: decimal.Zero, In: decimal.Zero}
	daily := make(map[time.Time]decimal.Decimal)

	for _, tx := range txns {
		sum.TotalOut = sum.TotalOut.Add(tx.AmountOut)
		sum.TotalIn = sum.TotalIn.Add(tx.AmountIn)

		total := uncategorized
		if tx.CategoryID != nil {
			total = byCategory[*tx.CategoryID]
			if total == nil {
				id := *tx.CategoryID
				total = &CategoryTotal{CategoryID: &id, Name: id.String(), Out: decimal.Zero, In: decimal.Zero}
				if c := categorization.FindByID(categories, id); c != nil {
					total.Name = c.Name
				}
				byCategory[id] = total
			}
		}
		total.Count++
		total.Out = total.Out.Add(tx.AmountOut)
		total.In = total.In.Add(tx.AmountIn)

		day := truncateDay(tx.Date)
		daily[day] = daily[day].Add(tx.NetAmount())
	}

	for _, t := range byCategory {
		sum.Categories = append(sum.Categories, *t)
	}
	// Biggest spenders first.
	sort.Slice(sum.Categories, func(i, j int) bool {
		a, b := sum.Categories[i], sum.Categories[j]
		if cmp := a.Out.Cmp(b.Out); cmp != 0 {
			return cmp > 0
		}
		return a.Name < b.Name
	})
	if uncategorized.Count > 0 {
		sum.Categories = append(sum.Categories, *uncategorized)
	}

	days := make([]time.Time, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	running := decimal.Zero
	sum.Highest, sum.Lowest = decimal.Zero, decimal.Zero
	for i, d := range days {
		running = running.Add(daily[d])
		sum.History = append(sum.History, DailyBalance{Date: d, Net: daily[d], Running: running})
		if i == 0 || running.GreaterThan(sum.Highest) {
			sum.Highest = running
		}
		if i == 0 || running.LessThan(sum.Lowest) {
			sum.Lowest = running
		}
	}

	periodDays := int64(end.Sub(start).Hours()/24) + 1
	sum.AverageDailyOut = sum.TotalOut.Div(decimal.NewFromInt(periodDays)).Round(2)
	return sum
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
