package reconciliation

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/bankrecon/internal/domain"
)

const (
	scoreAmountExact  = 50
	scoreAmountClose  = 30
	scoreFullName     = 30
	scoreLastName     = 20
	scoreFirstName    = 10
	scoreDateInWindow = 10

	// MinSuggestionScore is the lowest score worth showing.
	MinSuggestionScore = 50

	dateWindow = 14 * 24 * time.Hour
)

var amountTolerance = decimal.NewFromFloat(0.05)

// Suggestion pairs an unreconciled transaction with a booking it probably
// pays for.
type Suggestion struct {
	Transaction domain.BankTransaction `json:"transaction"`
	Booking     domain.Booking         `json:"booking"`
	Score       int                    `json:"score"`
	Reasons     []string               `json:"reasons"`
}

// Suggestions scores every unreconciled credit transaction of the
// organisation against every open booking and returns the pairs scoring at
// least MinSuggestionScore, best first.
//
// This is a full cross product, O(transactions x bookings). Organisations
// hold at most a few hundred of each so it is not indexed.
//
// Results are cached per organisation until the next payment or import
// lands there or the TTL runs out. They are hints: ManualReconcile re-checks everything.
func (s *Service) Suggestions(ctx context.Context, organisationID int64) ([]Suggestion, error) {
	key := strconv.FormatInt(organisationID, 10)
	if s.suggestions != nil {
		if cached, ok := s.suggestions.Get(key); ok {
			return cached.([]Suggestion), nil
		}
	}

	txns, err := s.UnreconciledTransactions(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.OpenBookings(ctx, organisationID)
	if err != nil {
		return nil, err
	}

	out := []Suggestion{}
	for _, t := range txns {
		for _, b := range bookings {
			score, reasons := Score(&t, &b)
			if score < MinSuggestionScore {
				continue
			}
			out = append(out, Suggestion{Transaction: t, Booking: b, Score: score, Reasons: reasons})
		}
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Transaction.ID, b.Transaction.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Booking.ID, b.Booking.ID)
	})

	if s.suggestions != nil {
		s.suggestions.SetDefault(key, out)
	}
	s.log.Debug().Int64("organisation_id", organisationID).
		Int("transactions", len(txns)).Int("bookings", len(bookings)).Int("suggestions", len(out)).
		Msg("suggestions computed")
	return out, nil
}

// Score rates how likely t pays for b, from 0 to 90, and says why.
func Score(t *domain.BankTransaction, b *domain.Booking) (int, []string) {
	score := 0
	var reasons []string

	remaining := b.Remaining()
	switch {
	case t.Amount.Equal(remaining):
		score += scoreAmountExact
		reasons = append(reasons, fmt.Sprintf("amount %s equals remaining balance", t.Amount.StringFixed(2)))
	case remaining.IsPositive() && t.Amount.Sub(remaining).Abs().LessThanOrEqual(remaining.Mul(amountTolerance)):
		score += scoreAmountClose
		reasons = append(reasons, fmt.Sprintf("amount %s within 5%% of remaining %s",
			t.Amount.StringFixed(2), remaining.StringFixed(2)))
	}

	name := strings.ToLower(t.CounterpartyName)
	first := strings.ToLower(strings.TrimSpace(b.Guardian.FirstName))
	last := strings.ToLower(strings.TrimSpace(b.Guardian.LastName))
	hasFirst := first != "" && strings.Contains(name, first)
	hasLast := last != "" && strings.Contains(name, last)
	switch {
	case hasFirst && hasLast:
		score += scoreFullName
		reasons = append(reasons, "counterparty matches guardian name")
	case hasLast:
		score += scoreLastName
		reasons = append(reasons, "counterparty matches guardian last name")
	case hasFirst:
		score += scoreFirstName
		reasons = append(reasons, "counterparty matches guardian first name")
	}

	if !b.ActivityStartDate.IsZero() && absDuration(t.TransactionDate.Sub(b.ActivityStartDate)) <= dateWindow {
		score += scoreDateInWindow
		reasons = append(reasons, "paid within two weeks of activity start")
	}

	return score, reasons
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
