package conversion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrConversionUnavailable is returned by a strict table for an unknown pair.
var ErrConversionUnavailable = errors.New("conversion rate unavailable")

// Converter looks up exchange rates. Implementations must be deterministic.
type Converter interface {
	Rate(from, to string) (decimal.Decimal, error)
}

// Pair is an ordered currency pair.
type Pair struct {
	From string
	To   string
}

// DefaultRates is the static table used when none is configured.
func DefaultRates() map[Pair]decimal.Decimal {
	return map[Pair]decimal.Decimal{
		{From: "INR", To: "USD"}: decimal.RequireFromString("0.012"),
		{From: "USD", To: "INR"}: decimal.RequireFromString("83"),
		{From: "INR", To: "BTC"}: decimal.RequireFromString("0.0000003"),
		{From: "BTC", To: "INR"}: decimal.RequireFromString("3300000"),
	}
}

// Table is a static rate lookup. Unknown pairs fall back to 1 unless the
// table is strict.
type Table struct {
	rates  map[Pair]decimal.Decimal
	strict bool
}

var _ Converter = (*Table)(nil)

// NewTable builds a rate table. A nil rates map uses DefaultRates.
func NewTable(rates map[Pair]decimal.Decimal, strict bool) *Table {
	if rates == nil {
		rates = DefaultRates()
	}
	copied := make(map[Pair]decimal.Decimal, len(rates))
	for p, r := range rates {
		copied[Pair{From: strings.ToUpper(p.From), To: strings.ToUpper(p.To)}] = r
	}
	return &Table{rates: copied, strict: strict}
}

// Rate returns the multiplier converting one unit of from into to.
func (t *Table) Rate(from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := t.rates[Pair{From: from, To: to}]; ok {
		return r, nil
	}
	if t.strict {
		return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrConversionUnavailable, from, to)
	}
	return decimal.NewFromInt(1), nil
}

// IsSupported reports whether the pair has an explicit rate.
func (t *Table) IsSupported(from, to string) bool {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return true
	}
	_, ok := t.rates[Pair{From: from, To: to}]
	return ok
}

// Convert applies the rate and rounds half away from zero to two decimals.
func Convert(c Converter, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := c.Rate(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}

// ParseRates reads "FROM:TO=rate" pairs separated by commas,
// e.g. "INR:USD=0.012,USD:INR=83".
func ParseRates(raw string) (map[Pair]decimal.Decimal, error) {
	rates := make(map[Pair]decimal.Decimal)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pairPart, ratePart, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("rate %q: missing '='", item)
		}
		from, to, ok := strings.Cut(strings.TrimSpace(pairPart), ":")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("rate %q: pair must be FROM:TO", item)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(ratePart))
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", item, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate %q: must be positive", item)
		}
		rates[Pair{From: strings.ToUpper(from), To: strings.ToUpper(to)}] = rate
	}
	return rates, nil
}
