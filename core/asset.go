package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset is a token quantity such as "42.0000 EOS"
type Asset struct {
	Amount    decimal.Decimal
	Precision int32
	Symbol    string
}

// ParseAsset parses the "<amount> <SYMBOL>" format, taking precision from the amount
func ParseAsset(s string) (Asset, error) {
	amount, symbol, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || symbol == "" {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Asset{}, fmt.Errorf("invalid asset amount %q: %w", amount, err)
	}
	var precision int32
	if _, frac, found := strings.Cut(amount, "."); found {
		precision = int32(len(frac))
	}
	return Asset{Amount: d, Precision: precision, Symbol: symbol}, nil
}

// String formats the asset with its precision
func (a Asset) String() string {
	return a.Amount.StringFixed(a.Precision) + " " + a.Symbol
}

// MarshalJSON implements json.Marshaler
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
