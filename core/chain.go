package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChainID is the 32 byte identifier of a chain
type ChainID [32]byte

// ParseChainID parses a hex encoded chain id
func ParseChainID(s string) (ChainID, error) {
	var id ChainID
	data, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	if len(data) != len(id) {
		return id, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidChainID, len(data))
	}
	copy(id[:], data)
	return id, nil
}

// MustParseChainID is like ParseChainID but panics on error
func MustParseChainID(s string) ChainID {
	id, err := ParseChainID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the hex encoded chain id
func (id ChainID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler
func (id ChainID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ChainID) UnmarshalText(text []byte) error {
	parsed, err := ParseChainID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ChainInfo is the subset of get_info used to build transaction headers
type ChainInfo struct {
	ChainID                  ChainID   `json:"chain_id"`
	HeadBlockNum             uint32    `json:"head_block_num"`
	HeadBlockTime            TimePoint `json:"head_block_time"`
	LastIrreversibleBlockNum uint32    `json:"last_irreversible_block_num"`
	LastIrreversibleBlockID  string    `json:"last_irreversible_block_id"`
}

// PushTransactionResponse is the result of broadcasting a transaction
type PushTransactionResponse struct {
	TransactionID string         `json:"transaction_id"`
	Processed     map[string]any `json:"processed"`
}

// TimePointLayout is the layout chain APIs use for timestamps, always UTC without zone
const TimePointLayout = "2006-01-02T15:04:05.000"

// TimePoint is a UTC timestamp in the chain API format
type TimePoint struct {
	time.Time
}

// MarshalText implements encoding.TextMarshaler
func (t TimePoint) MarshalText() ([]byte, error) {
	return []byte(t.UTC().Format(TimePointLayout)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting second and millisecond precision
func (t *TimePoint) UnmarshalText(text []byte) error {
	for _, layout := range []string{TimePointLayout, "2006-01-02T15:04:05"} {
		parsed, err := time.ParseInLocation(layout, string(text), time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid time point %q", string(text))
}

// MarshalJSON implements json.Marshaler, shadowing the embedded time.Time encoding
func (t TimePoint) MarshalJSON() ([]byte, error) {
	text, _ := t.MarshalText()
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler
func (t *TimePoint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid time point: %w", err)
	}
	return t.UnmarshalText([]byte(s))
}
