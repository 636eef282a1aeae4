package core

import (
	"github.com/layer-3/esrlink/internal/ecc"
)

// Account is the subset of a get_account response used by the engine
type Account struct {
	AccountName       string       `json:"account_name"`
	HeadBlockNum      uint32       `json:"head_block_num"`
	HeadBlockTime     TimePoint    `json:"head_block_time"`
	Created           TimePoint    `json:"created"`
	CoreLiquidBalance *Asset       `json:"core_liquid_balance,omitempty"`
	RAMQuota          int64        `json:"ram_quota"`
	RAMUsage          int64        `json:"ram_usage"`
	Permissions       []Permission `json:"permissions"`
}

// Permission returns the named permission of the account
func (a *Account) Permission(name string) (Permission, bool) {
	for _, p := range a.Permissions {
		if p.PermName == name {
			return p, true
		}
	}
	return Permission{}, false
}

// Permission is a named authority on an account
type Permission struct {
	PermName     string    `json:"perm_name"`
	Parent       string    `json:"parent"`
	RequiredAuth Authority `json:"required_auth"`
}

// Authority is a weighted threshold of keys and accounts
type Authority struct {
	Threshold uint32             `json:"threshold"`
	Keys      []KeyWeight        `json:"keys"`
	Accounts  []PermissionWeight `json:"accounts"`
	Waits     []WaitWeight       `json:"waits"`
}

// KeyWeight is a key in an authority
type KeyWeight struct {
	Key    string `json:"key"`
	Weight uint16 `json:"weight"`
}

// PermissionWeight is an account permission in an authority
type PermissionWeight struct {
	Permission PermissionLevel `json:"permission"`
	Weight     uint16          `json:"weight"`
}

// WaitWeight is a delay in an authority
type WaitWeight struct {
	WaitSec uint32 `json:"wait_sec"`
	Weight  uint16 `json:"weight"`
}

// KeyWeight returns the weight key carries in the authority. Key strings in
// legacy formats are normalized before comparison.
func (a Authority) KeyWeight(key ecc.PublicKey) (uint32, bool) {
	for _, kw := range a.Keys {
		parsed, err := ecc.ParsePublicKey(kw.Key)
		if err != nil {
			continue
		}
		if parsed.Equal(key) {
			return uint32(kw.Weight), true
		}
	}
	return 0, false
}

// HasPermission reports whether key alone satisfies the authority threshold
func (a Authority) HasPermission(key ecc.PublicKey) bool {
	weight, ok := a.KeyWeight(key)
	return ok && weight >= a.Threshold
}
