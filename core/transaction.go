package core

import (
	"fmt"
	"strings"
)

const (
	// PlaceholderName is resolved by the signer to the signing account
	PlaceholderName = "............1"

	// PlaceholderPermission is resolved by the signer to the signing permission
	PlaceholderPermission = "............2"
)

// PermissionLevel is an account and permission pair, a.k.a. auth
type PermissionLevel struct {
	Actor      string `json:"actor"`
	Permission string `json:"permission"`
}

// ParsePermissionLevel parses the actor@permission format
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	actor, permission, ok := strings.Cut(s, "@")
	if !ok || actor == "" || permission == "" {
		return PermissionLevel{}, fmt.Errorf("invalid permission level %q", s)
	}
	return PermissionLevel{Actor: actor, Permission: permission}, nil
}

// String returns actor@permission
func (p PermissionLevel) String() string {
	return p.Actor + "@" + p.Permission
}

// Format returns actor@permission with placeholders shown as <any>
func (p PermissionLevel) Format() string {
	actor, permission := p.Actor, p.Permission
	if actor == PlaceholderName {
		actor = "<any>"
	}
	if permission == PlaceholderName || permission == PlaceholderPermission {
		permission = "<any>"
	}
	return actor + "@" + permission
}

// Matches reports whether p, which may contain placeholders, accepts other
func (p PermissionLevel) Matches(other PermissionLevel) bool {
	if p.Actor != PlaceholderName && p.Actor != other.Actor {
		return false
	}
	if p.Permission != PlaceholderPermission && p.Permission != PlaceholderName && p.Permission != other.Permission {
		return false
	}
	return true
}

// Action is a contract call
type Action struct {
	Account       string            `json:"account"`
	Name          string            `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          any               `json:"data"`
}

// TransactionHeader holds the scheduling fields of a transaction
type TransactionHeader struct {
	Expiration       string `json:"expiration"`
	RefBlockNum      uint16 `json:"ref_block_num"`
	RefBlockPrefix   uint32 `json:"ref_block_prefix"`
	MaxNetUsageWords uint32 `json:"max_net_usage_words"`
	MaxCPUUsageMs    uint8  `json:"max_cpu_usage_ms"`
	DelaySec         uint32 `json:"delay_sec"`
}

// IsZero reports whether no header field is set
func (h TransactionHeader) IsZero() bool {
	return h == TransactionHeader{}
}

// Transaction is a full transaction
type Transaction struct {
	TransactionHeader
	ContextFreeActions []Action `json:"context_free_actions"`
	Actions            []Action `json:"actions"`
}

// SignedTransaction is a transaction ready to be pushed to a chain
type SignedTransaction struct {
	Transaction Transaction
	Signatures  []string
	// Packed is the serialized transaction as produced by the request codec
	Packed []byte
}

// TransactArgs is what Transact signs. Exactly one of Action, Actions or
// Transaction must be set. Header fields combined with Actions are the legacy
// shape and are folded into a Transaction.
type TransactArgs struct {
	Action      *Action
	Actions     []Action
	Transaction *Transaction
	Header      TransactionHeader
}

// Normalize validates the args and upgrades the legacy header shape to a full transaction
func (a TransactArgs) Normalize() (TransactArgs, error) {
	set := 0
	if a.Action != nil {
		set++
	}
	if len(a.Actions) > 0 {
		set++
	}
	if a.Transaction != nil {
		set++
	}
	if set != 1 {
		return TransactArgs{}, ErrInvalidTransactArgs
	}
	if len(a.Actions) > 0 && !a.Header.IsZero() {
		header := a.Header
		if header.Expiration == "" {
			header.Expiration = "1970-01-01T00:00:00"
		}
		return TransactArgs{Transaction: &Transaction{TransactionHeader: header, Actions: a.Actions}}, nil
	}
	return TransactArgs{Action: a.Action, Actions: a.Actions, Transaction: a.Transaction}, nil
}

// TransactOptions tune a Transact call
type TransactOptions struct {
	// Broadcast defaults to true
	Broadcast *bool
	// Chain selects the chain when more than one is configured
	Chain *ChainID
	// NoModify defaults to !Broadcast
	NoModify *bool
}

// ShouldBroadcast resolves the Broadcast default
func (o TransactOptions) ShouldBroadcast() bool {
	return o.Broadcast == nil || *o.Broadcast
}

// ShouldNotModify resolves the NoModify default
func (o TransactOptions) ShouldNotModify() bool {
	if o.NoModify != nil {
		return *o.NoModify
	}
	return !o.ShouldBroadcast()
}

// IdentityArgs describes an identity request
type IdentityArgs struct {
	Scope      string
	Permission *PermissionLevel
}

// RequestArgs is handed to the request codec to build a signing request.
// ChainID is nil for multi chain requests, in which case ChainIDs lists the candidates.
type RequestArgs struct {
	Action      *Action
	Actions     []Action
	Transaction *Transaction
	Identity    *IdentityArgs
	Info        map[string]any
	ChainID     *ChainID
	ChainIDs    []ChainID
	Broadcast   bool

	// PackedTransaction is a transaction the caller already serialized, signed as is
	PackedTransaction []byte
}
