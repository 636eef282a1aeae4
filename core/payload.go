package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Callback payload keys
const (
	PayloadSignerActor      = "sa"
	PayloadSignerPermission = "sp"
	PayloadSignature        = "sig"
	PayloadChainID          = "cid"
	PayloadRequest          = "req"
	PayloadExpiration       = "ex"
	PayloadRefBlockNum      = "rbn"
	PayloadRefBlockID       = "rid"
	PayloadTransactionID    = "tx"
	PayloadBlockNum         = "bn"
	PayloadChannelURL       = "link_ch"
	PayloadChannelKey       = "link_key"
	PayloadChannelName      = "link_name"
	PayloadMeta             = "link_meta"
	PayloadRejected         = "rejected"
)

// CallbackPayload is the JSON object a signer delivers to the callback url
type CallbackPayload map[string]string

// ParseCallbackPayload decodes a callback body
func ParseCallbackPayload(data []byte) (CallbackPayload, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unable to parse callback JSON: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("unable to parse callback JSON: empty payload")
	}
	return payload, nil
}

// Rejected returns the rejection message when the signer declined the request
func (p CallbackPayload) Rejected() (string, bool) {
	msg, ok := p[PayloadRejected]
	return msg, ok
}

// Signer returns the sa/sp permission level
func (p CallbackPayload) Signer() PermissionLevel {
	return PermissionLevel{Actor: p[PayloadSignerActor], Permission: p[PayloadSignerPermission]}
}

// Signatures returns sig followed by sig1..sigN in ascending index order.
// sig0 duplicates sig and is skipped.
func (p CallbackPayload) Signatures() []string {
	type indexed struct {
		index int
		sig   string
	}
	var sigs []indexed
	for key, value := range p {
		if key == PayloadSignature {
			sigs = append(sigs, indexed{index: 0, sig: value})
			continue
		}
		rest, ok := strings.CutPrefix(key, PayloadSignature)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			continue
		}
		sigs = append(sigs, indexed{index: n, sig: value})
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].index < sigs[j].index })

	out := make([]string, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.sig)
	}
	return out
}

// ChainID returns the resolved chain id, if the payload carries one
func (p CallbackPayload) ChainID() (ChainID, bool, error) {
	raw, ok := p[PayloadChainID]
	if !ok || raw == "" {
		return ChainID{}, false, nil
	}
	id, err := ParseChainID(raw)
	if err != nil {
		return ChainID{}, true, err
	}
	return id, true, nil
}

// Channel returns the channel assignment when link_ch, link_key and link_name are all present
func (p CallbackPayload) Channel() (ChannelInfo, bool) {
	url, key, name := p[PayloadChannelURL], p[PayloadChannelKey], p[PayloadChannelName]
	if url == "" || key == "" || name == "" {
		return ChannelInfo{}, false
	}
	return ChannelInfo{URL: url, Key: key, Name: name}, true
}
