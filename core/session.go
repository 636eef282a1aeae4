package core

// SessionType discriminates the session delivery strategy
type SessionType string

const (
	// SessionTypeChannel pushes requests to the wallet over an encrypted channel
	SessionTypeChannel SessionType = "channel"

	// SessionTypeFallback presents every request through the link transport
	SessionTypeFallback SessionType = "fallback"
)

// ChannelInfo is the wallet channel a session pushes to
type ChannelInfo struct {
	// URL is the channel push url
	URL string `json:"url"`
	// Key is the public key requests are sealed to
	Key string `json:"key"`
	// Name is the wallet given channel name, usually the device name
	Name string `json:"name"`
}

// SerializedSession is the persisted form of a session
type SerializedSession struct {
	Type       SessionType     `json:"type"`
	Identifier string          `json:"identifier"`
	Auth       PermissionLevel `json:"auth"`
	ChainID    ChainID         `json:"chainId"`
	PublicKey  string          `json:"publicKey"`
	Metadata   map[string]any  `json:"metadata"`
	Channel    *ChannelInfo    `json:"channel,omitempty"`
	RequestKey string          `json:"requestKey,omitempty"`
}

// SessionKey identifies a persisted session of an identifier
type SessionKey struct {
	Auth    PermissionLevel `json:"auth"`
	ChainID ChainID         `json:"chainId"`
}

// Equal reports whether both keys point at the same session
func (k SessionKey) Equal(other SessionKey) bool {
	return k.Auth == other.Auth && k.ChainID == other.ChainID
}

// SessionEvent is published when sessions are created or removed
type SessionEvent struct {
	Identifier string          `json:"identifier"`
	Auth       PermissionLevel `json:"auth"`
	ChainID    ChainID         `json:"chainId"`
	Type       SessionType     `json:"type,omitempty"`
}

// Event topics
const (
	TopicSessionCreated = "esrlink.session.created"
	TopicSessionRemoved = "esrlink.session.removed"
	TopicRelayDelivered = "esrlink.relay.delivered"
)
