package model

import "os"

// Kind identifies which backend family serves a descriptor. The set is
// closed: dispatch switches over these four values exhaustively.
type Kind int

const (
	KindCloudChat Kind = iota
	KindLocalDaemon
	KindOnDevice
	KindRuleBased
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCloudChat:
		return "cloud_chat"
	case KindLocalDaemon:
		return "local_daemon"
	case KindOnDevice:
		return "on_device"
	case KindRuleBased:
		return "rule_based"
	default:
		return "unknown"
	}
}

// Offline reports whether the backend runs without a moderated cloud
// service in front of it. Offline kinds pass through the safety filter.
func (k Kind) Offline() bool {
	return k != KindCloudChat
}

// Descriptor is the static catalog entry for one registered model. Built
// once from configuration at process start and immutable thereafter.
type Descriptor struct {
	ID                 string `json:"id"`
	Kind               Kind   `json:"-"`
	MaxTokens          int    `json:"maxTokens,omitempty"`
	RequiresCredential string `json:"-"`
	SupportsVision     bool   `json:"supportsVision,omitempty"`
	StaticNotice       string `json:"-"`
}

// Available reports whether the descriptor's credential, if it requires
// one, is present in the environment. Advisory only: dispatch attempts the
// call regardless and lets the fallback chain handle a missing credential.
func (d Descriptor) Available() bool {
	if d.RequiresCredential == "" {
		return true
	}
	return os.Getenv(d.RequiresCredential) != ""
}
