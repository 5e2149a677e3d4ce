// Package credcache implements the authentication credentials cache (§4.D):
// a keyed, TTL-bounded store of authenticated-user records with lazy GC and
// per-scheme TTL, plus the QueueNode callback-collapsing list that lets
// several concurrent requests share one in-flight helper lookup. Built
// directly on internal/cache's generic Cache[K,V] (grounded on
// nabbar-golib/cache), specialized to Cache[string, *Credential].
package credcache

import (
	"sync"
	"time"
)

// State is a Credential's authentication state.
type State int

const (
	Unchecked State = iota
	Pending
	Ok
	Failed
)

// Scheme names the authentication mechanism a Credential belongs to.
type Scheme string

const (
	Basic     Scheme = "basic"
	Digest    Scheme = "digest"
	Bearer    Scheme = "bearer"
	Negotiate Scheme = "negotiate"
	NTLM      Scheme = "ntlm"
)

// BasicPayload is the Basic scheme's decoded credential.
type BasicPayload struct {
	Password string
}

// DigestPayload is the Digest scheme's HA1 plus its set of issued nonces,
// keyed by nonce value so the oldest one can drive TTL() (see ttl.go).
type DigestPayload struct {
	HA1    string
	Nonces map[string]time.Time // nonce -> issued-at
}

// BearerPayload is an opaque bearer token.
type BearerPayload struct {
	Token string
}

// NegotiatePayload carries the GSSAPI/SPNEGO opaque blob for one exchange;
// Negotiate and NTLM credentials are never cached beyond the transaction
// that created them (see ttl.go), so this payload has no persistent fields
// worth retaining across requests beyond the blob itself.
type NegotiatePayload struct {
	Opaque []byte
}

// Credential is a per-user authenticated-session record.
type Credential struct {
	mu sync.Mutex

	UserKey  string
	Username string
	State    State
	Expires  time.Time
	Scheme   Scheme

	BasicData     *BasicPayload
	DigestData    *DigestPayload
	BearerData    *BearerPayload
	NegotiateData *NegotiatePayload

	queue *queueNode // FIFO head; nil when no callbacks are pending
	tail  *queueNode
}

// NewCredential constructs an Unchecked credential for key under scheme.
func NewCredential(userKey, username string, scheme Scheme) *Credential {
	return &Credential{UserKey: userKey, Username: username, Scheme: scheme, State: Unchecked}
}

// SetResult transitions the credential to Ok or Failed and fires every
// queued callback in FIFO order of attachment, then clears the queue.
func (c *Credential) SetResult(ok bool, expires time.Time) {
	c.mu.Lock()
	if ok {
		c.State = Ok
	} else {
		c.State = Failed
	}
	c.Expires = expires
	head := c.queue
	c.queue, c.tail = nil, nil
	c.mu.Unlock()

	for n := head; n != nil; n = n.next {
		n.callback(c)
	}
}
