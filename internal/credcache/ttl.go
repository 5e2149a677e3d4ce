package credcache

import "time"

// TTL returns how much longer c should be retained from now. Digest returns
// the time remaining until its oldest nonce's deadline (forcing eviction no
// later than the oldest issued nonce would naturally expire); Negotiate and
// NTLM return -1, meaning "never cache beyond this transaction" — the
// credentials cache must not retain them across requests at all.
func (c *Credential) TTL(nonceLifetime time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Scheme {
	case Negotiate, NTLM:
		return -1
	case Digest:
		if c.DigestData == nil || len(c.DigestData.Nonces) == 0 {
			return time.Until(c.Expires)
		}
		var oldest time.Time
		first := true
		for _, issued := range c.DigestData.Nonces {
			if first || issued.Before(oldest) {
				oldest, first = issued, false
			}
		}
		deadline := oldest.Add(nonceLifetime)
		if d := time.Until(c.Expires); d < time.Until(deadline) {
			return d
		}
		return time.Until(deadline)
	default: // Basic, Bearer
		return time.Until(c.Expires)
	}
}
