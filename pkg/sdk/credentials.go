package sdk

import (
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Credential authenticates requests to the server at URL, either with a
// username/password pair or a pre-generated token.
type Credential struct {
	URL      string
	Username string
	Password string
	Token    string
	// Expires is when a generated Token lapses. Zero never lapses.
	Expires time.Time
}

// tokenSlack renews generated tokens this long before they expire.
const tokenSlack = time.Minute

func (c Credential) valid(now time.Time) bool {
	return c.Token != "" && (c.Expires.IsZero() || now.Add(tokenSlack).Before(c.Expires))
}

// CredentialCache holds credentials keyed by server URL. Lookups match the
// longest registered URL prefix, so a credential for a service root covers
// the layers below it.
type CredentialCache struct {
	entries cmap.ConcurrentMap[string, Credential]
}

// NewCredentialCache returns an empty cache.
func NewCredentialCache() *CredentialCache {
	return &CredentialCache{entries: cmap.New[Credential]()}
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

// Add stores c, replacing any credential for the same URL.
func (c *CredentialCache) Add(cred Credential) {
	c.entries.Set(normalizeURL(cred.URL), cred)
}

// Get returns the credential with the longest URL prefix of u.
func (c *CredentialCache) Get(u string) (Credential, bool) {
	key := normalizeURL(u)
	if cred, ok := c.entries.Get(key); ok {
		return cred, true
	}
	var best Credential
	bestLen := -1
	for item := range c.entries.IterBuffered() {
		if strings.HasPrefix(key, item.Key+"/") && len(item.Key) > bestLen {
			best, bestLen = item.Val, len(item.Key)
		}
	}
	return best, bestLen >= 0
}

// refresh stores a renewed token for cred unless the credential was
// removed or replaced by another user in the meantime.
func (c *CredentialCache) refresh(cred Credential) {
	key := normalizeURL(cred.URL)
	if cur, ok := c.entries.Get(key); ok && cur.Username == cred.Username && cur.Password == cred.Password {
		c.entries.Set(key, cred)
	}
}

// Remove deletes the credential stored for exactly u.
func (c *CredentialCache) Remove(u string) bool {
	key := normalizeURL(u)
	if !c.entries.Has(key) {
		return false
	}
	c.entries.Remove(key)
	return true
}

// Clear removes every credential.
func (c *CredentialCache) Clear() {
	c.entries.Clear()
}

// Len returns the number of stored credentials.
func (c *CredentialCache) Len() int {
	return c.entries.Count()
}
