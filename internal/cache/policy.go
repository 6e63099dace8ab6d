package cache

import (
	"fmt"
	"time"
)

// PolicyKind selects how a slice decides between serving and refetching.
type PolicyKind int

const (
	// PolicyNone always refetches.
	PolicyNone PolicyKind = iota
	// PolicyAll fetches once and serves the result forever.
	PolicyAll
	// PolicyByKey serves a key's entry until it is older than the TTL.
	PolicyByKey
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyNone:
		return "none"
	case PolicyAll:
		return "all"
	case PolicyByKey:
		return "by-key"
	default:
		return fmt.Sprintf("PolicyKind(%d)", int(k))
	}
}

// Policy is a cache policy. TTL is only read for PolicyByKey; zero means the
// entry never expires.
type Policy struct {
	Kind PolicyKind
	TTL  time.Duration
}

// NoCache returns a policy that always refetches.
func NoCache() Policy { return Policy{Kind: PolicyNone} }

// CacheAll returns a fetch-once policy.
func CacheAll() Policy { return Policy{Kind: PolicyAll} }

// CacheByKey returns a per-key policy expiring entries after ttl.
func CacheByKey(ttl time.Duration) Policy { return Policy{Kind: PolicyByKey, TTL: ttl} }

// fresh reports whether a cached entry can be served instead of fetching.
func (p Policy) fresh(hasData bool, fetchedAt time.Time, recorded bool, now time.Time) bool {
	switch p.Kind {
	case PolicyAll:
		return hasData
	case PolicyByKey:
		if !hasData {
			return false
		}
		if p.TTL <= 0 {
			return true
		}
		if !recorded {
			return false
		}
		return now.Sub(fetchedAt) <= p.TTL
	default:
		return false
	}
}
