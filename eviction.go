package geostream

import (
	"fmt"
	"sort"
	"strings"
)

type (
	evictionKind uint8

	// EvictionPolicy is a single rule deciding when a request leaves the pool on its own.
	EvictionPolicy struct {
		kind  evictionKind
		count int
	}

	// EvictionPolicySet is a set of policy atoms. An empty set keeps the request
	// queued until it is explicitly cancelled.
	EvictionPolicySet map[EvictionPolicy]struct{}
)

const (
	evictOnError evictionKind = iota + 1
	evictOnReceiveData
)

// OnError evicts a request after the first delivered, non discardable, failure.
func OnError() EvictionPolicy {
	return EvictionPolicy{kind: evictOnError}
}

// OnReceiveData evicts a request once it delivered count validated values.
func OnReceiveData(count int) EvictionPolicy {
	return EvictionPolicy{kind: evictOnReceiveData, count: count}
}

// IsOnError reports whether the policy is the onError atom.
func (p EvictionPolicy) IsOnError() bool {
	return p.kind == evictOnError
}

// IsReceiveData reports whether the policy is an onReceiveData atom.
func (p EvictionPolicy) IsReceiveData() bool {
	return p.kind == evictOnReceiveData
}

// Count returns the delivery count of an onReceiveData atom.
func (p EvictionPolicy) Count() int {
	return p.count
}

func (p EvictionPolicy) String() string {
	switch p.kind {
	case evictOnError:
		return "onError"
	case evictOnReceiveData:
		return fmt.Sprintf("onReceiveData[%d]", p.count)
	}

	return "unknown"
}

// NewEvictionPolicySet creates a set from the given atoms.
func NewEvictionPolicySet(policies ...EvictionPolicy) EvictionPolicySet {
	set := make(EvictionPolicySet, len(policies))
	for _, policy := range policies {
		set[policy] = struct{}{}
	}

	return set
}

// Contains reports whether the atom is part of the set.
func (s EvictionPolicySet) Contains(policy EvictionPolicy) bool {
	_, ok := s[policy]

	return ok
}

// Clone returns an independent copy of the set.
func (s EvictionPolicySet) Clone() EvictionPolicySet {
	clone := make(EvictionPolicySet, len(s))
	for policy := range s {
		clone[policy] = struct{}{}
	}

	return clone
}

// Policies returns the atoms in a stable order.
func (s EvictionPolicySet) Policies() []EvictionPolicy {
	policies := make([]EvictionPolicy, 0, len(s))
	for policy := range s {
		policies = append(policies, policy)
	}

	sort.Slice(policies, func(i, j int) bool {
		if policies[i].kind != policies[j].kind {
			return policies[i].kind < policies[j].kind
		}

		return policies[i].count < policies[j].count
	})

	return policies
}

func (s EvictionPolicySet) String() string {
	names := make([]string, 0, len(s))
	for _, policy := range s.Policies() {
		names = append(names, policy.String())
	}

	return "{" + strings.Join(names, ",") + "}"
}

// singleShot replaces every onReceiveData atom by onReceiveData(1) and adds onError.
func (s EvictionPolicySet) singleShot() EvictionPolicySet {
	set := make(EvictionPolicySet, len(s)+2)
	for policy := range s {
		if policy.IsReceiveData() {
			continue
		}
		set[policy] = struct{}{}
	}
	set[OnReceiveData(1)] = struct{}{}
	set[OnError()] = struct{}{}

	return set
}

// ShouldEvict decides whether a request must leave the pool.
// justFailed is true right after a delivered failure, false right after a delivered value.
// An onReceiveData(N) atom triggers once countReceivedData reached N; N < 1 never triggers.
func ShouldEvict(policies EvictionPolicySet, countReceivedData int, justFailed bool) bool {
	if justFailed {
		return policies.Contains(OnError())
	}

	for policy := range policies {
		if policy.IsReceiveData() && policy.count > 0 && countReceivedData >= policy.count {
			return true
		}
	}

	return false
}
