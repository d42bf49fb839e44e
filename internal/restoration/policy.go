// Package restoration runs one upload through provider selection, the
// provider call and the job's terminal transition.
package restoration

import (
	"strings"

	"heirloom/internal/domain"
	"heirloom/internal/providers/restore"
)

// Candidate is one provider the policy may choose.
type Candidate struct {
	Name    string
	Adapter restore.Restorer
	// AmbientCredential is the deployment's own key for this provider.
	AmbientCredential string
	// AcceptsCallerCredential marks the provider a caller-supplied key is
	// sent to.
	AcceptsCallerCredential bool
}

// Selection is the provider chosen for one upload and the key to call it with.
type Selection struct {
	Candidate  Candidate
	Credential string
}

// Policy is an ordered list of candidates. The first candidate with a usable
// credential wins; there is no fallback after a failed call.
type Policy struct {
	Candidates []Candidate
}

// NewPolicy builds the standard two-provider policy: the primary takes the
// caller's key or its ambient key, the fallback only its ambient key.
func NewPolicy(primary restore.Restorer, primaryKey string, fallback restore.Restorer, fallbackKey string) Policy {
	var p Policy
	if primary != nil {
		p.Candidates = append(p.Candidates, Candidate{
			Name:                    primary.Name(),
			Adapter:                 primary,
			AmbientCredential:       strings.TrimSpace(primaryKey),
			AcceptsCallerCredential: true,
		})
	}
	if fallback != nil {
		p.Candidates = append(p.Candidates, Candidate{
			Name:              fallback.Name(),
			Adapter:           fallback,
			AmbientCredential: strings.TrimSpace(fallbackKey),
		})
	}
	return p
}

// Select picks the provider for an upload. It fails with KindNoCredential
// when no candidate has a key.
func (p Policy) Select(callerCredential string) (Selection, error) {
	caller := strings.TrimSpace(callerCredential)
	for _, c := range p.Candidates {
		if c.Adapter == nil {
			continue
		}
		if c.AcceptsCallerCredential && caller != "" {
			return Selection{Candidate: c, Credential: caller}, nil
		}
		if c.AmbientCredential != "" {
			return Selection{Candidate: c, Credential: c.AmbientCredential}, nil
		}
	}
	return Selection{}, domain.NewError(domain.KindNoCredential, "No AI provider API key configured", domain.ErrNoCredential)
}
