package taxrules

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"sort"

	"golang.org/x/crypto/blake2b"
)

type pairKey struct {
	origin      string
	destination string
}

// Snapshot is a validated, indexed and immutable view of a Bundle. All
// lookups are read-only, so a Snapshot is shared by concurrent calculations
// without synchronization.
type Snapshot struct {
	declared string
	digest   string

	zips          map[string]ZipEntry
	states        map[string]StateRule
	policies      map[pairKey]Policy
	defaultPolicy *Policy

	supported []string
	stubs     []string
}

// NewSnapshot validates b and builds a Snapshot from it. The bundle is not
// retained; later changes to b do not affect the snapshot.
func NewSnapshot(b *Bundle) (*Snapshot, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", ErrInvalidBundle)
	}
	if err := Validate(b); err != nil {
		return nil, err
	}

	canonical, err := json.Marshal(canonicalize(b))
	if err != nil {
		return nil, fmt.Errorf("encoding bundle for digest: %w", err)
	}
	sum := blake2b.Sum256(canonical)

	s := &Snapshot{
		declared: b.Version,
		digest:   hex.EncodeToString(sum[:]),
		zips:     make(map[string]ZipEntry, len(b.Jurisdictions)),
		states:   make(map[string]StateRule, len(b.States)),
		policies: make(map[pairKey]Policy, len(b.Reciprocity.Pairs)),
	}

	for _, z := range b.Jurisdictions {
		z.Levels = append([]LevelRate(nil), z.Levels...)
		s.zips[z.PostalCode] = z
	}

	for _, r := range b.States {
		r.Taxability = maps.Clone(r.Taxability)
		if r.ClassBanded != nil {
			cb := *r.ClassBanded
			cb.Bands = append([]Band(nil), cb.Bands...)
			r.ClassBanded = &cb
		}
		s.states[r.State] = r
		if r.Status == StatusImplemented {
			s.supported = append(s.supported, r.State)
		} else {
			s.stubs = append(s.stubs, r.State)
		}
	}
	sort.Strings(s.supported)
	sort.Strings(s.stubs)

	for _, p := range b.Reciprocity.Pairs {
		s.policies[pairKey{p.Origin, p.Destination}] = p
	}
	if b.Reciprocity.Default != nil {
		d := *b.Reciprocity.Default
		s.defaultPolicy = &d
	}

	return s, nil
}

// canonicalize returns a copy of b with its collections in a stable order, so
// the digest depends on content only and not on how a source ordered rows.
func canonicalize(b *Bundle) *Bundle {
	c := &Bundle{
		Version:       b.Version,
		Jurisdictions: append([]ZipEntry{}, b.Jurisdictions...),
		States:        append([]StateRule{}, b.States...),
		Reciprocity: ReciprocityTable{
			Default: b.Reciprocity.Default,
			Pairs:   append([]Policy{}, b.Reciprocity.Pairs...),
		},
	}
	sort.Slice(c.Jurisdictions, func(i, j int) bool {
		return c.Jurisdictions[i].PostalCode < c.Jurisdictions[j].PostalCode
	})
	sort.Slice(c.States, func(i, j int) bool {
		return c.States[i].State < c.States[j].State
	})
	sort.Slice(c.Reciprocity.Pairs, func(i, j int) bool {
		pi, pj := c.Reciprocity.Pairs[i], c.Reciprocity.Pairs[j]
		if pi.Origin != pj.Origin {
			return pi.Origin < pj.Origin
		}
		return pi.Destination < pj.Destination
	})
	for i := range c.States {
		if c.States[i].Taxability == nil {
			c.States[i].Taxability = map[Category]bool{}
		}
	}
	return c
}

// Version identifies the snapshot: the declared bundle version plus a short
// content digest, so two bundles with the same declared version but
// different data are distinguishable.
func (s *Snapshot) Version() string {
	return s.declared + "+" + s.digest[:8]
}

// DeclaredVersion returns the version string written in the bundle.
func (s *Snapshot) DeclaredVersion() string { return s.declared }

// Digest returns the full hex blake2b-256 digest of the bundle.
func (s *Snapshot) Digest() string { return s.digest }

// Zip looks up the rate table entry for a postal code.
func (s *Snapshot) Zip(postalCode string) (ZipEntry, bool) {
	z, ok := s.zips[postalCode]
	if !ok {
		return ZipEntry{}, false
	}
	z.Levels = append([]LevelRate(nil), z.Levels...)
	return z, true
}

// State looks up the rule module of a state, implemented or stub.
func (s *Snapshot) State(code string) (StateRule, bool) {
	r, ok := s.states[code]
	if !ok {
		return StateRule{}, false
	}
	r.Taxability = maps.Clone(r.Taxability)
	return r, true
}

// Policy looks up the reciprocity policy for a state pair. When the pair is
// not configured, the default policy is returned if one exists; isDefault
// reports that case.
func (s *Snapshot) Policy(origin, destination string) (p Policy, isDefault, ok bool) {
	if p, ok := s.policies[pairKey{origin, destination}]; ok {
		return p, false, true
	}
	if s.defaultPolicy != nil {
		return *s.defaultPolicy, true, true
	}
	return Policy{}, false, false
}

// SupportedStates returns the sorted codes of implemented states.
func (s *Snapshot) SupportedStates() []string {
	return append([]string(nil), s.supported...)
}

// StubStates returns the sorted codes of states known but not implemented.
func (s *Snapshot) StubStates() []string {
	return append([]string(nil), s.stubs...)
}

// JurisdictionCount returns the number of postal codes in the rate table.
func (s *Snapshot) JurisdictionCount() int { return len(s.zips) }

// StateCount returns the number of state rule modules, stubs included.
func (s *Snapshot) StateCount() int { return len(s.states) }

// DiffRates lists every level rate in next that is new or differs from prev,
// ordered by postal code then level position. A nil prev reports nothing.
func DiffRates(prev, next *Snapshot) []RateChange {
	if prev == nil || next == nil {
		return nil
	}

	codes := make([]string, 0, len(next.zips))
	for code := range next.zips {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var changes []RateChange
	for _, code := range codes {
		entry := next.zips[code]
		old := prev.zips[code]
		for _, l := range entry.Levels {
			var oldLevel *LevelRate
			for i := range old.Levels {
				if old.Levels[i].Level == l.Level && old.Levels[i].Name == l.Name {
					oldLevel = &old.Levels[i]
					break
				}
			}
			switch {
			case oldLevel == nil:
				changes = append(changes, RateChange{PostalCode: code, Level: l.Level, Name: l.Name, NewRate: l.Rate})
			case !oldLevel.Rate.Equal(l.Rate):
				changes = append(changes, RateChange{PostalCode: code, Level: l.Level, Name: l.Name, OldRate: oldLevel.Rate, NewRate: l.Rate})
			}
		}
	}
	return changes
}
