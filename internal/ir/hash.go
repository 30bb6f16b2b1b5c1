package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRuleSet = "patchwork/ruleset/v1"
	DomainSource  = "patchwork/source/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleSetID computes the content-addressed id of a rule set.
//
// The id covers owner, find, all and the declarative part of every rule.
// Function replacements and predicates cannot be hashed; seq disambiguates
// two registrations that are otherwise identical.
func RuleSetID(rs RuleSet) (string, error) {
	rules := make([]any, len(rs.Rules))
	for i, r := range rs.Rules {
		rules[i] = map[string]any{
			"pattern":  r.Pattern.Source,
			"literal":  r.Pattern.Literal,
			"template": r.Replacement.Template,
			"func":     r.Replacement.Func != nil,
			"atomic":   r.Atomic,
			"global":   r.Global,
		}
	}
	obj := map[string]any{
		"owner": rs.Owner,
		"find":  rs.Find,
		"all":   rs.All,
		"rules": rules,
		"seq":   rs.Seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RuleSetID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

// MustRuleSetID is like RuleSetID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRuleSetID(rs RuleSet) string {
	id, err := RuleSetID(rs)
	if err != nil {
		panic(err)
	}
	return id
}

// SourceDigest returns the content digest of module source text.
// The journal stores digests instead of whole sources.
func SourceDigest(text string) string {
	return hashWithDomain(DomainSource, []byte(text))
}
