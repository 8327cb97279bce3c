package search

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/verity/internal/model"
)

// AuthorityClassifier assigns source authority tiers to evidence URLs
type AuthorityClassifier struct {
	domainMap    map[string]model.AuthorityTier
	primary      []string
	secondary    []string
	pathPatterns []compiledPattern
}

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.AuthorityTier
}

// NewAuthorityClassifier builds a classifier. Invalid path patterns are an error.
func NewAuthorityClassifier(config model.AuthorityConfig) (*AuthorityClassifier, error) {
	a := &AuthorityClassifier{
		domainMap: make(map[string]model.AuthorityTier, len(config.DomainMap)),
		primary:   normalizeDomains(config.PrimaryDomains),
		secondary: normalizeDomains(config.SecondaryDomains),
	}

	for host, tier := range config.DomainMap {
		a.domainMap[strings.ToLower(host)] = ParseTier(tier)
	}

	for _, p := range config.PathPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid authority path pattern %q: %w", p.Pattern, err)
		}
		a.pathPatterns = append(a.pathPatterns, compiledPattern{pattern: re, tier: ParseTier(p.Tier)})
	}

	return a, nil
}

// Classify classifies a URL into an authority tier
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return model.TierTertiary
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	if tier, ok := a.domainMap[host]; ok {
		return tier
	}
	if matchesDomain(host, a.primary) {
		return model.TierPrimary
	}
	if matchesDomain(host, a.secondary) {
		return model.TierSecondary
	}

	for _, cp := range a.pathPatterns {
		if cp.pattern.MatchString(parsed.Path) {
			return cp.tier
		}
	}

	// Government and academic hosts
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".ac.uk") {
		return model.TierPrimary
	}

	return model.TierTertiary
}

// Rank classifies every result and orders them primary first. The sort is
// stable so the search engine's relevance order holds within a tier.
func (a *AuthorityClassifier) Rank(results []model.Evidence) []model.Evidence {
	ranked := make([]model.Evidence, len(results))
	copy(ranked, results)

	for i := range ranked {
		ranked[i].Authority = a.Classify(ranked[i].URL)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Authority.Rank() < ranked[j].Authority.Rank()
	})
	return ranked
}

// ParseTier converts a tier name or number to AuthorityTier
func ParseTier(tier string) model.AuthorityTier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}

// matchesDomain reports whether host equals or is a subdomain of any domain
func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
