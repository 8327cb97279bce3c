package model

// Evidence is one retrieved search result used to judge a question
type Evidence struct {
	Title      string        `json:"title"`
	URL        string        `json:"url"`
	Content    string        `json:"content"`               // Snippet returned by the search backend
	RawContent string        `json:"raw_content,omitempty"` // Full page text when requested
	Score      float64       `json:"score,omitempty"`       // Relevance score reported by the backend
	Authority  AuthorityTier `json:"authority,omitempty"`   // Source authority classification
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Government, academic, statutes, official bodies
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  AuthorityTier = 3 // Blogs, forums, personal sites
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Rank orders tiers for sorting; unknown sorts last
func (t AuthorityTier) Rank() int {
	if t == TierUnknown {
		return 4
	}
	return int(t)
}
