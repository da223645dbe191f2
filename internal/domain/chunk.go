package domain

import "time"

// AccessLevel is an ordered clearance tier. A principal at level L may read
// chunks whose access level sorts at or below L.
type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessEmployee   AccessLevel = "employee"
	AccessManager    AccessLevel = "manager"
	AccessSeniorMgmt AccessLevel = "senior_mgmt"
	AccessExecutive  AccessLevel = "executive"
)

// accessOrder defines the total order over access levels, lowest first.
var accessOrder = []AccessLevel{
	AccessPublic,
	AccessEmployee,
	AccessManager,
	AccessSeniorMgmt,
	AccessExecutive,
}

// Rank returns the position of the level in the total order, or -1 for an
// unknown level.
func (l AccessLevel) Rank() int {
	for i, level := range accessOrder {
		if level == l {
			return i
		}
	}
	return -1
}

// Allows reports whether a principal at level l may read content at required.
func (l AccessLevel) Allows(required AccessLevel) bool {
	lr, rr := l.Rank(), required.Rank()
	if lr < 0 || rr < 0 {
		return false
	}
	return lr >= rr
}

// LevelsUpTo returns every access level readable by a principal at l, lowest
// first. Unknown levels degrade to public-only visibility.
func LevelsUpTo(l AccessLevel) []AccessLevel {
	rank := l.Rank()
	if rank < 0 {
		rank = 0
	}
	levels := make([]AccessLevel, rank+1)
	copy(levels, accessOrder[:rank+1])
	return levels
}

// Validate checks that the level is one of the known tiers.
func (l AccessLevel) Validate() error {
	if l.Rank() < 0 {
		return ErrInvalidAccessLevel
	}
	return nil
}

// ParseAccessLevel validates a raw access level string.
func ParseAccessLevel(s string) (AccessLevel, error) {
	level := AccessLevel(s)
	if level.Rank() < 0 {
		return "", ErrInvalidAccessLevel
	}
	return level, nil
}

// SourceTier identifies which knowledge base a chunk belongs to.
type SourceTier string

const (
	// TierPrimary holds chunks built from uploaded source documents.
	TierPrimary SourceTier = "primary"
	// TierSecondary holds chunks built from admin-approved feedback.
	TierSecondary SourceTier = "secondary"
)

// Validate checks that the tier is known.
func (t SourceTier) Validate() error {
	if t != TierPrimary && t != TierSecondary {
		return ErrInvalidSourceTier
	}
	return nil
}

// ParseSourceTier validates a raw source tier string.
func ParseSourceTier(s string) (SourceTier, error) {
	tier := SourceTier(s)
	if tier != TierPrimary && tier != TierSecondary {
		return "", ErrInvalidSourceTier
	}
	return tier, nil
}

// DocumentChunk is the unit of retrieval: a text span with its embedding and
// the metadata that scopes who may retrieve it. Chunks are created in bulk at
// ingestion or feedback promotion and deleted by document or feedback id;
// they are never mutated in place.
type DocumentChunk struct {
	ID           string
	Department   string
	Content      string
	Embedding    []float32
	AccessLevel  AccessLevel
	SourceTier   SourceTier
	IsCrossDept  bool
	DocumentName string
	DocumentType string
	ContentHash  string
	FeedbackID   string
	UploadedBy   string
	CreatedAt    time.Time
}

// ValidateChunk checks a chunk before storage. expectedDim of 0 skips the
// dimension check.
func ValidateChunk(c *DocumentChunk, expectedDim int) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "chunk cannot be nil")
	}
	if c.ID == "" {
		return NewDomainError(ErrCodeValidation, "chunk ID is required")
	}
	if c.Department == "" {
		return NewDomainError(ErrCodeValidation, "chunk department is required")
	}
	if c.Content == "" {
		return NewDomainError(ErrCodeValidation, "chunk content is required")
	}
	if c.AccessLevel.Rank() < 0 {
		return ErrInvalidAccessLevel
	}
	if c.SourceTier != TierPrimary && c.SourceTier != TierSecondary {
		return ErrInvalidSourceTier
	}
	if expectedDim > 0 && len(c.Embedding) != expectedDim {
		return ErrDimensionMismatch
	}
	return nil
}
