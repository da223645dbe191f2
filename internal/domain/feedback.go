package domain

import "time"

// FeedbackStatus represents the review state of a user correction.
type FeedbackStatus string

const (
	FeedbackStatusPending   FeedbackStatus = "pending"
	FeedbackStatusApproved  FeedbackStatus = "approved"
	FeedbackStatusRejected  FeedbackStatus = "rejected"
	FeedbackStatusRetracted FeedbackStatus = "retracted"
)

// Feedback is a user-submitted correction to an answer. Once approved by an
// admin it becomes eligible for promotion into the secondary knowledge base.
type Feedback struct {
	ID               string
	UserID           string
	Department       string
	OriginalQuestion string
	OriginalAnswer   string
	CorrectedAnswer  string
	AdminNotes       string
	Status           FeedbackStatus
	CreatedAt        time.Time
	ReviewedAt       *time.Time
	ReviewedBy       string
}

// Validate checks that the status is one of the known review states.
func (s FeedbackStatus) Validate() error {
	if !isValidFeedbackStatus(s) {
		return ErrInvalidFeedbackStatus
	}
	return nil
}

// IsApproved reports whether the feedback may be promoted.
func (f *Feedback) IsApproved() bool {
	return f.Status == FeedbackStatusApproved
}

// ValidateFeedback validates a Feedback instance.
func ValidateFeedback(f *Feedback) error {
	if f == nil {
		return NewDomainError(ErrCodeValidation, "feedback cannot be nil")
	}
	if f.ID == "" {
		return NewDomainError(ErrCodeValidation, "feedback ID is required")
	}
	if f.Department == "" {
		return NewDomainError(ErrCodeValidation, "feedback department is required")
	}
	if f.OriginalQuestion == "" {
		return NewDomainError(ErrCodeValidation, "feedback original question is required")
	}
	if f.CorrectedAnswer == "" {
		return NewDomainError(ErrCodeValidation, "feedback corrected answer is required")
	}
	if !isValidFeedbackStatus(f.Status) {
		return ErrInvalidFeedbackStatus
	}
	return nil
}

func isValidFeedbackStatus(s FeedbackStatus) bool {
	switch s {
	case FeedbackStatusPending, FeedbackStatusApproved,
		FeedbackStatusRejected, FeedbackStatusRetracted:
		return true
	}
	return false
}
