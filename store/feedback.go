package store

import "context"

// FeedbackSignal classifies a user action on a recommended item.
type FeedbackSignal string

const (
	SignalHelpful         FeedbackSignal = "helpful"
	SignalSomewhatHelpful FeedbackSignal = "somewhat_helpful"
	SignalNotHelpful      FeedbackSignal = "not_helpful"
	SignalClicked         FeedbackSignal = "clicked"
	SignalSaved           FeedbackSignal = "saved"
	SignalIgnored         FeedbackSignal = "ignored"
)

// Valid reports whether the signal is a known value.
func (s FeedbackSignal) Valid() bool {
	switch s {
	case SignalHelpful, SignalSomewhatHelpful, SignalNotHelpful,
		SignalClicked, SignalSaved, SignalIgnored:
		return true
	}
	return false
}

// IsExplicitRating reports whether the signal is an explicit helpfulness
// rating, which feeds the rolling helpful ratio.
func (s FeedbackSignal) IsExplicitRating() bool {
	switch s {
	case SignalHelpful, SignalSomewhatHelpful, SignalNotHelpful:
		return true
	}
	return false
}

// IsPositive reports whether an explicit rating counts as helpful.
func (s FeedbackSignal) IsPositive() bool {
	return s == SignalHelpful || s == SignalSomewhatHelpful
}

// FeedbackEvent is an append-only user feedback record, consumed exactly once
// by the learning loop.
type FeedbackEvent struct {
	ID            int64
	UserID        string
	OpportunityID string
	Signal        FeedbackSignal
	CreatedTs     int64
	Processed     bool
}

// FindFeedbackEvent is the find condition for feedback events.
// Results are ordered by created_ts ascending so the loop drains oldest first.
type FindFeedbackEvent struct {
	Processed *bool
	Limit     *int
}

// CreateFeedbackEvent appends a feedback event.
func (s *Store) CreateFeedbackEvent(ctx context.Context, create *FeedbackEvent) (*FeedbackEvent, error) {
	return s.driver.CreateFeedbackEvent(ctx, create)
}

// ListFeedbackEvents lists feedback events.
func (s *Store) ListFeedbackEvents(ctx context.Context, find *FindFeedbackEvent) ([]*FeedbackEvent, error) {
	return s.driver.ListFeedbackEvents(ctx, find)
}

// MarkFeedbackEventsProcessed flips processed to true for the given events in
// one durable batch. All-or-nothing: a failure leaves every event unprocessed
// so the next run re-selects them.
func (s *Store) MarkFeedbackEventsProcessed(ctx context.Context, ids []int64) error {
	return s.driver.MarkFeedbackEventsProcessed(ctx, ids)
}

// CountExplicitFeedback counts processed explicit ratings created at or after
// sinceTs, returning the helpful count and the total.
func (s *Store) CountExplicitFeedback(ctx context.Context, sinceTs int64) (helpful int64, total int64, err error) {
	return s.driver.CountExplicitFeedback(ctx, sinceTs)
}
