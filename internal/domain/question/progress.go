package question

// OCRProgress is 100 once the accepted OCR pair is set, else 0. It is
// recomputed on read, never stored.
func (q *Question) OCRProgress() int {
	if q.AcceptedQuestion != "" && q.AcceptedAnswer != "" {
		return 100
	}
	return 0
}

// RewriteProgress is 20 times the number of approved rewrite slots,
// recomputed on read.
func (q *Question) RewriteProgress() int {
	approved := 0
	for i := range q.Rewrites {
		if q.Rewrites[i].Review.Status == ReviewApproved {
			approved++
		}
	}
	return approved * 20
}

// Summarize projects the question into its list view.
func (q *Question) Summarize() Summary {
	return Summary{
		ID:              q.ID,
		Subject:         q.Subject,
		Grade:           q.Grade,
		QuestionType:    q.QuestionType,
		Source:          q.Source,
		Status:          q.Status,
		OCRProgress:     q.OCRProgress(),
		RewriteProgress: q.RewriteProgress(),
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
}

// AggregateOutcome is the result of reducing the five rewrite reviews.
type AggregateOutcome int

const (
	// AggregateUndecided means at least one review is still pending and
	// none requested changes.
	AggregateUndecided AggregateOutcome = iota
	// AggregateApproved means all five reviews approved.
	AggregateApproved
	// AggregateRejected means at least one review requested changes.
	AggregateRejected
)

// AggregateRewrites reduces the five slot reviews to a single outcome.
// Rejection dominates: one changes_requested outweighs four approvals.
func AggregateRewrites(slots [RewriteSlots]RewriteSlot) AggregateOutcome {
	approved := 0
	for i := range slots {
		switch slots[i].Review.Status {
		case ReviewChangesRequested:
			return AggregateRejected
		case ReviewApproved:
			approved++
		}
	}
	if approved == RewriteSlots {
		return AggregateApproved
	}
	return AggregateUndecided
}
