package question

// ListOptions provides filtering and pagination for listing questions.
type ListOptions struct {
	Status       Status
	Subject      string
	Grade        string
	QuestionType string
	Source       string
	// AssignedTo restricts results to questions where the given user holds
	// any of the four assignment fields.
	AssignedTo string
	// ActiveOnly drops questions in terminal states (done, archived).
	ActiveOnly bool
	Page       int
	PageSize   int
}

// Normalize clamps pagination to sane bounds.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 20
	}
	if o.PageSize > 100 {
		o.PageSize = 100
	}
}

// Offset returns the row offset for the current page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}
