package shared

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps limit into [1, max] (def when zero) and rejects negative values.
func NewPage(limit, offset, def, max int) (Page, error) {
	if limit < 0 {
		return Page{}, WrapError("shared", "NewPage", ErrNegativeValue, "limit cannot be negative", nil)
	}
	if offset < 0 {
		return Page{}, WrapError("shared", "NewPage", ErrNegativeValue, "offset cannot be negative", nil)
	}
	if limit == 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return Page{Limit: limit, Offset: offset}, nil
}

// Rank returns the 1-based position of the index-th row of this page.
func (p Page) Rank(index int) int {
	return p.Offset + index + 1
}
