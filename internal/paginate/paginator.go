package paginate

import "strconv"

// Paginator splits a result set of Count rows into pages of PerPage rows.
type Paginator struct {
	Count   int
	PerPage int
}

// Page is a resolved window into the result set.
type Page struct {
	Number int
	Offset int
	Limit  int
}

// New builds a paginator. A non-positive perPage is treated as one row per page.
func New(count, perPage int) Paginator {
	if count < 0 {
		count = 0
	}
	if perPage <= 0 {
		perPage = 1
	}
	return Paginator{Count: count, PerPage: perPage}
}

// NumPages returns the page count. An empty result still has one (empty) page.
func (p Paginator) NumPages() int {
	if p.Count == 0 {
		return 1
	}
	return (p.Count + p.PerPage - 1) / p.PerPage
}

// GetPage resolves a raw page parameter. Missing or non-integer values yield the
// first page; numbers outside 1..NumPages yield the last page.
func (p Paginator) GetPage(raw string) Page {
	number, err := strconv.Atoi(raw)
	if err != nil {
		number = 1
	}
	if number < 1 || number > p.NumPages() {
		number = p.NumPages()
	}
	return p.page(number)
}

func (p Paginator) page(number int) Page {
	offset := (number - 1) * p.PerPage
	limit := p.PerPage
	if offset+limit > p.Count {
		limit = p.Count - offset
	}
	if limit < 0 {
		limit = 0
	}
	return Page{Number: number, Offset: offset, Limit: limit}
}
