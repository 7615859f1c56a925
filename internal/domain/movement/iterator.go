package movement

import "context"

// Iterator walks query results page by page. It holds no connection between
// pages, so it can be paused, resumed from Cursor, or restarted with Reset.
type Iterator struct {
	repo     Repository
	filter   Filter
	pageSize int

	buf  []Record
	pos  int
	last *Cursor
	done bool
	err  error
}

func newIterator(repo Repository, f Filter, pageSize int) *Iterator {
	return &Iterator{repo: repo, filter: f, pageSize: pageSize}
}

// Next advances to the next record, fetching a page when the buffer is drained.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.pos+1 < len(it.buf) {
		it.pos++
		it.last = CursorAt(it.buf[it.pos])
		return true
	}
	if it.done {
		return false
	}

	page, err := it.repo.Page(ctx, it.filter, it.last, it.pageSize)
	if err != nil {
		it.err = err
		return false
	}
	if len(page) < it.pageSize {
		it.done = true
	}
	if len(page) == 0 {
		return false
	}
	it.buf, it.pos = page, 0
	it.last = CursorAt(page[0])
	return true
}

// Record returns the current record.
func (it *Iterator) Record() Record { return it.buf[it.pos] }

// Err returns the first error encountered.
func (it *Iterator) Err() error { return it.err }

// Cursor returns a token that resumes right after the current record.
func (it *Iterator) Cursor() string {
	if it.last == nil {
		return ""
	}
	return it.last.Encode()
}

// Seek positions the iterator after the given cursor token.
func (it *Iterator) Seek(token string) error {
	c, err := DecodeCursor(token)
	if err != nil {
		return err
	}
	it.reset()
	it.last = c
	return nil
}

// Reset restarts iteration from the newest record.
func (it *Iterator) Reset() { it.reset() }

func (it *Iterator) reset() {
	it.buf, it.pos, it.last, it.done, it.err = nil, 0, nil, false, nil
}
