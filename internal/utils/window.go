package utils

// DefaultPerPage is the page size used when a caller passes perPage < 1.
const DefaultPerPage = 50

// Window locates one page of a sequence that is paged backward from its
// newest element. Pages are 1-based: page 1 holds the newest perPage items,
// page 2 the perPage items before those, and so on.
//
// Given total items, it returns the half-open slice [start, start+length)
// to read, and whether older items remain before start. Consecutive pages
// never overlap, never leave a gap, and the last page is the (possibly
// partial) oldest one. A page past the oldest item yields length 0 and
// hasMore false.
//
// Example with total=120, perPage=50:
//
//	page 1 -> start 70, length 50, hasMore true
//	page 2 -> start 20, length 50, hasMore true
//	page 3 -> start 0,  length 20, hasMore false
//	page 4 -> start 0,  length 0,  hasMore false
func Window(total, page, perPage int) (start, length int, hasMore bool) {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	if total < 0 {
		total = 0
	}

	start = total - page*perPage
	length = perPage
	if start < 0 {
		length = perPage + start
		start = 0
	}
	if length <= 0 {
		return 0, 0, false
	}
	return start, length, start > 0
}
