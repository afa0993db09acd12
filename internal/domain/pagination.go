package domain

// MaxPage bounds page numbers so the row offset cannot overflow.
const MaxPage = 100_000

// Pagination is the page metadata returned next to every paginated list.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	HasMore  bool `json:"has_more"`
}

func NewPagination(page, pageSize, total int) Pagination {
	return Pagination{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  page*pageSize < total,
	}
}

// NormalizePage clamps page to 1..MaxPage and pageSize to 1..maxSize, falling back
// to defaultSize when pageSize is unset. It returns the row offset too.
func NormalizePage(page, pageSize, defaultSize, maxSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize, (page - 1) * pageSize
}
