package pagination

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination carries page parameters parsed from a list request.
type Pagination struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p Pagination) Limit() int  { return p.PageSize }
func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

// PageInfo is returned alongside list payloads.
type PageInfo struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
}

func NewPageInfo(p Pagination, total int64) *PageInfo {
	return &PageInfo{Page: p.Page, PageSize: p.PageSize, TotalCount: total}
}
