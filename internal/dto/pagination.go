package dto

// 列表接口分页上限：协调员查看实习登记表与学生查看站内通知共用
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// PaginationRequest 列表查询参数
type PaginationRequest struct {
	Page     int `form:"page"      binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=50"`
}

// GetPage 页码从 1 开始
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 未传时取 DefaultPageSize，超出 MaxPageSize 时截断
func (p *PaginationRequest) GetPageSize() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.PageSize
}

// GetOffset 按截断后的每页数量计算偏移
func (p *PaginationRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}
