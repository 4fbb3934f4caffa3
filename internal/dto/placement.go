package dto

// ── 实习登记表请求 ──

// SubmitPlacementRequest 提交实习登记表
type SubmitPlacementRequest struct {
	CompanyName    string `json:"company_name"    binding:"required,max=200"`
	CompanyAddress string `json:"company_address" binding:"max=500"`
	CompanyEmail   string `json:"company_email"   binding:"omitempty,email"`
	Position       string `json:"position"        binding:"required,max=200"`
	JobRole        string `json:"job_role"        binding:"max=200"`
	Description    string `json:"description"     binding:"max=5000"`
	StartDate      string `json:"start_date"      binding:"required"` // YYYY-MM-DD
	EndDate        string `json:"end_date"        binding:"required"`
	MentorName     string `json:"mentor_name"     binding:"required,max=100"`
	MentorEmail    string `json:"mentor_email"    binding:"required,email"`
	MentorPhone    string `json:"mentor_phone"    binding:"max=50"`
}

// ── 实习登记表响应 ──

// PlacementResponse 实习登记表
type PlacementResponse struct {
	ID             string `json:"id"`
	StudentID      string `json:"student_id"`
	StudentName    string `json:"student_name,omitempty"`
	CBNumber       string `json:"cb_number,omitempty"`
	CompanyName    string `json:"company_name"`
	CompanyAddress string `json:"company_address"`
	CompanyEmail   string `json:"company_email"`
	Position       string `json:"position"`
	JobRole        string `json:"job_role"`
	Description    string `json:"description"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	ExpectedMonths int    `json:"expected_months"`
	MentorName     string `json:"mentor_name"`
	MentorEmail    string `json:"mentor_email"`
	MentorPhone    string `json:"mentor_phone"`
	CreatedAt      string `json:"created_at"`
}
