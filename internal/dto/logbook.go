package dto

// ── 日志本请求 ──

// GetLogbookRequest 按 (学生, 月, 年) 查询日志本
type GetLogbookRequest struct {
	StudentID string `form:"student_id" binding:"required"`
	Month     int    `form:"month"      binding:"required,min=1,max=12"`
	Year      int    `form:"year"       binding:"required,min=2000,max=2100"`
}

// WeeklyEntryData 周记录内容
type WeeklyEntryData struct {
	Activities string `json:"activities" binding:"max=5000"`
	TechSkills string `json:"tech_skills" binding:"max=5000"`
	SoftSkills string `json:"soft_skills" binding:"max=5000"`
	Trainings  string `json:"trainings"  binding:"max=5000"`
}

// SaveWeeklyEntryRequest 保存周记录
// StudentID 由 Handler 从认证上下文注入，不接受客户端传入
type SaveWeeklyEntryRequest struct {
	StudentID  string          `json:"-"`
	Month      int             `json:"month"       binding:"required,min=1,max=12"`
	Year       int             `json:"year"        binding:"required,min=2000,max=2100"`
	WeekNumber int             `json:"week_number" binding:"required,min=1,max=6"`
	Data       WeeklyEntryData `json:"data"        binding:"required"`
}

// SubmitLogbookRequest 提交日志本给导师审批（导师邮箱只从实习登记表读取）
type SubmitLogbookRequest struct {
	LogbookID string `json:"logbook_id" binding:"required,uuid"`
}

// MentorDecisionRequest 导师审批决定
type MentorDecisionRequest struct {
	Token           string `json:"token"            binding:"required"`
	Status          string `json:"status"           binding:"required"`
	Feedback        string `json:"feedback"         binding:"max=5000"`
	RejectionReason string `json:"rejection_reason" binding:"max=5000"`
}

// ── 日志本响应 ──

// WeeklyEntryResponse 周记录
type WeeklyEntryResponse struct {
	WeekNumber  int    `json:"week_number"`
	Activities  string `json:"activities"`
	TechSkills  string `json:"tech_skills"`
	SoftSkills  string `json:"soft_skills"`
	Trainings   string `json:"trainings"`
	LastUpdated string `json:"last_updated"`
}

// LogbookResponse 日志本
type LogbookResponse struct {
	ID              string                `json:"id"`
	StudentID       string                `json:"student_id"`
	Month           int                   `json:"month"`
	Year            int                   `json:"year"`
	Status          string                `json:"status"`
	Weeks           []WeeklyEntryResponse `json:"weeks"`
	MentorEmail     string                `json:"mentor_email"`
	MentorComments  string                `json:"mentor_comments,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	SubmittedAt     *string               `json:"submitted_at,omitempty"`
	DecidedAt       *string               `json:"decided_at,omitempty"`
	Version         int                   `json:"version"`
}

// MentorLogbookResponse 导师审阅页数据
type MentorLogbookResponse struct {
	Logbook     LogbookResponse `json:"logbook"`
	StudentName string          `json:"student_name"`
	CBNumber    string          `json:"cb_number"`
	CompanyName string          `json:"company_name"`
}

// SubmitLogbookResponse 提交结果
type SubmitLogbookResponse struct {
	Logbook     LogbookResponse `json:"logbook"`
	MentorEmail string          `json:"mentor_email"`
	Outcome     string          `json:"outcome"` // notified | reverted
}

// MentorDecisionResponse 审批结果
type MentorDecisionResponse struct {
	LogbookID string `json:"logbook_id"`
	Status    string `json:"status"`
}
