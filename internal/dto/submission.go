package dto

// ── 结业材料请求 ──

// ScheduleSubmissionRequest 安排结业答辩时间
type ScheduleSubmissionRequest struct {
	ScheduledAt string `json:"scheduled_at" binding:"required"` // RFC3339
}

// CompleteSubmissionRequest 标记结业提交完成（学生本人调用时可省略）
type CompleteSubmissionRequest struct {
	StudentID string `json:"student_id"`
}

// ── 结业材料响应 ──

// ArtifactResponse 结业材料
type ArtifactResponse struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"student_id"`
	Kind        string  `json:"kind"`
	Attempt     int     `json:"attempt"`
	FileURL     string  `json:"file_url"`
	FileName    string  `json:"file_name"`
	SubmittedAt string  `json:"submitted_at"`
	ScheduledAt *string `json:"scheduled_at,omitempty"`
}

// LogbookProgress 日志本完成度
type LogbookProgress struct {
	Complete    bool `json:"complete"`
	Expected    int  `json:"expected"`
	Approved    int  `json:"approved"`
	ActualTotal int  `json:"actual_total"`
}

// StudentSubmissionsResponse 单个学生的结业提交概况
type StudentSubmissionsResponse struct {
	StudentID         string            `json:"student_id"`
	GradeSheet        *ArtifactResponse `json:"grade_sheet"`
	GradeSheetCount   int64             `json:"grade_sheet_count"`
	Presentation      *ArtifactResponse `json:"presentation"`
	PresentationCount int64             `json:"presentation_count"`
	MaxAttempts       int               `json:"max_attempts"`
	LogbookStatus     LogbookProgress   `json:"logbook_status"`
}

// SubmissionListItem 员工端提交列表项（每个学生每类只取最新一条）
type SubmissionListItem struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"` // logbook | grade_sheet | presentation
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	CBNumber    string  `json:"cb_number"`
	Status      string  `json:"status"`
	Date        string  `json:"date"`
	ScheduledAt *string `json:"scheduled_at,omitempty"`
	FileURL     string  `json:"file_url,omitempty"`
	Period      string  `json:"period,omitempty"` // 日志本月份，如 "March 2025"
}
