package model

import "time"

// 结业材料类型
const (
	ArtifactKindGradeSheet   = "grade_sheet"
	ArtifactKindPresentation = "presentation"
)

// FinalArtifact 结业材料，对应 final_artifacts，按 (student_id, kind) 追加，attempt 从 1 递增
type FinalArtifact struct {
	ArtifactID  string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"artifact_id"`
	StudentID   string     `gorm:"type:uuid;not null"                             json:"student_id"`
	Kind        string     `gorm:"type:varchar(20);not null"                      json:"kind"`
	Attempt     int        `gorm:"type:smallint;not null"                         json:"attempt"`
	FileURL     string     `gorm:"type:varchar(500);not null"                     json:"file_url"`
	FileName    string     `gorm:"type:varchar(255);not null;default:''"          json:"file_name"`
	SubmittedAt time.Time  `gorm:"type:timestamptz;not null"                      json:"submitted_at"`
	ScheduledAt *time.Time `gorm:"type:timestamptz"                               json:"scheduled_at,omitempty"` // 仅 presentation
	BaseModel
}

// TableName 指定表名
func (FinalArtifact) TableName() string { return "final_artifacts" }

// ValidArtifactKind 校验材料类型
func ValidArtifactKind(kind string) bool {
	return kind == ArtifactKindGradeSheet || kind == ArtifactKindPresentation
}
