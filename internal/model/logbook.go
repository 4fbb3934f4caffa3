package model

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// 日志本状态
const (
	LogbookStatusDraft    = "Draft"
	LogbookStatusPending  = "Pending"
	LogbookStatusApproved = "Approved"
	LogbookStatusRejected = "Rejected"
)

// WeeklyEntry 周记录，内嵌于日志本 weeks 列（JSONB）
type WeeklyEntry struct {
	WeekNumber  int       `json:"week_number"`
	Activities  string    `json:"activities"`
	TechSkills  string    `json:"tech_skills"`
	SoftSkills  string    `json:"soft_skills"`
	Trainings   string    `json:"trainings"`
	LastUpdated time.Time `json:"last_updated"`
}

// Logbook 月度日志本，对应 logbooks，(student_id, month, year) 唯一
type Logbook struct {
	LogbookID       string                           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"logbook_id"`
	StudentID       string                           `gorm:"type:uuid;not null"                             json:"student_id"`
	Month           int                              `gorm:"type:smallint;not null"                         json:"month"`
	Year            int                              `gorm:"type:smallint;not null"                         json:"year"`
	Status          string                           `gorm:"type:varchar(20);not null;default:'Draft'"      json:"status"`
	Weeks           datatypes.JSONSlice[WeeklyEntry] `gorm:"type:jsonb;not null;default:'[]'"               json:"weeks"`
	MentorEmail     string                           `gorm:"type:varchar(255);not null;default:''"          json:"mentor_email"`
	MentorComments  string                           `gorm:"type:text;not null;default:''"                  json:"mentor_comments"`
	RejectionReason string                           `gorm:"type:text;not null;default:''"                  json:"rejection_reason"`
	SubmittedAt     *time.Time                       `gorm:"type:timestamptz"                               json:"submitted_at,omitempty"`
	DecidedAt       *time.Time                       `gorm:"type:timestamptz"                               json:"decided_at,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (Logbook) TableName() string { return "logbooks" }

// IsEditable 仅草稿与被驳回的日志本允许编辑周记录
func (l *Logbook) IsEditable() bool {
	return l.Status == LogbookStatusDraft || l.Status == LogbookStatusRejected
}

// IsFinalized 导师已给出决定
func (l *Logbook) IsFinalized() bool {
	return l.Status == LogbookStatusApproved || l.Status == LogbookStatusRejected
}

// UpsertWeek 按周次替换或追加周记录，并保持按周次升序
func (l *Logbook) UpsertWeek(entry WeeklyEntry) {
	for i := range l.Weeks {
		if l.Weeks[i].WeekNumber == entry.WeekNumber {
			l.Weeks[i] = entry
			return
		}
	}
	l.Weeks = append(l.Weeks, entry)
	sort.SliceStable(l.Weeks, func(i, j int) bool {
		return l.Weeks[i].WeekNumber < l.Weeks[j].WeekNumber
	})
}
