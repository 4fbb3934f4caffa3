package model

import "time"

// PlacementForm 实习登记表，对应 placement_forms（每个学生唯一）
type PlacementForm struct {
	PlacementID              string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"placement_id"`
	StudentID                string    `gorm:"type:uuid;not null;uniqueIndex"                 json:"student_id"`
	CompanyName              string    `gorm:"type:varchar(200);not null"                     json:"company_name"`
	CompanyAddress           string    `gorm:"type:varchar(500);not null;default:''"          json:"company_address"`
	CompanyEmail             string    `gorm:"type:varchar(255);not null;default:''"          json:"company_email"`
	Position                 string    `gorm:"type:varchar(200);not null"                     json:"position"`
	JobRole                  string    `gorm:"type:varchar(200);not null;default:''"          json:"job_role"`
	Description              string    `gorm:"type:text;not null;default:''"                  json:"description"`
	StartDate                time.Time `gorm:"type:date;not null"                             json:"start_date"`
	EndDate                  time.Time `gorm:"type:date;not null"                             json:"end_date"`
	MentorName               string    `gorm:"type:varchar(100);not null"                     json:"mentor_name"`
	MentorEmail              string    `gorm:"type:varchar(255);not null;default:''"          json:"mentor_email"`
	MentorPhone              string    `gorm:"type:varchar(50);not null;default:''"           json:"mentor_phone"`
	OneMonthNotificationSent bool      `gorm:"not null;default:false"                         json:"one_month_notification_sent"`
	TwoWeekNotificationSent  bool      `gorm:"not null;default:false"                         json:"two_week_notification_sent"`
	BaseModel
}

// TableName 指定表名
func (PlacementForm) TableName() string { return "placement_forms" }
