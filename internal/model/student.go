package model

// 学生状态
const (
	StudentStatusNonIntern = "non-intern"
	StudentStatusNotHired  = "not hired"
	StudentStatusIntern    = "intern"
	StudentStatusCompleted = "Completed"
)

// Student 学生档案表，对应 students
// StudentID 与认证服务中学生用户的 user_id 一致
type Student struct {
	StudentID string `gorm:"type:uuid;primaryKey"                           json:"student_id"`
	CBNumber  string `gorm:"type:varchar(50);not null;uniqueIndex"          json:"cb_number"`
	FirstName string `gorm:"type:varchar(100);not null"                     json:"first_name"`
	LastName  string `gorm:"type:varchar(100);not null"                     json:"last_name"`
	Email     string `gorm:"type:varchar(255);not null"                     json:"email"`
	Status    string `gorm:"type:varchar(20);not null;default:'non-intern'" json:"status"`
	BaseModel
}

// TableName 指定表名
func (Student) TableName() string { return "students" }

// FullName 学生显示名
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// CanResubmitPlacement 尚未成为实习生时允许重新提交实习登记表
func (s *Student) CanResubmitPlacement() bool {
	return s.Status == StudentStatusNonIntern || s.Status == StudentStatusNotHired
}
