package handler

import (
	"errors"

	"nextstep/backend/internal/service"
	pkgerrors "nextstep/backend/pkg/errors"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Logbook      *LogbookHandler
	Mentor       *MentorHandler
	Submission   *SubmissionHandler
	Placement    *PlacementHandler
	Student      *StudentHandler
	Notification *NotificationHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Logbook:      NewLogbookHandler(svc.Logbook, svc.Approval),
		Mentor:       NewMentorHandler(svc.Approval),
		Submission:   NewSubmissionHandler(svc.Submission),
		Placement:    NewPlacementHandler(svc.Placement),
		Student:      NewStudentHandler(svc.Student),
		Notification: NewNotificationHandler(svc.Notification),
	}
}

func isLockTimeout(err error) bool {
	return errors.Is(err, pkgerrors.ErrLockTimeout)
}
