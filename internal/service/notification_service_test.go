package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"nextstep/backend/internal/dto"
	"nextstep/backend/internal/model"
)

func TestNotificationService_ListAndMarkRead(t *testing.T) {
	env := newTestEnv()
	logger := zap.NewNop()
	notifier := NewInAppNotifier(env.repo, logger)
	svc := NewNotificationService(env.repo, logger)
	ctx := context.Background()

	notifier.Notify(ctx, "stu-1", "first", model.SeverityInfo, "", "")
	notifier.Notify(ctx, "stu-1", "second", model.SeverityWarning, "logbook", "logbook-1")
	notifier.Notify(ctx, "stu-2", "other", model.SeverityInfo, "", "")

	list, total, err := svc.List(ctx, "stu-1", &dto.NotificationListRequest{})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("期望 2 条通知，实际: %d", total)
	}
	if list[0].Content != "second" || list[0].RelatedType == nil || *list[0].RelatedType != "logbook" {
		t.Errorf("期望最新通知在前且带关联信息，实际: %+v", list[0])
	}
	if list[1].RelatedID != nil {
		t.Error("无关联对象时 RelatedID 应为空")
	}

	if err := svc.MarkRead(ctx, list[0].ID, "stu-1"); err != nil {
		t.Fatalf("MarkRead 应成功: %v", err)
	}
	unread, total, _ := svc.List(ctx, "stu-1", &dto.NotificationListRequest{UnreadOnly: true})
	if total != 1 || unread[0].Content != "first" {
		t.Errorf("期望仅剩 1 条未读，实际: %+v", unread)
	}

	if err := svc.MarkRead(ctx, list[1].ID, "stu-2"); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("他人的通知期望 ErrNotificationNotFound，实际: %v", err)
	}
}

func TestInAppNotifier_NotifyRoles(t *testing.T) {
	env := newTestEnv()
	env.addCoordinator("coord-1")
	env.addCoordinator("coord-2")
	env.addStudent("stu-1", model.StudentStatusIntern)
	notifier := NewInAppNotifier(env.repo, zap.NewNop())

	notifier.NotifyRoles(context.Background(), "hello staff", model.SeverityInfo, "", "", model.RoleCoordinator)

	if len(env.notifications.forUser("coord-1")) != 1 || len(env.notifications.forUser("coord-2")) != 1 {
		t.Error("每位协调员应收到 1 条通知")
	}
	if len(env.notifications.forUser("stu-1")) != 0 {
		t.Error("学生不应收到员工通知")
	}
}
