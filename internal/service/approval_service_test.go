package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"nextstep/backend/config"
	"nextstep/backend/internal/model"
	"nextstep/backend/pkg/jwt"
	"nextstep/backend/pkg/lock"
)

// ── 测试辅助 ──

type approvalFixture struct {
	svc       ApprovalService
	env       *testEnv
	sender    *mockSender
	blacklist *mockBlacklist
	jwtMgr    *jwt.Manager
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{FrontendURL: "https://nextstep.example.com/"},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret-key-at-least-32-characters",
			Issuer:        "nextstep-test",
			MentorLinkTTL: 7 * 24 * time.Hour,
		},
		Workflow: config.WorkflowConfig{
			NotifierTimeout:     time.Second,
			LockWait:            time.Second,
			MaxArtifactAttempts: 3,
		},
	}
}

func setupTestApprovalService() *approvalFixture {
	return setupTestApprovalServiceWith(testConfig())
}

func setupTestApprovalServiceWith(cfg *config.Config) *approvalFixture {
	env := newTestEnv()
	env.addStudent("stu-1", model.StudentStatusIntern)
	env.addPlacement("stu-1", date(2025, 1, 1), date(2025, 3, 31), "mentor@acme.example.com")

	f := &approvalFixture{
		env:       env,
		sender:    &mockSender{},
		blacklist: newMockBlacklist(),
		jwtMgr:    jwt.NewManager(&cfg.Auth),
	}
	logger := zap.NewNop()
	f.svc = NewApprovalService(cfg, env.repo, lock.NewKeyedMutex(), f.sender,
		NewInAppNotifier(env.repo, logger), f.jwtMgr, f.blacklist, logger)
	return f
}

func (f *approvalFixture) draft(month int) *model.Logbook {
	return f.env.logbooks.put(&model.Logbook{
		StudentID: "stu-1",
		Month:     month,
		Year:      2025,
		Status:    model.LogbookStatusDraft,
		Weeks:     []model.WeeklyEntry{{WeekNumber: 1, Activities: "work"}},
	})
}

func (f *approvalFixture) pending(month int) (*model.Logbook, string) {
	now := time.Now().UTC().Add(-time.Minute)
	lb := f.env.logbooks.put(&model.Logbook{
		StudentID:   "stu-1",
		Month:       month,
		Year:        2025,
		Status:      model.LogbookStatusPending,
		MentorEmail: "mentor@acme.example.com",
		SubmittedAt: &now,
	})
	token, _, err := f.jwtMgr.GenerateMentorToken(lb.LogbookID, lb.MentorEmail)
	if err != nil {
		panic(err)
	}
	return lb, token
}

// ── Submit 测试 ──

func TestApprovalService_Submit_Success(t *testing.T) {
	f := setupTestApprovalService()
	lb := f.draft(1)

	result, err := f.svc.Submit(context.Background(), lb.LogbookID, "stu-1")
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	if result.Outcome != SubmitOutcomeNotified {
		t.Errorf("期望 Outcome=notified，实际=%s", result.Outcome)
	}

	stored := f.env.logbooks.get(lb.LogbookID)
	if stored.Status != model.LogbookStatusPending {
		t.Errorf("期望 Status=Pending，实际=%s", stored.Status)
	}
	if stored.SubmittedAt == nil {
		t.Error("SubmittedAt 应被设置")
	}
	if stored.MentorEmail != "mentor@acme.example.com" {
		t.Errorf("导师邮箱应取自实习登记表，实际=%s", stored.MentorEmail)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("期望发送 1 封邮件，实际: %d", len(f.sender.sent))
	}
	msg := f.sender.sent[0]
	if msg.To != "mentor@acme.example.com" || !msg.HTML {
		t.Errorf("邮件收件人或格式错误: %+v", msg)
	}
	if !strings.Contains(msg.Body, "https://nextstep.example.com/verify-logbook/"+lb.LogbookID) {
		t.Error("邮件应包含审批链接")
	}
}

func TestApprovalService_Submit_NotifierFailureRevertsToDraft(t *testing.T) {
	f := setupTestApprovalService()
	f.sender.err = errMailDown
	lb := f.draft(1)

	result, err := f.svc.Submit(context.Background(), lb.LogbookID, "stu-1")
	if err == nil {
		t.Fatal("通知失败时 Submit 应返回错误")
	}
	if !errors.Is(err, ErrSubmissionCancelled) || !errors.Is(err, ErrNotifierFailure) {
		t.Errorf("期望 ErrSubmissionCancelled 且包含 ErrNotifierFailure，实际: %v", err)
	}
	if result == nil || result.Outcome != SubmitOutcomeReverted {
		t.Errorf("期望 Outcome=reverted，实际: %+v", result)
	}

	stored := f.env.logbooks.get(lb.LogbookID)
	if stored.Status != model.LogbookStatusDraft {
		t.Errorf("期望回滚为 Draft，实际=%s", stored.Status)
	}
	if stored.SubmittedAt != nil || stored.MentorEmail != "" {
		t.Errorf("回滚应恢复提交前的字段，实际: %+v", stored)
	}
}

func TestApprovalService_Submit_NotifierTimeoutRevertsToDraft(t *testing.T) {
	cfg := testConfig()
	cfg.Workflow.NotifierTimeout = 50 * time.Millisecond
	f := setupTestApprovalServiceWith(cfg)
	f.sender.block = true
	lb := f.draft(1)

	start := time.Now()
	result, err := f.svc.Submit(context.Background(), lb.LogbookID, "stu-1")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("通知超时后 Submit 应尽快返回，实际耗时: %v", elapsed)
	}
	if !errors.Is(err, ErrSubmissionCancelled) || !errors.Is(err, ErrNotifierFailure) {
		t.Fatalf("期望 ErrSubmissionCancelled 且包含 ErrNotifierFailure，实际: %v", err)
	}
	if result == nil || result.Outcome != SubmitOutcomeReverted {
		t.Errorf("期望 Outcome=reverted，实际: %+v", result)
	}

	stored := f.env.logbooks.get(lb.LogbookID)
	if stored.Status != model.LogbookStatusDraft {
		t.Errorf("期望回滚为 Draft，实际=%s", stored.Status)
	}
	if stored.SubmittedAt != nil || stored.MentorEmail != "" {
		t.Errorf("回滚后提交时间与导师邮箱应恢复，实际: %+v", stored)
	}
}

func TestApprovalService_Submit_RejectedResubmissionFailureKeepsFeedback(t *testing.T) {
	f := setupTestApprovalService()
	f.sender.err = errMailDown
	decided := time.Now().UTC().Add(-time.Hour)
	lb := f.env.logbooks.put(&model.Logbook{
		StudentID:       "stu-1",
		Month:           1,
		Year:            2025,
		Status:          model.LogbookStatusRejected,
		MentorComments:  "see notes",
		RejectionReason: "missing week 2",
		DecidedAt:       &decided,
	})

	if _, err := f.svc.Submit(context.Background(), lb.LogbookID, "stu-1"); !errors.Is(err, ErrSubmissionCancelled) {
		t.Fatalf("期望 ErrSubmissionCancelled，实际: %v", err)
	}

	stored := f.env.logbooks.get(lb.LogbookID)
	if stored.Status != model.LogbookStatusDraft {
		t.Errorf("期望回滚为 Draft，实际=%s", stored.Status)
	}
	if stored.RejectionReason != "missing week 2" || stored.MentorComments != "see notes" || stored.DecidedAt == nil {
		t.Errorf("回滚后应保留上一轮导师反馈，实际: %+v", stored)
	}
}

func TestApprovalService_Submit_RejectedResubmission(t *testing.T) {
	f := setupTestApprovalService()
	lb := f.env.logbooks.put(&model.Logbook{StudentID: "stu-1", Month: 1, Year: 2025, Status: model.LogbookStatusRejected, RejectionReason: "missing week 2"})

	if _, err := f.svc.Submit(context.Background(), lb.LogbookID, "stu-1"); err != nil {
		t.Fatalf("被驳回的日志本应允许重新提交: %v", err)
	}
	stored := f.env.logbooks.get(lb.LogbookID)
	if stored.Status != model.LogbookStatusPending {
		t.Errorf("期望 Status=Pending，实际=%s", stored.Status)
	}
	if stored.RejectionReason != "" || stored.DecidedAt != nil {
		t.Errorf("重新提交后旧的驳回结论应清空，实际: %+v", stored)
	}
}

func TestApprovalService_Submit_Guards(t *testing.T) {
	f := setupTestApprovalService()
	ctx := context.Background()

	pendingLB, _ := f.pending(1)
	if _, err := f.svc.Submit(ctx, pendingLB.LogbookID, "stu-1"); !errors.Is(err, ErrImmutableState) {
		t.Errorf("Pending 日志本期望 ErrImmutableState，实际: %v", err)
	}

	draftLB := f.draft(2)
	if _, err := f.svc.Submit(ctx, draftLB.LogbookID, "someone-else"); !errors.Is(err, ErrNotLogbookOwner) {
		t.Errorf("非本人提交期望 ErrNotLogbookOwner，实际: %v", err)
	}

	if _, err := f.svc.Submit(ctx, "missing", "stu-1"); !errors.Is(err, ErrLogbookNotFound) {
		t.Errorf("期望 ErrLogbookNotFound，实际: %v", err)
	}

	// 第 4 个月，第 3 个月不存在
	seqLB := f.draft(4)
	if _, err := f.svc.Submit(ctx, seqLB.LogbookID, "stu-1"); !errors.Is(err, ErrSequenceViolation) {
		t.Errorf("期望 ErrSequenceViolation，实际: %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Errorf("校验失败时不应发送邮件，实际: %d", len(f.sender.sent))
	}
}

func TestApprovalService_Submit_MissingMentorContact(t *testing.T) {
	f := setupTestApprovalService()
	delete(f.env.placements.forms, "stu-1")
	lb := f.draft(1)

	_, err := f.svc.Submit(context.Background(), lb.LogbookID, "stu-1")
	if !errors.Is(err, ErrMissingMentorContact) {
		t.Errorf("期望 ErrMissingMentorContact，实际: %v", err)
	}
	if got := f.env.logbooks.get(lb.LogbookID).Status; got != model.LogbookStatusDraft {
		t.Errorf("状态不应改变，实际=%s", got)
	}
}

func TestApprovalService_Submit_ConcurrentOnlyOneNotifies(t *testing.T) {
	f := setupTestApprovalService()
	lb := f.draft(1)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(context.Background(), lb.LogbookID, "stu-1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrImmutableState) {
			t.Errorf("并发提交期望 ErrImmutableState，实际: %v", err)
		}
	}
	if ok != 1 || len(f.sender.sent) != 1 {
		t.Errorf("期望恰好 1 次成功并发送 1 封邮件，实际成功 %d 次，邮件 %d 封", ok, len(f.sender.sent))
	}
}

// ── ApplyMentorDecision 测试 ──

func TestApprovalService_ApplyMentorDecision_Approve(t *testing.T) {
	f := setupTestApprovalService()
	lb, token := f.pending(1)

	result, err := f.svc.ApplyMentorDecision(context.Background(), lb.LogbookID, token, MentorDecision{
		Status:   model.LogbookStatusApproved,
		Comments: "good work",
	})
	if err != nil {
		t.Fatalf("ApplyMentorDecision 应成功: %v", err)
	}
	if result.Status != model.LogbookStatusApproved {
		t.Errorf("期望 Status=Approved，实际=%s", result.Status)
	}

	stored := f.env.logbooks.get(lb.LogbookID)
	if stored.MentorComments != "good work" || stored.DecidedAt == nil {
		t.Errorf("导师意见与审批时间应被保存，实际: %+v", stored)
	}

	notes := f.env.notifications.forUser("stu-1")
	if len(notes) != 1 || !strings.Contains(notes[0].Content, "January 2025 was Approved") {
		t.Errorf("学生应收到站内通知，实际: %+v", notes)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].To != "stu-1@students.example.com" {
		t.Errorf("学生应收到结果邮件，实际: %+v", f.sender.sent)
	}
}

func TestApprovalService_ApplyMentorDecision_Reject(t *testing.T) {
	f := setupTestApprovalService()
	lb, token := f.pending(1)

	_, err := f.svc.ApplyMentorDecision(context.Background(), lb.LogbookID, token, MentorDecision{
		Status:          model.LogbookStatusRejected,
		RejectionReason: "missing week 2",
	})
	if err != nil {
		t.Fatalf("ApplyMentorDecision 应成功: %v", err)
	}
	stored := f.env.logbooks.get(lb.LogbookID)
	if stored.Status != model.LogbookStatusRejected || stored.RejectionReason != "missing week 2" {
		t.Errorf("期望 Rejected 且保存驳回原因，实际: %+v", stored)
	}
}

func TestApprovalService_ApplyMentorDecision_MailFailureKeepsDecision(t *testing.T) {
	for _, status := range []string{model.LogbookStatusApproved, model.LogbookStatusRejected} {
		f := setupTestApprovalService()
		f.sender.err = errMailDown
		lb, token := f.pending(1)

		result, err := f.svc.ApplyMentorDecision(context.Background(), lb.LogbookID, token, MentorDecision{
			Status:          status,
			RejectionReason: "redo",
		})
		if err != nil {
			t.Fatalf("学生结果邮件失败不应影响审批，状态 %s 实际: %v", status, err)
		}
		if result.Status != status {
			t.Errorf("期望返回 Status=%s，实际=%s", status, result.Status)
		}
		stored := f.env.logbooks.get(lb.LogbookID)
		if stored.Status != status || stored.DecidedAt == nil {
			t.Errorf("审批结论应已持久化为 %s，实际: %+v", status, stored)
		}
		if len(f.env.notifications.forUser("stu-1")) != 1 {
			t.Errorf("邮件失败时站内通知仍应送达")
		}
	}
}

func TestApprovalService_ApplyMentorDecision_AlreadyFinalized(t *testing.T) {
	for _, status := range []string{model.LogbookStatusApproved, model.LogbookStatusRejected} {
		f := setupTestApprovalService()
		lb := f.env.logbooks.put(&model.Logbook{StudentID: "stu-1", Month: 1, Year: 2025, Status: status, MentorComments: "kept"})
		token, _, _ := f.jwtMgr.GenerateMentorToken(lb.LogbookID, "mentor@acme.example.com")

		_, err := f.svc.ApplyMentorDecision(context.Background(), lb.LogbookID, token, MentorDecision{
			Status:   model.LogbookStatusApproved,
			Comments: "changed",
		})
		if !errors.Is(err, ErrAlreadyFinalized) {
			t.Errorf("状态 %s 期望 ErrAlreadyFinalized，实际: %v", status, err)
		}
		stored := f.env.logbooks.get(lb.LogbookID)
		if stored.Status != status || stored.MentorComments != "kept" || stored.Version != 1 {
			t.Errorf("状态 %s 的日志本不应被修改，实际: %+v", status, stored)
		}
	}
}

func TestApprovalService_ApplyMentorDecision_InvalidDecision(t *testing.T) {
	f := setupTestApprovalService()
	lb, token := f.pending(1)

	for _, status := range []string{"", "Pending", "Draft", "approved"} {
		_, err := f.svc.ApplyMentorDecision(context.Background(), lb.LogbookID, token, MentorDecision{Status: status})
		if !errors.Is(err, ErrInvalidDecision) {
			t.Errorf("status=%q 期望 ErrInvalidDecision，实际: %v", status, err)
		}
	}
}

func TestApprovalService_ApplyMentorDecision_TokenChecks(t *testing.T) {
	f := setupTestApprovalService()
	ctx := context.Background()
	lb, token := f.pending(1)
	other, _ := f.pending(2)
	approve := MentorDecision{Status: model.LogbookStatusApproved}

	if _, err := f.svc.ApplyMentorDecision(ctx, lb.LogbookID, "garbage", approve); !errors.Is(err, ErrMentorLinkInvalid) {
		t.Errorf("无效 token 期望 ErrMentorLinkInvalid，实际: %v", err)
	}
	if _, err := f.svc.ApplyMentorDecision(ctx, other.LogbookID, token, approve); !errors.Is(err, ErrMentorLinkInvalid) {
		t.Errorf("其他日志本的 token 期望 ErrMentorLinkInvalid，实际: %v", err)
	}

	if _, err := f.svc.ApplyMentorDecision(ctx, lb.LogbookID, token, approve); err != nil {
		t.Fatalf("首次审批应成功: %v", err)
	}
	if _, err := f.svc.ApplyMentorDecision(ctx, lb.LogbookID, token, approve); !errors.Is(err, ErrMentorLinkUsed) {
		t.Errorf("重复使用链接期望 ErrMentorLinkUsed，实际: %v", err)
	}
}

func TestApprovalService_ApplyMentorDecision_StaleLink(t *testing.T) {
	f := setupTestApprovalService()
	lb, token := f.pending(1)

	// 链接签发后学生又重新提交了一轮
	resubmitted := f.env.logbooks.get(lb.LogbookID)
	later := time.Now().UTC().Add(time.Hour)
	resubmitted.SubmittedAt = &later
	f.env.logbooks.put(resubmitted)

	_, err := f.svc.ApplyMentorDecision(context.Background(), lb.LogbookID, token, MentorDecision{Status: model.LogbookStatusApproved})
	if !errors.Is(err, ErrMentorLinkInvalid) {
		t.Errorf("旧链接期望 ErrMentorLinkInvalid，实际: %v", err)
	}
}

func TestApprovalService_ApplyMentorDecision_NotPending(t *testing.T) {
	f := setupTestApprovalService()
	lb := f.draft(1)
	token, _, _ := f.jwtMgr.GenerateMentorToken(lb.LogbookID, "mentor@acme.example.com")

	_, err := f.svc.ApplyMentorDecision(context.Background(), lb.LogbookID, token, MentorDecision{Status: model.LogbookStatusApproved})
	if !errors.Is(err, ErrLogbookNotPending) {
		t.Errorf("期望 ErrLogbookNotPending，实际: %v", err)
	}
}

// ── GetForMentor 测试 ──

func TestApprovalService_GetForMentor(t *testing.T) {
	f := setupTestApprovalService()
	lb, token := f.pending(1)

	result, err := f.svc.GetForMentor(context.Background(), lb.LogbookID, token)
	if err != nil {
		t.Fatalf("GetForMentor 应成功: %v", err)
	}
	if result.StudentName != "Test stu-1" || result.CompanyName != "Acme Ltd" || result.CBNumber != "CBstu-1" {
		t.Errorf("学生或公司信息错误: %+v", result)
	}

	if _, err := f.svc.GetForMentor(context.Background(), lb.LogbookID, ""); !errors.Is(err, ErrMentorLinkInvalid) {
		t.Errorf("缺少 token 期望 ErrMentorLinkInvalid，实际: %v", err)
	}
}
