package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"nextstep/backend/internal/model"
	"nextstep/backend/internal/repository"
	pkgerrors "nextstep/backend/pkg/errors"
	"nextstep/backend/pkg/mailer"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) ListByRole(_ context.Context, roles ...string) ([]model.User, error) {
	var result []model.User
	for _, u := range m.users {
		for _, r := range roles {
			if u.Role == r {
				result = append(result, *u)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	students map[string]*model.Student
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*model.Student)}
}

func (m *mockStudentRepo) GetByID(_ context.Context, id string) (*model.Student, error) {
	if s, ok := m.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) ListByIDs(_ context.Context, ids []string) ([]model.Student, error) {
	var result []model.Student
	for _, id := range ids {
		if s, ok := m.students[id]; ok {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *mockStudentRepo) UpdateStatus(_ context.Context, id, status string) error {
	s, ok := m.students[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Status = status
	return nil
}

func (m *mockStudentRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.students, id)
	return nil
}

// ── Mock PlacementRepository ──

type mockPlacementRepo struct {
	forms map[string]*model.PlacementForm // key: student_id
	seq   int
}

func newMockPlacementRepo() *mockPlacementRepo {
	return &mockPlacementRepo{forms: make(map[string]*model.PlacementForm)}
}

func (m *mockPlacementRepo) Create(_ context.Context, form *model.PlacementForm) error {
	if _, ok := m.forms[form.StudentID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if form.PlacementID == "" {
		m.seq++
		form.PlacementID = fmt.Sprintf("placement-%d", m.seq)
	}
	cp := *form
	m.forms[form.StudentID] = &cp
	return nil
}

func (m *mockPlacementRepo) GetByStudent(_ context.Context, studentID string) (*model.PlacementForm, error) {
	if f, ok := m.forms[studentID]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPlacementRepo) List(_ context.Context, offset, limit int) ([]model.PlacementForm, int64, error) {
	var all []model.PlacementForm
	for _, f := range m.forms {
		all = append(all, *f)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PlacementID < all[j].PlacementID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockPlacementRepo) flag(f *model.PlacementForm, flag repository.ReminderFlag) *bool {
	if flag == repository.ReminderOneMonth {
		return &f.OneMonthNotificationSent
	}
	return &f.TwoWeekNotificationSent
}

func (m *mockPlacementRepo) ListEndingBetween(_ context.Context, from, to time.Time, flag repository.ReminderFlag) ([]model.PlacementForm, error) {
	var result []model.PlacementForm
	for _, f := range m.forms {
		if f.EndDate.Before(from) || f.EndDate.After(to) || *m.flag(f, flag) {
			continue
		}
		result = append(result, *f)
	}
	return result, nil
}

func (m *mockPlacementRepo) ClaimReminder(_ context.Context, placementID string, flag repository.ReminderFlag) (bool, error) {
	for _, f := range m.forms {
		if f.PlacementID != placementID {
			continue
		}
		sent := m.flag(f, flag)
		if *sent {
			return false, nil
		}
		*sent = true
		return true, nil
	}
	return false, nil
}

func (m *mockPlacementRepo) DeleteByStudent(_ context.Context, studentID string) error {
	delete(m.forms, studentID)
	return nil
}

// ── Mock LogbookRepository ──

type mockLogbookRepo struct {
	mu       sync.Mutex
	logbooks map[string]*model.Logbook
	seq      int
}

func newMockLogbookRepo() *mockLogbookRepo {
	return &mockLogbookRepo{logbooks: make(map[string]*model.Logbook)}
}

func cloneLogbook(lb *model.Logbook) *model.Logbook {
	cp := *lb
	cp.Weeks = append([]model.WeeklyEntry(nil), lb.Weeks...)
	return &cp
}

// put 直接写入测试数据
func (m *mockLogbookRepo) put(lb *model.Logbook) *model.Logbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lb.LogbookID == "" {
		m.seq++
		lb.LogbookID = fmt.Sprintf("logbook-%d", m.seq)
	}
	if lb.Version == 0 {
		lb.Version = 1
	}
	m.logbooks[lb.LogbookID] = cloneLogbook(lb)
	return lb
}

func (m *mockLogbookRepo) get(id string) *model.Logbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lb, ok := m.logbooks[id]; ok {
		return cloneLogbook(lb)
	}
	return nil
}

func (m *mockLogbookRepo) Create(_ context.Context, logbook *model.Logbook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lb := range m.logbooks {
		if lb.StudentID == logbook.StudentID && lb.Month == logbook.Month && lb.Year == logbook.Year {
			return gorm.ErrDuplicatedKey
		}
	}
	m.seq++
	logbook.LogbookID = fmt.Sprintf("logbook-%d", m.seq)
	logbook.Version = 1
	logbook.CreatedAt = time.Now()
	m.logbooks[logbook.LogbookID] = cloneLogbook(logbook)
	return nil
}

func (m *mockLogbookRepo) GetByID(_ context.Context, id string) (*model.Logbook, error) {
	if lb := m.get(id); lb != nil {
		return lb, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLogbookRepo) GetByPeriod(_ context.Context, studentID string, month, year int) (*model.Logbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lb := range m.logbooks {
		if lb.StudentID == studentID && lb.Month == month && lb.Year == year {
			return cloneLogbook(lb), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLogbookRepo) ListByStudent(_ context.Context, studentID string) ([]model.Logbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Logbook
	for _, lb := range m.logbooks {
		if lb.StudentID == studentID {
			result = append(result, *cloneLogbook(lb))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Month < result[j].Month
	})
	return result, nil
}

func (m *mockLogbookRepo) CountByStatus(_ context.Context, studentID, status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, lb := range m.logbooks {
		if lb.StudentID == studentID && lb.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *mockLogbookRepo) ListLatestSubmitted(_ context.Context) ([]model.Logbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]*model.Logbook)
	for _, lb := range m.logbooks {
		if lb.Status == model.LogbookStatusDraft {
			continue
		}
		cur, ok := latest[lb.StudentID]
		if !ok || lb.Year > cur.Year || (lb.Year == cur.Year && lb.Month > cur.Month) {
			latest[lb.StudentID] = lb
		}
	}
	var result []model.Logbook
	for _, lb := range latest {
		result = append(result, *cloneLogbook(lb))
	}
	return result, nil
}

// conditionalUpdate 模拟 WHERE status = ? AND version = ? 的条件更新
func (m *mockLogbookRepo) conditionalUpdate(logbook *model.Logbook, expectedStatus string, apply func(stored *model.Logbook)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.logbooks[logbook.LogbookID]
	if !ok || stored.Status != expectedStatus || stored.Version != logbook.Version {
		return pkgerrors.ErrOptimisticLock
	}
	apply(stored)
	stored.Version++
	logbook.Version = stored.Version
	return nil
}

func (m *mockLogbookRepo) UpdateWeeks(_ context.Context, logbook *model.Logbook, expectedStatus string) error {
	return m.conditionalUpdate(logbook, expectedStatus, func(stored *model.Logbook) {
		stored.Weeks = append([]model.WeeklyEntry(nil), logbook.Weeks...)
		stored.Status = logbook.Status
	})
}

func (m *mockLogbookRepo) UpdateStatus(_ context.Context, logbook *model.Logbook, expectedStatus string) error {
	return m.conditionalUpdate(logbook, expectedStatus, func(stored *model.Logbook) {
		stored.Status = logbook.Status
		stored.MentorEmail = logbook.MentorEmail
		stored.MentorComments = logbook.MentorComments
		stored.RejectionReason = logbook.RejectionReason
		stored.SubmittedAt = logbook.SubmittedAt
		stored.DecidedAt = logbook.DecidedAt
	})
}

func (m *mockLogbookRepo) DeleteByStudent(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, lb := range m.logbooks {
		if lb.StudentID == studentID {
			delete(m.logbooks, id)
		}
	}
	return nil
}

// ── Mock ArtifactRepository ──

type mockArtifactRepo struct {
	mu        sync.Mutex
	artifacts []*model.FinalArtifact
	seq       int
}

func newMockArtifactRepo() *mockArtifactRepo {
	return &mockArtifactRepo{}
}

func (m *mockArtifactRepo) Create(_ context.Context, artifact *model.FinalArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts {
		if a.StudentID == artifact.StudentID && a.Kind == artifact.Kind && a.Attempt == artifact.Attempt {
			return gorm.ErrDuplicatedKey
		}
	}
	m.seq++
	artifact.ArtifactID = fmt.Sprintf("artifact-%d", m.seq)
	cp := *artifact
	m.artifacts = append(m.artifacts, &cp)
	return nil
}

func (m *mockArtifactRepo) GetByID(_ context.Context, id string) (*model.FinalArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts {
		if a.ArtifactID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockArtifactRepo) CountByKind(_ context.Context, studentID, kind string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.artifacts {
		if a.StudentID == studentID && a.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (m *mockArtifactRepo) Latest(_ context.Context, studentID, kind string) (*model.FinalArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.FinalArtifact
	for _, a := range m.artifacts {
		if a.StudentID == studentID && a.Kind == kind && (latest == nil || a.Attempt > latest.Attempt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockArtifactRepo) ListLatestByKind(_ context.Context, kind string) ([]model.FinalArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]*model.FinalArtifact)
	for _, a := range m.artifacts {
		if a.Kind != kind {
			continue
		}
		if cur, ok := latest[a.StudentID]; !ok || a.Attempt > cur.Attempt {
			latest[a.StudentID] = a
		}
	}
	var result []model.FinalArtifact
	for _, a := range latest {
		result = append(result, *a)
	}
	return result, nil
}

func (m *mockArtifactRepo) UpdateSchedule(_ context.Context, id string, scheduledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts {
		if a.ArtifactID == id {
			at := scheduledAt
			a.ScheduledAt = &at
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockArtifactRepo) DeleteByStudent(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.artifacts[:0]
	for _, a := range m.artifacts {
		if a.StudentID != studentID {
			kept = append(kept, a)
		}
	}
	m.artifacts = kept
	return nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	mu            sync.Mutex
	notifications []*model.Notification
	seq           int
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.NotificationID = fmt.Sprintf("notification-%d", m.seq)
	n.CreatedAt = time.Now()
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		all = append(all, *n)
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.NotificationID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.notifications[:0]
	for _, n := range m.notifications {
		if n.UserID != userID {
			kept = append(kept, n)
		}
	}
	m.notifications = kept
	return nil
}

// forUser 指定用户收到的通知
func (m *mockNotificationRepo) forUser(userID string) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			result = append(result, *n)
		}
	}
	return result
}

// ── Mock 外部依赖 ──

type mockSender struct {
	mu    sync.Mutex
	err   error
	block bool // 阻塞直到 ctx 结束，模拟 SMTP 无响应
	sent  []mailer.Message
}

func (m *mockSender) Send(ctx context.Context, msg mailer.Message) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockBlacklist struct {
	mu   sync.Mutex
	used map[string]bool
}

func newMockBlacklist() *mockBlacklist {
	return &mockBlacklist{used: make(map[string]bool)}
}

func (m *mockBlacklist) BlacklistToken(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used[jti] = true
	return nil
}

func (m *mockBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[jti], nil
}

type mockStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMockStore() *mockStore {
	return &mockStore{files: make(map[string][]byte)}
}

func (m *mockStore) Save(_ context.Context, category, filename string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := fmt.Sprintf("/uploads/%s/%d-%s", category, len(m.files)+1, filename)
	m.files[url] = buf.Bytes()
	return url, nil
}

var errMailDown = errors.New("smtp: connection refused")

// ── 测试环境 ──

type testEnv struct {
	repo          *repository.Repository
	users         *mockUserRepo
	students      *mockStudentRepo
	placements    *mockPlacementRepo
	logbooks      *mockLogbookRepo
	artifacts     *mockArtifactRepo
	notifications *mockNotificationRepo
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:         newMockUserRepo(),
		students:      newMockStudentRepo(),
		placements:    newMockPlacementRepo(),
		logbooks:      newMockLogbookRepo(),
		artifacts:     newMockArtifactRepo(),
		notifications: newMockNotificationRepo(),
	}
	env.repo = &repository.Repository{
		User:         env.users,
		Student:      env.students,
		Placement:    env.placements,
		Logbook:      env.logbooks,
		Artifact:     env.artifacts,
		Notification: env.notifications,
	}
	return env
}

func (e *testEnv) addStudent(id, status string) {
	e.students.students[id] = &model.Student{
		StudentID: id,
		CBNumber:  "CB" + id,
		FirstName: "Test",
		LastName:  id,
		Email:     id + "@students.example.com",
		Status:    status,
	}
	e.users.users[id] = &model.User{UserID: id, Name: "Test " + id, Email: id + "@students.example.com", Role: model.RoleStudent}
}

func (e *testEnv) addCoordinator(id string) {
	e.users.users[id] = &model.User{UserID: id, Name: "Coordinator " + id, Email: id + "@staff.example.com", Role: model.RoleCoordinator}
}

func (e *testEnv) addPlacement(studentID string, start, end time.Time, mentorEmail string) {
	_ = e.placements.Create(context.Background(), &model.PlacementForm{
		StudentID:   studentID,
		CompanyName: "Acme Ltd",
		Position:    "Intern",
		StartDate:   start,
		EndDate:     end,
		MentorName:  "Mentor",
		MentorEmail: mentorEmail,
	})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
