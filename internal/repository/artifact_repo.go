package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"nextstep/backend/internal/model"
)

// ArtifactRepository 结业材料数据访问接口（只追加，不覆盖历史提交）
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *model.FinalArtifact) error
	GetByID(ctx context.Context, id string) (*model.FinalArtifact, error)
	CountByKind(ctx context.Context, studentID, kind string) (int64, error)
	Latest(ctx context.Context, studentID, kind string) (*model.FinalArtifact, error)
	ListLatestByKind(ctx context.Context, kind string) ([]model.FinalArtifact, error)
	UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) error
	DeleteByStudent(ctx context.Context, studentID string) error
}

type artifactRepo struct {
	db *gorm.DB
}

// NewArtifactRepo 创建 ArtifactRepository 实例
func NewArtifactRepo(db *gorm.DB) ArtifactRepository {
	return &artifactRepo{db: db}
}

func (r *artifactRepo) Create(ctx context.Context, artifact *model.FinalArtifact) error {
	return r.db.WithContext(ctx).Create(artifact).Error
}

func (r *artifactRepo) GetByID(ctx context.Context, id string) (*model.FinalArtifact, error) {
	var artifact model.FinalArtifact
	err := r.db.WithContext(ctx).
		Where("artifact_id = ?", id).
		First(&artifact).Error
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (r *artifactRepo) CountByKind(ctx context.Context, studentID, kind string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.FinalArtifact{}).
		Where("student_id = ? AND kind = ?", studentID, kind).
		Count(&count).Error
	return count, err
}

func (r *artifactRepo) Latest(ctx context.Context, studentID, kind string) (*model.FinalArtifact, error) {
	var artifact model.FinalArtifact
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND kind = ?", studentID, kind).
		Order("attempt DESC").
		First(&artifact).Error
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListLatestByKind 每个学生指定类型的最新一次提交，按提交时间倒序
func (r *artifactRepo) ListLatestByKind(ctx context.Context, kind string) ([]model.FinalArtifact, error) {
	var artifacts []model.FinalArtifact
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM (
				SELECT DISTINCT ON (student_id) *
				FROM final_artifacts
				WHERE kind = ?
				ORDER BY student_id, attempt DESC
			) latest
			ORDER BY submitted_at DESC`, kind).
		Scan(&artifacts).Error
	return artifacts, err
}

func (r *artifactRepo) UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.FinalArtifact{}).
		Where("artifact_id = ?", id).
		Updates(map[string]interface{}{
			"scheduled_at": scheduledAt,
			"updated_at":   gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *artifactRepo) DeleteByStudent(ctx context.Context, studentID string) error {
	return r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Delete(&model.FinalArtifact{}).Error
}
