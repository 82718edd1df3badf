package repository

import (
	"context"
	"errors"
	"time"

	"MedSol-RAG/internal/apperr"
	"MedSol-RAG/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordingFilter 列表过滤条件
type RecordingFilter struct {
	Status  string
	Patient string // structured.nombre 的精确匹配
	From    *time.Time
	To      *time.Time
}

type RecordingRepository interface {
	Create(ctx context.Context, rec *model.Recording) error
	Get(ctx context.Context, id string) (*model.Recording, error)
	List(ctx context.Context, filter RecordingFilter, page, size int) ([]model.Recording, int64, error)
	// Update 对 updated_at 做 CAS，丢失则返回 Conflict
	Update(ctx context.Context, id string, updatedAt time.Time, patch map[string]any) error
	// Transition 状态机推进，当前状态 != from 时拒绝
	Transition(ctx context.Context, id, from, to string) error
	Delete(ctx context.Context, id string) error
	// ListCompletedWithPatient 返回 structured 中带病人姓名的已完成录音 (文档关联用)
	ListCompletedWithPatient(ctx context.Context, limit int) ([]model.Recording, error)
}

type recordingRepository struct {
	db *gorm.DB
}

func NewRecordingRepository(db *gorm.DB) RecordingRepository {
	return &recordingRepository{db: db}
}

func (r *recordingRepository) Create(ctx context.Context, rec *model.Recording) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = model.StatusPending
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *recordingRepository) Get(ctx context.Context, id string) (*model.Recording, error) {
	var rec model.Recording
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "recording %s no existe", id)
		}
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepository) List(ctx context.Context, filter RecordingFilter, page, size int) ([]model.Recording, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	q := r.db.WithContext(ctx).Model(&model.Recording{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Patient != "" {
		q = q.Where(datatypes.JSONQuery("structured").Equals(filter.Patient, "nombre"))
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []model.Recording
	// 稳定排序: created_at desc, id
	err := q.Order("created_at desc, id").
		Offset((page - 1) * size).
		Limit(size).
		Find(&recs).Error
	return recs, total, err
}

func (r *recordingRepository) Update(ctx context.Context, id string, updatedAt time.Time, patch map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Recording{}).
		Where("id = ? AND updated_at = ?", id, updatedAt).
		Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 要么记录不存在，要么 CAS 失败
		var count int64
		r.db.WithContext(ctx).Model(&model.Recording{}).Where("id = ?", id).Count(&count)
		if count == 0 {
			return apperr.Newf(apperr.NotFound, "recording %s no existe", id)
		}
		return apperr.Newf(apperr.Conflict, "recording %s fue modificado por otro escritor", id)
	}
	return nil
}

func (r *recordingRepository) Transition(ctx context.Context, id, from, to string) error {
	if !model.ValidTransition(from, to) {
		return apperr.Newf(apperr.Conflict, "transición inválida %s → %s", from, to)
	}
	res := r.db.WithContext(ctx).Model(&model.Recording{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Newf(apperr.Conflict, "recording %s no está en estado %s", id, from)
	}
	return nil
}

func (r *recordingRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&model.Recording{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Newf(apperr.NotFound, "recording %s no existe", id)
	}
	return nil
}

func (r *recordingRepository) ListCompletedWithPatient(ctx context.Context, limit int) ([]model.Recording, error) {
	if limit <= 0 {
		limit = 200
	}
	var recs []model.Recording
	err := r.db.WithContext(ctx).
		Where("status = ? AND structured IS NOT NULL", model.StatusCompleted).
		Order("created_at desc, id").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
