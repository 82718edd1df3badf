package repository

import (
	"context"
	"errors"
	"time"

	"MedSol-RAG/internal/apperr"
	"MedSol-RAG/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentFilter struct {
	Status  string
	Patient string
	From    *time.Time
	To      *time.Time
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, filter DocumentFilter, page, size int) ([]model.Document, int64, error)
	Update(ctx context.Context, id string, updatedAt time.Time, patch map[string]any) error
	Transition(ctx context.Context, id, from, to string) error
	Delete(ctx context.Context, id string) error
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = model.StatusPending
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "document %s no existe", id)
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, filter DocumentFilter, page, size int) ([]model.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	q := r.db.WithContext(ctx).Model(&model.Document{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Patient != "" {
		q = q.Where("patient_name LIKE ?", "%"+filter.Patient+"%")
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

	var docs []model.Document
	err := q.Order("created_at desc, id").
		Offset((page - 1) * size).
		Limit(size).
		Find(&docs).Error
	return docs, total, err
}

func (r *documentRepository) Update(ctx context.Context, id string, updatedAt time.Time, patch map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND updated_at = ?", id, updatedAt).
		Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Count(&count)
		if count == 0 {
			return apperr.Newf(apperr.NotFound, "document %s no existe", id)
		}
		return apperr.Newf(apperr.Conflict, "document %s fue modificado por otro escritor", id)
	}
	return nil
}

func (r *documentRepository) Transition(ctx context.Context, id, from, to string) error {
	if !model.ValidDocumentTransition(from, to) {
		return apperr.Newf(apperr.Conflict, "transición inválida %s → %s", from, to)
	}
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Newf(apperr.Conflict, "document %s no está en estado %s", id, from)
	}
	return nil
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&model.Document{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Newf(apperr.NotFound, "document %s no existe", id)
	}
	return nil
}
