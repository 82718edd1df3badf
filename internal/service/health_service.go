package service

import (
	"context"
	"time"

	"MedSol-RAG/internal/data"
	"MedSol-RAG/internal/dto"
	"MedSol-RAG/internal/vector"
)

// HealthService 组件健康检查 (C10 Health)
type HealthService struct {
	d     *data.Data
	index vector.Index
}

func NewHealthService(d *data.Data, index vector.Index) *HealthService {
	return &HealthService{d: d, index: index}
}

func (s *HealthService) Health(ctx context.Context) *dto.HealthResp {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	components := map[string]string{}
	ok := true

	check := func(name string, fn func() error) {
		if fn == nil {
			components[name] = "not_configured"
			return
		}
		if err := fn(); err != nil {
			components[name] = "error: " + err.Error()
			ok = false
			return
		}
		components[name] = "ok"
	}

	if s.d != nil {
		check("database", func() error {
			sqlDB, err := s.d.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
		check("redis", func() error {
			return s.d.Redis.Ping(ctx).Err()
		})
		check("minio", func() error {
			_, err := s.d.Minio.BucketExists(ctx, s.d.Bucket)
			return err
		})
	} else {
		components["database"] = "not_configured"
		components["redis"] = "not_configured"
		components["minio"] = "not_configured"
	}

	check("vector_store", func() error {
		_, err := s.index.Stats(ctx)
		return err
	})

	status := "ok"
	if !ok {
		status = "degraded"
	}
	return &dto.HealthResp{Status: status, Components: components}
}

// VectorStatus 向量库状态 (count/dim/model)
func (s *HealthService) VectorStatus(ctx context.Context) (vector.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.index.Stats(ctx)
}
