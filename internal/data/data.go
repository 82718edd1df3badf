package data

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"

	"MedSol-RAG/internal/conf"
	"MedSol-RAG/internal/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// Data 持有所有数据库句柄
type Data struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Minio  *minio.Client
	Qdrant *qdrant.Client

	Bucket string
}

func NewData(cfg *conf.Config) (*Data, func(), error) {
	// 1. 连接 Postgres + 自动迁移
	pgDB, err := gorm.Open(postgres.Open(cfg.Data.DatabaseSource), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := pgDB.AutoMigrate(
		&model.Recording{},
		&model.Document{},
	); err != nil {
		return nil, nil, fmt.Errorf("schema migration failed: %v", err)
	}
	log.Println("✅ 数据库表结构迁移完成")

	// 2. 初始化 Redis (任务队列)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Data.RedisAddr,
		Password: cfg.Data.RedisPassword,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, nil, fmt.Errorf("redis ping failed: %v", err)
	}
	log.Println("✅ Redis 连接成功")

	// 3. 初始化 MinIO (原始音频/文档)
	minioClient, err := minio.New(cfg.Data.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Data.MinioAccessKey, cfg.Data.MinioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("minio init failed: %v", err)
	}

	bucketName := cfg.Data.MinioBucket
	exists, err := minioClient.BucketExists(context.Background(), bucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("minio bucket check failed: %v", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, nil, fmt.Errorf("minio bucket create failed: %v", err)
		}
		log.Printf("🎉 MinIO Bucket '%s' 创建成功", bucketName)
	} else {
		log.Printf("✅ MinIO 连接成功 (Bucket '%s' 已存在)", bucketName)
	}

	// 4. 初始化 Qdrant
	qdrantHost, qdrantPort := parseHostPort(cfg.Data.QdrantAddr, "localhost", 6334)
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: qdrantHost,
		Port: qdrantPort,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant init failed: %v", err)
	}

	d := &Data{
		DB:     pgDB,
		Redis:  rdb,
		Minio:  minioClient,
		Qdrant: qdrantClient,
		Bucket: bucketName,
	}

	cleanup := func() {
		log.Println("正在关闭数据层资源...")
		if sqlDB, err := d.DB.DB(); err == nil {
			sqlDB.Close()
		}
		d.Redis.Close()
		d.Qdrant.Close()
	}

	return d, cleanup, nil
}

// 辅助函数: 解析 "host:port"
func parseHostPort(addr string, defaultHost string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
