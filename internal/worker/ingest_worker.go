package worker

import (
	"context"
	"log"
	"time"

	"MedSol-RAG/internal/data"
	"MedSol-RAG/internal/service"
)

// 单条记录从 transcribing 到 indexing 的总预算
const taskTimeout = 15 * time.Minute

// IngestWorker 从队列拿摄取任务并驱动流水线
type IngestWorker struct {
	queue data.TaskQueue
	svc   *service.IngestService
}

func NewIngestWorker(queue data.TaskQueue, svc *service.IngestService) *IngestWorker {
	return &IngestWorker{queue: queue, svc: svc}
}

// Start 启动 numWorkers 个 worker (非阻塞)。
// 每条记录只会被一个 worker 处理，worker 之间无共享可变状态
func (w *IngestWorker) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	log.Printf("🚀 启动 %d 个 ingest worker，开始监听队列...", numWorkers)

	for i := 0; i < numWorkers; i++ {
		go w.processLoop(ctx, i)
	}
}

func (w *IngestWorker) processLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker-%d] 退出", workerID)
			return
		default:
		}

		task, ok, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker-%d] 等待任务中... (%v)", workerID, err)
			time.Sleep(3 * time.Second)
			continue
		}
		if !ok {
			continue // 超时，继续轮询
		}

		log.Printf("[Worker-%d] 收到任务: %s %s", workerID, task.Kind, task.ID)

		taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
		err = w.svc.ProcessTask(taskCtx, *task)
		cancel()

		if err != nil {
			log.Printf("[Worker-%d] ❌ 处理失败: %s, 错误: %v", workerID, task.ID, err)
		} else {
			log.Printf("[Worker-%d] ✅ 处理完成: %s", workerID, task.ID)
		}
	}
}
