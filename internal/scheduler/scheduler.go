package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job - периодическая задача
type Job struct {
	Name     string
	Interval time.Duration
	// Jitter размывает старты задач, чтобы продления и агрегация
	// не били в БД одновременно
	Jitter time.Duration
	Run    func(ctx context.Context)
}

// Scheduler - запуск периодических фоновых задач.
//
// Назначение:
// Проверка продлений подписок и агрегация производительности ботов.
// Каждая задача крутится в своей горутине; Stop дожидается
// завершения текущих запусков.
type Scheduler struct {
	jobs     []Job
	log      *zap.Logger
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New создает планировщик
func New(log *zap.Logger) *Scheduler {
	return &Scheduler{
		log:      log,
		shutdown: make(chan struct{}),
	}
}

// Add регистрирует задачу. Допустимо только до Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start запускает все задачи
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Stop останавливает все задачи и дожидается их завершения
func (s *Scheduler) Stop() {
	close(s.shutdown)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.Jitter > 0 {
		delay := time.Duration(rand.Int63n(int64(job.Jitter)))
		select {
		case <-time.After(delay):
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.log.Info("scheduler job started",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval),
	)

	for {
		select {
		case <-s.shutdown:
			s.log.Info("scheduler job stopped", zap.String("job", job.Name))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			job.Run(ctx)
			s.log.Debug("scheduler job finished",
				zap.String("job", job.Name),
				zap.Duration("duration", time.Since(start)),
			)
		}
	}
}
