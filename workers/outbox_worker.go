package workers

import (
	"context"
	"log"
	"time"

	"zero-olympiad/models"
	"zero-olympiad/services"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

const (
	defaultOutboxInterval = 30 * time.Second
	defaultOutboxBatch    = 50
	maxEmailAttempts      = 5
)

// OutboxWorker delivers queued notification email on a fixed schedule.
type OutboxWorker struct {
	db          *gorm.DB
	mailer      services.Mailer
	metrics     *services.OlympiadMetrics
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewOutboxWorker(db *gorm.DB, mailer services.Mailer, metrics *services.OlympiadMetrics) *OutboxWorker {
	return &OutboxWorker{
		db:          db,
		mailer:      mailer,
		metrics:     metrics,
		interval:    defaultOutboxInterval,
		batchSize:   defaultOutboxBatch,
		maxAttempts: maxEmailAttempts,
	}
}

// Start schedules the flush job and stops the scheduler when ctx ends.
func (w *OutboxWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			if _, err := w.Flush(ctx); err != nil {
				log.Printf("❌ [OUTBOX] flush failed: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	sched.Start()
	log.Printf("🔁 [OUTBOX] delivering queued email every %s", w.interval)

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("⚠️ [OUTBOX] scheduler shutdown: %v", err)
		}
		log.Println("⏹️ [OUTBOX] stopped")
	}()
	return nil
}

// Flush sends one batch of pending messages, oldest first, and returns how
// many were delivered. A message that keeps failing is parked as failed.
func (w *OutboxWorker) Flush(ctx context.Context) (int, error) {
	var batch []models.EmailOutbox
	err := w.db.WithContext(ctx).
		Where("status = ?", models.EmailPending).
		Order("created_at ASC").
		Limit(w.batchSize).
		Find(&batch).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range batch {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		msg := &batch[i]
		sendErr := w.mailer.Send(ctx, msg)

		fields := map[string]any{"attempts": msg.Attempts + 1}
		if sendErr == nil {
			fields["status"] = models.EmailSent
			fields["sent_at"] = time.Now()
			fields["last_error"] = nil
			sent++
			w.metrics.ObserveEmail("sent")
		} else {
			errText := sendErr.Error()
			fields["last_error"] = errText
			if msg.Attempts+1 >= w.maxAttempts {
				fields["status"] = models.EmailFailed
			}
			w.metrics.ObserveEmail("error")
			log.Printf("⚠️ [OUTBOX] send to %s failed (attempt %d): %v", msg.To, msg.Attempts+1, sendErr)
		}

		if err := w.db.WithContext(ctx).Model(&models.EmailOutbox{}).Where("id = ?", msg.ID).Updates(fields).Error; err != nil {
			return sent, err
		}
	}
	if len(batch) > 0 {
		log.Printf("📬 [OUTBOX] delivered %d/%d", sent, len(batch))
	}
	return sent, nil
}
