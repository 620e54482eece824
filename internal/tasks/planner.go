package tasks

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/sunilseervi6/SmartQ/internal/queue"

	"github.com/robfig/cron/v3"
)

var engine *queue.Engine

// CancelStaleEntries отменяет записи, ожидающие дольше допустимого горизонта
// (QUEUE_STALE_HOURS, по умолчанию 12 часов): клиент, не дождавшийся вызова
// за рабочий день, не должен занимать место в очереди.
func CancelStaleEntries() {
	hours := 12
	if v := os.Getenv("QUEUE_STALE_HOURS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	threshold := time.Now().Add(-time.Duration(hours) * time.Hour)
	cancelled, err := engine.CancelStale(threshold)
	if err != nil {
		log.Println("Ошибка отмены устаревших записей:", err)
		return
	}
	if cancelled > 0 {
		log.Printf("Отменено устаревших записей: %d\n", cancelled)
	}
}

// SyncRoomCounters пересчитывает денормализованные счётчики комнат по
// таблице записей.
func SyncRoomCounters() {
	if err := engine.SyncRoomCounters(); err != nil {
		log.Println("Ошибка пересчёта счётчиков комнат:", err)
	} else {
		log.Println("Счётчики комнат пересчитаны.")
	}
}

// InitScheduler инициализирует планировщик cron-задач.
func InitScheduler(e *queue.Engine) *cron.Cron {
	engine = e

	c := cron.New(cron.WithSeconds())

	// Задача отмены устаревших записей каждые 30 минут.
	_, err := c.AddFunc("0 */30 * * * *", CancelStaleEntries)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи CancelStaleEntries:", err)
	}

	// Задача пересчёта счётчиков комнат каждый день в 03:00.
	_, err = c.AddFunc("0 0 3 * * *", SyncRoomCounters)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи SyncRoomCounters:", err)
	}

	c.Start()
	log.Println("Cron-планировщик запущен.")
	return c
}
