package queue

import (
	"time"

	"github.com/sunilseervi6/SmartQ/internal/models"
)

// Минут ожидания на одного человека впереди. Оценка, не гарантия.
const minutesPerCustomer = 5

// rankExpr — SQL-выражение веса приоритета, согласованное с priorityRank.
const rankExpr = "CASE priority WHEN 'vip' THEN 2 WHEN 'urgent' THEN 1 ELSE 0 END"

// orderExpr — порядок вызова ожидающих: приоритет по убыванию, внутри
// приоритета — номер по возрастанию (он монотонен времени вступления).
const orderExpr = rankExpr + " DESC, queue_number ASC"

// priorityRank задаёт вес приоритета: vip вызывается раньше urgent,
// urgent — раньше normal.
func priorityRank(priority string) int {
	switch priority {
	case models.PriorityVIP:
		return 2
	case models.PriorityUrgent:
		return 1
	default:
		return 0
	}
}

// rankedBefore сообщает, стоит ли запись a строго раньше записи b в порядке
// вызова.
func rankedBefore(a, b *models.QueueEntry) bool {
	ra, rb := priorityRank(a.Priority), priorityRank(b.Priority)
	if ra != rb {
		return ra > rb
	}
	return a.QueueNumber < b.QueueNumber
}

// EstimatedWait возвращает оценку ожидания в минутах для позиции position.
// Пересчитывается на каждый запрос и нигде не кешируется.
func EstimatedWait(position int) int {
	if position < 1 {
		return 0
	}
	return (position - 1) * minutesPerCustomer
}

// DayKey — ключ календарного дня для нумерации. Номера обнуляются каждый
// день, чтобы оставаться короткими и читаемыми.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// withinOperatingHours проверяет попадание момента now в часы приёма.
// Пустые границы означают круглосуточный приём; некорректно заданные часы
// приём не блокируют.
func withinOperatingHours(start, end string, now time.Time) bool {
	if start == "" || end == "" {
		return true
	}
	s, errS := minutesOfDay(start)
	e, errE := minutesOfDay(end)
	if errS != nil || errE != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if s <= e {
		return cur >= s && cur < e
	}
	// Интервал через полночь, например 22:00–06:00.
	return cur >= s || cur < e
}

func minutesOfDay(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
