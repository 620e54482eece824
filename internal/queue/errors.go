package queue

import (
	"errors"
	"fmt"
)

// Причина отказа контроля допуска.
type AdmissionReason string

const (
	ReasonRoomInactive  AdmissionReason = "room_inactive"
	ReasonQueueClosed   AdmissionReason = "queue_closed"
	ReasonAlreadyQueued AdmissionReason = "already_queued"
	ReasonQueueFull     AdmissionReason = "queue_full"
)

// AdmissionError — отказ при вступлении в очередь. Ошибка исправима со
// стороны клиента: комната неактивна, приём закрыт, запись уже есть или
// очередь заполнена.
type AdmissionError struct {
	Reason AdmissionReason
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("вступление отклонено: %s", e.Reason)
}

var (
	// ErrNotFound — комната или запись не найдены.
	ErrNotFound = errors.New("комната или запись не найдены")

	// ErrEmptyQueue — в комнате нет ожидающих. Штатный исход вызова
	// следующего, а не сбой.
	ErrEmptyQueue = errors.New("нет ожидающих в очереди")

	// ErrInvalidTransition — операция не соответствует текущему статусу
	// записи; клиенту следует обновить своё представление.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")

	// ErrStaleState — условное обновление не прошло: статус записи успел
	// измениться параллельной операцией.
	ErrStaleState = errors.New("статус записи изменился параллельно")

	// ErrTransientConflict — гонка не разрешилась за отведённое число
	// попыток; операцию можно повторить целиком.
	ErrTransientConflict = errors.New("конфликт параллельных операций, повторите попытку")

	// ErrNotOwner — запись принадлежит другому клиенту.
	ErrNotOwner = errors.New("запись принадлежит другому пользователю")
)
