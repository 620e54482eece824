package queue

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sunilseervi6/SmartQ/internal/models"
	"github.com/sunilseervi6/SmartQ/internal/storage"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB подключается к тестовой базе и очищает таблицы. Тесты
// пропускаются, если TEST_DB_HOST не задан.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	if os.Getenv("ENV_CHEK") == "" {
		_ = godotenv.Load("../../.env")
	}
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST не задан, пропускаем интеграционные тесты")
	}

	storage.ConnectTestingDatabase()
	db := storage.DB

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Shop{}, &models.Room{}, &models.QueueEntry{}, &models.Notification{}))
	db.Exec("TRUNCATE TABLE users, shops, rooms, queue_entries, notifications RESTART IDENTITY CASCADE;")

	return db
}

var seedSeq int

func seedCustomer(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	seedSeq++
	user := models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s_%d_%d@example.com", name, seedSeq, time.Now().UnixNano()),
		PasswordHash: "hashed",
		Role:         models.RoleCustomer,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func seedRoom(t *testing.T, db *gorm.DB, capacity int) *models.Room {
	t.Helper()
	seedSeq++
	owner := models.User{
		Name:         "Владелец",
		Email:        fmt.Sprintf("owner_%d_%d@example.com", seedSeq, time.Now().UnixNano()),
		PasswordHash: "hashed",
		Role:         models.RoleOwner,
	}
	require.NoError(t, db.Create(&owner).Error)

	shop := models.Shop{
		Name:     "Тестовое заведение",
		Address:  "ул. Тестовая, 1",
		Category: "Services",
		ShopCode: fmt.Sprintf("SHOP-T%05d", seedSeq),
		OwnerID:  owner.ID,
		IsActive: true,
	}
	require.NoError(t, db.Create(&shop).Error)

	room := models.Room{
		Name:        "Стойка",
		RoomCode:    fmt.Sprintf("RM-T%05d", seedSeq),
		ShopID:      shop.ID,
		RoomType:    "counter",
		MaxCapacity: capacity,
		IsActive:    true,
	}
	require.NoError(t, db.Create(&room).Error)
	return &room
}

func TestJoinAssignsSequentialNumbers(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 10)

	for i := 1; i <= 3; i++ {
		customer := seedCustomer(t, db, fmt.Sprintf("c%d", i))
		entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
		require.NoError(t, err)
		assert.Equal(t, i, entry.QueueNumber)
		assert.Equal(t, models.StatusWaiting, entry.Status)

		position, wait, err := engine.Position(entry)
		require.NoError(t, err)
		assert.Equal(t, i, position)
		assert.Equal(t, (i-1)*5, wait)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	customer := seedCustomer(t, db, "c")

	_, err := engine.Join(JoinParams{RoomID: 9999, CustomerID: customer.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinRejectsInactiveRoom(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 5)
	require.NoError(t, db.Model(room).Update("is_active", false).Error)

	customer := seedCustomer(t, db, "c")
	_, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})

	var adm *AdmissionError
	require.ErrorAs(t, err, &adm)
	assert.Equal(t, ReasonRoomInactive, adm.Reason)
}

func TestJoinRejectsOutsideOperatingHours(t *testing.T) {
	db := setupTestDB(t)
	// Фиксированные часы: 20:00 при приёме 09:00–17:00.
	evening := time.Date(2025, 6, 2, 20, 0, 0, 0, time.Local)
	engine := NewEngine(db, WithClock(func() time.Time { return evening }))

	room := seedRoom(t, db, 5)
	require.NoError(t, db.Model(room).Updates(map[string]interface{}{
		"opens_at":  "09:00",
		"closes_at": "17:00",
	}).Error)

	customer := seedCustomer(t, db, "c")
	_, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})

	// Отказ именно "приём закрыт", а не "очередь заполнена".
	var adm *AdmissionError
	require.ErrorAs(t, err, &adm)
	assert.Equal(t, ReasonQueueClosed, adm.Reason)
}

func TestJoinRejectsDuplicate(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 5)
	customer := seedCustomer(t, db, "c")

	_, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)

	_, err = engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	var adm *AdmissionError
	require.ErrorAs(t, err, &adm)
	assert.Equal(t, ReasonAlreadyQueued, adm.Reason)
}

// Сценарий границы ёмкости: вызванные записи продолжают занимать место,
// освобождает его только терминальный статус.
func TestCapacityBoundaryScenario(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 2)

	a := seedCustomer(t, db, "a")
	b := seedCustomer(t, db, "b")
	cc := seedCustomer(t, db, "c")

	entryA, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, entryA.QueueNumber)

	entryB, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, entryB.QueueNumber)

	_, err = engine.Join(JoinParams{RoomID: room.ID, CustomerID: cc.ID})
	var adm *AdmissionError
	require.ErrorAs(t, err, &adm)
	assert.Equal(t, ReasonQueueFull, adm.Reason)

	// Вызов A: статус in_progress, место всё ещё занято.
	called, err := engine.CallNext(room.ID)
	require.NoError(t, err)
	assert.Equal(t, entryA.ID, called.ID)
	assert.Equal(t, models.StatusInProgress, called.Status)
	require.NotNil(t, called.CalledAt)

	_, err = engine.Join(JoinParams{RoomID: room.ID, CustomerID: cc.ID})
	require.ErrorAs(t, err, &adm)
	assert.Equal(t, ReasonQueueFull, adm.Reason)

	// Завершение A освобождает место.
	require.NoError(t, engine.Complete(entryA.ID))

	entryC, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: cc.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, entryC.QueueNumber)
}

func TestCallNextPriorityOrdering(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 10)

	priorities := []string{
		models.PriorityNormal,
		models.PriorityVIP,
		models.PriorityUrgent,
		models.PriorityNormal,
	}
	for i, p := range priorities {
		customer := seedCustomer(t, db, fmt.Sprintf("c%d", i))
		entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID, Priority: p})
		require.NoError(t, err)
		assert.Equal(t, i+1, entry.QueueNumber)
	}

	// Порядок вызова: vip#2, urgent#3, normal#1, normal#4.
	var order []int
	for i := 0; i < 4; i++ {
		called, err := engine.CallNext(room.ID)
		require.NoError(t, err)
		order = append(order, called.QueueNumber)
		require.NoError(t, engine.Complete(called.ID))
	}
	assert.Equal(t, []int{2, 3, 1, 4}, order)
}

func TestCallNextEmptyQueue(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 5)

	_, err := engine.CallNext(room.ID)
	assert.ErrorIs(t, err, ErrEmptyQueue)

	_, err = engine.CallNext(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentJoinsDistinctNumbers(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 50)

	const n = 10
	customers := make([]*models.User, n)
	for i := 0; i < n; i++ {
		customers[i] = seedCustomer(t, db, fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	results := make([]*models.QueueEntry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Join(JoinParams{RoomID: room.ID, CustomerID: customers[i].ID})
		}(i)
	}
	wg.Wait()

	numbers := make(map[int]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.False(t, numbers[results[i].QueueNumber], "номер %d выдан дважды", results[i].QueueNumber)
		numbers[results[i].QueueNumber] = true
	}
	// Номера без пропусков: ровно 1..n.
	for i := 1; i <= n; i++ {
		assert.True(t, numbers[i], "номер %d не выдан", i)
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 3)

	const n = 8
	customers := make([]*models.User, n)
	for i := 0; i < n; i++ {
		customers[i] = seedCustomer(t, db, fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Join(JoinParams{RoomID: room.ID, CustomerID: customers[i].ID})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			accepted++
			continue
		}
		var adm *AdmissionError
		require.ErrorAs(t, errs[i], &adm)
		assert.Equal(t, ReasonQueueFull, adm.Reason)
	}
	assert.Equal(t, 3, accepted)

	var active int64
	require.NoError(t, db.Model(&models.QueueEntry{}).
		Where("room_id = ? AND status IN ?", room.ID, activeStatuses).
		Count(&active).Error)
	assert.EqualValues(t, 3, active)
}

func TestConcurrentCallNextSingleWinner(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 5)

	customer := seedCustomer(t, db, "c")
	entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)

	const n = 5
	var wg sync.WaitGroup
	results := make([]*models.QueueEntry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.CallNext(room.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			wins++
			assert.Equal(t, entry.ID, results[i].ID)
			continue
		}
		// Проигравшие видят пустую очередь либо честный конфликт.
		assert.True(t,
			errors.Is(errs[i], ErrEmptyQueue) || errors.Is(errs[i], ErrTransientConflict),
			"неожиданная ошибка: %v", errs[i])
	}
	assert.Equal(t, 1, wins, "запись должна быть вызвана ровно один раз")
}

func TestLeaveRules(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 5)

	a := seedCustomer(t, db, "a")
	b := seedCustomer(t, db, "b")

	entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: a.ID})
	require.NoError(t, err)

	// Чужая запись.
	assert.ErrorIs(t, engine.Leave(entry.ID, b.ID), ErrNotOwner)

	// Несуществующая запись.
	assert.ErrorIs(t, engine.Leave(9999, a.ID), ErrNotFound)

	// Выход из waiting разрешён.
	require.NoError(t, engine.Leave(entry.ID, a.ID))

	var stored models.QueueEntry
	require.NoError(t, db.First(&stored, entry.ID).Error)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.CalledAt)

	// После вызова выход запрещён.
	entry2, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: a.ID})
	require.NoError(t, err)
	_, err = engine.CallNext(room.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, engine.Leave(entry2.ID, a.ID), ErrInvalidTransition)
}

func TestTerminalTransitionsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 5)
	customer := seedCustomer(t, db, "c")

	entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)

	// Завершать можно только из in_progress.
	assert.ErrorIs(t, engine.Complete(entry.ID), ErrInvalidTransition)
	assert.ErrorIs(t, engine.MarkNoShow(entry.ID), ErrInvalidTransition)

	_, err = engine.CallNext(room.ID)
	require.NoError(t, err)

	require.NoError(t, engine.Complete(entry.ID))
	// Повторное завершение должно быть отвергнуто, а не проглочено.
	assert.ErrorIs(t, engine.Complete(entry.ID), ErrInvalidTransition)
	assert.ErrorIs(t, engine.MarkNoShow(entry.ID), ErrInvalidTransition)

	var stored models.QueueEntry
	require.NoError(t, db.First(&stored, entry.ID).Error)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CalledAt)
	require.NotNil(t, stored.CompletedAt)
}

func TestClearCancelsActiveEntries(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 10)

	for i := 0; i < 3; i++ {
		customer := seedCustomer(t, db, fmt.Sprintf("c%d", i))
		_, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
		require.NoError(t, err)
	}
	// Один из трёх уже вызван.
	_, err := engine.CallNext(room.ID)
	require.NoError(t, err)

	count, err := engine.Clear(room.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	var active int64
	require.NoError(t, db.Model(&models.QueueEntry{}).
		Where("room_id = ? AND status IN ?", room.ID, activeStatuses).
		Count(&active).Error)
	assert.EqualValues(t, 0, active)

	var stored models.Room
	require.NoError(t, db.First(&stored, room.ID).Error)
	assert.Equal(t, 0, stored.CurrentQueueCount)

	// История сохраняется: нумерация дня продолжается.
	customer := seedCustomer(t, db, "d")
	entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, entry.QueueNumber)
}

func TestDayRolloverResetsNumbering(t *testing.T) {
	db := setupTestDB(t)

	day := "2025-06-02"
	engine := NewEngine(db, WithDayKey(func(time.Time) string { return day }))
	room := seedRoom(t, db, 5)
	customer := seedCustomer(t, db, "c")

	entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.QueueNumber)
	require.NoError(t, engine.Leave(entry.ID, customer.ID))

	// Смена суток: нумерация начинается заново.
	day = "2025-06-03"
	entry2, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, entry2.QueueNumber)
	assert.Equal(t, "2025-06-03", entry2.DayKey)
}

// Оценка ожидания не растёт, когда стоящие впереди покидают очередь.
func TestETAMonotonicAsQueueDrains(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 10)

	var entries []*models.QueueEntry
	for i := 0; i < 3; i++ {
		customer := seedCustomer(t, db, fmt.Sprintf("c%d", i))
		entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	last := entries[2]
	position, wait, err := engine.Position(last)
	require.NoError(t, err)
	assert.Equal(t, 3, position)
	assert.Equal(t, 10, wait)

	called, err := engine.CallNext(room.ID)
	require.NoError(t, err)
	require.NoError(t, engine.Complete(called.ID))

	position, wait, err = engine.Position(last)
	require.NoError(t, err)
	assert.Equal(t, 2, position)
	assert.Equal(t, 5, wait)
}

func TestSnapshotOrdersEntries(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 10)

	priorities := []string{models.PriorityNormal, models.PriorityVIP, models.PriorityNormal}
	for i, p := range priorities {
		customer := seedCustomer(t, db, fmt.Sprintf("c%d", i))
		_, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID, Priority: p})
		require.NoError(t, err)
	}
	// Вызванный vip#2 должен оказаться первым в снимке с нулевой позицией.
	called, err := engine.CallNext(room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, called.QueueNumber)

	snap, err := engine.Snapshot(room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.CurrentCount)
	assert.Equal(t, 10, snap.MaxCapacity)
	require.Len(t, snap.Entries, 3)

	assert.Equal(t, models.StatusInProgress, snap.Entries[0].Status)
	assert.Equal(t, 0, snap.Entries[0].Position)
	assert.Equal(t, 2, snap.Entries[0].QueueNumber)

	assert.Equal(t, models.StatusWaiting, snap.Entries[1].Status)
	assert.Equal(t, 1, snap.Entries[1].Position)
	assert.Equal(t, 1, snap.Entries[1].QueueNumber)
	assert.Equal(t, 0, snap.Entries[1].EstimatedWait)

	assert.Equal(t, 2, snap.Entries[2].Position)
	assert.Equal(t, 3, snap.Entries[2].QueueNumber)
	assert.Equal(t, 5, snap.Entries[2].EstimatedWait)
}

// recordingNotifier накапливает публикации для проверок.
type recordingNotifier struct {
	mu    sync.Mutex
	snaps []Snapshot
	fail  bool
}

func (n *recordingNotifier) Publish(roomID uint, snap Snapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snaps = append(n.snaps, snap)
	if n.fail {
		return errors.New("подписчик недоступен")
	}
	return nil
}

func TestNotifierReceivesSnapshotAfterCommit(t *testing.T) {
	db := setupTestDB(t)
	notifier := &recordingNotifier{}
	engine := NewEngine(db, WithNotifier(notifier))
	room := seedRoom(t, db, 5)
	customer := seedCustomer(t, db, "c")

	_, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)

	require.Len(t, notifier.snaps, 1)
	assert.Equal(t, room.ID, notifier.snaps[0].RoomID)
	assert.Equal(t, 1, notifier.snaps[0].CurrentCount)
}

func TestNotifierFailureDoesNotAffectMutation(t *testing.T) {
	db := setupTestDB(t)
	notifier := &recordingNotifier{fail: true}
	engine := NewEngine(db, WithNotifier(notifier))
	room := seedRoom(t, db, 5)
	customer := seedCustomer(t, db, "c")

	entry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: customer.ID})
	require.NoError(t, err)

	var stored models.QueueEntry
	require.NoError(t, db.First(&stored, entry.ID).Error)
	assert.Equal(t, models.StatusWaiting, stored.Status)
}

func TestCancelStale(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)
	room := seedRoom(t, db, 5)

	fresh := seedCustomer(t, db, "fresh")
	stale := seedCustomer(t, db, "stale")

	staleEntry, err := engine.Join(JoinParams{RoomID: room.ID, CustomerID: stale.ID})
	require.NoError(t, err)
	// Состариваем запись напрямую.
	require.NoError(t, db.Model(&models.QueueEntry{}).Where("id = ?", staleEntry.ID).
		Update("joined_at", time.Now().Add(-24*time.Hour)).Error)

	_, err = engine.Join(JoinParams{RoomID: room.ID, CustomerID: fresh.ID})
	require.NoError(t, err)

	cancelled, err := engine.CancelStale(time.Now().Add(-12 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, cancelled)

	var stored models.QueueEntry
	require.NoError(t, db.First(&stored, staleEntry.ID).Error)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	var active int64
	require.NoError(t, db.Model(&models.QueueEntry{}).
		Where("room_id = ? AND status IN ?", room.ID, activeStatuses).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}
