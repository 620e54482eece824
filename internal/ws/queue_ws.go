package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sunilseervi6/SmartQ/internal/queue"
)

// Hub хранит подключения клиентов, сгруппированные по roomID.
type Hub struct {
	// Для каждой комнаты (roomID) храним множество подключений.
	clients map[string]map[*Client]bool
	// Канал для регистрации нового клиента.
	register chan *Client
	// Канал для удаления клиента.
	unregister chan *Client
	// Канал для трансляции сообщений по конкретной комнате.
	broadcast chan BroadcastMessage
	// Mutex для защиты карты клиентов.
	mu sync.RWMutex
}

// BroadcastMessage представляет сообщение для рассылки подписчикам комнаты.
type BroadcastMessage struct {
	RoomID  string
	Message []byte
}

// WSMessage — событие очереди, отправляемое подписчикам.
type WSMessage struct {
	EventType string      `json:"event_type"`
	RoomID    string      `json:"room_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Создаем глобальный экземпляр хаба.
var HubInstance = NewHub()

// NewHub создает новый Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage),
	}
}

// Run запускает цикл обработки каналов хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.RoomID] == nil {
				h.clients[client.RoomID] = make(map[*Client]bool)
			}
			h.clients[client.RoomID][client] = true
			h.mu.Unlock()
			log.Printf("WS-клиент %s подключился к комнате %s", client.ID, client.RoomID)
		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.RoomID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.RoomID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("WS-клиент %s отключился от комнаты %s", client.ID, client.RoomID)
		case message := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[message.RoomID]; ok {
				for client := range clients {
					select {
					case client.Send <- message.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastWSMessage сериализует событие и рассылает его подписчикам комнаты.
func (h *Hub) BroadcastWSMessage(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Println("Ошибка сериализации WS-сообщения:", err)
		return
	}
	h.broadcast <- BroadcastMessage{RoomID: msg.RoomID, Message: payload}
}

// Client представляет одно подключение через WebSocket.
type Client struct {
	ID     string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	RoomID string
}

// readPump читает сообщения из WebSocket-соединения.
// Входящие сообщения не обрабатываются, отслеживается только разрыв соединения.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump отправляет сообщения клиенту из канала Send.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Канал закрыт.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			// Отправка ping-сообщения для поддержания соединения.
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Настраиваем апгрейдер для WebSocket с разрешением всех источников.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomWebSocketHandler обновляет соединение до WebSocket и регистрирует
// клиента как подписчика комнаты. URL-пример: /api/queues/{id}/ws
func RoomWebSocketHandler(c *gin.Context) {
	roomID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		http.Error(c.Writer, "Ошибка обновления до WebSocket", http.StatusInternalServerError)
		return
	}
	client := &Client{
		ID:     uuid.NewString(),
		Hub:    HubInstance,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		RoomID: roomID,
	}
	HubInstance.register <- client

	// Запускаем горутины для отправки и приема сообщений
	go client.writePump()
	client.readPump()
}

// QueueNotifier транслирует снимки очереди подписчикам комнаты через Hub.
// Реализует queue.Notifier.
type QueueNotifier struct {
	Hub *Hub
}

func (n *QueueNotifier) Publish(roomID uint, snap queue.Snapshot) error {
	n.Hub.BroadcastWSMessage(WSMessage{
		EventType: "queue_updated",
		RoomID:    strconv.FormatUint(uint64(roomID), 10),
		Data:      snap,
	})
	return nil
}
