package main

import (
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/sunilseervi6/SmartQ/docs"
	"github.com/sunilseervi6/SmartQ/internal/auth"
	"github.com/sunilseervi6/SmartQ/internal/handlers"
	"github.com/sunilseervi6/SmartQ/internal/models"
	"github.com/sunilseervi6/SmartQ/internal/queue"
	"github.com/sunilseervi6/SmartQ/internal/ratelimit"
	"github.com/sunilseervi6/SmartQ/internal/storage"
	"github.com/sunilseervi6/SmartQ/internal/tasks"
	"github.com/sunilseervi6/SmartQ/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @Title						SmartQ — онлайн-очереди для заведений
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		err := godotenv.Load()
		if err != nil {
			log.Fatal("Ошибка получения .env")
		}
	}

	storage.ConnectDatabase()

	if err := storage.DB.AutoMigrate(&models.User{}, &models.Shop{}, &models.Room{}, &models.QueueEntry{}, &models.Notification{}); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}

	storage.InitRedis()

	go ws.HubInstance.Run()

	engine := queue.NewEngine(storage.DB,
		queue.WithNotifier(&ws.QueueNotifier{Hub: ws.HubInstance}))
	handlers.QueueEngine = engine

	tasks.InitScheduler(engine)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authGroup := r.Group("/auth", ratelimit.Middleware("auth", 20, time.Minute))
	{
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	shops := r.Group("/api/shops", auth.AuthMiddleware())
	{
		shops.POST("", handlers.CreateShopHandler)
		shops.GET("", handlers.GetMyShopsHandler)
		shops.PUT("/:id", handlers.UpdateShopHandler)
		shops.DELETE("/:id", handlers.DeleteShopHandler)
		shops.POST("/:id/rooms", handlers.CreateRoomHandler)
		shops.GET("/:id/rooms", handlers.GetShopRoomsHandler)
	}

	rooms := r.Group("/api/rooms")
	{
		rooms.GET("/code/:code", handlers.GetRoomByCodeHandler)
		rooms.PUT("/:id", auth.AuthMiddleware(), handlers.UpdateRoomHandler)
		rooms.DELETE("/:id", auth.AuthMiddleware(), handlers.DeleteRoomHandler)
	}

	r.GET("/api/queues/:id", handlers.GetQueueSnapshotHandler)
	r.GET("/api/queues/:id/ws", ws.RoomWebSocketHandler)
	queues := r.Group("/api/queues", auth.AuthMiddleware())
	{
		queues.POST("/:id/join", ratelimit.Middleware("join", 30, time.Minute), handlers.JoinQueueHandler)
		queues.POST("/:id/call-next", handlers.CallNextHandler)
		queues.DELETE("/:id/clear", handlers.ClearQueueHandler)
	}

	entries := r.Group("/api/entries", auth.AuthMiddleware())
	{
		entries.DELETE("/:entryId", handlers.LeaveQueueHandler)
		entries.PUT("/:entryId/complete", handlers.CompleteHandler)
		entries.PUT("/:entryId/no-show", handlers.NoShowHandler)
	}

	r.GET("/api/my-queues", auth.AuthMiddleware(), handlers.MyStatusHandler)

	notifications := r.Group("/api/notifications", auth.AuthMiddleware())
	{
		notifications.GET("", handlers.GetNotificationsHandler)
		notifications.PUT("/:id/read", handlers.MarkNotificationReadHandler)
	}

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Ошибка запуска сервера...", err.Error())
	}
}
