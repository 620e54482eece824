package ratelimit

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sunilseervi6/SmartQ/internal/response"
	"github.com/sunilseervi6/SmartQ/internal/storage"

	"github.com/gin-gonic/gin"
)

// Middleware ограничивает частоту запросов фиксированным окном на Redis
// (INCR + EXPIRE). Ключ — пользователь, если запрос авторизован, иначе IP.
// Недоступный Redis лимитер отключает, а не роняет запросы.
func Middleware(name string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := storage.RedisClient
		if client == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", name, clientKey(c))
		ctx := c.Request.Context()

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			log.Println("Ошибка лимитера запросов:", err)
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(ctx, key, window)
		}

		if count > int64(limit) {
			c.JSON(http.StatusTooManyRequests, response.ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "Слишком много запросов, попробуйте позже",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if userID := c.GetUint("userID"); userID != 0 {
		return "user:" + strconv.FormatUint(uint64(userID), 10)
	}
	return "ip:" + c.ClientIP()
}
