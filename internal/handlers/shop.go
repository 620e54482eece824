package handlers

import (
	"net/http"
	"strconv"

	"github.com/sunilseervi6/SmartQ/internal/models"
	"github.com/sunilseervi6/SmartQ/internal/response"
	"github.com/sunilseervi6/SmartQ/internal/storage"

	"github.com/gin-gonic/gin"
)

type ShopRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Address     string `json:"address" binding:"required,max=200"`
	Category    string `json:"category" binding:"required"`
	Description string `json:"description" binding:"max=500"`
	Phone       string `json:"phone"`
	Email       string `json:"email" binding:"omitempty,email"`
}

type ShopResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	ShopCode    string `json:"shop_code"`
	Address     string `json:"address"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	IsActive    bool   `json:"is_active"`
}

func shopResponse(shop *models.Shop) ShopResponse {
	return ShopResponse{
		ID:          shop.ID,
		Name:        shop.Name,
		ShopCode:    shop.ShopCode,
		Address:     shop.Address,
		Category:    shop.Category,
		Description: shop.Description,
		Phone:       shop.Phone,
		Email:       shop.Email,
		IsActive:    shop.IsActive,
	}
}

// CreateShopHandler обрабатывает создание заведения
// @Summary		Создание заведения
// @Description	Создаёт заведение с уникальным публичным кодом SHOP-XXXXXX
// @Tags			shops
// @Accept			json
// @Produce		json
// @Param			shop	body		ShopRequest	true	"Данные заведения"
// @Security		BearerAuth
// @Success		201	{object}	ShopResponse			"Заведение создано"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (CODE_GENERATION_ERROR, DB_ERROR)"
// @Router			/api/shops [post]
func CreateShopHandler(c *gin.Context) {
	var req ShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	userID := c.GetUint("userID")

	code, err := generateUniqueCode("SHOP", "shop_code", &models.Shop{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "CODE_GENERATION_ERROR",
			Message: "Ошибка генерации кода заведения",
		})
		return
	}

	shop := models.Shop{
		Name:        req.Name,
		Address:     req.Address,
		Category:    req.Category,
		ShopCode:    code,
		OwnerID:     userID,
		Description: req.Description,
		Phone:       req.Phone,
		Email:       req.Email,
		IsActive:    true,
	}

	if err := storage.DB.Create(&shop).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка при создании заведения",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, shopResponse(&shop))
}

// GetMyShopsHandler возвращает заведения текущего владельца
// @Summary		Список своих заведений
// @Tags			shops
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		ShopResponse
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/shops [get]
func GetMyShopsHandler(c *gin.Context) {
	userID := c.GetUint("userID")

	var shops []models.Shop
	if err := storage.DB.Where("owner_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").Find(&shops).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки заведений",
		})
		return
	}

	result := make([]ShopResponse, 0, len(shops))
	for i := range shops {
		result = append(result, shopResponse(&shops[i]))
	}
	c.JSON(http.StatusOK, result)
}

// UpdateShopHandler обновляет данные заведения владельца
// @Summary		Обновление заведения
// @Tags			shops
// @Accept			json
// @Produce		json
// @Param			id		path		string		true	"ID заведения"
// @Param			shop	body		ShopRequest	true	"Новые данные"
// @Security		BearerAuth
// @Success		200	{object}	ShopResponse
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_SHOP_ID, VALIDATION_ERROR)"
// @Failure		404	{object}	response.ErrorResponse	"Заведение не найдено или чужое (SHOP_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/shops/{id} [put]
func UpdateShopHandler(c *gin.Context) {
	shop, ok := shopOwnedBy(c)
	if !ok {
		return
	}

	var req ShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	shop.Name = req.Name
	shop.Address = req.Address
	shop.Category = req.Category
	shop.Description = req.Description
	shop.Phone = req.Phone
	shop.Email = req.Email

	if err := storage.DB.Save(shop).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка при обновлении заведения",
		})
		return
	}

	c.JSON(http.StatusOK, shopResponse(shop))
}

// DeleteShopHandler деактивирует заведение владельца
// @Summary		Удаление заведения
// @Description	Заведение деактивируется, история записей сохраняется
// @Tags			shops
// @Produce		json
// @Param			id	path	string	true	"ID заведения"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_SHOP_ID)"
// @Failure		404	{object}	response.ErrorResponse	"Заведение не найдено или чужое (SHOP_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/shops/{id} [delete]
func DeleteShopHandler(c *gin.Context) {
	shop, ok := shopOwnedBy(c)
	if !ok {
		return
	}

	if err := storage.DB.Model(shop).Update("is_active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка при удалении заведения",
		})
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Заведение деактивировано"})
}

// shopOwnedBy загружает заведение из параметра id и проверяет, что им
// владеет текущий пользователь. При ошибке ответ уже записан.
func shopOwnedBy(c *gin.Context) (*models.Shop, bool) {
	shopID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_SHOP_ID",
			Message: "Неверный идентификатор заведения",
		})
		return nil, false
	}

	userID := c.GetUint("userID")
	var shop models.Shop
	if err := storage.DB.Where("id = ? AND owner_id = ?", shopID, userID).First(&shop).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "SHOP_NOT_FOUND",
			Message: "Заведение не найдено",
		})
		return nil, false
	}
	return &shop, true
}
