package routes

import (
	"encoding/json"
	"time"

	"tg-tires-server/models"
	"tg-tires-server/storage"
	"tg-tires-server/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/datatypes"
)

type CreateYardSaleItemInput struct {
	Title       string   `json:"title" validate:"required,max=256"`
	Description string   `json:"description" validate:"max=5000"`
	Category    string   `json:"category" validate:"omitempty,oneof=tools furniture parts other"`
	PriceCents  int64    `json:"priceCents" validate:"min=0"`
	Images      []string `json:"images"`
}

func CreateYardSaleItem(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreateYardSaleItemInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if pattern, found := utils.ScanSuspicious(input.Title, input.Description); found {
		utils.RecordSecurityEvent(ctx, "suspicious_input", models.SeverityMedium,
			"yard sale item contained "+pattern)
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Item rejected.", ctx)
		return
	}

	images := input.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, _ := json.Marshal(images)

	category := input.Category
	if category == "" {
		category = "other"
	}

	item := models.YardSaleItem{
		SellerID:    claims.ID,
		Title:       input.Title,
		Description: input.Description,
		Category:    category,
		PriceCents:  input.PriceCents,
		Images:      datatypes.JSON(imagesJSON),
	}

	if err := storage.DB.Create(&item).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "item": item})
}

func GetYardSaleItems(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("perPage", 20)
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page < 1 {
		page = 1
	}

	q := storage.DB.Model(&models.YardSaleItem{}).
		Where("deleted_at IS NULL AND sold = false")
	if category := ctx.URLParam("category"); category != "" {
		q = q.Where("category = ?", category)
	}

	var total int64
	q.Count(&total)

	var items []models.YardSaleItem
	if err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&items).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, items, page, perPage, total)
}

func GetYardSaleItem(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var item models.YardSaleItem
	result := storage.DB.Where("id = ? AND deleted_at IS NULL", id).Limit(1).Find(&item)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "item": item})
}

func MarkYardSaleItemSold(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	item := getOwnedYardSaleItem(id, claims.ID, ctx)
	if item == nil {
		return
	}

	if err := storage.DB.Model(item).Update("sold", true).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "item": item})
}

func DeleteYardSaleItem(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	item := getOwnedYardSaleItem(id, claims.ID, ctx)
	if item == nil {
		return
	}

	now := time.Now()
	if err := storage.DB.Model(item).Update("deleted_at", &now).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.StatusCode(iris.StatusNoContent)
}

func getOwnedYardSaleItem(id string, userID uint, ctx iris.Context) *models.YardSaleItem {
	var item models.YardSaleItem
	result := storage.DB.Where("id = ? AND deleted_at IS NULL", id).Limit(1).Find(&item)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return nil
	}
	if item.SellerID != userID {
		utils.CreateForbidden(ctx)
		return nil
	}
	return &item
}
