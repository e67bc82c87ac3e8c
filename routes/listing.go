package routes

import (
	"encoding/json"
	"strconv"

	"tg-tires-server/models"
	"tg-tires-server/storage"
	"tg-tires-server/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/datatypes"
)

type CreateListingInput struct {
	Title       string   `json:"title" validate:"required,max=256"`
	Description string   `json:"description" validate:"max=5000"`
	Brand       string   `json:"brand" validate:"max=64"`
	TireSize    string   `json:"tireSize" validate:"max=32"`
	Condition   string   `json:"condition" validate:"omitempty,oneof=new used refurbished"`
	TreadDepth  float32  `json:"treadDepth"`
	Quantity    int      `json:"quantity" validate:"min=1,max=100"`
	PriceCents  int64    `json:"priceCents" validate:"required,min=1"`
	Currency    string   `json:"currency" validate:"omitempty,len=3"`
	Images      []string `json:"images"`
}

func CreateListing(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreateListingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if pattern, found := utils.ScanSuspicious(input.Title, input.Description, input.Brand); found {
		utils.RecordSecurityEvent(ctx, "suspicious_input", models.SeverityMedium,
			"listing contained "+pattern)
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Listing rejected.", ctx)
		return
	}

	images := input.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, _ := json.Marshal(images)

	currency := input.Currency
	if currency == "" {
		currency = "usd"
	}

	listing := models.TireListing{
		SellerID:    claims.ID,
		Title:       input.Title,
		Description: input.Description,
		Brand:       input.Brand,
		TireSize:    input.TireSize,
		Condition:   input.Condition,
		TreadDepth:  input.TreadDepth,
		Quantity:    input.Quantity,
		PriceCents:  input.PriceCents,
		Currency:    currency,
		Images:      datatypes.JSON(imagesJSON),
		Status:      models.ListingStatusActive,
	}

	if err := storage.DB.Create(&listing).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "listing": listing})
}

func GetListing(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var listing models.TireListing
	result := storage.DB.Where("id = ? AND status <> ?", id, models.ListingStatusRemoved).
		Limit(1).Find(&listing)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true, "listing": listing})
}

func GetListingsBySeller(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var listings []models.TireListing
	if err := storage.DB.Where("seller_id = ?", id).
		Order("created_at DESC").Find(&listings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "listings": listings})
}

type UpdateListingInput struct {
	Title       *string  `json:"title" validate:"omitempty,max=256"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	Brand       *string  `json:"brand" validate:"omitempty,max=64"`
	TireSize    *string  `json:"tireSize" validate:"omitempty,max=32"`
	Condition   *string  `json:"condition" validate:"omitempty,oneof=new used refurbished"`
	TreadDepth  *float32 `json:"treadDepth"`
	Quantity    *int     `json:"quantity" validate:"omitempty,min=1,max=100"`
	PriceCents  *int64   `json:"priceCents" validate:"omitempty,min=1"`
	Status      *string  `json:"status" validate:"omitempty,oneof=draft active sold removed"`
	Images      []string `json:"images"`
}

func UpdateListing(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	listing := getOwnedListing(id, claims.ID, ctx)
	if listing == nil {
		return
	}

	var input UpdateListingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Brand != nil {
		updates["brand"] = *input.Brand
	}
	if input.TireSize != nil {
		updates["tire_size"] = *input.TireSize
	}
	if input.Condition != nil {
		updates["condition"] = *input.Condition
	}
	if input.TreadDepth != nil {
		updates["tread_depth"] = *input.TreadDepth
	}
	if input.Quantity != nil {
		updates["quantity"] = *input.Quantity
	}
	if input.PriceCents != nil {
		updates["price_cents"] = *input.PriceCents
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.Images != nil {
		imagesJSON, _ := json.Marshal(input.Images)
		updates["images"] = datatypes.JSON(imagesJSON)
	}

	if len(updates) == 0 {
		ctx.JSON(iris.Map{"success": true, "listing": listing})
		return
	}

	if err := storage.DB.Model(listing).Updates(updates).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "listing": listing})
}

// DeleteListing soft-deletes by moving the listing to removed.
func DeleteListing(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	listing := getOwnedListing(id, claims.ID, ctx)
	if listing == nil {
		return
	}

	if err := storage.DB.Model(listing).
		Update("status", models.ListingStatusRemoved).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.StatusCode(iris.StatusNoContent)
}

// SearchListings filters active listings by brand, size and price range.
// GET /api/listing/search?brand=...&size=...&minPrice=...&maxPrice=...&page=...
func SearchListings(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("perPage", 20)
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page < 1 {
		page = 1
	}

	q := storage.DB.Model(&models.TireListing{}).
		Where("status = ?", models.ListingStatusActive)
	if brand := ctx.URLParam("brand"); brand != "" {
		q = q.Where("lower(brand) = lower(?)", brand)
	}
	if size := ctx.URLParam("size"); size != "" {
		q = q.Where("tire_size = ?", size)
	}
	if minPrice, err := strconv.ParseInt(ctx.URLParam("minPrice"), 10, 64); err == nil {
		q = q.Where("price_cents >= ?", minPrice)
	}
	if maxPrice, err := strconv.ParseInt(ctx.URLParam("maxPrice"), 10, 64); err == nil {
		q = q.Where("price_cents <= ?", maxPrice)
	}

	var total int64
	q.Count(&total)

	var listings []models.TireListing
	if err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&listings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, listings, page, perPage, total)
}

func getOwnedListing(id string, userID uint, ctx iris.Context) *models.TireListing {
	var listing models.TireListing
	result := storage.DB.Where("id = ?", id).Limit(1).Find(&listing)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return nil
	}
	if listing.SellerID != userID {
		utils.RecordSecurityEvent(ctx, "unauthorized_mutation", models.SeverityMedium,
			"listing "+id+" not owned by requester")
		utils.CreateForbidden(ctx)
		return nil
	}
	return &listing
}
