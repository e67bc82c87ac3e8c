package routes

import (
	"time"

	"tg-tires-server/models"
	"tg-tires-server/storage"
	"tg-tires-server/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

type AddSocialAccountInput struct {
	Platform    string `json:"platform" validate:"required,oneof=facebook instagram x marketplace"`
	Handle      string `json:"handle" validate:"required,max=128"`
	AccessToken string `json:"accessToken" validate:"required,max=1024"`
}

func AddSocialAccount(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input AddSocialAccountInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var existing models.SocialAccount
	result := storage.DB.
		Where("user_id = ? AND platform = ? AND deleted_at IS NULL", claims.ID, input.Platform).
		Limit(1).Find(&existing)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected > 0 {
		// Reconnecting the same platform replaces the stored token.
		updates := map[string]any{"handle": input.Handle, "access_token": input.AccessToken}
		if err := storage.DB.Model(&existing).Updates(updates).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		ctx.JSON(iris.Map{"success": true, "account": existing})
		return
	}

	account := models.SocialAccount{
		UserID:      claims.ID,
		Platform:    input.Platform,
		Handle:      input.Handle,
		AccessToken: input.AccessToken,
	}
	if err := storage.DB.Create(&account).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "account": account})
}

func GetSocialAccounts(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var accounts []models.SocialAccount
	if err := storage.DB.
		Where("user_id = ? AND deleted_at IS NULL", claims.ID).
		Find(&accounts).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "accounts": accounts})
}

func DeleteSocialAccount(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	var account models.SocialAccount
	result := storage.DB.Where("id = ? AND deleted_at IS NULL", id).Limit(1).Find(&account)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}
	if account.UserID != claims.ID {
		utils.CreateForbidden(ctx)
		return
	}

	now := time.Now()
	if err := storage.DB.Model(&account).Update("deleted_at", &now).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.StatusCode(iris.StatusNoContent)
}

type CreateSocialPostInput struct {
	ListingID uint     `json:"listingID" validate:"required"`
	Body      string   `json:"body" validate:"max=2000"`
	Platforms []string `json:"platforms" validate:"omitempty,dive,oneof=facebook instagram x marketplace"`
}

// CreateSocialPost queues one publish job per connected account. Empty
// Platforms means every connected account.
func CreateSocialPost(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreateSocialPostInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var listing models.TireListing
	result := storage.DB.
		Where("id = ? AND seller_id = ? AND status = ?",
			input.ListingID, claims.ID, models.ListingStatusActive).
		Limit(1).Find(&listing)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	q := storage.DB.Where("user_id = ? AND deleted_at IS NULL", claims.ID)
	if len(input.Platforms) > 0 {
		q = q.Where("platform IN ?", input.Platforms)
	}
	var accounts []models.SocialAccount
	if err := q.Find(&accounts).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if len(accounts) == 0 {
		utils.CreateError(iris.StatusBadRequest, "Social Error",
			"No connected accounts for the requested platforms.", ctx)
		return
	}

	body := utils.SanitizeContent(input.Body)
	post := models.SocialPost{
		UserID:        claims.ID,
		ListingID:     listing.ID,
		Body:          body,
		PlatformCount: len(accounts),
		Status:        models.SocialPostQueued,
	}
	if err := storage.DB.Create(&post).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if err := CrossPoster.Enqueue(&post, accounts); err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusAccepted)
	ctx.JSON(iris.Map{"success": true, "post": post})
}

func GetSocialPosts(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var posts []models.SocialPost
	if err := storage.DB.Where("user_id = ?", claims.ID).
		Order("created_at DESC").Limit(50).Find(&posts).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "posts": posts})
}
