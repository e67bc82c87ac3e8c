package routes

import (

	"tg-tires-server/models"
	"tg-tires-server/storage"
	"tg-tires-server/utils"

	"github.com/kataras/iris/v12"
)

func AdminListSecurityEvents(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("perPage", 50)
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	if page < 1 {
		page = 1
	}

	q := storage.DB.Model(&models.SecurityEvent{})
	if severity := ctx.URLParam("severity"); severity != "" {
		q = q.Where("severity = ?", severity)
	}
	if eventType := ctx.URLParam("type"); eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	if ip := ctx.URLParam("ip"); ip != "" {
		q = q.Where("ip_address = ?", ip)
	}

	var total int64
	q.Count(&total)

	var events []models.SecurityEvent
	if err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&events).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, events, page, perPage, total)
}

// AdminUnblockIP lifts an automatic block before its TTL expires.
func AdminUnblockIP(ctx iris.Context) {
	ip := ctx.Params().Get("ip")
	if ip == "" {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Missing ip.", ctx)
		return
	}

	if err := utils.Blocks.Unblock(ip); err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "unblocked": ip})
}

func AdminListPayments(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("perPage", 50)
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	if page < 1 {
		page = 1
	}

	q := storage.DB.Model(&models.Payment{})
	if status := ctx.URLParam("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	q.Count(&total)

	var payments []models.Payment
	if err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&payments).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, payments, page, perPage, total)
}
