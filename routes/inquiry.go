package routes

import (
	"errors"

	"tg-tires-server/models"
	"tg-tires-server/services"
	"tg-tires-server/utils"

	"github.com/kataras/iris/v12"
)

type CreateInquiryInput struct {
	From       string            `json:"from" validate:"required,max=256"`
	Content    string            `json:"content" validate:"required"`
	Channel    string            `json:"channel" validate:"required,oneof=SMS EMAIL IN_APP"`
	BusinessID uint              `json:"businessID" validate:"required"`
	Metadata   map[string]string `json:"metadata"`
}

// CreateInquiry is the public customer entry point. Rate limited per IP and
// screened for hostile input before it reaches the router.
func CreateInquiry(ctx iris.Context) {
	var input CreateInquiryInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if pattern, found := utils.ScanSuspicious(input.From, input.Content); found {
		utils.RecordSecurityEvent(ctx, "suspicious_input", models.SeverityHigh,
			"inquiry contained "+pattern)
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Message rejected.", ctx)
		return
	}

	switch input.Channel {
	case models.ChannelSMS:
		if !utils.ValidatePhoneNumber(input.From) {
			utils.CreateError(iris.StatusBadRequest, "Validation Error", "Invalid phone number.", ctx)
			return
		}
		input.From = utils.NormalizePhoneNumber(input.From)
	case models.ChannelEmail:
		if !utils.ValidateEmailAddress(input.From) {
			utils.CreateError(iris.StatusBadRequest, "Validation Error", "Invalid email address.", ctx)
			return
		}
		input.From = utils.NormalizeEmailAddress(input.From)
	}

	msg, err := Messaging.HandleIncoming(ctx.Request().Context(), input.From, input.Content, input.Channel, input.BusinessID, input.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyContent), errors.Is(err, services.ErrUnknownChannel):
			utils.CreateError(iris.StatusBadRequest, "Validation Error", err.Error(), ctx)
		default:
			utils.CreateInternalServerError(ctx)
		}
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "message": msg})
}
