package routes

import (
	"errors"
	"net/http"

	"tg-tires-server/models"
	"tg-tires-server/services"
	"tg-tires-server/utils"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// GetConversation returns a conversation with its ordered history. Only the
// business that owns the conversation may read it.
func GetConversation(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	conv, msgs, err := Messaging.Conversation(id)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}
	if conv.BusinessID != claims.ID {
		utils.CreateForbidden(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"success":         true,
		"conversation":    conv,
		"customerDisplay": customerDisplay(conv),
		"messages":        msgs,
	})
}

func GetBusinessConversations(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	convs, err := Messaging.ListByBusiness(claims.ID)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	type conversationItem struct {
		models.Conversation
		CustomerDisplay string `json:"customerDisplay"`
	}
	items := make([]conversationItem, 0, len(convs))
	for _, conv := range convs {
		items = append(items, conversationItem{Conversation: conv, CustomerDisplay: customerDisplay(&conv)})
	}
	ctx.JSON(iris.Map{"success": true, "conversations": items})
}

// customerDisplay is the identifier as shown in the inbox: SMS numbers get
// the formatted US form, other channels pass through unchanged.
func customerDisplay(conv *models.Conversation) string {
	if conv.Channel == models.ChannelSMS {
		return utils.DisplayPhoneNumber(conv.CustomerIdentifier)
	}
	return conv.CustomerIdentifier
}

type SendReplyInput struct {
	Content   string  `json:"content" validate:"required"`
	InReplyTo *string `json:"inReplyTo"`
}

// SendReply dispatches a business reply over the conversation's channel.
// Delivery failures are typed: retryable sends come back 502, permanent ones
// 422, and in both cases nothing is persisted.
func SendReply(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	var input SendReplyInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if pattern, found := utils.ScanSuspicious(input.Content); found {
		utils.RecordSecurityEvent(ctx, "suspicious_input", models.SeverityMedium,
			"reply contained "+pattern)
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Message rejected.", ctx)
		return
	}

	conv, _, err := Messaging.Conversation(id)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}
	if conv.BusinessID != claims.ID {
		utils.CreateForbidden(ctx)
		return
	}

	msg, err := Messaging.SendReply(ctx.Request().Context(), id, input.Content, claims.ID, input.InReplyTo)
	if err != nil {
		var deliveryErr *services.DeliveryError
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			utils.CreateNotFound(ctx)
		case errors.Is(err, services.ErrEmptyContent):
			utils.CreateError(iris.StatusBadRequest, "Validation Error", err.Error(), ctx)
		case errors.As(err, &deliveryErr):
			status := iris.StatusBadGateway
			if deliveryErr.Result.Status == services.DeliveryPermanent {
				status = iris.StatusUnprocessableEntity
			}
			utils.CreateError(status, "Delivery Failed",
				"The reply was not delivered and has not been saved. Resubmit to retry.", ctx)
		default:
			utils.CreateInternalServerError(ctx)
		}
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "message": msg})
}

func CloseConversation(ctx iris.Context) {
	transitionConversation(ctx, Messaging.CloseConversation)
}

func ArchiveConversation(ctx iris.Context) {
	transitionConversation(ctx, Messaging.ArchiveConversation)
}

func transitionConversation(ctx iris.Context, transition func(string) error) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	conv, _, err := Messaging.Conversation(id)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}
	if conv.BusinessID != claims.ID {
		utils.CreateForbidden(ctx)
		return
	}

	if err := transition(id); err != nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			utils.CreateError(iris.StatusConflict, "Conflict",
				"Conversation is no longer active.", ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConnectWS attaches the caller to the in-app delivery hub. The read loop
// only watches for disconnects; all traffic is server-to-client.
func ConnectWS(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	ws, err := upgrader.Upgrade(ctx.ResponseWriter().Naive(), ctx.Request(), nil)
	if err != nil {
		return
	}

	conn := WSHub.Attach(claims.ID, ws)
	go func() {
		defer WSHub.Detach(conn)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
