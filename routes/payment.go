package routes

import (
	"encoding/json"
	"log"
	"os"

	"tg-tires-server/models"
	"tg-tires-server/storage"
	"tg-tires-server/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
)

type CreatePaymentIntentInput struct {
	ListingID uint `json:"listingID" validate:"required"`
}

// CreatePaymentIntent opens a Stripe PaymentIntent for an active listing and
// records a pending payment row keyed by the intent id.
func CreatePaymentIntent(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreatePaymentIntentInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	listing, ok := purchasableListing(input.ListingID, claims.ID, ctx)
	if !ok {
		return
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(listing.PriceCents),
		Currency: stripe.String(listing.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("listingID", utils.ToString(listing.ID))
	params.AddMetadata("buyerID", utils.ToString(claims.ID))

	intent, err := paymentintent.New(params)
	if err != nil {
		log.Printf("stripe payment intent failed: %v", err)
		utils.CreateError(iris.StatusBadGateway, "Payment Error",
			"Payment could not be started. Try again later.", ctx)
		return
	}

	payment := models.Payment{
		ListingID:   listing.ID,
		BuyerID:     claims.ID,
		SellerID:    listing.SellerID,
		StripeID:    intent.ID,
		AmountCents: listing.PriceCents,
		Currency:    listing.Currency,
		Status:      models.PaymentRequiresPayment,
	}
	if err := storage.DB.Create(&payment).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{
		"success":      true,
		"clientSecret": intent.ClientSecret,
		"payment":      payment,
	})
}

type CreatePaymentLinkInput struct {
	ListingID uint `json:"listingID" validate:"required"`
}

// CreatePaymentLink builds a hosted Checkout Session so a seller can text or
// email a pay-by-link URL to a buyer with no account.
func CreatePaymentLink(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreatePaymentLinkInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var listing models.TireListing
	result := storage.DB.Where("id = ? AND status = ?", input.ListingID, models.ListingStatusActive).
		Limit(1).Find(&listing)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}
	if listing.SellerID != claims.ID {
		utils.CreateForbidden(ctx)
		return
	}

	successURL := os.Getenv("CHECKOUT_SUCCESS_URL")
	if successURL == "" {
		successURL = "https://tgtires.example.com/checkout/success"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(listing.Currency),
				UnitAmount: stripe.Int64(listing.PriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(listing.Title),
				},
			},
		}},
	}
	params.AddMetadata("listingID", utils.ToString(listing.ID))

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		utils.CreateError(iris.StatusBadGateway, "Payment Error",
			"Payment link could not be created. Try again later.", ctx)
		return
	}

	payment := models.Payment{
		ListingID:   listing.ID,
		SellerID:    listing.SellerID,
		StripeID:    sess.ID,
		AmountCents: listing.PriceCents,
		Currency:    listing.Currency,
		Status:      models.PaymentRequiresPayment,
	}
	if err := storage.DB.Create(&payment).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "url": sess.URL, "payment": payment})
}

func GetUserPayments(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var payments []models.Payment
	if err := storage.DB.
		Where("buyer_id = ? OR seller_id = ?", claims.ID, claims.ID).
		Order("created_at DESC").Find(&payments).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "payments": payments})
}

// StripeWebhook verifies the event signature and applies the resulting state
// change. A bad signature is answered 400 and recorded; an unrecognized event
// type is acknowledged and ignored so Stripe stops redelivering it.
func StripeWebhook(ctx iris.Context) {
	body, err := ctx.GetBody()
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Webhook Error", "Unreadable payload.", ctx)
		return
	}

	event, err := webhook.ConstructEvent(body,
		ctx.GetHeader("Stripe-Signature"), os.Getenv("STRIPE_WEBHOOK_SECRET"))
	if err != nil {
		utils.RecordSecurityEvent(ctx, "webhook_bad_signature", models.SeverityHigh,
			"stripe webhook signature verification failed")
		utils.CreateError(iris.StatusBadRequest, "Webhook Error", "Invalid signature.", ctx)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		err = applyIntentEvent(event, Payments.PaymentSucceeded)
	case "payment_intent.payment_failed":
		err = applyIntentEvent(event, Payments.PaymentFailed)
	case "payment_intent.canceled":
		err = applyIntentEvent(event, Payments.PaymentCanceled)
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &sess); err == nil {
			err = Payments.CheckoutCompleted(sess.ID)
		}
	case "invoice.paid", "invoice.payment_failed":
		// One-off sales have no subscriptions, so invoice events carry no
		// state to apply. Acknowledged so Stripe stops redelivering them.
		log.Printf("acknowledging stripe billing event %s", event.Type)
	default:
		log.Printf("ignoring stripe event %s", event.Type)
	}

	if err != nil {
		log.Printf("stripe event %s (%s) failed: %v", event.ID, event.Type, err)
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"received": true})
}

func applyIntentEvent(event stripe.Event, apply func(string) error) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return err
	}
	return apply(intent.ID)
}

func purchasableListing(id, buyerID uint, ctx iris.Context) (*models.TireListing, bool) {
	var listing models.TireListing
	result := storage.DB.Where("id = ? AND status = ?", id, models.ListingStatusActive).
		Limit(1).Find(&listing)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil, false
	}
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return nil, false
	}
	if listing.SellerID == buyerID {
		utils.CreateError(iris.StatusBadRequest, "Payment Error",
			"You cannot buy your own listing.", ctx)
		return nil, false
	}
	return &listing, true
}
