package main

import (
	"log"
	"os"

	"tg-tires-server/models"
	"tg-tires-server/routes"
	"tg-tires-server/services"
	"tg-tires-server/storage"
	"tg-tires-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	stripe "github.com/stripe/stripe-go/v76"
)

func main() {
	godotenv.Load()
	storage.InitializeDB()
	storage.InitializeRedis()
	storage.InitializeQueue()

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	// Collaborators shared by the HTTP handlers and the background workers.
	routes.WSHub = services.NewHub()
	routes.Notifications = services.NewNotificationService(storage.DB, storage.Queue)

	senders := map[string]services.ChannelSender{
		models.ChannelSMS:   services.NewTwilioSMSSender(),
		models.ChannelEmail: services.SMTPEmailSender{},
		models.ChannelInApp: services.NewInAppSender(storage.DB, routes.WSHub),
	}
	routes.Messaging = services.NewMessageRouter(
		services.NewGormConversationRepository(storage.DB),
		routes.Notifications,
		senders,
	)
	routes.Payments = services.NewPaymentProcessor(storage.DB, routes.Notifications)
	routes.CrossPoster = services.NewCrossPostService(
		storage.DB, storage.Queue, services.NewBridgePublisher())
	routes.Counters = utils.RedisCounterStore{}

	// Background workers: notification dispatch and social publishing.
	queueServer, mux := storage.NewQueueServer()
	services.RegisterDispatchTask(mux, storage.DB, routes.WSHub)
	routes.CrossPoster.RegisterPublishTask(mux)
	go func() {
		if err := queueServer.Run(mux); err != nil {
			log.Fatalf("queue server: %v", err)
		}
	}()

	app := iris.New()
	app.Validator = validator.New()

	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, Stripe-Signature")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	app.Use(iris.Compression)
	app.Use(utils.IPBlockMiddleware)
	app.Use(utils.RateLimit(routes.Counters, utils.LimitGeneral))

	resetTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("EMAIL_TOKEN_SECRET")))
	resetTokenVerifier.WithDefaultBlocklist()
	resetTokenVerifierMiddleware := resetTokenVerifier.Verify(func() interface{} {
		return new(utils.ForgotPasswordToken)
	})

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}

		return tokenInput.RefreshToken
	})

	loginLimiter := utils.RateLimit(routes.Counters, utils.LimitLogin)

	user := app.Party("/api/user")
	{
		user.Post("/register", loginLimiter, routes.Register)
		user.Post("/login", loginLimiter, routes.Login)
		user.Post("/google", loginLimiter, routes.GoogleLoginOrSignUp)
		user.Post("/apple", loginLimiter, routes.AppleLoginOrSignUp)
		user.Post("/forgotpassword", loginLimiter, routes.ForgotPassword)
		user.Post("/resetpassword", resetTokenVerifierMiddleware, routes.ResetPassword)
		user.Post("/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)
		user.Get("/listings/saved", accessTokenVerifierMiddleware, routes.GetUserSavedListings)
		user.Patch("/listings/saved", accessTokenVerifierMiddleware, routes.AlterUserSavedListings)
		user.Patch("/pushtoken", accessTokenVerifierMiddleware, routes.AlterPushToken)
		user.Patch("/settings/notifications", accessTokenVerifierMiddleware, routes.AlterPushNotificationSettings)
		user.Patch("/business", accessTokenVerifierMiddleware, routes.UpdateBusinessProfile)
		user.Get("/{id}", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.GetUser)
	}

	listing := app.Party("/api/listing")
	{
		listing.Get("/search", routes.SearchListings)
		listing.Get("/seller/{id}", routes.GetListingsBySeller)
		listing.Get("/{id}", routes.GetListing)
		listing.Post("/", accessTokenVerifierMiddleware, routes.CreateListing)
		listing.Patch("/{id}", accessTokenVerifierMiddleware, routes.UpdateListing)
		listing.Delete("/{id}", accessTokenVerifierMiddleware, routes.DeleteListing)
	}

	yardsale := app.Party("/api/yardsale")
	{
		yardsale.Get("/", routes.GetYardSaleItems)
		yardsale.Get("/{id}", routes.GetYardSaleItem)
		yardsale.Post("/", accessTokenVerifierMiddleware, routes.CreateYardSaleItem)
		yardsale.Patch("/{id}/sold", accessTokenVerifierMiddleware, routes.MarkYardSaleItemSold)
		yardsale.Delete("/{id}", accessTokenVerifierMiddleware, routes.DeleteYardSaleItem)
	}

	// Public inquiry intake: customers message a business without an account.
	inquiry := app.Party("/api/inquiry")
	{
		inquiry.Post("/", utils.RateLimit(routes.Counters, utils.LimitInquiry), routes.CreateInquiry)
	}

	conversation := app.Party("/api/conversation", accessTokenVerifierMiddleware)
	{
		conversation.Get("/", routes.GetBusinessConversations)
		conversation.Get("/{id}", routes.GetConversation)
		conversation.Post("/{id}/reply", routes.SendReply)
		conversation.Patch("/{id}/close", routes.CloseConversation)
		conversation.Patch("/{id}/archive", routes.ArchiveConversation)
		conversation.Get("/ws/connect", routes.ConnectWS)
	}

	payment := app.Party("/api/payment")
	{
		payment.Post("/intent", accessTokenVerifierMiddleware, routes.CreatePaymentIntent)
		payment.Post("/link", accessTokenVerifierMiddleware, routes.CreatePaymentLink)
		payment.Get("/", accessTokenVerifierMiddleware, routes.GetUserPayments)
	}

	// Stripe authenticates with its signature header, not a JWT.
	app.Post("/api/webhook/stripe", routes.StripeWebhook)

	social := app.Party("/api/social", accessTokenVerifierMiddleware)
	{
		social.Post("/account", routes.AddSocialAccount)
		social.Get("/account", routes.GetSocialAccounts)
		social.Delete("/account/{id}", routes.DeleteSocialAccount)
		social.Post("/post", routes.CreateSocialPost)
		social.Get("/post", routes.GetSocialPosts)
	}

	notification := app.Party("/api/notification", accessTokenVerifierMiddleware)
	{
		notification.Get("/", routes.GetUserNotifications)
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/security-events", routes.AdminListSecurityEvents)
		admin.Delete("/ipblock/{ip}", routes.AdminUnblockIP)
		admin.Get("/payments", routes.AdminListPayments)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}

	app.Listen(":" + port)
}
