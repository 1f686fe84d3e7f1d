package app

import (
	"montro-backend/internal/application/bidding"
	boostsvc "montro-backend/internal/application/boosters"
	feesvc "montro-backend/internal/application/fees"
	listsvc "montro-backend/internal/application/listings"
	"montro-backend/internal/application/notify"
	"montro-backend/internal/application/reactivation"
	"montro-backend/internal/config"
	"montro-backend/internal/infrastructure/database"
	"montro-backend/internal/interfaces/handlers/bids"
	"montro-backend/internal/interfaces/handlers/boosters"
	"montro-backend/internal/interfaces/handlers/fees"
	"montro-backend/internal/interfaces/handlers/health"
	"montro-backend/internal/interfaces/handlers/listings"
	"montro-backend/internal/interfaces/handlers/payments"
	"montro-backend/internal/middleware"
	"montro-backend/internal/pkg/keylock"

	"github.com/gofiber/fiber/v2"
)

// App bundles the Fiber app with the long-running pieces main needs to drive.
type App struct {
	Fiber     *fiber.App
	Scheduler *reactivation.Scheduler
}

// CreateApp builds the Fiber app with all global middleware and routes.
func CreateApp(cfg *config.Config) (*App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS (before session)
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Fee-payment webhook, mounted before session so signature verification
	// sees the raw body. DB is wired after database init below.
	feeWebhook := &payments.WebhookHandler{WebhookSecret: cfg.FeeWebhookSecret}
	app.Post("/api/v1/webhooks/fee-payment", func(c *fiber.Ctx) error {
		return feeWebhook.HandleWebhook(c)
	})

	// Session (Redis)
	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	})
	if err != nil {
		return nil, err
	}
	app.Use(sessionHandler)

	// Tracing + route logger
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	feeWebhook.DB = db

	healthHandlers := &health.Handlers{DB: db, Rdb: rdb}
	app.Get("/health/json", healthHandlers.Health)

	// One lock registry is shared by every service that serializes on a
	// listing id; separate registries would not exclude each other.
	locks := keylock.New()

	var publisher notify.Publisher = &notify.Nop{}
	if cfg.AMQPURL != "" {
		publisher = &notify.AMQP{URL: cfg.AMQPURL}
	}

	priceList := &boostsvc.CachedPriceList{
		Inner: &boostsvc.DBPriceList{DB: db},
		Rdb:   rdb,
	}

	listingService := &listsvc.Service{DB: db, PriceList: priceList}
	bidService := &bidding.Service{
		DB:             db,
		Locks:          locks,
		Publisher:      publisher,
		SuccessFeeRate: cfg.SuccessFeeRate,
	}
	boosterService := &boostsvc.Service{DB: db, PriceList: priceList, Locks: locks}
	feeService := &feesvc.Service{DB: db}

	// Listings module
	listingHandlers := &listings.Handlers{Service: listingService}
	listingGroup := app.Group("/api/v1/listings", middleware.RequireAuth())
	listingGroup.Post("/create-listing", listingHandlers.CreateListing)
	listingGroup.Put("/edit-listing", listingHandlers.EditListing)
	listingGroup.Post("/publish-listing", listingHandlers.PublishListing)
	listingGroup.Post("/cancel-listing", listingHandlers.CancelListing)
	listingGroup.Get("/get-listing/:listing_id", listingHandlers.GetListingByID)
	listingGroup.Get("/get-seller-listings", listingHandlers.GetSellerListings)
	listingGroup.Get("/get-all-active-listings", listingHandlers.GetAllActiveListings)

	// Bids module
	bidHandlers := &bids.Handlers{Service: bidService}
	bidGroup := app.Group("/api/v1/bids", middleware.RequireAuth())
	bidGroup.Post("/place-bid", bidHandlers.PlaceBid)
	bidGroup.Post("/buy-now", bidHandlers.BuyNow)
	bidGroup.Get("/get-listing-bids/:listing_id", bidHandlers.GetListingBids)

	// Boosters module
	boosterHandlers := &boosters.Handlers{Service: boosterService}
	boosterGroup := app.Group("/api/v1/boosters", middleware.RequireAuth())
	boosterGroup.Post("/change-booster", boosterHandlers.ChangeBooster)
	boosterGroup.Get("/get-catalog", boosterHandlers.GetCatalog)

	// Fees module
	feeHandlers := &fees.Handlers{Service: feeService}
	feeGroup := app.Group("/api/v1/fees", middleware.RequireAuth())
	feeGroup.Get("/get-seller-fees", feeHandlers.GetSellerFees)
	feeGroup.Post("/refund", feeHandlers.Refund)
	feeGroup.Get("/overdue", feeHandlers.Overdue)

	scheduler := &reactivation.Scheduler{
		DB:        db,
		Locks:     locks,
		PriceList: priceList,
		Publisher: publisher,
		Bids:      bidService,
		Batch:     cfg.ReactivationBatch,
	}

	return &App{Fiber: app, Scheduler: scheduler}, nil
}
