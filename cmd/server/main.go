package main

import (
	"strings"
	"time"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/audit"
	"coffee-backend/internal/auth"
	"coffee-backend/internal/config"
	"coffee-backend/internal/database"
	"coffee-backend/internal/inventory"
	"coffee-backend/internal/lineage"
	"coffee-backend/internal/lotnumber"
	"coffee-backend/internal/metrics"
	"coffee-backend/internal/models"
	"coffee-backend/internal/orders"
	"coffee-backend/internal/preprocessing"
	"coffee-backend/internal/receiving"
	"coffee-backend/internal/reject"
	"coffee-backend/internal/rfid"
	"coffee-backend/internal/sequence"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg := config.Load()
	log.SetLevel(cfg.Level())
	database.Init(cfg)

	// plant-local clock; batch numbers roll over at its midnight
	clock := func() time.Time { return time.Now().In(cfg.Location) }

	alloc := sequence.NewAllocator()
	lots := lotnumber.NewRegistry(alloc)
	tags := rfid.NewManager()
	lines := lineage.NewRegistry(alloc, lots, clock)
	machine := inventory.NewMachine(tags, clock)
	receiver := receiving.NewService(alloc, tags, clock)
	prep := preprocessing.NewService(lots, clock)
	orderSvc := orders.NewService()
	rejects := reject.NewConsolidator(alloc, tags, clock)

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.FiberErrorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	if cfg.MetricsEnabled {
		app.Get("/metrics", metrics.Handler())
	}

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler())
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))
	adminRoutes.Post("/users", auth.CreateOperatorHandler())
	adminRoutes.Get("/audit-logs", audit.ListAuditLogsHandler())

	// Reference data
	protected.Post("/farmers", receiving.CreateFarmerHandler())
	protected.Get("/farmers", receiving.ListFarmersHandler())
	protected.Get("/reference-mappings", receiving.ListReferenceMappingsHandler())
	adminRoutes.Post("/reference-mappings", receiving.UpsertReferenceMappingHandler())
	adminRoutes.Post("/reference-mappings/import", receiving.ImportReferenceMappingsHandler())

	// Receiving
	protected.Post("/receiving", receiving.ReceiveHandler(receiver))
	protected.Get("/batches/:batchNumber", receiving.GetBatchHandler(receiver))
	protected.Get("/batches/:batchNumber/state", inventory.StateHandler())
	protected.Get("/batches/:batchNumber/available-weight", lineage.AvailableWeightHandler(lines))

	// RFID
	protected.Post("/rfid/scan", rfid.ScanHandler(tags))
	protected.Post("/assign-rfid", rfid.AssignHandler(tags))
	protected.Post("/rfid/reuse", rfid.ReuseHandler(tags, machine))

	// QC and preprocessing
	protected.Post("/qc/:batchNumber/start", inventory.StartQCHandler(machine))
	protected.Post("/qc/:batchNumber/finish", inventory.FinishQCHandler(machine))
	protected.Post("/preprocessing", preprocessing.CreateHandler(prep))
	protected.Get("/preprocessing/:batchNumber", preprocessing.ListHandler(prep))
	protected.Put("/preprocessing/:batchNumber/finish", preprocessing.FinishHandler(prep))

	// Wet mill
	protected.Post("/wetmill/rejects/merge", reject.MergeHandler(rejects))
	protected.Post("/wetmill/:batchNumber/enter", inventory.StageHandler(machine.EnterWetMill, "Entered wet mill"))
	protected.Post("/wetmill/:batchNumber/exit", inventory.StageHandler(machine.ExitWetMill, "Exited wet mill"))
	protected.Post("/wetmill/:batchNumber/weight-measurements", inventory.WeightMeasurementHandler(machine))
	protected.Get("/rejects/:batchNumber/sources", reject.SourcesHandler(rejects))

	// Drying
	protected.Post("/drying/:batchNumber/enter", inventory.StageHandler(machine.EnterDrying, "Entered drying"))
	protected.Post("/drying/:batchNumber/exit", inventory.StageHandler(machine.ExitDrying, "Exited drying"))

	// Dry mill
	protected.Post("/dry-mill/:batchNumber/enter", inventory.StageHandler(machine.EnterDryMill, "Entered dry mill"))
	protected.Post("/dry-mill/:batchNumber/split", lineage.SplitHandler(lines))
	protected.Post("/dry-mill/:batchNumber/update-bags", lineage.UpdateBagsHandler(lines))
	protected.Get("/dry-mill/:batchNumber/sub-batches", lineage.ListSubBatchesHandler(lines))
	protected.Post("/dry-mill/:batchNumber/complete", inventory.CompleteHandler(machine))

	// Warehouse
	protected.Post("/warehouse/scan", inventory.WarehouseScanHandler(machine))

	// Orders
	protected.Post("/orders", orders.CreateOrderHandler(orderSvc))
	protected.Get("/orders/:id", orders.GetOrderHandler(orderSvc))
	protected.Post("/orders/:id/cancel", orders.CancelOrderHandler(orderSvc))
	protected.Post("/orders/:id/fulfill", orders.FulfillOrderHandler(orderSvc))

	log.Infof("listening on :%s", cfg.HTTPPort)
	log.Fatal(app.Listen(":" + cfg.HTTPPort))
}
