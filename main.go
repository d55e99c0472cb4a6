package main

import (
	"log"

	"triviarena/config"
	"triviarena/handlers"
	"triviarena/middleware"
	"triviarena/models"
	"triviarena/routes"
	"triviarena/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env when present; real deployments use process env.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.CatalogQuestion{},
		&models.CatalogOption{},
		&models.RoomSnapshot{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	verifier := services.NewJWTVerifier(cfg.JWTSecret)
	questionSource := services.NewCatalogQuestionSource(db)
	snapshotSink := services.NewStoreSnapshotSink(db, redisClient)

	// The gateway is the registry's outbound sender, so it is built first.
	gateway := services.NewGateway(verifier)
	registry := services.NewRegistry(cfg.Rooms, services.NewScheduler(), questionSource, snapshotSink, gateway)
	gateway.SetRegistry(registry)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	roomHandler := handlers.NewRoomHandler(registry)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, roomHandler, gateway, verifier)

	// Start server
	addr := cfg.BindAddress + ":" + cfg.Port
	log.Printf("Server starting on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
