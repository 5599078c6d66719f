package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/connecthub/backend/internal/config"
	"github.com/connecthub/backend/internal/db"
	"github.com/connecthub/backend/internal/handlers"
	"github.com/connecthub/backend/internal/hub"
	"github.com/connecthub/backend/internal/meetings"
	"github.com/connecthub/backend/internal/messaging"
	"github.com/connecthub/backend/internal/presence"
	"github.com/connecthub/backend/internal/ratelimit"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.LoadConfig()

	database, err := db.New(cfg.DatabaseURL, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("failed to initialize databases: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	messageSvc := messaging.NewService(database.Postgres)
	meetingSvc := meetings.NewService(database.Postgres)
	presenceTracker := presence.NewTracker(database.Redis)
	limiter := ratelimit.NewLimiter(database.Redis)

	broker := hub.New(messageSvc, meetingSvc, presenceTracker)
	go broker.Run()

	meetingHandler := handlers.NewMeetingHandler(meetingSvc)
	messageHandler := handlers.NewMessageHandler(messageSvc)

	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if err := limiter.CheckConnect(r.Context(), host); err != nil {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
		handlers.ServeWs(broker, w, r, upgrader)
	})
	r.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	r.HandleFunc("/stats", handlers.Stats(broker)).Methods("GET")
	r.HandleFunc("/api/ice-servers", handlers.IceServers(cfg.IceServerURLs)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/meetings", meetingHandler.Create).Methods("POST")
	api.HandleFunc("/meetings/{meetingId}", meetingHandler.Get).Methods("GET")
	api.HandleFunc("/meetings/{meetingId}/status", meetingHandler.UpdateStatus).Methods("PATCH")
	api.HandleFunc("/messages/{userA}/{userB}", messageHandler.History).Methods("GET")

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting signaling server on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down signaling server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Signaling server exited")
}
