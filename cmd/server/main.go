package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peersupport/internal/chat"
	"peersupport/internal/config"
	"peersupport/internal/database"
	"peersupport/internal/handlers"
	"peersupport/internal/presence"
	"peersupport/pkg/logger"

	"github.com/gorilla/mux"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Shared occupancy cache: written by the chat server, read by the
	// activity endpoint.
	occupancy := presence.NewOccupancy()

	// Initialize chat server and start its heartbeat monitor
	chatServer := chat.NewServer(db, occupancy, chat.Config{
		HeartbeatInterval: cfg.Chat.HeartbeatInterval,
		HistoryLimit:      cfg.Chat.HistoryLimit,
		StoreTimeout:      cfg.Chat.StoreTimeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go chatServer.Run(ctx)

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(db, occupancy, cfg.Chat.StoreTimeout)
	wsHandler := handlers.NewWebSocketHandler(chatServer)

	// Setup routes
	r := mux.NewRouter()
	r.HandleFunc("/health", handlers.HandleHealth).Methods("GET")
	r.HandleFunc("/rooms", roomHandlers.ListRooms).Methods("GET")
	r.HandleFunc("/rooms/{roomId}/activity", roomHandlers.GetRoomActivity).Methods("GET")
	r.HandleFunc("/rooms/{roomId}/messages", roomHandlers.GetRoomMessages).Methods("GET")
	r.HandleFunc("/ws", wsHandler.HandleWebSocket)

	// Create server
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
