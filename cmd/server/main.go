package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate/internal/api"
	"authgate/internal/api/validation"
	"authgate/internal/app/notify"
	"authgate/internal/app/service"
	"authgate/internal/app/worker"
	"authgate/internal/common/security"
	"authgate/internal/domain/repository"
	"authgate/internal/platform/config"
	"authgate/internal/platform/database"
	"authgate/internal/platform/queue"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()

	// 4. Initialize Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()

	// 5. Initialize Repository (unique indexes back the username/email invariant)
	accountRepo := repository.NewMongoAccountRepository(database.DB)
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := repository.EnsureIndexes(indexCtx, database.DB); err != nil {
		indexCancel()
		log.Fatalf("Could not ensure account indexes: %v", err)
	}
	indexCancel()

	// 6. Initialize Services
	notifier := notify.NewQueueNotifier(queue.RDB, config.AppConfig.MailQueueName)
	authService := service.NewAuthService(accountRepo, notifier)

	// 7. Initialize Mail Worker (as a goroutine)
	sender, err := worker.NewSMTPSender()
	if err != nil {
		log.Fatalf("Could not create SMTP sender: %v", err)
	}
	mailWorker := worker.NewMailWorker(queue.RDB, config.AppConfig.MailQueueName, sender)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go mailWorker.Start(workerCtx)
	fmt.Println("Mail worker started.")

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(authService, validation.DefaultTable())

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop // Wait for interrupt signal

	log.Println("Shutting down server...")
	workerCancel() // Signal mail worker to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and worker stopped gracefully.")
}
