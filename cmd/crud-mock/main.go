package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jogardn/office-meals/internal/crudmock"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	server := crudmock.NewServer(logger)
	if getEnv("MOCK_SEED", "true") == "true" {
		seed(server, logger)
	}

	port := getEnv("MOCK_PORT", "8082")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: server.Router(),
	}

	go func() {
		logger.WithField("port", port).Info("Starting CRUD mock server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down CRUD mock server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server forced to shutdown")
	}

	logger.Info("CRUD mock server gracefully stopped")
}

// seed loads a small office: one requester, one runner and a shop with a menu.
func seed(server *crudmock.Server, logger *logrus.Logger) {
	runnerID := server.Seed("users", map[string]interface{}{
		"name":     "Joko",
		"email":    "joko@office.local",
		"password": "secret",
		"role":     "OFFICE_BOY",
	})
	server.Seed("users", map[string]interface{}{
		"name":          "Budi",
		"email":         "budi@office.local",
		"password":      "secret",
		"role":          "WORKER",
		"unitKerja":     "Finance",
		"preferredObId": runnerID,
	})

	shopID := server.Seed("shops", map[string]interface{}{
		"name":    "Warung Bu Sri",
		"address": "Ground floor canteen",
		"isOpen":  true,
	})
	for _, item := range []map[string]interface{}{
		{"name": "Nasi Goreng", "price": 15000, "category": "Food"},
		{"name": "Mie Ayam", "price": 13000, "category": "Food"},
		{"name": "Es Teh", "price": 5000, "category": "Drink"},
	} {
		item["shopId"] = shopID
		server.Seed("menus", item)
	}

	logger.WithFields(logrus.Fields{
		"users": server.Count("users"),
		"shops": server.Count("shops"),
		"menus": server.Count("menus"),
	}).Info("Seeded CRUD mock data")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
