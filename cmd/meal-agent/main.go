package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/office-meals/internal/config"
	"github.com/jogardn/office-meals/internal/connectivity"
	"github.com/jogardn/office-meals/internal/dashboard"
	"github.com/jogardn/office-meals/internal/events"
	"github.com/jogardn/office-meals/internal/gateway"
	"github.com/jogardn/office-meals/internal/localcache"
	"github.com/jogardn/office-meals/internal/messaging"
	"github.com/jogardn/office-meals/internal/notifier"
	"github.com/jogardn/office-meals/internal/store"
	"github.com/jogardn/office-meals/internal/websocket"
	"github.com/jogardn/office-meals/pkg/models"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load(logger)
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := websocket.NewHub("meal-agent", logger)
	go wsHub.Run(ctx)

	tracker := connectivity.New(connectivity.Config{
		Name:          "crud-api",
		ProbeInterval: cfg.ProbeInterval,
		OnStateChange: func(name string, from, to connectivity.State) {
			broadcast(wsHub, logger, "connectivity", map[string]string{
				"from": from.String(),
				"to":   to.String(),
			})
		},
		OnFirstOffline: func(name string) {
			logger.WithField("tracker", name).Warn("Working offline, changes are kept in the local cache")
		},
	}, logger)

	client := gateway.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, tracker, logger)

	backend, closeBackend := openCacheBackend(cfg, logger)
	defer closeBackend()
	svc := store.NewService(client, localcache.New(backend, logger), logger)

	observer := login(ctx, svc, cfg, logger)

	sinks := notifier.MultiSink{notifier.NewLogSink(logger), wsHub}
	if cfg.KafkaBrokers != "" {
		if producer := connectKafka(cfg.KafkaBrokers, logger); producer != nil {
			defer producer.Close()
			sinks = append(sinks, producer)
		}
	}
	if cfg.AMQPURL != "" {
		publisher, err := messaging.Dial(cfg.AMQPURL, logger)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, notifications will not be fanned out")
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
		}
	}

	dispatcher := notifier.NewDispatcher(observer, sinks, logger)
	board := dashboard.NewHandler(svc, logger)
	notify := dispatcher.Consumer(ctx)

	stopOrders := svc.SubscribeOrders(ctx, cfg.OrdersPollInterval, func(orders []models.Order) {
		board.Update(orders)
		broadcast(wsHub, logger, "orders", orders)
		notify(orders)
	})
	defer stopOrders()

	stopShops := svc.SubscribeShops(ctx, cfg.CatalogPollInterval, func(shops []models.Shop) {
		broadcast(wsHub, logger, "shops", shops)
	})
	defer stopShops()

	stopMenus := svc.SubscribeMenus(ctx, cfg.CatalogPollInterval, func(menus []models.MenuItem) {
		broadcast(wsHub, logger, "menus", menus)
	})
	defer stopMenus()

	router := mux.NewRouter()
	board.Register(router)
	router.HandleFunc("/ws", wsHub.HandleWebSocket)

	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.AgentPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":     cfg.AgentPort,
			"api":      cfg.APIBaseURL,
			"cache":    cfg.CacheBackend,
			"observer": observer.Role,
		}).Info("Starting meal agent")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down meal agent...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Meal agent gracefully stopped")
}

// broadcast pushes to browser tabs. A full queue only costs the tabs one
// update, so it is logged and otherwise ignored.
func broadcast(hub *websocket.Hub, logger *logrus.Logger, messageType string, data interface{}) {
	err := hub.Broadcast(messageType, data)
	switch {
	case err == nil:
	case errors.Is(err, websocket.ErrHubStopped):
		logger.WithField("type", messageType).Debug("Hub stopped, update not broadcast")
	default:
		logger.WithError(err).WithField("type", messageType).Warn("Failed to broadcast update")
	}
}

func openCacheBackend(cfg config.Config, logger *logrus.Logger) (localcache.Backend, func()) {
	switch cfg.CacheBackend {
	case config.CacheFile:
		backend, err := localcache.NewFileBackend(cfg.CacheDir)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open cache directory")
		}
		return backend, func() {}
	case config.CachePostgres:
		backend, err := localcache.NewPostgresBackend(cfg.CacheDSN, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open cache database")
		}
		return backend, func() { backend.Close() }
	default:
		return localcache.NewMemoryBackend(), func() {}
	}
}

// login resolves who notifications are for. Without credentials the agent
// watches every order as a fulfiller.
func login(ctx context.Context, svc *store.Service, cfg config.Config, logger *logrus.Logger) notifier.Observer {
	if cfg.AgentEmail == "" {
		logger.Info("No agent credentials configured, observing all orders")
		return notifier.Observer{Role: models.RoleFulfiller}
	}

	user, err := svc.Login(ctx, cfg.AgentEmail, cfg.AgentPassword)
	if err != nil {
		logger.WithError(err).Fatal("Failed to log in")
	}

	logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("Logged in")
	return notifier.Observer{Role: user.Role, UserID: user.ID}
}

func connectKafka(brokers string, logger *logrus.Logger) *events.KafkaProducer {
	var producer *events.KafkaProducer
	var err error

	for i := 0; i < 5; i++ {
		producer, err = events.NewKafkaProducer(brokers, logger)
		if err == nil {
			logger.WithField("brokers", brokers).Info("Successfully connected to Kafka")
			return producer
		}

		logger.WithError(err).WithField("attempt", i+1).Warn("Failed to connect to Kafka, retrying...")
		time.Sleep(2 * time.Second)
	}

	logger.WithError(err).Warn("Kafka unavailable, notifications will not be published")
	return nil
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"duration": time.Since(start).Milliseconds(),
			}).Debug("Request completed")
		})
	}
}

func corsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow all origins for development
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
}
