package main

import (
	"context"
	"testing"

	"github.com/jogardn/office-meals/internal/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestBroadcastLogsFullQueue(t *testing.T) {
	logger, hook := test.NewNullLogger()
	hub := websocket.NewHub("meal-agent", logger)

	for i := 0; i < 256; i++ {
		broadcast(hub, logger, "orders", i)
	}
	if len(hook.Entries) != 0 {
		t.Fatalf("Expected no log entries while the queue has room, got %d", len(hook.Entries))
	}

	broadcast(hub, logger, "orders", "overflow")
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("Expected a warning for a full queue, got %+v", entry)
	}
	if entry.Data["type"] != "orders" {
		t.Errorf("Expected type field orders, got %v", entry.Data["type"])
	}
}

func TestBroadcastAfterShutdownIsDebug(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	hub := websocket.NewHub("meal-agent", logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	broadcast(hub, logger, "menus", nil)
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.DebugLevel {
		t.Errorf("Expected a debug entry after shutdown, got %+v", entry)
	}
}
