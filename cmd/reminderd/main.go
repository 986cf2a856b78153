// reminderd runs the wish reminder scheduler on its own, for deployments
// that keep the poller separate from the API server. Running both at once is
// safe: resolution is a compare-and-swap, so a wish fires at most once per
// due state even with two pollers.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"finbot/pkg/reminder"
	"finbot/pkg/telegram"
	"finbot/pkg/wish"
)

func main() {
	dsn := os.Getenv("FINBOT_DATABASE_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("FINBOT_DATABASE_DSN not set in environment")
	}
	token := os.Getenv("FINBOT_TELEGRAM_BOT_TOKEN")
	if strings.TrimSpace(token) == "" {
		log.Fatal("FINBOT_TELEGRAM_BOT_TOKEN not set in environment")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	sink := telegram.NewClient(token, os.Getenv("FINBOT_TELEGRAM_API_BASE"))
	sched := reminder.New(wish.NewService(db), &reminder.UserResolver{DB: db}, sink)
	if v := os.Getenv("FINBOT_SCHEDULER_POLL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			log.Fatalf("invalid FINBOT_SCHEDULER_POLL_SECONDS: %q", v)
		}
		sched.Interval = time.Duration(secs) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sched.Run(ctx)
}
