package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"finbot/pkg/goal"
	"finbot/pkg/ledger"
	"finbot/pkg/reminder"
	"finbot/pkg/telegram"
	"finbot/pkg/wish"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	jwtSecret = []byte(cfg.JWT.Secret)

	// Support a lightweight migrate command: `./finbot migrate`
	// Runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := initDB(cfg); err != nil {
			log.Fatalf("init db: %v", err)
		}
		fmt.Println("migration and seeding completed")
		return
	}

	if err := initDB(cfg); err != nil {
		log.Fatalf("init db: %v", err)
	}

	ledgerSvc = ledger.NewService(db)
	goalSvc = goal.NewService(db, ledgerSvc)
	wishSvc = wish.NewService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telegram.BotToken == "" {
		log.Println("telegram bot token not set, reminder delivery disabled")
	} else {
		sink := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIBase)
		sched := reminder.New(wishSvc, &reminder.UserResolver{DB: db}, sink)
		sched.Interval = cfg.Scheduler.PollInterval()
		sched.DeliverTimeout = cfg.Scheduler.DeliverTimeout()
		go sched.Run(ctx)
	}

	r := gin.Default()
	setupRoutes(r, cfg)

	if err := r.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
