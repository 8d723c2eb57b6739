package main

import (
	"context"
	"fmt"
	"time"

	"OrderDesk/app/config"
	"OrderDesk/app/database"
	"OrderDesk/app/services"
	"OrderDesk/app/websocket"

	"gorm.io/gorm"
)

// App holds the services of the order server
type App struct {
	cfg              *config.AppConfig
	db               *gorm.DB
	LoggerService    *services.LoggerService
	OrderService     *services.OrderService
	AnalyticsService *services.AnalyticsService
	PrinterService   *services.PrinterService
	KOTService       *services.KOTService
	PrintQueue       *services.PrintQueue
	WSServer         *websocket.Server
	amqpSink         *services.AMQPEventSink
}

// NewApp loads configuration, opens the database and wires the services
func NewApp(home string) (*App, error) {
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	a.LoggerService = services.NewLoggerService(cfg.Log.Dir)
	if err := a.LoggerService.CleanOldLogs(cfg.Log.DaysToKeep); err != nil {
		a.LoggerService.LogWarning("Failed to clean old logs", err.Error())
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		a.LoggerService.LogError("Failed to open database", err)
		return nil, err
	}
	a.db = db
	a.LoggerService.LogInfo("Database ready", "Driver: "+cfg.Database.Driver)

	loc := cfg.Business.Location()
	sequencer := services.NewOrderIDSequencer(db, loc)
	sessions := services.NewSessionManager(db, cfg.Session.IdleTimeout())

	a.WSServer = websocket.NewServer(cfg.Server.Addr, cfg.Server.EnableMDNS)
	a.WSServer.SetSessionCounter(sessions)
	events := services.NewMultiSink(a.WSServer)

	if cfg.Events.AMQPURL != "" {
		sink, err := services.DialAMQPEventSink(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			// live screens still work without the broker
			a.LoggerService.LogWarning("AMQP event sink disabled", err.Error())
		} else {
			a.amqpSink = sink
			events.Add(sink)
			a.LoggerService.LogInfo("AMQP event sink connected", "Exchange: "+cfg.Events.Exchange)
		}
	}

	a.OrderService = services.NewOrderService(db, sequencer, sessions, events)
	a.AnalyticsService = services.NewAnalyticsService(db, loc)

	if cfg.Print.Enabled {
		a.PrinterService = services.NewPrinterService(db)
		a.PrintQueue = services.NewPrintQueue(cfg.Print.JobDelay(), a.LoggerService)
		a.KOTService = services.NewKOTService(
			a.OrderService,
			a.PrinterService,
			a.PrintQueue,
			services.NewPrinterRegistry(cfg.Print.KitchenPrinter, cfg.Print.AdminPrinter),
			services.KOTOptions{
				Restaurant: cfg.Business.Name,
				PaperWidth: cfg.Print.PaperWidth,
				SoftFail:   cfg.Print.SoftFail,
			},
		)
		if cfg.Print.AutoKOT {
			a.OrderService.SetAcceptedHook(a.KOTService.HandleAccepted)
			a.LoggerService.LogInfo("KOT printing on accept enabled")
		}
	}

	a.WSServer.SetRESTHandlers(websocket.NewRESTHandlers(a.OrderService, a.AnalyticsService, cfg.Admin.PINHash))
	return a, nil
}

// startup serves the API and event hub until the server stops
func (a *App) startup() error {
	defer a.LoggerService.RecoverPanic()
	a.LoggerService.LogInfo("Starting order server", "Addr: "+a.cfg.Server.Addr)
	if err := a.WSServer.Start(); err != nil {
		return fmt.Errorf("order server: %w", err)
	}
	return nil
}

// shutdown stops the listener and the print queue, then closes the store
func (a *App) shutdown() {
	a.LoggerService.LogInfo("Application closing")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.WSServer.Shutdown(ctx); err != nil {
		a.LoggerService.LogWarning("Order server shutdown error", err.Error())
	}

	if a.PrintQueue != nil {
		a.PrintQueue.Close()
	}
	if a.amqpSink != nil {
		if err := a.amqpSink.Close(); err != nil {
			a.LoggerService.LogWarning("AMQP close error", err.Error())
		}
	}
	if err := database.Close(a.db); err != nil {
		a.LoggerService.LogWarning("Database close error", err.Error())
	}

	a.LoggerService.LogInfo("Application closed")
	a.LoggerService.Close()
}
