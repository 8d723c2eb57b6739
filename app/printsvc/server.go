// Package printsvc is the local print helper. It receives orders from the
// admin screen and prints their kitchen order tickets through the print queue.
package printsvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/models"
	"OrderDesk/app/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DefaultAddr is where the print helper listens
const DefaultAddr = ":6001"

// PrinterConfigRequest assigns printers to the two KOT targets
type PrinterConfigRequest struct {
	KitchenPrinter string `json:"kitchenPrinter"`
	AdminPrinter   string `json:"adminPrinter"`
}

// PrintRequest asks for the KOT of one order. Type defaults to BOTH.
type PrintRequest struct {
	Order *models.Order        `json:"order" binding:"required"`
	Type  models.PrinterTarget `json:"type"`
}

// printerTypes are the connection types SavePrinter accepts
var printerTypes = map[string]bool{"network": true, "usb": true, "serial": true, "file": true, "spool": true}

// Server exposes the print queue over HTTP
type Server struct {
	kot      *services.KOTService
	printers *services.PrinterService
	queue    *services.PrintQueue
	detect func() ([]services.DetectedPrinter, error)
	now    func() time.Time
	router *gin.Engine
	http   *http.Server
}

// NewServer builds the gin router for the print helper. printers holds the
// registered printers the KOT service resolves names against.
func NewServer(addr string, kot *services.KOTService, printers *services.PrinterService, queue *services.PrintQueue) *Server {
	s := &Server{
		kot:      kot,
		printers: printers,
		queue:    queue,
		detect:   services.DetectSystemPrinters,
		now:      time.Now,
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.POST("/config", s.handleConfig)
	router.GET("/config", s.handleGetConfig)
	router.GET("/printers", s.handlePrinters)
	router.POST("/printers/config", s.handleSavePrinter)
	router.GET("/printers/config", s.handleListPrinters)
	router.POST("/printers/:name/test", s.handleTestPrint)
	router.POST("/print", s.handlePrint)
	router.GET("/queue", s.handleQueue)

	s.router = router
	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown
func (s *Server) Start() error {
	log.Printf("Print service listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests. Queued jobs keep printing until the
// queue is closed.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleConfig(c *gin.Context) {
	var req PrinterConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	s.kot.Printers().Set(req.KitchenPrinter, req.AdminPrinter)
	log.Printf("Print service: kitchen printer %q, admin printer %q", req.KitchenPrinter, req.AdminPrinter)
	c.JSON(http.StatusOK, gin.H{"message": "Printer configuration updated"})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	kitchen, admin := s.kot.Printers().Get()
	c.JSON(http.StatusOK, PrinterConfigRequest{KitchenPrinter: kitchen, AdminPrinter: admin})
}

func (s *Server) handlePrinters(c *gin.Context) {
	printers, err := s.detect()
	if err != nil {
		log.Printf("Print service: Failed to detect printers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to list printers"})
		return
	}
	if printers == nil {
		printers = []services.DetectedPrinter{}
	}
	c.JSON(http.StatusOK, printers)
}

func (s *Server) handleSavePrinter(c *gin.Context) {
	var req models.PrinterConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Printer name is required"})
		return
	}
	if !printerTypes[req.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("Unknown printer type %q", req.Type)})
		return
	}
	if req.Type == "network" && req.Port == 0 {
		req.Port = 9100
	}

	if err := s.printers.SavePrinter(c.Request.Context(), &req); err != nil {
		log.Printf("Print service: Failed to save printer %s: %v", req.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save printer"})
		return
	}
	log.Printf("Print service: saved %s printer %q at %s", req.Type, req.Name, req.Address)
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleListPrinters(c *gin.Context) {
	printers, err := s.printers.ListPrinters(c.Request.Context())
	if err != nil {
		log.Printf("Print service: Failed to list saved printers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to list printers"})
		return
	}
	if printers == nil {
		printers = []models.PrinterConfig{}
	}
	c.JSON(http.StatusOK, printers)
}

// handleTestPrint sends a short page straight to the printer, outside the
// queue, so setup problems show up in the response
func (s *Server) handleTestPrint(c *gin.Context) {
	name := c.Param("name")
	page := fmt.Sprintf("OrderDesk test print\nPrinter: %s\n%s\n\n\n", name, s.now().Format("2006-01-02 15:04:05"))
	if err := s.printers.Print(c.Request.Context(), name, []byte(page)); err != nil {
		log.Printf("Print service: Test print on %s failed: %v", name, err)
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test page sent"})
}

func (s *Server) handlePrint(c *gin.Context) {
	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Order data is required"})
		return
	}

	jobID := fmt.Sprintf("JOB-%d", s.now().UnixMilli())
	ids, err := s.kot.QueueTickets([]models.Order{*req.Order}, req.Type, jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.IsValidation(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Print job queued",
		"jobId":   jobID,
		"jobs":    ids,
	})
}

func (s *Server) handleQueue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"queueLength":  s.queue.Len(),
		"isProcessing": s.queue.Processing(),
	})
}
