package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/models"

	"github.com/google/uuid"
)

// PrinterRegistry maps KOT targets to printer names. An empty name is the
// system default printer.
type PrinterRegistry struct {
	mu      sync.RWMutex
	kitchen string
	admin   string
}

func NewPrinterRegistry(kitchen, admin string) *PrinterRegistry {
	return &PrinterRegistry{kitchen: kitchen, admin: admin}
}

// Set replaces both printer names
func (r *PrinterRegistry) Set(kitchen, admin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kitchen = kitchen
	r.admin = admin
}

// Get returns the kitchen and admin printer names
func (r *PrinterRegistry) Get() (kitchen, admin string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kitchen, r.admin
}

// For returns the printer name for one target
func (r *PrinterRegistry) For(target models.PrinterTarget) string {
	kitchen, admin := r.Get()
	if target == models.PrinterAdmin {
		return admin
	}
	return kitchen
}

// KOTOptions configures ticket printing
type KOTOptions struct {
	Restaurant string
	PaperWidth int
	// SoftFail treats a failed print as printed
	SoftFail bool
}

// printDocument is the part of PrinterService the KOT service needs
type printDocument interface {
	ResolvePrinter(ctx context.Context, name string) (*models.PrinterConfig, error)
	Send(ctx context.Context, printer *models.PrinterConfig, doc []byte) error
}

// KOTService renders kitchen order tickets and prints them through the queue
type KOTService struct {
	orders   *OrderService
	printer  printDocument
	queue    *PrintQueue
	printers *PrinterRegistry
	opts     KOTOptions
	now      func() time.Time
}

// NewKOTService creates a KOT service. orders may be nil, in which case
// successful prints are not recorded on the orders.
func NewKOTService(orders *OrderService, printer *PrinterService, queue *PrintQueue, printers *PrinterRegistry, opts KOTOptions) *KOTService {
	if printers == nil {
		printers = NewPrinterRegistry("", "")
	}
	return &KOTService{
		orders:   orders,
		printer:  printer,
		queue:    queue,
		printers: printers,
		opts:     opts,
		now:      time.Now,
	}
}

// Printers returns the registry used to pick printers per target
func (s *KOTService) Printers() *PrinterRegistry {
	return s.printers
}

// HandleAccepted prints the KOT for a freshly accepted order to every
// printer. It is registered as the order service's accepted hook.
func (s *KOTService) HandleAccepted(ctx context.Context, order *models.Order) {
	jobID := "KOT-" + uuid.NewString()
	if _, err := s.QueueTickets([]models.Order{*order}, models.PrinterBoth, jobID); err != nil {
		log.Printf("KOTService: Failed to queue KOT for order %s: %v", order.OrderID, err)
	}
}

// QueueTickets renders one ticket per target and adds the jobs to the print
// queue. BOTH expands to KITCHEN then ADMIN. Returns the queued job ids.
func (s *KOTService) QueueTickets(orders []models.Order, target models.PrinterTarget, jobID string) ([]string, error) {
	if target == "" {
		target = models.PrinterBoth
	}
	if !target.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid printer type %q", target)).WithField("type")
	}

	targets := []models.PrinterTarget{target}
	if target == models.PrinterBoth {
		targets = []models.PrinterTarget{models.PrinterKitchen, models.PrinterAdmin}
	}

	var ids []string
	for _, t := range targets {
		ticket, err := BuildKOTTicket(s.opts.Restaurant, t, orders, s.now())
		if err != nil {
			return ids, apperrors.NewValidationError(err.Error()).WithField("order")
		}
		job := s.newJob(fmt.Sprintf("%s-%s", jobID, t), ticket)
		if err := s.queue.Enqueue(job); err != nil {
			return ids, err
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (s *KOTService) newJob(id string, ticket *KOTTicket) *PrintJob {
	printerName := s.printers.For(ticket.Target)
	orderIDs := append([]string(nil), ticket.OrderIDs...)

	return &PrintJob{
		ID:     id,
		Target: ticket.Target,
		Execute: func(ctx context.Context) error {
			err := s.print(ctx, printerName, ticket)
			if err != nil && s.opts.SoftFail {
				log.Printf("KOTService: Printing %s failed, continuing as printed: %v", id, err)
				return nil
			}
			return err
		},
		OnSuccess: func() {
			if s.orders == nil {
				return
			}
			_, err := s.orders.ConfirmPrint(context.Background(), &ConfirmPrintRequest{
				OrderIDs:     orderIDs,
				PrintedItems: ticket.Items,
				PrintID:      id,
				PrinterType:  ticket.Target,
			})
			if err != nil {
				log.Printf("KOTService: Failed to record print %s: %v", id, err)
			}
		},
	}
}

func (s *KOTService) print(ctx context.Context, printerName string, ticket *KOTTicket) error {
	printer, err := s.printer.ResolvePrinter(ctx, printerName)
	if err != nil {
		return err
	}

	opts := KOTRenderOptions{
		PaperWidth: printer.PaperWidth,
		AutoCut:    printer.AutoCut,
		PrintQR:    printer.PrintQR,
	}
	if opts.PaperWidth == 0 {
		opts.PaperWidth = s.opts.PaperWidth
	}

	doc, err := RenderKOT(ticket, opts)
	if err != nil {
		return fmt.Errorf("failed to render KOT: %w", err)
	}
	return s.printer.Send(ctx, printer, doc)
}
