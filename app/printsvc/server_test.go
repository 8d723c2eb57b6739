package printsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"OrderDesk/app/config"
	"OrderDesk/app/database"
	"OrderDesk/app/models"
	"OrderDesk/app/services"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	srv        *Server
	queue      *services.PrintQueue
	kitchenOut string
	adminOut   string
	dir        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "print.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close(db) })

	printers := services.NewPrinterService(db)
	f := &fixture{
		kitchenOut: filepath.Join(dir, "kitchen.bin"),
		adminOut:   filepath.Join(dir, "admin.bin"),
	}
	for name, path := range map[string]string{"pass": f.kitchenOut, "desk": f.adminOut} {
		err := printers.SavePrinter(context.Background(), &models.PrinterConfig{
			Name: name, Type: "file", Address: path, PaperWidth: 58, IsActive: true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	f.queue = services.NewPrintQueue(0, services.NewLoggerServiceWithWriter(io.Discard))
	t.Cleanup(f.queue.Close)

	kot := services.NewKOTService(nil, printers, f.queue, services.NewPrinterRegistry("", ""), services.KOTOptions{
		Restaurant: "Udupi House",
		PaperWidth: 80,
	})
	f.dir = dir
	f.srv = NewServer(DefaultAddr, kot, printers, f.queue)
	f.srv.now = func() time.Time { return time.UnixMilli(1770000000000) }
	return f
}

func (f *fixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.queue.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
}

func sampleOrder() *models.Order {
	return &models.Order{
		OrderID:     "ORD-20260210-0007",
		SessionID:   "SES-91be02",
		OrderType:   models.OrderTypeDineIn,
		TableNumber: "12",
		Items: []models.OrderItem{
			{Name: "Rava Idli", Quantity: 3, Customizations: []string{"no cashew"}},
		},
	}
}

func TestPrint_BothTargets(t *testing.T) {
	f := newFixture(t)

	if w := f.request(t, "POST", "/config", PrinterConfigRequest{KitchenPrinter: "pass", AdminPrinter: "desk"}); w.Code != http.StatusOK {
		t.Fatalf("config = %d", w.Code)
	}

	w := f.request(t, "POST", "/print", map[string]interface{}{"order": sampleOrder()})
	if w.Code != http.StatusOK {
		t.Fatalf("print = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Message string   `json:"message"`
		JobID   string   `json:"jobId"`
		Jobs    []string `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID != "JOB-1770000000000" || len(resp.Jobs) != 2 || resp.Jobs[0] != "JOB-1770000000000-KITCHEN" {
		t.Errorf("response = %+v", resp)
	}

	f.wait(t)
	for _, path := range []string{f.kitchenOut, f.adminOut} {
		doc, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if !bytes.Contains(doc, []byte("3 x Rava Idli")) {
			t.Errorf("%s missing items", filepath.Base(path))
		}
	}
}

func TestPrint_KitchenOnly(t *testing.T) {
	f := newFixture(t)
	f.request(t, "POST", "/config", PrinterConfigRequest{KitchenPrinter: "pass", AdminPrinter: "desk"})

	w := f.request(t, "POST", "/print", map[string]interface{}{"order": sampleOrder(), "type": "KITCHEN"})
	if w.Code != http.StatusOK {
		t.Fatalf("print = %d: %s", w.Code, w.Body)
	}
	f.wait(t)

	if _, err := os.Stat(f.kitchenOut); err != nil {
		t.Errorf("kitchen ticket missing: %v", err)
	}
	if _, err := os.Stat(f.adminOut); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("admin printer should be untouched, stat err = %v", err)
	}
}

func TestPrint_BadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing order", map[string]interface{}{"type": "KITCHEN"}},
		{"malformed", "{"},
		{"unknown target", map[string]interface{}{"order": sampleOrder(), "type": "BAR"}},
		{"order without items", map[string]interface{}{"order": &models.Order{OrderID: "ORD-20260210-0008"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.request(t, "POST", "/print", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", w.Code, w.Body)
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.request(t, "POST", "/config", PrinterConfigRequest{KitchenPrinter: "pass", AdminPrinter: "desk"})

	w := f.request(t, "GET", "/config", nil)
	var got PrinterConfigRequest
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.KitchenPrinter != "pass" || got.AdminPrinter != "desk" {
		t.Errorf("config = %+v", got)
	}
}

func TestPrintersAndQueue(t *testing.T) {
	f := newFixture(t)
	f.srv.detect = func() ([]services.DetectedPrinter, error) {
		return []services.DetectedPrinter{{Name: "TM-T20", Type: "spool", IsDefault: true, Status: "online"}}, nil
	}

	w := f.request(t, "GET", "/printers", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "TM-T20") {
		t.Errorf("printers = %d: %s", w.Code, w.Body)
	}

	f.srv.detect = func() ([]services.DetectedPrinter, error) { return nil, errors.New("lpstat missing") }
	if w := f.request(t, "GET", "/printers", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("detect failure = %d", w.Code)
	}

	w = f.request(t, "GET", "/queue", nil)
	var q struct {
		QueueLength  int  `json:"queueLength"`
		IsProcessing bool `json:"isProcessing"`
	}
	json.Unmarshal(w.Body.Bytes(), &q)
	if q.QueueLength != 0 || q.IsProcessing {
		t.Errorf("idle queue = %+v", q)
	}
}

func TestRegisterPrinter(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "bar.bin")

	w := f.request(t, "POST", "/printers/config", models.PrinterConfig{
		Name: "bar", Type: "file", Address: out, PaperWidth: 58, IsActive: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d: %s", w.Code, w.Body)
	}

	w = f.request(t, "GET", "/printers/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var saved []models.PrinterConfig
	if err := json.Unmarshal(w.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	names := map[string]models.PrinterConfig{}
	for _, p := range saved {
		names[p.Name] = p
	}
	if len(saved) != 3 || names["bar"].Address != out {
		t.Fatalf("saved printers = %+v", saved)
	}

	if w := f.request(t, "POST", "/printers/bar/test", nil); w.Code != http.StatusOK {
		t.Fatalf("test print = %d: %s", w.Code, w.Body)
	}
	doc, err := os.ReadFile(out)
	if err != nil || !bytes.Contains(doc, []byte("Printer: bar")) {
		t.Errorf("test page = %q, err = %v", doc, err)
	}

	// a registered printer can take KOT jobs
	f.request(t, "POST", "/config", PrinterConfigRequest{KitchenPrinter: "bar", AdminPrinter: "desk"})
	if w := f.request(t, "POST", "/print", map[string]interface{}{"order": sampleOrder(), "type": "KITCHEN"}); w.Code != http.StatusOK {
		t.Fatalf("print = %d: %s", w.Code, w.Body)
	}
	f.wait(t)
	doc, _ = os.ReadFile(out)
	if !bytes.Contains(doc, []byte("3 x Rava Idli")) {
		t.Error("kitchen ticket not printed on registered printer")
	}
}

func TestRegisterPrinter_Update(t *testing.T) {
	f := newFixture(t)
	moved := filepath.Join(f.dir, "moved.bin")

	w := f.request(t, "POST", "/printers/config", models.PrinterConfig{Name: "pass", Type: "file", Address: moved, IsActive: true})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body)
	}

	var saved []models.PrinterConfig
	json.Unmarshal(f.request(t, "GET", "/printers/config", nil).Body.Bytes(), &saved)
	if len(saved) != 2 {
		t.Fatalf("update created a duplicate: %+v", saved)
	}
	for _, p := range saved {
		if p.Name == "pass" && p.Address != moved {
			t.Errorf("pass address = %s", p.Address)
		}
	}
}

func TestRegisterPrinter_BadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed", "{"},
		{"missing name", models.PrinterConfig{Type: "file", Address: "/tmp/x"}},
		{"unknown type", models.PrinterConfig{Name: "bar", Type: "bluetooth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.request(t, "POST", "/printers/config", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", w.Code, w.Body)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest("OPTIONS", "/print", nil)
	req.Header.Set("Origin", "http://admin.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin = %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
