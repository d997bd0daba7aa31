package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-booking-engine/internal/config"
	"github.com/hackgods/practice-booking-engine/internal/db"
	"github.com/hackgods/practice-booking-engine/internal/identity"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	Days         int
	PostgresDSN  string
	JWTSecret    string
}

// staff is a front desk user and the doctors of its organization.
type staff struct {
	OrganizationID uuid.UUID
	Token          string
	Doctors        []uuid.UUID
}

type booked struct {
	AppointmentID uuid.UUID
	InvoiceID     *uuid.UUID
	Token         string
}

type DataPool struct {
	Staff    []staff
	Patients []uuid.UUID
	Origin   time.Time

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking     OperationMetrics
	Cancel      OperationMetrics
	ReadByID    OperationMetrics
	ReadInvoice OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f days=%d",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio, cfg.Days)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d front desk users, %d patients", len(dataPool.Staff), len(dataPool.Patients))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		Days:         getInt("SIM_DAYS", 2),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{
		Origin: time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour),
	}

	rows, err := pool.Query(ctx, `
		SELECT f.id, f.organization_id, array_agg(d.id ORDER BY d.created_at)
		FROM users f
		JOIN users d ON d.organization_id = f.organization_id AND d.role = 'doctor'
		WHERE f.role = 'front_desk'
		GROUP BY f.id, f.organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	for rows.Next() {
		var userID, orgID uuid.UUID
		var doctors []uuid.UUID
		if err := rows.Scan(&userID, &orgID, &doctors); err != nil {
			rows.Close()
			return nil, err
		}
		org := orgID
		token, err := identity.IssueToken(cfg.JWTSecret, identity.Principal{
			UserID:         userID,
			Role:           identity.RoleFrontDesk,
			OrganizationID: &org,
		}, cfg.Duration+time.Hour)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("issue token: %w", err)
		}
		dataPool.Staff = append(dataPool.Staff, staff{OrganizationID: orgID, Token: token, Doctors: doctors})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	if len(dataPool.Staff) == 0 {
		return nil, fmt.Errorf("no front desk users loaded, run cmd/seed first")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case rng.Intn(2) == 0:
				s.doReadByID(ctx, rng)
			default:
				s.doReadInvoice(ctx, rng)
			}
		}
	}
}

// randomStart picks a working-hours start on a 15 minute grid, so bookings
// for the same doctor collide often.
func (s *Simulator) randomStart(rng *rand.Rand) time.Time {
	day := rng.Intn(s.config.Days)
	quarter := rng.Intn(8 * 4)
	return s.pool.Origin.Add(time.Duration(day)*24*time.Hour + 9*time.Hour + time.Duration(quarter)*15*time.Minute)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	st := s.pool.Staff[rng.Intn(len(s.pool.Staff))]
	if len(st.Doctors) == 0 {
		return
	}
	doctorID := st.Doctors[rng.Intn(len(st.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]any{
		"patientId":       patientID.String(),
		"doctorId":        doctorID.String(),
		"organizationId":  st.OrganizationID.String(),
		"scheduledAt":     s.randomStart(rng).Format(time.RFC3339),
		"durationMinutes": 30,
		"selectedService": map[string]any{"name": "Consulta general", "price": 50, "currency": "USD"},
	})

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/v1/appointments", st.Token, body)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var out struct {
				AppointmentID uuid.UUID  `json:"appointmentId"`
				InvoiceID     *uuid.UUID `json:"invoiceId"`
			}
			if raw, _ := io.ReadAll(resp.Body); len(raw) > 0 && json.Unmarshal(raw, &out) == nil && out.AppointmentID != uuid.Nil {
				s.pool.AddAppointment(booked{AppointmentID: out.AppointmentID, InvoiceID: out.InvoiceID, Token: st.Token})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{"reason": "simulated cancellation"})

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/v1/appointments/"+b.AppointmentID.String()+"/cancel", b.Token, body)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, "/v1/appointments/"+b.AppointmentID.String(), b.Token, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doReadInvoice(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok || b.InvoiceID == nil {
		return
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, "/v1/invoices/"+b.InvoiceID.String(), b.Token, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadInvoice.Record(latency, success, false)
}

func (s *Simulator) do(ctx context.Context, method, path, token string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(req)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read appointment", &s.metrics.ReadByID)
	printOperationReport("Read invoice", &s.metrics.ReadInvoice)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
