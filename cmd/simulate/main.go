package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	Days         int
	PostgresDSN  string
	LogLevel     string
}

type slotTarget struct {
	DoctorID uuid.UUID
	Date     string
	Start    string
}

type bookingRef struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Slots    []slotTarget

	mu       sync.RWMutex
	bookings []bookingRef
}

func (dp *DataPool) AddBooking(ref bookingRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, ref)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (bookingRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return bookingRef{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record classifies a response: 2xx success, 409 conflict, other 4xx
// rejected, everything else (including transport failures) error.
func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
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
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	Confirm       OperationMetrics
	Cancel        OperationMetrics
	Availability  OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *logrus.Entry
	metrics Metrics
}

func main() {
	cfg := loadConfig()
	log := logger.Component(logger.New(cfg.LogLevel), "simulate")

	if err := validateConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.WithFields(logrus.Fields{
		"duration": cfg.Duration.String(),
		"workers":  cfg.Workers,
		"booking":  cfg.BookingRatio,
		"confirm":  cfg.ConfirmRatio,
		"cancel":   cfg.CancelRatio,
		"read":     cfg.ReadRatio,
	}).Info("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresPool())
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.WithError(err).Fatal("load data pool")
	}
	sim.pool = dataPool

	if err := sim.discoverSlots(ctx); err != nil {
		log.WithError(err).Fatal("discover slots")
	}

	log.WithFields(logrus.Fields{
		"patients": len(dataPool.Patients),
		"doctors":  len(dataPool.Doctors),
		"slots":    len(dataPool.Slots),
	}).Info("data pool loaded")

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.35),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		Days:         getInt("SIM_DAYS", 7),
		PostgresDSN:  baseCfg.PostgresDSN,
		LogLevel:     baseCfg.LogLevel,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Patients = patients

	doctors, err := loadIDs(ctx, pool, `
		SELECT id FROM doctors
		WHERE is_active AND is_verified
		ORDER BY random()
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	dataPool.Doctors = doctors

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no bookable doctors loaded")
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type availabilityDay struct {
	Date  string `json:"date"`
	Slots []struct {
		StartTime string `json:"start_time"`
		Remaining int    `json:"remaining"`
	} `json:"slots"`
}

// discoverSlots asks the API for the open slots of every loaded doctor.
func (s *Simulator) discoverSlots(ctx context.Context) error {
	for _, doctorID := range s.pool.Doctors {
		url := fmt.Sprintf("%s/doctors/%s/availability?days=%d", s.config.APIBaseURL, doctorID, s.config.Days)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		var days []availabilityDay
		err = json.NewDecoder(resp.Body).Decode(&days)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode availability of %s: %w", doctorID, err)
		}

		for _, d := range days {
			for _, slot := range d.Slots {
				if slot.Remaining > 0 {
					s.pool.Slots = append(s.pool.Slots, slotTarget{DoctorID: doctorID, Date: d.Date, Start: slot.StartTime})
				}
			}
		}
	}
	if len(s.pool.Slots) == 0 {
		return fmt.Errorf("no open slots in the next %d days", s.config.Days)
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.WithField("workers", s.config.Workers).Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
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
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doAvailability(ctx, rng)
				case 1:
					s.doReadByID(ctx, rng)
				case 2:
					s.doListByPatient(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body := map[string]string{
		"doctor_id":         slot.DoctorID.String(),
		"date":              slot.Date,
		"start_time":        slot.Start,
		"consultation_type": "in_person",
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments", body, patientID, "patient", &created)
	s.metrics.Booking.Record(time.Since(start), status)

	if status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddBooking(bookingRef{ID: created.ID, PatientID: patientID})
	}
}

// doConfirm plays the payment collaborator.
func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	body := map[string]string{"payment_ref": "sim_" + ref.ID.String()}
	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments/"+ref.ID.String()+"/payment-confirmation", body, uuid.New(), "system", nil)
	s.metrics.Confirm.Record(time.Since(start), status)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments/"+ref.ID.String()+"/cancel", map[string]string{"reason": "simulated"}, ref.PatientID, "patient", nil)
	s.metrics.Cancel.Record(time.Since(start), status)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	start := time.Now()
	status := s.call(ctx, http.MethodGet, fmt.Sprintf("/doctors/%s/availability?days=%d", doctorID, s.config.Days), nil, uuid.Nil, "", nil)
	s.metrics.Availability.Record(time.Since(start), status)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodGet, "/appointments/"+ref.ID.String(), nil, ref.PatientID, "patient", nil)
	s.metrics.ReadByID.Record(time.Since(start), status)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status := s.call(ctx, http.MethodGet, "/appointments?limit=20&offset=0", nil, patientID, "patient", nil)
	s.metrics.ListByPatient.Record(time.Since(start), status)
}

// call sends one request as the given user and returns the status code, or 0
// on transport failure. out, when set, receives the decoded body of a 2xx.
func (s *Simulator) call(ctx context.Context, method, path string, body any, userID uuid.UUID, role string, out any) int {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("X-User-ID", userID.String())
		req.Header.Set("X-User-Role", role)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Slots targeted: %d across %d doctors\n", len(s.pool.Slots), len(s.pool.Doctors))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Payment confirmation", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, pct(errs))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
