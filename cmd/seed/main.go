package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var relations = []string{"spouse", "child", "parent", "sibling"}

func main() {
	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the booking database with fake hospitals, doctors and patients",
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(dataCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, _ *logrus.Entry) error {
				return db.Migrate(ctx, pool)
			})
		},
	}
}

func dataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Insert fake hospitals, doctors with weekly templates, patients and family members",
		RunE: func(cmd *cobra.Command, args []string) error {
			hospitals, _ := cmd.Flags().GetInt("hospitals")
			doctors, _ := cmd.Flags().GetInt("doctors-per-hospital")
			patients, _ := cmd.Flags().GetInt("patients")
			capacity, _ := cmd.Flags().GetInt("capacity")
			seed, _ := cmd.Flags().GetUint64("seed")

			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			faker := gofakeit.New(seed)

			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, log *logrus.Entry) error {
				s := &seeder{pool: pool, faker: faker, log: log, templates: schedule.NewPgRepository(pool)}
				doctorIDs, err := s.seedDoctors(ctx, hospitals, doctors, capacity)
				if err != nil {
					return fmt.Errorf("seed doctors: %w", err)
				}
				if err := s.seedPatients(ctx, patients); err != nil {
					return fmt.Errorf("seed patients: %w", err)
				}
				for _, id := range doctorIDs {
					fmt.Println(id)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int("hospitals", 5, "number of hospitals")
	cmd.Flags().Int("doctors-per-hospital", 20, "doctors created in every hospital")
	cmd.Flags().Int("patients", 9000, "number of patients")
	cmd.Flags().Int("capacity", 1, "max patients per slot in the generated templates")
	cmd.Flags().Uint64("seed", 0, "faker seed, random when 0")
	return cmd
}

func withPool(ctx context.Context, fn func(context.Context, *pgxpool.Pool, *logrus.Entry) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Component(logger.New(cfg.LogLevel), "seed")

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.PostgresPool())
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool, log)
}

type seeder struct {
	pool      *pgxpool.Pool
	faker     *gofakeit.Faker
	log       *logrus.Entry
	templates *schedule.PgRepository
}

// seedDoctors creates hospitals and their verified doctors. Every doctor works
// Monday to Friday, 09:00-17:00 with a lunch break, in 15 or 30 minute slots.
func (s *seeder) seedDoctors(ctx context.Context, hospitals, perHospital, capacity int) ([]uuid.UUID, error) {
	s.log.WithFields(logrus.Fields{"hospitals": hospitals, "doctors_per_hospital": perHospital}).Info("seeding doctors")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var doctorIDs []uuid.UUID
	for h := 0; h < hospitals; h++ {
		hospitalID := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, hospitalID, s.faker.Company()+" Hospital")
		if err != nil {
			return nil, err
		}

		for d := 0; d < perHospital; d++ {
			id := uuid.New()
			fee := int64(s.faker.Number(3, 15)) * 100
			types := []string{string(schedule.ConsultationInPerson)}
			fees := map[string]int64{string(schedule.ConsultationInPerson): fee}
			if s.faker.Bool() {
				types = append(types, string(schedule.ConsultationVideo))
				fees[string(schedule.ConsultationVideo)] = fee / 2
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, hospital_id, name, specialty, is_active, is_verified, consultation_types, fees, created_at, updated_at)
				VALUES ($1, $2, $3, $4, true, true, $5, $6, now(), now())
			`, id, hospitalID, "Dr. "+s.faker.Name(), specialties[s.faker.Number(0, len(specialties)-1)], types, fees)
			if err != nil {
				return nil, err
			}
			doctorIDs = append(doctorIDs, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	breakStart, breakEnd := schedule.NewClock(13, 0), schedule.NewClock(14, 0)
	for _, id := range doctorIDs {
		duration := 30
		if s.faker.Bool() {
			duration = 15
		}
		for day := time.Monday; day <= time.Friday; day++ {
			_, err := s.templates.ReplaceActiveTemplate(ctx, schedule.WeeklyTemplate{
				DoctorID:            id,
				DayOfWeek:           day,
				StartTime:           schedule.NewClock(9, 0),
				EndTime:             schedule.NewClock(17, 0),
				BreakStart:          &breakStart,
				BreakEnd:            &breakEnd,
				SlotDurationMinutes: duration,
				MaxPatientsPerSlot:  capacity,
				IsActive:            true,
			})
			if err != nil {
				return nil, fmt.Errorf("template for doctor %s: %w", id, err)
			}
		}
	}

	s.log.WithField("doctors", len(doctorIDs)).Info("doctors seeded")
	return doctorIDs, nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.log.WithField("patients", count).Info("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, s.faker.Name(), s.faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			// roughly one patient in five books for a relative
			if s.faker.Number(1, 5) == 1 {
				_, err = tx.Exec(ctx, `
					INSERT INTO family_members (id, patient_id, name, relation, created_at)
					VALUES ($1, $2, $3, $4, now())
				`, uuid.New(), id, s.faker.Name(), relations[s.faker.Number(0, len(relations)-1)])
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		s.log.WithField("progress", fmt.Sprintf("%d/%d", end, count)).Info("patients seeded")
	}

	return nil
}
