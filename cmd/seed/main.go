package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/axisimaging/radiology-booking/internal/db"
)

// Seeds a fresh database with the clinic's imaging catalog, a weekly slot
// schedule, and a pile of fake patients for local development.

type serviceSeed struct {
	name            string
	code            string
	category        string
	description     string
	durationMinutes int
	bodyParts       []bodyPartSeed
}

type bodyPartSeed struct {
	name string
	prep string
}

var serviceSeeds = []serviceSeed{
	{
		name:            "X-Ray",
		code:            "XR",
		category:        "xray",
		description:     "Plain film radiography",
		durationMinutes: 20,
		bodyParts: []bodyPartSeed{
			{name: "Chest", prep: "No preparation required."},
			{name: "Spine", prep: "No preparation required."},
			{name: "Hand / Wrist", prep: "Remove jewellery and watches before the exam."},
			{name: "Foot / Ankle", prep: "No preparation required."},
		},
	},
	{
		name:            "CT Scan",
		code:            "CT",
		category:        "ct",
		description:     "Computed tomography",
		durationMinutes: 45,
		bodyParts: []bodyPartSeed{
			{name: "Head", prep: "No preparation required."},
			{name: "Chest", prep: "Do not eat for 2 hours before your appointment."},
			{name: "Abdomen / Pelvis", prep: "Do not eat for 4 hours before your appointment. Drink water as instructed on arrival."},
		},
	},
	{
		name:            "MRI",
		code:            "MR",
		category:        "mri",
		description:     "Magnetic resonance imaging",
		durationMinutes: 60,
		bodyParts: []bodyPartSeed{
			{name: "Brain", prep: "Advise staff of any implants or pacemakers before your appointment."},
			{name: "Knee", prep: "Advise staff of any implants or pacemakers before your appointment."},
			{name: "Spine", prep: "Advise staff of any implants or pacemakers before your appointment."},
		},
	},
	{
		name:            "Ultrasound",
		code:            "US",
		category:        "ultrasound",
		description:     "Diagnostic ultrasound",
		durationMinutes: 30,
		bodyParts: []bodyPartSeed{
			{name: "Abdomen", prep: "Fast for 6 hours before your appointment. Water is fine."},
			{name: "Pelvis", prep: "Drink 750ml of water one hour before your appointment and do not empty your bladder."},
			{name: "Thyroid", prep: "No preparation required."},
		},
	},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	serviceIDs, err := seedCatalog(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	if err := seedSlotTemplates(context.Background(), pool, serviceIDs); err != nil {
		log.Fatalf("seed slot templates: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) (map[string]uuid.UUID, error) {
	log.Printf("seeding %d services", len(serviceSeeds))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	serviceIDs := make(map[string]uuid.UUID, len(serviceSeeds))

	for _, s := range serviceSeeds {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, code, category, description, duration_minutes, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())
		`, id, s.name, s.code, s.category, s.description, s.durationMinutes)
		if err != nil {
			return nil, fmt.Errorf("insert service %s: %w", s.code, err)
		}
		serviceIDs[s.code] = id

		for _, bp := range s.bodyParts {
			_, err := tx.Exec(ctx, `
				INSERT INTO body_parts (id, service_id, name, preparation_text, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, true, now(), now())
			`, uuid.New(), id, bp.name, bp.prep)
			if err != nil {
				return nil, fmt.Errorf("insert body part %s/%s: %w", s.code, bp.name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("catalog seeded")
	return serviceIDs, nil
}

// seedSlotTemplates writes one weekly row per bookable start time,
// Monday to Friday 08:00-17:00, stepped by each service's duration.
func seedSlotTemplates(ctx context.Context, pool *pgxpool.Pool, serviceIDs map[string]uuid.UUID) error {
	log.Println("seeding slot templates")

	const openMinute = 8 * 60
	const closeMinute = 17 * 60

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, s := range serviceSeeds {
		serviceID := serviceIDs[s.code]

		for dow := 1; dow <= 5; dow++ { // Monday..Friday
			for m := openMinute; m+s.durationMinutes <= closeMinute; m += s.durationMinutes {
				start := fmt.Sprintf("%02d:%02d", m/60, m%60)
				end := fmt.Sprintf("%02d:%02d", (m+s.durationMinutes)/60, (m+s.durationMinutes)%60)

				_, err := tx.Exec(ctx, `
					INSERT INTO slot_templates (id, service_id, day_of_week, start_time, end_time, is_available, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, true, now(), now())
				`, uuid.New(), serviceID, dow, start, end)
				if err != nil {
					return fmt.Errorf("insert template %s dow=%d %s: %w", s.code, dow, start, err)
				}
				count++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slot templates seeded: %d", count)
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			dob := gofakeit.DateRange(
				time.Date(1935, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2008, 12, 31, 0, 0, 0, 0, time.UTC),
			)

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, title, first_name, last_name, date_of_birth, email, mobile, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), gofakeit.NamePrefix(), gofakeit.FirstName(), gofakeit.LastName(),
				dob, gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
