package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-booking-engine/internal/config"
	"github.com/hackgods/practice-booking-engine/internal/db"
	"github.com/hackgods/practice-booking-engine/internal/identity"
)

const (
	organizationCount      = 20
	doctorsPerOrganization = 5
	patientCount           = 5000
	unregisteredPerOrg     = 50
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	orgIDs, err := seedOrganizations(context.Background(), pool, faker, organizationCount)
	if err != nil {
		log.Fatalf("seed organizations: %v", err)
	}
	if err := seedPatients(context.Background(), pool, faker, patientCount); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedUnregisteredPatients(context.Background(), pool, faker, orgIDs, unregisteredPerOrg); err != nil {
		log.Fatalf("seed unregistered patients: %v", err)
	}

	log.Println("seed complete")
}

// seedOrganizations creates each organization with its doctors, one front
// desk user, one assistant and one admin.
func seedOrganizations(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d organizations", count)

	orgIDs := make([]uuid.UUID, 0, count)
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			orgID := uuid.New()
			name := "Clínica " + faker.LastName()

			if _, err := tx.Exec(ctx, `
				INSERT INTO organizations (id, name, created_at)
				VALUES ($1, $2, now())
			`, orgID, name); err != nil {
				return err
			}

			roles := make([]identity.Role, 0, doctorsPerOrganization+3)
			for d := 0; d < doctorsPerOrganization; d++ {
				roles = append(roles, identity.RoleDoctor)
			}
			roles = append(roles, identity.RoleFrontDesk, identity.RoleAssistant, identity.RoleAdmin)

			for n, role := range roles {
				// created_at is staggered so the first doctor is deterministic.
				if _, err := tx.Exec(ctx, `
					INSERT INTO users (id, organization_id, role, full_name, email, created_at)
					VALUES ($1, $2, $3, $4, $5, now() + make_interval(secs => $6))
				`, uuid.New(), orgID, role, faker.Name(), faker.Email(), float64(n)); err != nil {
					return err
				}
			}
			orgIDs = append(orgIDs, orgID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Println("organizations seeded")
	return orgIDs, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			var email *string
			// Some patients never registered an email.
			if faker.Number(1, 10) > 1 {
				e := faker.Email()
				email = &e
			}
			batch.Queue(`
				INSERT INTO patients (id, full_name, email, created_at)
				VALUES ($1, $2, $3, now())
			`, uuid.New(), faker.Name(), email)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

func seedUnregisteredPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, orgIDs []uuid.UUID, perOrg int) error {
	log.Printf("seeding %d unregistered patients per organization", perOrg)

	batch := &pgx.Batch{}
	for _, orgID := range orgIDs {
		for i := 0; i < perOrg; i++ {
			batch.Queue(`
				INSERT INTO unregistered_patients (id, organization_id, full_name, email, phone, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, uuid.New(), orgID, faker.Name(), faker.Email(), faker.Phone())
		}
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	log.Println("unregistered patients seeded")
	return nil
}
