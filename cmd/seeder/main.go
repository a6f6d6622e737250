package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/abarbosa/pontosledger/internal/auth"
	"github.com/abarbosa/pontosledger/internal/models"
	"github.com/abarbosa/pontosledger/internal/store"
)

var (
	userCount     int
	initialPoints int64
	adminEmail    string
	adminPassword string
	benchPassword string
)

func init() {
	flag.IntVar(&userCount, "users", 1000, "Number of collaborator accounts to seed")
	flag.Int64Var(&initialPoints, "points", 10000, "Initial point balance per account")
	flag.StringVar(&adminEmail, "admin-email", "admin@pontos.local", "Bootstrap administrator e-mail")
	flag.StringVar(&adminPassword, "admin-password", "", "Bootstrap administrator password (required on first run)")
	flag.StringVar(&benchPassword, "bench-password", "bench-secret", "Shared password for seeded collaborator accounts")
}

func main() {
	flag.Parse()
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}

	dbURL := os.Getenv("DB_SOURCE")
	if dbURL == "" {
		log.Fatal("DB_SOURCE is required")
	}

	ctx := context.Background()
	st, err := store.NewStore(ctx, dbURL)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer st.Close()
	pool := st.Pool()

	log.Println("--- Seeding Database ---")

	seedAdmin(ctx, st)

	var count int
	pool.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE role = 'colaborador'").Scan(&count)
	if count >= userCount {
		log.Printf("Database already has %d collaborator accounts. Skipping.", count)
		return
	}

	// Hash once and share it. Hashing per row makes seeding bcrypt-bound.
	hash, err := auth.HashPassword(benchPassword)
	if err != nil {
		log.Fatalf("password hash failed: %v", err)
	}

	log.Printf("Generating %d collaborator accounts...", userCount)
	now := time.Now()
	userRows := make([][]interface{}, 0, userCount)
	emailRows := make([][]interface{}, 0, userCount)
	for i := 0; i < userCount; i++ {
		email := fmt.Sprintf("bench-%04d@pontos.local", i)
		userRows = append(userRows, []interface{}{
			uuid.NewString(),
			fmt.Sprintf("Bench User %04d", i),
			email,
			string(models.RoleCollaborator),
			initialPoints,
			hash,
			now,
		})
		emailRows = append(emailRows, []interface{}{email})
	}

	copied, err := pool.CopyFrom(
		ctx,
		pgx.Identifier{"users"},
		[]string{"id", "name", "email", "role", "total_points", "password_hash", "created_at"},
		pgx.CopyFromRows(userRows),
	)
	if err != nil {
		log.Fatalf("bulk user insert failed: %v", err)
	}

	if _, err := pool.CopyFrom(
		ctx,
		pgx.Identifier{"whitelisted_emails"},
		[]string{"email"},
		pgx.CopyFromRows(emailRows),
	); err != nil {
		log.Fatalf("bulk whitelist insert failed: %v", err)
	}

	log.Printf("Successfully seeded %d accounts.", copied)
}

func seedAdmin(ctx context.Context, st *store.Store) {
	var exists bool
	st.Pool().QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)", adminEmail).Scan(&exists)
	if exists {
		log.Printf("Administrator %s already present. Skipping.", adminEmail)
		return
	}
	if adminPassword == "" {
		log.Fatal("-admin-password is required to bootstrap the administrator account")
	}

	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		log.Fatalf("password hash failed: %v", err)
	}
	admin := models.User{
		ID:           uuid.NewString(),
		Name:         "Administrador",
		Email:        adminEmail,
		Role:         models.RoleAdministrator,
		PasswordHash: hash,
	}
	if err := st.CreateUser(ctx, admin); err != nil {
		log.Fatalf("administrator insert failed: %v", err)
	}
	log.Printf("Bootstrapped administrator %s.", adminEmail)
}
