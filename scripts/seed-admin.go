// Command seed-admin provisions or updates a user, for bootstrapping
// the first admin account. The upsert keys on the lowercased email, so
// rerunning with the same address rotates the password in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/linkden/linkden/internal/auth"
	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/repository"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		email       = flag.String("email", "", "User email (required)")
		password    = flag.String("password", "", "User password (required)")
		role        = flag.String("role", "admin", "User role: admin or editor")
	)
	flag.Parse()

	if *databaseURL == "" {
		fatal("DATABASE_URL is required")
	}
	if *email == "" || *password == "" {
		fatal("-email and -password are required")
	}
	if _, err := mail.ParseAddress(*email); err != nil {
		fatal("invalid email address")
	}
	userRole := model.UserRole(*role)
	if !userRole.IsValid() {
		fatal("invalid role; use admin or editor")
	}
	if len(*password) < 12 {
		fatal("password must be at least 12 characters")
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		fatal("hash password: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fatal("connect database: " + err.Error())
	}
	defer repo.Close()

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        *email,
		PasswordHash: hash,
		Role:         userRole,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := repo.UpsertUserByEmail(ctx, user)
	if err != nil {
		fatal("upsert user: " + err.Error())
	}

	verb := "updated"
	if created {
		verb = "created"
	}
	fmt.Printf("%s user %s (%s)\n", verb, *email, userRole)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
