//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/database"
	"github.com/hugh/issueflow/internal/projects"
	"github.com/hugh/issueflow/internal/tenant"
	"github.com/hugh/issueflow/pkg/config"
	"github.com/hugh/issueflow/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)
	ctx := context.Background()

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Create admin user
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry())
	authService := auth.NewService(db, jwtService, auth.WithLogger(logger))

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "Admin123!"
	}
	if name == "" {
		name = "Admin"
	}

	resp, err := authService.Register(ctx, auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	// Demo organization with one project
	tenants := tenant.NewService(db, logger)
	org, err := tenants.CreateOrganization(ctx, resp.User.ID, tenant.CreateOrganizationInput{
		Name: "Demo Organization",
		Slug: "demo",
		Plan: string(tenant.PlanStarter),
	})
	if err != nil {
		log.Fatalf("failed to create organization: %v", err)
	}

	project, err := projects.NewService(db, logger).Create(ctx, org.ID, projects.CreateInput{
		Name:        "Website",
		Description: "Feedback widget on the marketing site",
	})
	if err != nil {
		log.Fatalf("failed to create project: %v", err)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Organization: %s (%s)\n", org.Name, org.Slug)
	fmt.Printf("Project API key: %s\n", project.APIKey)
	fmt.Printf("Access token: %s\n", resp.AccessToken)
}
