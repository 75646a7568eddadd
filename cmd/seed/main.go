// Command seed loads synthetic applicants into an empty database.
package main

import (
	"context"
	"fmt"
	"os"

	"loanflow/config"
	"loanflow/database"
	"loanflow/models"
	"loanflow/utils"
)

const seedPassword = "password123"

type seedApplicant struct {
	email, name, phone, address, city string
	age, score                        int
	limit                             float64
}

var applicants = []seedApplicant{
	{"rajesh.kumar@example.com", "Rajesh Kumar", "+919876543210", "123 MG Road", "Mumbai", 35, 780, 300000},
	{"priya.sharma@example.com", "Priya Sharma", "+919876543211", "456 Residency Road", "Bangalore", 28, 820, 500000},
	{"amit.patel@example.com", "Amit Patel", "+919876543212", "789 SG Highway", "Ahmedabad", 42, 750, 200000},
	{"sneha.reddy@example.com", "Sneha Reddy", "+919876543213", "321 Banjara Hills", "Hyderabad", 31, 690, 150000},
	{"vikram.singh@example.com", "Vikram Singh", "+919876543214", "654 Connaught Place", "Delhi", 38, 800, 400000},
	{"anjali.mehta@example.com", "Anjali Mehta", "+919876543215", "987 Park Street", "Kolkata", 29, 760, 250000},
	{"rahul.verma@example.com", "Rahul Verma", "+919876543216", "147 Anna Salai", "Chennai", 45, 850, 500000},
	{"kavita.joshi@example.com", "Kavita Joshi", "+919876543217", "258 FC Road", "Pune", 33, 720, 180000},
	{"deepak.gupta@example.com", "Deepak Gupta", "+919876543218", "369 MI Road", "Jaipur", 40, 680, 120000},
	{"neha.kapoor@example.com", "Neha Kapoor", "+919876543219", "741 Dal Lake Road", "Srinagar", 27, 790, 350000},
}

// seed inserts the synthetic applicants unless the store already has some.
// It returns the number inserted.
func seed(ctx context.Context, repo database.Repository) (int, error) {
	existing, err := repo.CountApplicants(ctx)
	if err != nil {
		return 0, fmt.Errorf("count applicants: %w", err)
	}
	if existing > 0 {
		utils.LogInfo("database already has %d applicants, skipping seed", existing)
		return 0, nil
	}

	hash, err := utils.HashPassword(seedPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	err = repo.Transaction(ctx, func(tx database.Repository) error {
		for _, s := range applicants {
			a := &models.Applicant{
				FullName:         s.name,
				Email:            s.email,
				PasswordHash:     hash,
				Phone:            s.phone,
				Address:          s.address,
				City:             s.city,
				Age:              s.age,
				CreditScore:      s.score,
				PreApprovedLimit: s.limit,
			}
			if err := tx.CreateApplicant(ctx, a); err != nil {
				return fmt.Errorf("create %s: %w", s.email, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(applicants), nil
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		utils.LogError("load config: %v", err)
		os.Exit(1)
	}
	if cfg.DB.Driver != "postgres" {
		utils.LogError("seed needs DB_DRIVER=postgres, got %q", cfg.DB.Driver)
		os.Exit(1)
	}

	gdb, err := database.Connect(cfg)
	if err != nil {
		utils.LogError("%v", err)
		os.Exit(1)
	}
	db := database.NewDatabase(gdb)
	defer db.Close()

	n, err := seed(context.Background(), db)
	if err != nil {
		utils.LogError("seed: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("seeded %d applicants (password %q)", n, seedPassword)
}
