package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/noah-isme/support-hubs/internal/auth"
	"github.com/noah-isme/support-hubs/internal/common"
)

type seedOrg struct {
	Name          string
	Slug          string
	TenantIndex   int
	CodeFormat    string
	ConsentExempt bool
	AutoExpiry    *int
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedPlans(db)

	sevenDays := 7
	orgs := []seedOrg{
		{Name: "Riverside Food Bank", Slug: "riverside", TenantIndex: 1, CodeFormat: "random"},
		{Name: "Northfield Community Pantry", Slug: "northfield", TenantIndex: 16, CodeFormat: "sequential", ConsentExempt: true, AutoExpiry: &sevenDays},
	}

	var tokens *auth.Service
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		tokens, err = auth.NewService(auth.Config{
			Secret:         secret,
			AccessTokenTTL: 30 * 24 * time.Hour,
			Issuer:         os.Getenv("JWT_ISSUER"),
			Audience:       os.Getenv("JWT_AUDIENCE"),
		})
		if err != nil {
			log.Fatalf("Failed to initialise token service: %v", err)
		}
	}

	for _, o := range orgs {
		orgID := seedOrganization(db, o)
		agencyID := seedTenantData(db, orgID)
		if tokens != nil {
			printTokens(tokens, o.Slug, orgID, agencyID)
		}
	}

	log.Println("Seeding completed successfully!")
}

func seedPlans(db *sql.DB) {
	plans := []struct {
		ID    string
		Name  string
		Limit *int
	}{
		{"starter", "Starter", intPtr(100)},
		{"community", "Community", intPtr(1000)},
		{"unlimited", "Unlimited", nil},
	}

	fmt.Println("Seeding Plans...")
	for _, p := range plans {
		_, err := db.Exec(`
			INSERT INTO subscription_plans (id, name, monthly_voucher_limit)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, monthly_voucher_limit = EXCLUDED.monthly_voucher_limit;
		`, p.ID, p.Name, p.Limit)
		if err != nil {
			log.Printf("Failed to upsert plan %s: %v", p.ID, err)
		}
	}
}

func seedOrganization(db *sql.DB, o seedOrg) string {
	fmt.Printf("Seeding Organization %s...\n", o.Slug)
	var id string
	err := db.QueryRow(`
		INSERT INTO organizations (name, slug, subscription_plan_id, subscription_status, tenant_index, code_format, consent_exempt, auto_expiry_days)
		VALUES ($1, $2, 'community', 'active', $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id;
	`, o.Name, o.Slug, o.TenantIndex, o.CodeFormat, o.ConsentExempt, o.AutoExpiry).Scan(&id)
	if err != nil {
		log.Fatalf("Failed to upsert organization %s: %v", o.Slug, err)
	}
	return id
}

// seedTenantData inserts directory rows inside a transaction bound to the
// organization so row-level security applies. It returns the first agency id.
func seedTenantData(db *sql.DB, orgID string) string {
	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("Failed to begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`SELECT set_config('app.current_organization_id', $1, true)`, orgID); err != nil {
		log.Fatalf("Failed to bind tenant: %v", err)
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM agencies WHERE organization_id = $1`, orgID).Scan(&count); err != nil {
		log.Fatalf("Failed to count agencies: %v", err)
	}
	if count > 0 {
		var agencyID string
		if err := tx.QueryRow(`SELECT id FROM agencies WHERE organization_id = $1 ORDER BY created_at LIMIT 1`, orgID).Scan(&agencyID); err != nil {
			log.Fatalf("Failed to load agency: %v", err)
		}
		fmt.Println("  directory already seeded, skipping")
		return agencyID
	}

	agencies := []struct {
		Name  string
		Email *string
	}{
		{"Citizens Advice", strPtr("referrals@citizens.example")},
		{"St Mary's Church", strPtr("office@stmarys.example")},
		{"Job Centre Plus", nil},
	}
	fmt.Println("  Seeding Agencies...")
	var firstAgency string
	for i, a := range agencies {
		var id string
		if err := tx.QueryRow(`
			INSERT INTO agencies (organization_id, name, contact_email) VALUES ($1, $2, $3) RETURNING id;
		`, orgID, a.Name, a.Email).Scan(&id); err != nil {
			log.Fatalf("Failed to insert agency %s: %v", a.Name, err)
		}
		if i == 0 {
			firstAgency = id
		}
	}

	centers := []struct {
		Name    string
		Address string
	}{
		{"High Street Centre", "12 High Street"},
		{"Market Hall", "Market Square"},
	}
	fmt.Println("  Seeding Centres...")
	for _, c := range centers {
		if _, err := tx.Exec(`
			INSERT INTO food_bank_centers (organization_id, name, address) VALUES ($1, $2, $3);
		`, orgID, c.Name, c.Address); err != nil {
			log.Fatalf("Failed to insert centre %s: %v", c.Name, err)
		}
	}

	clients := []struct {
		First    string
		Last     string
		Postcode *string
		Year     int
	}{
		{"Alice", "Smith", strPtr("AB1 2CD"), 1984},
		{"Ben", "Jones", strPtr("EF3 4GH"), 1990},
		{"Chloe", "Taylor", nil, 1975},
		{"Dev", "Patel", strPtr("IJ5 6KL"), 2001},
	}
	fmt.Println("  Seeding Clients...")
	for _, c := range clients {
		if _, err := tx.Exec(`
			INSERT INTO clients (organization_id, first_name, last_name, postcode, no_fixed_address, year_of_birth)
			VALUES ($1, $2, $3, $4, $5, $6);
		`, orgID, c.First, c.Last, c.Postcode, c.Postcode == nil, c.Year); err != nil {
			log.Fatalf("Failed to insert client %s %s: %v", c.First, c.Last, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit tenant data: %v", err)
	}
	return firstAgency
}

func printTokens(svc *auth.Service, slug, orgID, agencyID string) {
	org := uuid.MustParse(orgID)
	agency := uuid.MustParse(agencyID)
	principals := []common.Principal{
		{UserID: uuid.New(), OrganizationID: org, Role: common.RoleAdmin},
		{UserID: uuid.New(), OrganizationID: org, Role: common.RoleStaff},
		{UserID: uuid.New(), OrganizationID: org, Role: common.RoleThirdParty, AgencyID: &agency},
	}
	for _, p := range principals {
		token, exp, err := svc.IssueAccessToken(p)
		if err != nil {
			log.Printf("Failed to issue %s token for %s: %v", p.Role, slug, err)
			continue
		}
		fmt.Printf("%s %-11s (expires %s)\n  %s\n", slug, p.Role, exp.Format(time.RFC3339), token)
	}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
