// Command seed creates the demo tenant, an admin login, two locations and a
// few weeks of sample reviews, then prints a session token for the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/TheHatt/revboard/internal/config"
	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository/postgres"
	"github.com/TheHatt/revboard/migrations"
	"github.com/TheHatt/revboard/pkg/database"
	"github.com/TheHatt/revboard/pkg/logger"
	"github.com/TheHatt/revboard/pkg/slug"
)

const (
	demoTenant   = "Demo Tenant"
	demoEmail    = "admin@demo.local"
	demoPassword = "change-me-123"
	demoReviews  = 60
)

var sampleTexts = []string{
	"Super freundliches Personal und sehr leckeres Essen!",
	"Lange Wartezeit, aber das Essen war gut.",
	"Der Service war langsam und unfreundlich.",
	"Tolle Atmosphäre, wir kommen gerne wieder.",
	"Preis-Leistung stimmt, Portionen sind groß.",
	"Leider war die Bestellung falsch und kalt.",
	"",
}

var sampleAuthors = []string{"Erika Mustermann", "Max Müller", "Jürgen Schäfer", "", "Anna Groß"}

// stableID derives the same id for the same name on every run.
func stableID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("revboard:"+name)).String()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("revboard-seed", cfg.LogLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), 10)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tenantSlug := slug.Generate(demoTenant)
	tenantID := stableID("tenant/" + tenantSlug)
	userID := stableID("user/" + demoEmail)

	if _, err := pool.Exec(ctx, `
		INSERT INTO tenants (id, name, slug) VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO NOTHING`,
		tenantID, demoTenant, tenantSlug,
	); err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash) VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		userID, demoEmail, "Demo Admin", string(hash),
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO memberships (user_id, tenant_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tenant_id) DO UPDATE SET role = EXCLUDED.role`,
		userID, tenantID, string(domain.RoleAdmin),
	); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}

	locations := []domain.Location{
		{ID: stableID("location/berlin"), TenantID: tenantID, Name: "Berlin Mitte"},
		{ID: stableID("location/hamburg"), TenantID: tenantID, Name: "Hamburg Altona"},
	}
	locationRepo := postgres.NewLocationRepository(pool)
	for i := range locations {
		if err := locationRepo.Upsert(ctx, &locations[i]); err != nil {
			return fmt.Errorf("upsert location %s: %w", locations[i].Name, err)
		}
	}

	if err := seedReviews(ctx, postgres.NewReviewRepository(pool), postgres.NewReplyRepository(pool), tenantID, userID, locations); err != nil {
		return err
	}

	token, err := sessionToken(cfg.JWTSecret, userID, tenantID)
	if err != nil {
		return err
	}

	log.Info("seed complete",
		slog.String("tenant_id", tenantID),
		slog.String("email", demoEmail),
		slog.String("password", demoPassword),
	)
	fmt.Println(token)
	return nil
}

func seedReviews(ctx context.Context, reviews *postgres.ReviewRepository, replies *postgres.ReplyRepository, tenantID, userID string, locations []domain.Location) error {
	// Fixed seed keeps re-runs identical.
	rng := rand.New(rand.NewPCG(42, 7))
	now := time.Now().UTC().Truncate(time.Minute)

	for i := 0; i < demoReviews; i++ {
		review := domain.Review{
			ID:          stableID(fmt.Sprintf("review/%d", i)),
			TenantID:    tenantID,
			LocationID:  locations[i%len(locations)].ID,
			Rating:      1 + rng.IntN(5),
			PublishedAt: now.Add(-time.Duration(rng.IntN(45*24)) * time.Hour),
		}
		if text := sampleTexts[rng.IntN(len(sampleTexts))]; text != "" {
			review.Text = &text
		}
		if author := sampleAuthors[rng.IntN(len(sampleAuthors))]; author != "" {
			review.AuthorName = &author
		}
		if err := reviews.Upsert(ctx, &review); err != nil {
			return fmt.Errorf("upsert review %d: %w", i, err)
		}

		if rng.IntN(3) != 0 {
			continue
		}
		reply := domain.Reply{
			ID:             stableID(fmt.Sprintf("reply/%d", i)),
			ReviewID:       review.ID,
			Text:           "Vielen Dank für Ihre Bewertung!",
			PostedAt:       review.PublishedAt.Add(time.Duration(1+rng.IntN(72)) * time.Hour),
			PostedByUserID: &userID,
			Type:           domain.ReplyTypeManual,
		}
		if err := replies.Save(ctx, tenantID, &reply, false); err != nil && !errors.Is(err, postgres.ErrAlreadyAnswered) {
			return fmt.Errorf("save reply %d: %w", i, err)
		}
	}
	return nil
}

// sessionToken signs a day-long admin session for the demo user.
func sessionToken(secret, userID, tenantID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       userID,
		"tenant_id": tenantID,
		"role":      string(domain.RoleAdmin),
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}
