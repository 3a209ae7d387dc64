package database

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/models"
)

// SeedAdmin creates the admin account if no user with that email exists.
func SeedAdmin(ctx context.Context, store *Store, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	_, err := store.GetUserByEmail(ctx, email)
	if err == nil {
		slog.Info("✓ admin already seeded, skipping", "email", email)
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now().Unix()
	admin := &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Password:  string(hashed),
		Name:      "Admin",
		Role:      models.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		return err
	}

	slog.Info("🌱 seeded admin user", "email", email)
	return nil
}

// SeedCatalog loads container lines of the form
// "barcode[,value[,label[,weight_grams]]]". Values are decimal amounts and
// are rounded to cents. Blank lines and lines starting with # are skipped.
func SeedCatalog(ctx context.Context, store *Store, r io.Reader) (int, error) {
	count := 0
	err := eachLine(r, func(lineNo int, fields []string) error {
		c := &models.Container{
			ID:      uuid.New().String(),
			Barcode: fields[0],
		}
		if len(fields) > 1 && fields[1] != "" {
			value, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || value < 0 {
				return fmt.Errorf("line %d: invalid value %q", lineNo, fields[1])
			}
			c.ValueCents = models.AmountToCents(value)
		}
		if len(fields) > 2 {
			c.Label = fields[2]
		}
		if len(fields) > 3 && fields[3] != "" {
			weight, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid weight %q", lineNo, fields[3])
			}
			c.WeightGrams = &weight
		}

		if err := store.UpsertContainer(ctx, c); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to seed catalog: %w", err)
	}

	slog.Info("🌱 seeded container catalog", "containers", count)
	return count, nil
}

// SeedBins loads bin lines of the form "id[,qrcode]". Seeded bins start
// offline and available; the first heartbeat brings them online. Existing bins
// are left untouched.
func SeedBins(ctx context.Context, store *Store, r io.Reader) (int, error) {
	now := time.Now().Unix()
	count := 0
	err := eachLine(r, func(lineNo int, fields []string) error {
		qrcode := fields[0]
		if len(fields) > 1 && fields[1] != "" {
			qrcode = fields[1]
		}
		inserted, err := store.InsertBin(ctx, fields[0], qrcode, now)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if inserted {
			count++
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to seed bins: %w", err)
	}

	slog.Info("🌱 seeded bins", "new", count)
	return count, nil
}

// SeedFile opens path and passes it to seed. An empty path is a no-op.
func SeedFile(ctx context.Context, store *Store, path string, seed func(context.Context, *Store, io.Reader) (int, error)) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	_, err = seed(ctx, store, f)
	return err
}

func eachLine(r io.Reader, fn func(lineNo int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if fields[0] == "" {
			return fmt.Errorf("line %d: missing key", lineNo)
		}
		if err := fn(lineNo, fields); err != nil {
			return err
		}
	}
	return scanner.Err()
}
