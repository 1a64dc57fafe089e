// Package reference builds gateway transaction references.
package reference

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/invoicepay/internal/clock"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"gorm.io/gorm"
)

const (
	timestampLayout = "20060102150405"
	nonceLength     = 8
	maxAttempts     = 5
)

// Format returns "<invoice number>-<YYYYMMDDHHMMSS>".
func Format(invoiceNumber string, at time.Time) string {
	return strings.TrimSpace(invoiceNumber) + "-" + at.UTC().Format(timestampLayout)
}

// Generator issues references that do not collide with stored transactions.
type Generator struct {
	clock clock.Clock
	repo  paymentdomain.Repository
}

func NewGenerator(c clock.Clock, repo paymentdomain.Repository) *Generator {
	return &Generator{clock: c, repo: repo}
}

// Next returns the timestamped reference for invoiceNumber. When an attempt in
// the same second already used it, a random nonce is appended.
func (g *Generator) Next(ctx context.Context, db *gorm.DB, invoiceNumber string) (string, error) {
	if strings.TrimSpace(invoiceNumber) == "" {
		return "", paymentdomain.ErrInvalidReference
	}

	base := Format(invoiceNumber, g.clock.Now())
	candidate := base
	for range maxAttempts {
		exists, err := g.repo.ReferenceExists(ctx, db, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + nonce(g.clock.Now())
	}
	return "", paymentdomain.ErrReferenceExhausted
}

func nonce(at time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
	return id[len(id)-nonceLength:]
}
