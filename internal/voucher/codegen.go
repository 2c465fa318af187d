package voucher

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/tenant"
)

// codeAlphabet omits 0, O, 1 and I. Its length of 32 divides 256, so masking
// a random byte yields an unbiased symbol.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// DefaultCodeAttempts bounds collision retries.
const DefaultCodeAttempts = 20

// CodeQuerier is the subset of Querier used to mint codes.
type CodeQuerier interface {
	VoucherCodeExists(ctx context.Context, code string) (bool, error)
	NextVoucherSequence(ctx context.Context, orgID uuid.UUID, prefix string) (int, error)
}

// CodeGenerator mints voucher codes in the format selected by the tenant policy.
type CodeGenerator struct {
	MaxAttempts int
	// Rand defaults to crypto/rand.
	Rand io.Reader
}

func (g CodeGenerator) attempts() int {
	if g.MaxAttempts <= 0 {
		return DefaultCodeAttempts
	}
	return g.MaxAttempts
}

func (g CodeGenerator) reader() io.Reader {
	if g.Rand == nil {
		return rand.Reader
	}
	return g.Rand
}

// RandomCode returns a code shaped E-XXXXX-XXXXXX.
func (g CodeGenerator) RandomCode() (string, error) {
	var buf [11]byte
	if _, err := io.ReadFull(g.reader(), buf[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	out := make([]byte, 0, 14)
	out = append(out, 'E', '-')
	for i, b := range buf {
		if i == 5 {
			out = append(out, '-')
		}
		out = append(out, codeAlphabet[b&31])
	}
	return string(out), nil
}

// SequentialCode formats the nth code of a tenant.
func SequentialCode(policy tenant.Policy, seq int) string {
	return fmt.Sprintf("%s%04d", policy.SequencePrefix(), seq)
}

// Next returns a code that is not yet in use. Random codes are redrawn on
// collision; sequential codes advance the tenant counter.
func (g CodeGenerator) Next(ctx context.Context, q CodeQuerier, policy tenant.Policy) (string, error) {
	for attempt := 0; attempt < g.attempts(); attempt++ {
		code, taken, err := g.draw(ctx, q, policy)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", codeGenerationExhausted()
}

// draw mints one candidate and reports whether it is already in use.
func (g CodeGenerator) draw(ctx context.Context, q CodeQuerier, policy tenant.Policy) (string, bool, error) {
	var code string
	if policy.Sequential() {
		seq, err := q.NextVoucherSequence(ctx, policy.OrganizationID, policy.SequencePrefix())
		if err != nil {
			return "", false, fmt.Errorf("next sequence: %w", err)
		}
		code = SequentialCode(policy, seq)
	} else {
		var err error
		if code, err = g.RandomCode(); err != nil {
			return "", false, err
		}
	}
	exists, err := q.VoucherCodeExists(ctx, code)
	if err != nil {
		return "", false, fmt.Errorf("check code: %w", err)
	}
	return code, exists, nil
}
