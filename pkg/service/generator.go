package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"shortly/pkg/storage"
)

// base62Alphabet has 62^6 ≈ 5.7e10 combinations at the default length, so a
// random draw collides with an existing code only once the table holds
// hundreds of millions of rows.
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Reserved aliases: system route names and common pages a custom alias must
// not shadow.
var reservedAliases = map[string]bool{
	"api": true, "admin": true, "login": true, "logout": true,
	"register": true, "signup": true, "signin": true, "health": true,
	"metrics": true, "swagger": true, "docs": true, "help": true,
	"about": true, "contact": true, "terms": true, "privacy": true,
	"dashboard": true, "settings": true, "profile": true, "qr": true,
	"r": true, "v1": true,
}

type CodeGenerator struct {
	store       storage.LinkStore
	codeLength  int
	maxAttempts int
	aliasMinLen int
	aliasMaxLen int
}

func NewCodeGenerator(store storage.LinkStore, codeLength, maxAttempts, aliasMinLen, aliasMaxLen int) *CodeGenerator {
	if codeLength <= 0 {
		codeLength = 6
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if aliasMinLen <= 0 {
		aliasMinLen = 4
	}
	if aliasMaxLen <= 0 {
		aliasMaxLen = 10
	}
	return &CodeGenerator{
		store:       store,
		codeLength:  codeLength,
		maxAttempts: maxAttempts,
		aliasMinLen: aliasMinLen,
		aliasMaxLen: aliasMaxLen,
	}
}

// Generate draws a fixed-length code uniformly from the base62 alphabet
// using crypto/rand.
func (g *CodeGenerator) Generate() string {
	return randomBase62(g.codeLength)
}

// GenerateUnique generates codes until one is absent from the store, up to
// maxAttempts draws. After exhausting the attempts it appends one extra
// random symbol to the last candidate and returns it without another check;
// the insert-time uniqueness constraint covers the residual risk.
func (g *CodeGenerator) GenerateUnique(ctx context.Context) (string, error) {
	var code string
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code = g.Generate()
		exists, err := g.store.ExistsByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%w: checking code uniqueness: %v", ErrUnavailable, err)
		}
		if !exists {
			return code, nil
		}
	}
	return code + randomBase62(1), nil
}

// ValidCustomAlias reports whether a user-supplied alias is acceptable:
// within length bounds, alphanumeric plus hyphen, and not reserved.
func (g *CodeGenerator) ValidCustomAlias(alias string) bool {
	if len(alias) < g.aliasMinLen || len(alias) > g.aliasMaxLen {
		return false
	}
	if !aliasPattern.MatchString(alias) {
		return false
	}
	return !IsReserved(alias)
}

func IsReserved(code string) bool {
	return reservedAliases[strings.ToLower(code)]
}

// ValidURL accepts http(s) URLs up to 2048 characters.
func ValidURL(raw string) bool {
	if raw == "" || len(raw) > 2048 {
		return false
	}
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// randomBase62 samples uniformly by rejecting bytes outside the largest
// multiple of 62, avoiding modulo bias.
func randomBase62(n int) string {
	const max = 248 // 4 * 62
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand never fails on supported platforms
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			out = append(out, base62Alphabet[b%62])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
