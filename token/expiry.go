package token

import (
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
)

// Calculator derives the remaining validity of the tokens held in a Store.
// It never fails: a missing or undecodable token has zero seconds left.
type Calculator struct {
	store   Store
	parser  *jwt.Parser
	nowFunc func() time.Time
}

type CalculatorOption func(*Calculator)

// WithNowFunc sets the clock used for remaining-time arithmetic
func WithNowFunc(now func() time.Time) CalculatorOption {
	return func(c *Calculator) {
		c.nowFunc = now
	}
}

func NewCalculator(store Store, options ...CalculatorOption) *Calculator {
	c := &Calculator{
		store:   store,
		parser:  jwt.NewParser(),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Remaining returns the seconds until the token in the slot expires.
// Negative values mean the token has already expired.
func (c *Calculator) Remaining(kind Kind) float64 {
	raw, err := c.store.Get(kind)
	if err != nil || raw == "" {
		return 0
	}
	exp, err := expiresAt(c.parser, raw)
	if err != nil {
		return 0
	}
	return float64(exp.UnixMilli()-c.nowFunc().UnixMilli()) / 1000
}

// Components splits the remaining time of the slot into whole minutes and
// the seconds left over, for countdown text.
func (c *Calculator) Components(kind Kind) (minutes, seconds int) {
	return SplitRemaining(c.Remaining(kind))
}

// SplitRemaining converts a remaining-seconds value into minutes and seconds.
// Minutes never go below zero; seconds are truncated towards zero.
func SplitRemaining(remaining float64) (minutes, seconds int) {
	m := math.Floor(math.Max(remaining, 0) / 60)
	return int(m), int(math.Trunc(remaining - m*60))
}

// ExpiresAt reads the exp claim of a raw JWT without verifying its signature
func ExpiresAt(raw string) (time.Time, error) {
	return expiresAt(jwt.NewParser(), raw)
}

func expiresAt(parser *jwt.Parser, raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", apperrors.ErrInvalidToken)
	}
	return exp.Time, nil
}
