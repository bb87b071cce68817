package order

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// PromoStatus is the outcome of a promo check.
type PromoStatus int

const (
	// PromoApplied means the backend confirmed the code.
	PromoApplied PromoStatus = iota
	// PromoRejected means the backend refused the code.
	PromoRejected
	// PromoUnavailable means the backend could not be asked.
	PromoUnavailable
)

// PromoResult is returned instead of an error so callers can message
// "invalid code" and "try again later" differently.
type PromoResult struct {
	Status  PromoStatus
	Code    string
	Percent decimal.Decimal
	Message string
	Err     error
}

// promoScratch mirrors the last promo check for display after reconnects.
type promoScratch struct {
	PromoCode     string          `json:"promoCode"`
	PromoDiscount decimal.Decimal `json:"promoDiscount"`
}

// NormalizeCode trims and upper-cases a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidatePromo checks code with the backend and applies the result.
// Anything but a confirmed code clears the stored promo.
func (a *Aggregator) ValidatePromo(ctx context.Context, code string) PromoResult {
	code = NormalizeCode(code)
	if code == "" {
		a.ClearPromo()
		return PromoResult{Status: PromoRejected, Message: "Enter a promo code"}
	}
	if a.promos == nil {
		a.ClearPromo()
		return PromoResult{Status: PromoUnavailable, Code: code, Message: "Promo codes are unavailable"}
	}

	resp, err := a.promos.ValidatePromo(ctx, code)
	switch {
	case err != nil && (api.IsUnavailable(err) || api.StatusOf(err) == 0):
		a.logger.Warn("promo check failed", "code", code, "err", err)
		a.ClearPromo()
		return PromoResult{Status: PromoUnavailable, Code: code, Message: "Could not check the code, please try again", Err: err}

	case err != nil:
		a.ClearPromo()
		msg := "Invalid promo code"
		if m := errorMessage(err); m != "" {
			msg = m
		}
		return PromoResult{Status: PromoRejected, Code: code, Message: msg, Err: err}

	case !resp.Success || resp.Promo == nil || !resp.Promo.DiscountPercent.IsPositive():
		a.ClearPromo()
		msg := resp.Message
		if msg == "" {
			msg = "Invalid promo code"
		}
		return PromoResult{Status: PromoRejected, Code: code, Message: msg}
	}

	pct := clampPercent(resp.Promo.DiscountPercent)
	confirmed := NormalizeCode(resp.Promo.Code)
	if confirmed == "" {
		confirmed = code
	}
	a.SetPromo(confirmed, pct)
	if err := storage.Save(a.store, storage.KeyPromoScratch, promoScratch{PromoCode: confirmed, PromoDiscount: pct}); err != nil {
		a.logger.Warn("persisting promo scratch", "err", err)
	}
	a.logger.Info("promo applied", "code", confirmed, "percent", pct.String())
	return PromoResult{Status: PromoApplied, Code: confirmed, Percent: pct}
}

func errorMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
