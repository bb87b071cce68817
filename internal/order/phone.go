package order

import (
	"strings"

	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// Country is a supported phone country code with its local number length.
type Country struct {
	Code   string
	Digits int
}

// DefaultCountryCode is preselected in the phone field.
const DefaultCountryCode = "+965"

// Countries lists the selectable phone country codes.
var Countries = []Country{
	{"+965", 8},
	{"+20", 11},
	{"+971", 10},
	{"+966", 10},
	{"+962", 10},
	{"+968", 8},
	{"+974", 8},
}

// CountryFor returns the entry for code.
func CountryFor(code string) (Country, bool) {
	for _, c := range Countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone joins code and the digits of number, truncating the local
// part to the country's length.
func NormalizePhone(code, number string) string {
	local := Digits(number)
	if c, ok := CountryFor(code); ok && len(local) > c.Digits {
		local = local[:c.Digits]
	}
	if local == "" {
		return ""
	}
	return code + local
}

// PhoneValid reports whether number is long enough for code. A local number
// may be up to three digits short of the nominal length.
func PhoneValid(code, number string) bool {
	c, ok := CountryFor(code)
	if !ok {
		return false
	}
	n := len(Digits(number))
	return n >= c.Digits-3 && n <= c.Digits
}

// SplitPhone separates a normalized phone into country code and local number.
// Unknown prefixes fall back to the default country.
func SplitPhone(full string) (code, number string) {
	full = strings.TrimSpace(full)
	if !strings.HasPrefix(full, "+") {
		return DefaultCountryCode, Digits(full)
	}
	// Longest matching code wins.
	best := ""
	for _, c := range Countries {
		if strings.HasPrefix(full, c.Code) && len(c.Code) > len(best) {
			best = c.Code
		}
	}
	if best == "" {
		return DefaultCountryCode, Digits(full)
	}
	return best, Digits(full[len(best):])
}

// PhoneScratch is the in-progress phone entry kept across reconnects.
type PhoneScratch struct {
	CountryCode string `json:"countryCode"`
	Number      string `json:"number"`
}

// LoadPhoneScratch restores the phone entry, defaulting the country code.
func LoadPhoneScratch(s storage.Store) PhoneScratch {
	var p PhoneScratch
	if err := storage.Load(s, storage.KeyPhoneScratch, &p); err != nil {
		p = PhoneScratch{}
	}
	if _, ok := CountryFor(p.CountryCode); !ok {
		p.CountryCode = DefaultCountryCode
	}
	return p
}

// SavePhoneScratch stores the entry. The untouched default is not written.
func SavePhoneScratch(s storage.Store, p PhoneScratch) error {
	if p.Number == "" && (p.CountryCode == "" || p.CountryCode == DefaultCountryCode) {
		return nil
	}
	return storage.Save(s, storage.KeyPhoneScratch, p)
}
