// Package phone normalises user supplied phone numbers to E.164.
package phone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// Number is a normalised phone number.
type Number struct {
	E164        string
	CountryCode string
}

// Normalize parses raw using countryCode as a hint. countryCode may be a
// calling code ("+90", "90") or an ISO region ("TR"); it is ignored when raw
// already carries a leading "+".
func Normalize(raw, countryCode string) (Number, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return Number{}, fmt.Errorf("%w: empty", ErrInvalidPhone)
	}

	region := ""
	if !strings.HasPrefix(cleaned, "+") {
		cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
		switch {
		case cc == "":
			return Number{}, fmt.Errorf("%w: country code required for national numbers", ErrInvalidPhone)
		case isDigits(cc):
			n, err := strconv.Atoi(cc)
			if err != nil {
				return Number{}, fmt.Errorf("%w: %v", ErrInvalidPhone, err)
			}
			region = phonenumbers.GetRegionCodeForCountryCode(n)
			if region == "" || region == "ZZ" {
				cleaned = "+" + cc + strings.TrimLeft(cleaned, "0")
				region = ""
			}
		default:
			region = strings.ToUpper(cc)
		}
	}

	num, err := phonenumbers.Parse(cleaned, region)
	if err != nil {
		return Number{}, fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return Number{}, fmt.Errorf("%w: %s", ErrInvalidPhone, Mask(cleaned))
	}
	return Number{
		E164:        phonenumbers.Format(num, phonenumbers.E164),
		CountryCode: fmt.Sprintf("+%d", num.GetCountryCode()),
	}, nil
}

// Mask hides all but the first three and last two characters, for logs.
func Mask(p string) string {
	if len(p) <= 5 {
		return "*****"
	}
	return p[:3] + strings.Repeat("*", len(p)-5) + p[len(p)-2:]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
