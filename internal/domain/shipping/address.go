package shipping

import (
	"fmt"
	"regexp"
	"strings"
)

// HouseNumberPlaceholder is sent when no house number can be extracted.
// The carrier rejects an empty house number field.
const HouseNumberPlaceholder = " "

var (
	houseNumberPattern = regexp.MustCompile(`^\p{L}?\d+[\p{L}\d/\-]*$`)
	houseLetterPattern = regexp.MustCompile(`^\p{L}$`)
	phonePattern       = regexp.MustCompile(`^\+?\d[\d ()\-./]{4,}$`)
	countryCodePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// Address is a postal address owned by the ERP.
type Address struct {
	// AddressTitle is used as the company name when none is given
	AddressTitle string `json:"address_title"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	// PostalCode is the ERP "pincode" field
	PostalCode string `json:"pincode"`
	// CountryCode is the ISO 3166-1 alpha-2 code
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	Email       string `json:"email_id"`
}

// CountryISO returns the upper-cased country code.
func (a Address) CountryISO() string {
	return strings.ToUpper(strings.TrimSpace(a.CountryCode))
}

// Validate checks the fields every carrier request needs.
func (a Address) Validate() error {
	if strings.TrimSpace(a.AddressLine1) == "" {
		return fmt.Errorf("%w: address line 1 is required", ErrInvalidAddress)
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("%w: city is required", ErrInvalidAddress)
	}
	if !countryCodePattern.MatchString(strings.TrimSpace(a.CountryCode)) {
		return fmt.Errorf("%w: country code %q is not an ISO alpha-2 code", ErrInvalidAddress, a.CountryCode)
	}
	return nil
}

// Contact is the person shipping or receiving a parcel.
type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email_id"`
}

// FullName returns "First Last", trimmed when a part is missing.
func (c Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// ValidatePhone checks that a phone number is present and plausible.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidPhone)
	}
	if !phonePattern.MatchString(phone) {
		return fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return nil
}

// SplitStreetAndHouseNumber splits a free-text address line into a street
// name and a house number. The house number is the last whitespace separated
// token that starts with a digit, or with one letter and a digit, e.g.
// "Main St 12A" gives ("Main St", "12A"), "Main St A12" gives ("Main St", "A12")
// and "12 Main St" gives ("Main St", "12"). A lone letter closing the line is
// kept with the number before it: "Hauptstr. 5 b" gives ("Hauptstr.", "5 b").
// When no number exists the whole line is returned as the street.
func SplitStreetAndHouseNumber(line string) (street, number string) {
	tokens := strings.Fields(line)
	for i := len(tokens) - 1; i >= 0; i-- {
		candidate := strings.TrimRight(tokens[i], ",")
		if !houseNumberPattern.MatchString(candidate) {
			continue
		}
		end := i + 1
		if end == len(tokens)-1 {
			if letter := strings.TrimRight(tokens[end], ","); houseLetterPattern.MatchString(letter) {
				candidate += " " + letter
				end++
			}
		}
		rest := make([]string, 0, len(tokens))
		rest = append(rest, tokens[:i]...)
		rest = append(rest, tokens[end:]...)
		street = strings.TrimRight(strings.Join(rest, " "), ", ")
		return street, candidate
	}
	return strings.TrimSpace(line), ""
}

// HouseNumberOrPlaceholder returns number, or HouseNumberPlaceholder when it is empty.
func HouseNumberOrPlaceholder(number string) string {
	if strings.TrimSpace(number) == "" {
		return HouseNumberPlaceholder
	}
	return number
}
