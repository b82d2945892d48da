// Package ogm encodes booking ids as Belgian structured payment references
// ("gestructureerde mededeling", +++XXX/XXXX/XXXXX+++).
//
// A reference is twelve digits: the booking id zero-padded to ten digits,
// followed by a two-digit modulo-97 checksum in which 0 is written as 97.
package ogm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxBookingID is the largest id that fits in the ten-digit base.
const MaxBookingID int64 = 9_999_999_999

// ErrOutOfRange is returned by Generate for ids that do not fit.
var ErrOutOfRange = errors.New("booking id out of range for structured reference")

var referencePattern = regexp.MustCompile(`^\+\+\+([0-9]{3})/([0-9]{4})/([0-9]{5})\+\+\+$`)

// Checksum returns base mod 97, with 0 mapped to 97.
func Checksum(base int64) int {
	c := int(base % 97)
	if c == 0 {
		return 97
	}
	return c
}

// Generate returns the display form of the reference for bookingID.
func Generate(bookingID int64) (string, error) {
	if bookingID < 0 || bookingID > MaxBookingID {
		return "", fmt.Errorf("%w: %d", ErrOutOfRange, bookingID)
	}
	digits := fmt.Sprintf("%010d%02d", bookingID, Checksum(bookingID))
	return group(digits), nil
}

// Validate reports whether ref has the exact +++XXX/XXXX/XXXXX+++ shape and
// a matching checksum.
func Validate(ref string) bool {
	digits, ok := match(ref)
	if !ok {
		return false
	}
	base, err := strconv.ParseInt(digits[:10], 10, 64)
	if err != nil {
		return false
	}
	check, err := strconv.Atoi(digits[10:])
	if err != nil {
		return false
	}
	return check == Checksum(base)
}

// ExtractBookingID returns the booking id encoded in ref. ok is false when
// ref does not validate.
func ExtractBookingID(ref string) (id int64, ok bool) {
	if !Validate(ref) {
		return 0, false
	}
	digits, _ := match(ref)
	id, err := strconv.ParseInt(digits[:10], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// FormatDigits turns twelve raw digits, as found in bank files, into the
// display form. The checksum is not verified.
func FormatDigits(digits string) (string, bool) {
	if len(digits) != 12 || !isDigits(digits) {
		return "", false
	}
	return group(digits), true
}

// Digits strips every non-digit character from ref.
func Digits(ref string) string {
	var b strings.Builder
	for i := 0; i < len(ref); i++ {
		if ref[i] >= '0' && ref[i] <= '9' {
			b.WriteByte(ref[i])
		}
	}
	return b.String()
}

func group(digits string) string {
	return "+++" + digits[:3] + "/" + digits[3:7] + "/" + digits[7:] + "+++"
}

func match(ref string) (string, bool) {
	m := referencePattern.FindStringSubmatch(ref)
	if m == nil {
		return "", false
	}
	return m[1] + m[2] + m[3], true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
