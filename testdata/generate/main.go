// Command generate writes the seed bookings and a sample CODA statement
// that pays part of them. Output depends only on the tables below, so
// rerunning it reproduces the checked-in files byte for byte.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/ogm"
)

const lineLength = 128

var firstNames = []string{"Jan", "Els", "Pieter", "Sofie", "Koen", "Lies", "Bart", "Nele", "Wim", "Ine"}
var lastNames = []string{"Peeters", "Janssens", "Maes", "Jacobs", "Mertens", "Willems", "Claes", "Goossens", "Wouters", "De Smet"}
var activities = []string{"Zomerkamp", "Sportweek", "Kunstatelier", "Natuurklassen", "Muziekstage"}

func main() {
	baseDir := findTestdataDir()

	// Activities start between 2024-07-01 and 2024-08-15.
	seasonStart := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	statementDate := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	bookings := make([]domain.Booking, 30)
	for i := range bookings {
		start := seasonStart.AddDate(0, 0, i*17%46)
		bookings[i] = domain.Booking{
			OrganisationID: 1,
			TotalAmount:    decimal.NewFromInt(int64(75 + 5*(i*7%30))),
			// Every tenth booking is still awaiting confirmation.
			Confirmed: i%10 != 9,
			Guardian: domain.Guardian{
				FirstName: firstNames[i%len(firstNames)],
				LastName:  lastNames[(i*3+1)%len(lastNames)],
			},
			ActivityName:      activities[i%len(activities)],
			ActivityStartDate: start,
			BookingDate:       start.AddDate(0, 0, -30-i*11%30),
		}
	}
	writeJSONFile(filepath.Join(baseDir, "bookings.json"), bookings)

	// Booking ids are assigned 1..N when seeding an empty database.
	var lines []string
	lines = append(lines, record('0', map[int]string{5: "BE6800000000", 97: ddmmyy(statementDate)}))
	lines = append(lines, record('1', map[int]string{41: "0", 42: amount(decimal.NewFromInt(2500))}))

	closing := decimal.NewFromInt(2500)
	for i, b := range bookings[:20] {
		id := int64(i + 1)
		paid := b.TotalAmount
		ref, _ := ogm.Generate(id)
		switch {
		case i%7 == 3:
			// Partial payment.
			paid = paid.Div(decimal.NewFromInt(2)).Round(2)
		case i%7 == 5:
			// Reference left out; only the name and amount match.
			ref = ""
		}
		day := statementDate.AddDate(0, 0, -(i % 5))
		lines = append(lines, movement(day, false, paid, ogm.Digits(ref)))
		lines = append(lines, record('3', map[int]string{1: "1", 10: b.Guardian.FirstName + " " + b.Guardian.LastName}))
		lines = append(lines, record('3', map[int]string{1: "2", 10: b.ActivityName}))
		closing = closing.Add(paid)
	}

	// One outgoing payment, ignored by reconciliation.
	fee := decimal.RequireFromString("12.50")
	lines = append(lines, movement(statementDate, true, fee, ""))
	lines = append(lines, record('3', map[int]string{1: "2", 10: "Bankkosten"}))
	closing = closing.Sub(fee)

	lines = append(lines, record('8', map[int]string{41: "0", 42: amount(closing)}))
	lines = append(lines, record('9', nil))

	path := filepath.Join(baseDir, "sample.cod")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\r\n")+"\r\n"), 0o644); err != nil {
		panic(err)
	}

	fmt.Printf("Generated %d bookings and %d statement lines in %s\n", len(bookings), len(lines), baseDir)
}

func record(rec byte, fields map[int]string) string {
	b := []byte(strings.Repeat(" ", lineLength))
	b[0] = rec
	for off, v := range fields {
		copy(b[off:], v)
	}
	return string(b)
}

func movement(day time.Time, debit bool, amt decimal.Decimal, refDigits string) string {
	sign := "0"
	if debit {
		sign = "1"
	}
	return record('2', map[int]string{
		13:  ddmmyy(day),
		31:  sign,
		32:  amount(amt),
		61:  "00150000",
		112: refDigits,
	})
}

// amount renders a 15-digit field with three implied decimals.
func amount(d decimal.Decimal) string {
	return fmt.Sprintf("%015d", d.Shift(3).IntPart())
}

func ddmmyy(t time.Time) string {
	return t.Format("020106")
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	candidates := []string{
		"testdata",
		"./testdata",
		"../",
	}
	for _, c := range candidates {
		if info, err := os.Stat(filepath.Join(c, "generate")); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
