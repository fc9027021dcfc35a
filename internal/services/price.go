package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/restitch/restitch/internal/models"
)

const (
	BarcodePrefix = "RS"

	expectedPriceLabel = "Expected Sale Price: ₹"

	DefaultResalePriceCents = 10000

	// MaxPriceCents is the largest price the INTEGER price columns hold.
	MaxPriceCents = math.MaxInt32
)

var expectedPricePattern = regexp.MustCompile(`Expected Sale Price:\s*₹\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)

// FormatBarcode renders the public tracking code for an order id.
func FormatBarcode(orderID int64) string {
	return fmt.Sprintf("%s%06d", BarcodePrefix, orderID)
}

// NormalizeBarcode upper-cases and trims user input before lookup.
func NormalizeBarcode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ExpectedPriceNote is the line recorded in pickup and order notes for resale items.
func ExpectedPriceNote(cents int) string {
	if cents%100 == 0 {
		return fmt.Sprintf("%s%d", expectedPriceLabel, cents/100)
	}
	return fmt.Sprintf("%s%d.%02d", expectedPriceLabel, cents/100, cents%100)
}

// ParseExpectedPrice extracts the expected sale price recorded in free-text notes.
func ParseExpectedPrice(notes string) (int, error) {
	match := expectedPricePattern.FindStringSubmatch(notes)
	if match == nil {
		return 0, validationf("no expected sale price in notes")
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil || amount <= 0 {
		return 0, validationf("expected sale price %q is not a positive amount", match[1])
	}
	cents := math.Round(amount * 100)
	if cents > MaxPriceCents {
		return 0, validationf("expected sale price %q is too large", match[1])
	}
	return int(cents), nil
}

type priceSource string

const (
	priceFromField    priceSource = "field"
	priceFromNotes    priceSource = "notes"
	priceFromFallback priceSource = "fallback"
)

// resalePrice prefers the structured price, then the notes marker, then fallback.
func resalePrice(order *models.Order, fallbackCents int) (int, priceSource, error) {
	if order.ExpectedPriceCents != nil && *order.ExpectedPriceCents > 0 {
		return *order.ExpectedPriceCents, priceFromField, nil
	}
	cents, err := ParseExpectedPrice(order.Notes)
	if err != nil {
		return fallbackCents, priceFromFallback, err
	}
	return cents, priceFromNotes, nil
}
