// Package cardsvc stands in for the opaque wallet/card payment
// collaborator: it mints currency-appropriate opaque key formats and
// tracks invoices in memory, so the `card` capability table has
// something concrete to call without a real payment processor.
package cardsvc

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("cardsvc: invoice not found")
	ErrAlreadyPaid       = errors.New("cardsvc: invoice already paid")
	ErrInvalidInvoiceID = errors.New("cardsvc: invalid invoice id")
)

// usdFactorPerCent converts a currency's cents into a common USD-cent
// basis, matching the original fixed exchange table.
var usdFactorPerCent = map[string]float64{
	"USD": 1.0,
	"BTC": 250.0,
	"ETH": 20.0,
	"SOL": 1.0,
}

// GenerateKeyForCurrency returns a currency-shaped opaque address:
// Fkebank-style PIX key for USD, and crypto-shaped addresses otherwise.
func GenerateKeyForCurrency(currency string) string {
	switch currency {
	case "USD":
		return generateFkebankKey()
	case "BTC":
		return generateBTCAddress()
	case "ETH":
		return generateETHAddress()
	case "SOL":
		return generateSOLAddress()
	default:
		return "key-" + uuid.NewString()
	}
}

func generateFkebankKey() string {
	return "fkebank-" + simpleHex(uuid.New())
}

func generateETHAddress() string {
	combined := simpleHex(uuid.New()) + simpleHex(uuid.New())
	return "0x" + combined[:40]
}

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

func generateBTCAddress() string {
	bytes := randomBytes(38)
	out := make([]byte, 38)
	for i, b := range bytes {
		out[i] = bech32Charset[int(b)%len(bech32Charset)]
	}
	return "bc1q" + string(out)
}

const base58Charset = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func generateSOLAddress() string {
	bytes := randomBytes(44)
	out := make([]byte, 44)
	for i, b := range bytes {
		out[i] = base58Charset[int(b)%len(base58Charset)]
	}
	return string(out)
}

func simpleHex(id uuid.UUID) string {
	return fmt.Sprintf("%x", id[:])
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// ConvertAmount converts cents between currencies using the fixed
// USD-basis exchange table, rounding toward zero. Returns false if
// either currency is unknown.
func ConvertAmount(amountCents int64, from, to string) (int64, bool) {
	inFactor, ok := usdFactorPerCent[from]
	if !ok {
		return 0, false
	}
	outFactor, ok := usdFactorPerCent[to]
	if !ok || outFactor == 0 {
		return 0, false
	}
	return int64(float64(amountCents) * inFactor / outFactor), true
}

// Invoice is a pending or settled card.create_invoice request.
type Invoice struct {
	ID              string
	DestinationKey  string
	AmountCents     int64
	Paid            bool
}

// Service backs the `card` capability table: create_invoice,
// pay_invoice, total_collected, all returning (value, nil) or
// (zero-value, error) so Lua callers never see an internal panic.
type Service struct {
	mu       sync.Mutex
	invoices map[string]*Invoice
	totals   map[string]int64 // destination key -> total collected cents
}

func NewService() *Service {
	return &Service{
		invoices: make(map[string]*Invoice),
		totals:   make(map[string]int64),
	}
}

func (s *Service) CreateInvoice(destinationKey string, amountCents int64) (string, error) {
	if amountCents <= 0 {
		return "", errors.New("cardsvc: amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.invoices[id] = &Invoice{ID: id, DestinationKey: destinationKey, AmountCents: amountCents}
	return id, nil
}

// PayInvoice settles an invoice. Card details are accepted but never
// validated against a real processor; only structural checks apply.
func (s *Service) PayInvoice(invoiceID, cardNumber, cvv string, expiryMonth, expiryYear int, holderName string) error {
	if _, err := uuid.Parse(invoiceID); err != nil {
		return ErrInvalidInvoiceID
	}
	if len(cardNumber) < 12 || len(cvv) < 3 {
		return errors.New("cardsvc: malformed card details")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	if inv.Paid {
		return ErrAlreadyPaid
	}
	inv.Paid = true
	s.totals[inv.DestinationKey] += inv.AmountCents
	return nil
}

func (s *Service) TotalCollected(destinationKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[destinationKey], nil
}
