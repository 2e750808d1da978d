package cardsvc

import "testing"

func TestGenerateKeyForCurrencyShapes(t *testing.T) {
	if got := GenerateKeyForCurrency("USD"); len(got) < len("fkebank-") {
		t.Fatalf("USD key too short: %q", got)
	}
	if got := GenerateKeyForCurrency("ETH"); len(got) != 42 || got[:2] != "0x" {
		t.Fatalf("ETH address shape wrong: %q", got)
	}
	if got := GenerateKeyForCurrency("BTC"); len(got) != 42 || got[:4] != "bc1q" {
		t.Fatalf("BTC address shape wrong: %q", got)
	}
	if got := GenerateKeyForCurrency("SOL"); len(got) != 44 {
		t.Fatalf("SOL address length wrong: %d", len(got))
	}
}

func TestConvertAmount(t *testing.T) {
	got, ok := ConvertAmount(100, "USD", "USD")
	if !ok || got != 100 {
		t.Fatalf("ConvertAmount(USD->USD) = (%d, %v), want (100, true)", got, ok)
	}
	if _, ok := ConvertAmount(100, "USD", "XYZ"); ok {
		t.Fatal("expected unknown currency to fail conversion")
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	svc := NewService()

	id, err := svc.CreateInvoice("fkebank-abc", 500)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	if err := svc.PayInvoice(id, "4111111111111111", "123", 12, 2030, "Jane Doe"); err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}

	if err := svc.PayInvoice(id, "4111111111111111", "123", 12, 2030, "Jane Doe"); err != ErrAlreadyPaid {
		t.Fatalf("expected ErrAlreadyPaid on double pay, got %v", err)
	}

	total, err := svc.TotalCollected("fkebank-abc")
	if err != nil || total != 500 {
		t.Fatalf("TotalCollected = (%d, %v), want (500, nil)", total, err)
	}
}

func TestPayInvoiceUnknownID(t *testing.T) {
	svc := NewService()
	if err := svc.PayInvoice("not-a-uuid", "4111111111111111", "123", 1, 2030, "x"); err != ErrInvalidInvoiceID {
		t.Fatalf("expected ErrInvalidInvoiceID, got %v", err)
	}
}
