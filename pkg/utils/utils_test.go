package utils

import (
	"math"
	"testing"
	"time"
)

func TestStdDevPopulation(t *testing.T) {
	// Популяционная сигма [2,4,4,4,5,5,7,9] = 2 (классический пример,
	// выборочная была бы 2.138)
	got := StdDevPopulation([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("std = %v, want 2", got)
	}

	if StdDevPopulation(nil) != 0 {
		t.Error("empty population must yield 0")
	}
	if StdDevPopulation([]float64{5}) != 0 {
		t.Error("single value must yield 0")
	}
}

func TestMean(t *testing.T) {
	if got := Mean([]float64{1, 2, 3}); got != 2 {
		t.Errorf("mean = %v, want 2", got)
	}
	if Mean(nil) != 0 {
		t.Error("empty mean must yield 0")
	}
}

func TestIsValidPair(t *testing.T) {
	valid := []string{"BTC_USDT", "ETH_USDT", "SOL_BTC", "1INCH_USDT"}
	for _, p := range valid {
		if !IsValidPair(p) {
			t.Errorf("IsValidPair(%q) = false, want true", p)
		}
	}

	invalid := []string{"", "BTCUSDT", "btc_usdt", "BTC_", "_USDT", "BTC_USDT_EXTRA", "B_U_X"}
	for _, p := range invalid {
		if IsValidPair(p) {
			t.Errorf("IsValidPair(%q) = true, want false", p)
		}
	}
}

func TestIsValidTxHash(t *testing.T) {
	hash := "0x" + "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	if !IsValidTxHash(hash) {
		t.Errorf("valid hash rejected: %s", hash)
	}

	invalid := []string{
		"",
		"0x1234",
		"0X" + "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90",
		"0x" + "A1B2C3D4E5F60718293A4B5C6D7E8F90A1B2C3D4E5F60718293A4B5C6D7E8F90",
	}
	for _, h := range invalid {
		if IsValidTxHash(h) {
			t.Errorf("IsValidTxHash(%q) = true, want false", h)
		}
	}

	// Нормализация приводит верхний регистр к валидному виду
	upper := "  0x" + "A1B2C3D4E5F60718293A4B5C6D7E8F90A1B2C3D4E5F60718293A4B5C6D7E8F90  "
	if !IsValidTxHash(NormalizeTxHash(upper)) {
		t.Error("normalized hash must be valid")
	}
}

func TestIsValidEthAddress(t *testing.T) {
	if !IsValidEthAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aec9B") {
		t.Error("checksummed address rejected")
	}
	if IsValidEthAddress("0x123") || IsValidEthAddress("not-an-address") {
		t.Error("malformed address accepted")
	}
}

func TestIsValidEmail(t *testing.T) {
	if !IsValidEmail("alice@example.com") {
		t.Error("valid email rejected")
	}
	for _, e := range []string{"", "alice", "alice@", "@example.com", "a b@example.com", "alice@example"} {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true, want false", e)
		}
	}
}

func TestPeriodFormat(t *testing.T) {
	moment := time.Date(2026, 8, 29, 23, 59, 0, 0, time.FixedZone("KST", 9*3600))
	if got := Period(moment); got != "2026-08" {
		t.Errorf("Period = %s, want 2026-08", got)
	}
}

func TestDayStart(t *testing.T) {
	moment := time.Date(2026, 8, 29, 15, 4, 5, 0, time.FixedZone("KST", 9*3600))
	want := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if got := DayStart(moment); !got.Equal(want) {
		t.Errorf("DayStart = %v, want %v", got, want)
	}
}
