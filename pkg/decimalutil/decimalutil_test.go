package decimalutil

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAbs(t *testing.T) {
	if !Abs(decimal.NewFromFloat(-1.5)).Equal(decimal.NewFromFloat(1.5)) {
		t.Fatal("expected Abs to negate a negative value")
	}
	if !Abs(decimal.NewFromFloat(1.5)).Equal(decimal.NewFromFloat(1.5)) {
		t.Fatal("expected Abs to leave a positive value unchanged")
	}
	if !Abs(decimal.Zero).IsZero() {
		t.Fatal("expected Abs(0) to be zero")
	}
}

func TestTruncQty(t *testing.T) {
	d := decimal.NewFromFloat(1.123456789123)
	got := TruncQty(d)
	if got.Exponent() < -Scale {
		t.Fatalf("expected truncation to at most %d places, got exponent %d", Scale, got.Exponent())
	}
	want := d.Truncate(Scale)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestMean(t *testing.T) {
	vs := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3)}
	if !Mean(vs).Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected mean 2, got %s", Mean(vs))
	}
	if !Mean(nil).IsZero() {
		t.Fatal("expected mean of empty slice to be zero")
	}
}

func TestSafeRatio(t *testing.T) {
	if !SafeRatio(decimal.NewFromInt(10), decimal.NewFromInt(4)).Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("expected 10/4 = 2.5, got %s", SafeRatio(decimal.NewFromInt(10), decimal.NewFromInt(4)))
	}
	if !SafeRatio(decimal.NewFromInt(10), decimal.Zero).IsZero() {
		t.Fatal("expected division by zero to return zero, not panic")
	}
}
