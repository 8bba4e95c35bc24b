package money

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "whole dollars", input: "30000", want: "30000.00"},
		{name: "cents", input: "1999.99", want: "1999.99"},
		{name: "one fractional digit", input: "12.5", want: "12.50"},
		{name: "negative", input: "-42.10", want: "-42.10"},
		{name: "trailing zero beyond cents", input: "10.500", want: "10.50"},
		{name: "surrounding whitespace", input: "  7.00 ", want: "7.00"},
		{name: "sub-cent precision", input: "10.005", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "ten dollars", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.input, got)
				}
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.String())
			}
		})
	}
}

func TestMoney_ArithmeticIsExact(t *testing.T) {
	// 0.1 + 0.2 is the classic binary float failure.
	sum := MustParse("0.10").Add(MustParse("0.20"))
	if !sum.Equal(MustParse("0.30")) {
		t.Errorf("expected 0.30, got %s", sum.Exact())
	}

	// Splitting keeps sub-cent precision until rounded.
	third := MustParse("100").Div(3)
	if third.Exact() == "33.33" {
		t.Errorf("expected unrounded intermediate, got %s", third.Exact())
	}
	if third.Round().String() != "33.33" {
		t.Errorf("expected 33.33 after rounding, got %s", third.Round().String())
	}
	if !third.Mul(3).Round().Equal(MustParse("100")) {
		t.Errorf("expected 100.00 after recombining, got %s", third.Mul(3).Round().String())
	}
}

func TestMoney_RoundHalfUp(t *testing.T) {
	tests := []struct {
		amount string
		rate   string
		want   string
	}{
		{amount: "100.00", rate: "0.08875", want: "8.88"},
		{amount: "123.45", rate: "0.0725", want: "8.95"},
		{amount: "99.99", rate: "0.20", want: "20.00"},
		{amount: "0.10", rate: "0.05", want: "0.01"},
		{amount: "0.09", rate: "0.05", want: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.amount+"x"+tt.rate, func(t *testing.T) {
			got := MustParse(tt.amount).MulRate(MustRate(tt.rate)).Round()
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.String())
			}
		})
	}
}

func TestMoney_MinMaxClamp(t *testing.T) {
	a := MustParse("5")
	b := MustParse("-3")

	if !Min(a, b).Equal(b) {
		t.Errorf("expected min -3, got %s", Min(a, b))
	}
	if !Max(a, b).Equal(a) {
		t.Errorf("expected max 5, got %s", Max(a, b))
	}
	if !b.ClampZero().IsZero() {
		t.Errorf("expected clamp to zero, got %s", b.ClampZero())
	}
	if !a.ClampZero().Equal(a) {
		t.Errorf("expected positive value untouched, got %s", a.ClampZero())
	}
	if !Sum(a, b, FromCents(50)).Equal(MustParse("2.50")) {
		t.Errorf("expected sum 2.50, got %s", Sum(a, b, FromCents(50)))
	}
}

func TestMoney_JSON(t *testing.T) {
	type payload struct {
		Price Money `json:"price"`
		Rate  Rate  `json:"rate"`
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"price":"30000.00","rate":"0.0725"}`), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Price.Equal(FromDollars(30000)) {
		t.Errorf("expected price 30000, got %s", p.Price)
	}
	if !p.Rate.Equal(MustRate("0.0725")) {
		t.Errorf("expected rate 0.0725, got %s", p.Rate)
	}

	out, err := json.Marshal(payload{Price: MustParse("1812.5"), Rate: MustRate("0.0725")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"price":"1812.50","rate":"0.0725"}` {
		t.Errorf("unexpected encoding: %s", out)
	}

	// Bare JSON numbers are refused.
	if err := json.Unmarshal([]byte(`{"price":30000.10}`), &p); err == nil {
		t.Error("expected error for numeric amount")
	}
	if err := json.Unmarshal([]byte(`{"rate":0.07}`), &p); err == nil {
		t.Error("expected error for numeric rate")
	}
}

func TestRate_Conversions(t *testing.T) {
	r, err := ParsePercent("7.25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Equal(MustRate("0.0725")) {
		t.Errorf("expected 0.0725, got %s", r)
	}
	if r.Percent().String() != "7.25" {
		t.Errorf("expected 7.25 percent, got %s", r.Percent().String())
	}

	scaled := MustRate("0.00125").Scale(2400)
	if !scaled.Equal(MustRate("3")) {
		t.Errorf("expected 3, got %s", scaled)
	}

	monthly := MustRate("0.06").Per(12)
	if !monthly.Equal(MustRate("0.005")) {
		t.Errorf("expected 0.005, got %s", monthly)
	}

	total := SumRates(MustRate("0.0725"), MustRate("0.01"), MustRate("0.0025"))
	if !total.Equal(MustRate("0.085")) {
		t.Errorf("expected 0.085, got %s", total)
	}
}

func TestRate_Sign(t *testing.T) {
	tests := []struct {
		in                  string
		zero, neg, positive bool
	}{
		{"0", true, false, false},
		{"0.0000", true, false, false},
		{"0.55", false, false, true},
		{"0.00001", false, false, true},
		{"-0.01", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r := MustRate(tt.in)
			if r.IsZero() != tt.zero {
				t.Errorf("IsZero: got %v, want %v", r.IsZero(), tt.zero)
			}
			if r.IsNegative() != tt.neg {
				t.Errorf("IsNegative: got %v, want %v", r.IsNegative(), tt.neg)
			}
			if r.IsPositive() != tt.positive {
				t.Errorf("IsPositive: got %v, want %v", r.IsPositive(), tt.positive)
			}
		})
	}
}
