package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1", -100, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("%q expected ErrInvalidArgument, got %v", tc.in, err)
			}
		}
	}
}

func TestParseAmountRejectsNonPositive(t *testing.T) {
	for _, in := range []string{"0", "-3", "0.001"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", in, err)
		}
	}
	m, err := ParseAmount("45.99")
	if err != nil || m.Cents != 4599 {
		t.Fatalf("expected 4599, got %d (err=%v)", m.Cents, err)
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		4599:  "45.99",
		-1250: "-12.50",
	}
	for cents, want := range cases {
		if got := Cents(cents).String(); got != want {
			t.Errorf("Cents(%d).String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Cents(12345)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"amount":"123.45"}` {
		t.Fatalf("unexpected json: %s", b)
	}

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"7,5","b":12.34}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.A.Cents != 750 || in.B.Cents != 1234 {
		t.Fatalf("unexpected values: %+v", in)
	}

	if err := json.Unmarshal([]byte(`{"a":"nope"}`), &in); err == nil {
		t.Fatalf("expected error for malformed amount")
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a, b := Cents(1000), Cents(250)
	if a.Sub(b).Cents != 750 || a.Add(b).Cents != 1250 || b.Neg().Cents != -250 {
		t.Fatalf("arithmetic mismatch")
	}
	if !a.GreaterThan(b) || b.GreaterThan(a) {
		t.Fatalf("comparison mismatch")
	}
	if !Cents(-1).IsNegative() || !Cents(0).IsZero() || !Cents(1).IsPositive() {
		t.Fatalf("sign predicates mismatch")
	}
}

func TestMoneyCheckedAdd(t *testing.T) {
	const max = int64(^uint64(0) >> 1)
	tests := []struct {
		name    string
		a, b    int64
		want    int64
		wantErr bool
	}{
		{"plain", 10_00, 2_50, 12_50, false},
		{"negative delta", 10_00, -12_50, -2_50, false},
		{"up to max", max - 1, 1, max, false},
		{"past max", 1 << 62, 1 << 62, 0, true},
		{"past min", -max, -2, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cents(tt.a).CheckedAdd(Cents(tt.b))
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckedAdd() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("error %v is not an invalid argument", err)
				}
				return
			}
			if got.Cents != tt.want {
				t.Errorf("CheckedAdd() = %d, want %d", got.Cents, tt.want)
			}
		})
	}
}
