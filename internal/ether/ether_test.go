package ether

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
)

func TestParseEtherOne(t *testing.T) {
	wei, err := ParseEther("1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if wei.Cmp(want) != 0 {
		t.Fatalf("expected %s got %s", want, wei)
	}
}

func TestParseEtherRejects(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"", ErrEmptyAmount},
		{"   ", ErrEmptyAmount},
		{"abc", ErrInvalidAmount},
		{"1e3", ErrInvalidAmount},
		{"0", ErrNonPositive},
		{"0.0", ErrNonPositive},
		{"-1", ErrNonPositive},
		{"0.0000000000000000001", ErrTooManyDecimal},
	}
	for _, tc := range cases {
		if _, err := ParseEther(tc.in); !errors.Is(err, tc.want) {
			t.Errorf("ParseEther(%q): expected %v got %v", tc.in, tc.want, err)
		}
	}
}

func TestParseEtherAllowZero(t *testing.T) {
	wei, err := ParseEtherAllowZero("0")
	if err != nil || wei.Sign() != 0 {
		t.Fatalf("expected zero, got %v %v", wei, err)
	}
	if _, err := ParseEtherAllowZero("-0.5"); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, in := range []string{"1", "0.5", "1.25", "0.000000000000000001", "123456.789", "1000000"} {
		wei, err := ParseEther(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got := FormatEther(wei); got != in {
			t.Errorf("round trip %q -> %s -> %q", in, wei, got)
		}
	}
}

func TestFormatEther(t *testing.T) {
	if got := FormatEther(nil); got != "0" {
		t.Fatalf("nil: %q", got)
	}
	if got := FormatEther(big.NewInt(0)); got != "0" {
		t.Fatalf("zero: %q", got)
	}
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := FormatEther(v); got != "1.5" {
		t.Fatalf("1.5: %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList("0xAAA, 0xBBB")
	if !reflect.DeepEqual(got, []string{"0xAAA", "0xBBB"}) {
		t.Fatalf("unexpected split: %#v", got)
	}
	got = SplitList("a,, b ")
	if !reflect.DeepEqual(got, []string{"a", "", "b"}) {
		t.Fatalf("empty elements must be kept: %#v", got)
	}
	if JoinList([]string{"a", "b"}) != "a, b" {
		t.Fatalf("unexpected join")
	}
}
