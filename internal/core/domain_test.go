package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-01-05", true},
		{"2024-12-31", true},
		{" 2024-01-05 ", true},
		{"2024-13-01", false},
		{"2024-02-30", false},
		{"05/01/2024", false},
		{"2024-1-5", false},
		{"", false},
	}
	for i, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error, got %v", i, d)
		}
	}
}

func TestDateMonthKey(t *testing.T) {
	if got := NewDate(2024, 1, 5).MonthKey(); got != "2024-01" {
		t.Fatalf("expected 2024-01, got %s", got)
	}
	if got := NewDate(2024, 11, 30).MonthKey(); got != "2024-11" {
		t.Fatalf("expected 2024-11, got %s", got)
	}
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{Start: NewDate(2024, 1, 1), End: NewDate(2024, 1, 31)}
	cases := []struct {
		d  Date
		in bool
	}{
		{NewDate(2024, 1, 1), true},
		{NewDate(2024, 1, 31), true},
		{NewDate(2024, 1, 15), true},
		{NewDate(2023, 12, 31), false},
		{NewDate(2024, 2, 1), false},
	}
	for i, tc := range cases {
		if got := r.Contains(tc.d); got != tc.in {
			t.Fatalf("case %d expected %v, got %v", i, tc.in, got)
		}
	}

	open := DateRange{}
	if !open.Contains(NewDate(1999, 6, 1)) {
		t.Fatalf("open range should contain any date")
	}
}

func TestDateRangeValidate(t *testing.T) {
	good := DateRange{Start: NewDate(2024, 1, 1), End: NewDate(2024, 1, 31)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	inverted := DateRange{Start: NewDate(2024, 2, 1), End: NewDate(2024, 1, 1)}
	if err := inverted.Validate(); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if err := (DateRange{End: NewDate(2024, 1, 1)}).Validate(); err == nil {
		t.Fatalf("expected error for missing start")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("expense"); err != nil || k != Expense {
		t.Fatalf("expected expense, got %v %v", k, err)
	}
	if k, err := ParseKind("income"); err != nil || k != Income {
		t.Fatalf("expected income, got %v %v", k, err)
	}
	if _, err := ParseKind("transfer"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestValidatePassword(t *testing.T) {
	good := []string{"hunter22x", "abcd1234", "A1bcdefg"}
	for _, pw := range good {
		if err := ValidatePassword(pw); err != nil {
			t.Fatalf("expected %q to pass, got %v", pw, err)
		}
	}
	bad := []string{"", "short1a", "12345678", "abcdefgh"}
	for _, pw := range bad {
		if err := ValidatePassword(pw); err == nil {
			t.Fatalf("expected %q to fail", pw)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		CategoryID: 1,
		Kind:       Expense,
		Amount:     Money{Cents: 4000},
		Date:       NewDate(2024, 1, 5),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{CategoryID: 1, Kind: Expense, Amount: Money{Cents: 4000}, Date: Date{Time: time.Time{}}},
		{CategoryID: 1, Kind: Expense, Amount: Money{Cents: 0}, Date: NewDate(2024, 1, 5)},
		{CategoryID: 1, Kind: "transfer", Amount: Money{Cents: 1}, Date: NewDate(2024, 1, 5)},
		{CategoryID: 0, Kind: Expense, Amount: Money{Cents: 1}, Date: NewDate(2024, 1, 5)},
	}
	for i, tr := range bads {
		if err := tr.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Name: "Food", Kind: Expense}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Name: "  ", Kind: Expense}).Validate(); err == nil {
		t.Fatalf("expected error for blank name")
	}
	if err := (Category{Name: "Food", Kind: "other"}).Validate(); err == nil {
		t.Fatalf("expected error for bad kind")
	}
}
