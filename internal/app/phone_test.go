package app

import (
	"errors"
	"testing"
)

func TestNormalizeMSISDN(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "250788123456", want: "250788123456"},
		{in: "+250 788 123 456", want: "250788123456"},
		{in: "00250788123456", want: "250788123456"},
		{in: "0788123456", want: "250788123456"},
		{in: "(0788) 123-456", want: "250788123456"},
		{in: "788123456", want: "250788123456"},
		{in: "46733123453", want: "46733123453"},
		{in: "", wantErr: true},
		{in: "12345", wantErr: true},
		{in: "0788abc456", wantErr: true},
		{in: "25078812345678901", wantErr: true},
		{in: "250+788123456", wantErr: true},
	}

	for _, tc := range cases {
		got, err := NormalizeMSISDN(tc.in, "250")
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidPhone) {
				t.Errorf("NormalizeMSISDN(%q) expected ErrInvalidPhone, got %q, %v", tc.in, got, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeMSISDN(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeMSISDN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("250788123456"); got != "********3456" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := maskPhone("12"); got != "****" {
		t.Fatalf("unexpected short mask %q", got)
	}
}
