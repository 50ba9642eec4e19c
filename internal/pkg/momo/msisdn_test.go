package momo

import "testing"

func TestNormalizeMSISDN(t *testing.T) {
	cases := map[string]string{
		"0788123456":       "250788123456",
		"788123456":        "250788123456",
		"250788123456":     "250788123456",
		"+250 788 123 456": "250788123456",
		"(078) 812-3456":   "250788123456",
		"12345":            "12345",
	}
	for in, want := range cases {
		if got := NormalizeMSISDN(in); got != want {
			t.Errorf("NormalizeMSISDN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocalMSISDN(t *testing.T) {
	if got := LocalMSISDN("+250731234567"); got != "731234567" {
		t.Fatalf("expected national number, got %q", got)
	}
}

func TestDetectCarrier(t *testing.T) {
	cases := map[string]Provider{
		"0788123456":   ProviderMTN,
		"250791234567": ProviderMTN,
		"0721234567":   ProviderAirtel,
		"0731234567":   ProviderAirtel,
		"0751234567":   ProviderUnknown,
		"0701234567":   ProviderUnknown,
		"12345":        ProviderUnknown,
		"":             ProviderUnknown,
	}
	for in, want := range cases {
		if got := DetectCarrier(in); got != want {
			t.Errorf("DetectCarrier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryResolvesByMSISDN(t *testing.T) {
	mtn := NewMTNGateway(MTNConfig{BaseURL: "http://mtn.invalid"})
	reg := NewRegistry(mtn, nil)

	gw, provider, err := reg.ForMSISDN("0788123456")
	if err != nil || provider != ProviderMTN || gw != Gateway(mtn) {
		t.Fatalf("expected mtn gateway, got %v %v %v", gw, provider, err)
	}

	if _, provider, err := reg.ForMSISDN("0751234567"); err != ErrUnknownCarrier || provider != ProviderUnknown {
		t.Fatalf("expected ErrUnknownCarrier, got %v %v", provider, err)
	}

	if _, _, err := reg.ForMSISDN("0721234567"); err == nil {
		t.Fatal("expected unavailable error for unconfigured airtel")
	}
}
