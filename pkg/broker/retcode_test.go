package broker

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		code int
		want RetcodeClass
	}{
		{"done", RetcodeDone, ClassSuccess},
		{"partial fill", RetcodeDonePartial, ClassSuccess},
		{"requote", RetcodeRequote, ClassRetryable},
		{"price changed", RetcodePriceChanged, ClassRetryable},
		{"price off", RetcodePriceOff, ClassRetryable},
		{"invalid fill mode", RetcodeInvalidFill, ClassRetryable},
		{"timeout", RetcodeTimeout, ClassRetryable},
		{"no connection", RetcodeConnection, ClassRetryable},
		{"too many requests", RetcodeTooManyRequests, ClassRetryable},
		{"locked", RetcodeLocked, ClassRetryable},
		{"rejected", RetcodeReject, ClassTerminal},
		{"no money", RetcodeNoMoney, ClassTerminal},
		{"market closed", RetcodeMarketClosed, ClassTerminal},
		{"invalid stops", RetcodeInvalidStops, ClassTerminal},
		{"trade disabled", RetcodeTradeDisabled, ClassTerminal},
		{"position closed", RetcodePositionClosed, ClassTerminal},
		{"unknown code", 99999, ClassUnknown},
		{"zero", 0, ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.code); got != tc.want {
				t.Fatalf("Classify(%d) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestRetcodeMessage(t *testing.T) {
	if msg := RetcodeMessage(RetcodeRequote); msg != "Requote" {
		t.Fatalf("unexpected message: %q", msg)
	}
	if msg := RetcodeMessage(42); msg != "Unknown retcode: 42" {
		t.Fatalf("unexpected fallback message: %q", msg)
	}
}

func TestOrderResultOK(t *testing.T) {
	var nilRes *OrderResult
	if nilRes.OK() {
		t.Fatal("nil result must not be OK")
	}
	if !(&OrderResult{Retcode: RetcodeDone}).OK() {
		t.Fatal("done must be OK")
	}
	if !(&OrderResult{Retcode: RetcodeDonePartial}).OK() {
		t.Fatal("partial fill must be OK")
	}
	if (&OrderResult{Retcode: RetcodeRequote}).OK() {
		t.Fatal("requote must not be OK")
	}
}
