package retry_test

import (
	"errors"
	"testing"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/retry"
)

func TestClassifyError_ExplicitClassWins(t *testing.T) {
	t.Parallel()

	// A message that looks transient but is explicitly permanent.
	err := retry.Permanent(errors.New("timeout talking to billing"))
	class, recognized := retry.ClassifyError(err)
	if !recognized {
		t.Fatal("explicitly classified error not recognized")
	}
	if class != retry.ClassPermanent {
		t.Fatalf("class = %q, want permanent", class)
	}
}

func TestClassifyError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("upstream down")
	wrapped := retry.Transient(inner)
	if !errors.Is(wrapped, inner) {
		t.Fatal("errors.Is should see through ClassifiedError")
	}
}

func TestClassifyMessage_Heuristics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		msg        string
		want       retry.Class
		recognized bool
	}{
		{"timeout", "request timeout after 30s", retry.ClassTransient, true},
		{"connection reset", "read: connection reset by peer", retry.ClassTransient, true},
		{"rate limited", "429 too many requests", retry.ClassTransient, true},
		{"mapping", "mapping failed for column sku", retry.ClassValidation, true},
		{"schema", "schema mismatch in supplier feed", retry.ClassValidation, true},
		{"auth", "401 unauthorized", retry.ClassPermanent, true},
		{"unknown", "something inexplicable happened", retry.ClassPermanent, false},
		// Messages persisted from classified errors keep their class
		// even when nothing else in the text matches a marker.
		{"persisted transient", "transient: upstream degraded", retry.ClassTransient, true},
		{"persisted validation", "validation: missing ean column", retry.ClassValidation, true},
		{"persisted permanent", "permanent: merchant deactivated the integration", retry.ClassPermanent, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, recognized := retry.ClassifyMessage(tt.msg)
			if class != tt.want || recognized != tt.recognized {
				t.Errorf("ClassifyMessage(%q) = (%q, %v), want (%q, %v)",
					tt.msg, class, recognized, tt.want, tt.recognized)
			}
		})
	}
}

func TestDecide_Policy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		msg        string
		retryCount int
		max        int
		want       retry.Class
	}{
		{"transient first attempt", "connection refused", 0, 3, retry.ClassTransient},
		{"transient under ceiling", "connection refused", 2, 3, retry.ClassTransient},
		{"transient at ceiling", "connection refused", 3, 3, retry.ClassPermanent},
		{"validation gets one free retry", "mapping failed", 0, 3, retry.ClassValidation},
		{"validation second occurrence permanent", "mapping failed", 1, 3, retry.ClassPermanent},
		{"auth never retried", "401 unauthorized", 0, 3, retry.ClassPermanent},
		{"unknown gets one retry", "weird error", 0, 3, retry.ClassTransient},
		{"unknown permanent after first retry", "weird error", 1, 3, retry.ClassPermanent},
		// The persisted class prefix must drive the decision: an
		// explicitly transient failure retries for as long as budget
		// remains, and an explicitly permanent one never retries.
		{"persisted transient under ceiling", "transient: upstream degraded", 1, 3, retry.ClassTransient},
		{"persisted transient deep into budget", "transient: upstream degraded", 2, 3, retry.ClassTransient},
		{"persisted permanent never retried", "permanent: merchant deactivated the integration", 0, 3, retry.ClassPermanent},
		{"persisted validation free retry only", "validation: missing ean column", 1, 3, retry.ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retry.Decide(tt.msg, tt.retryCount, tt.max)
			if got != tt.want {
				t.Errorf("Decide(%q, %d, %d) = %q, want %q",
					tt.msg, tt.retryCount, tt.max, got, tt.want)
			}
		})
	}
}
