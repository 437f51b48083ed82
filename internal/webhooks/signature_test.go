package webhooks

import (
	"strings"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	secrets := []string{"s3cret", GenerateSecret(), ""}
	payloads := [][]byte{[]byte(`{"id":"evt1"}`), []byte(""), []byte("plain text body")}
	for _, sec := range secrets {
		for _, body := range payloads {
			hdr := FormatSignatureHeader(sec, body)
			if !strings.HasPrefix(hdr, "sha256=") {
				t.Fatalf("header missing prefix: %q", hdr)
			}
			if !Verify(sec, body, hdr) {
				t.Fatalf("verify failed for secret=%q body=%q", sec, body)
			}
			// bare digest without the prefix must also verify
			if !Verify(sec, body, Sign(sec, body)) {
				t.Fatalf("verify failed without prefix")
			}
		}
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	body := []byte(`{"orderId":"o1","qty":3}`)
	hdr := FormatSignatureHeader("secret", body)
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if Verify("secret", mutated, hdr) {
			t.Fatalf("tampered byte %d accepted", i)
		}
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	body := []byte(`{"orderId":"o1"}`)
	sig := Sign("secret", body)
	for i := range sig {
		flip := byte('0')
		if sig[i] == '0' {
			flip = '1'
		}
		mutated := sig[:i] + string(flip) + sig[i+1:]
		if Verify("secret", body, mutated) {
			t.Fatalf("tampered signature char %d accepted", i)
		}
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	body := []byte("x")
	for _, sig := range []string{"", "nothex", "sha256=", "sha256=zz", "sha256=abc"} {
		if Verify("secret", body, sig) {
			t.Fatalf("malformed signature %q accepted", sig)
		}
	}
	if Verify("wrong", body, FormatSignatureHeader("secret", body)) {
		t.Fatalf("wrong secret accepted")
	}
}

func TestGenerateSecret(t *testing.T) {
	a := GenerateSecret()
	b := GenerateSecret()
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("expected 64 hex chars, got %d/%d", len(a), len(b))
	}
	if a == b {
		t.Fatalf("two secrets identical")
	}
}
