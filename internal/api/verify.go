package api

import (
    "bytes"
    "io"
    "net/http"

    "stocklane/internal/webhooks"
)

// maxInboundBody caps how much of a provider callback we read.
const maxInboundBody = 1 << 20

// RequireSignature verifies the HMAC signature of an inbound webhook over
// the exact raw body before the handler runs. Signature is the auth here;
// there is no other credential on provider callbacks.
func RequireSignature(secret string, next http.HandlerFunc) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        sig := r.Header.Get("X-Stocklane-Signature")
        if sig == "" {
            sig = r.Header.Get("X-Signature")
        }
        if sig == "" {
            writeProblem(w, http.StatusUnauthorized, "Missing signature header", "", r.URL.Path)
            return
        }
        body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody))
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Read body failed", err.Error(), r.URL.Path)
            return
        }
        _ = r.Body.Close()
        if !webhooks.Verify(secret, body, sig) {
            writeProblem(w, http.StatusUnauthorized, "Invalid signature", "", r.URL.Path)
            return
        }
        r.Body = io.NopCloser(bytes.NewReader(body))
        next(w, r)
    }
}
