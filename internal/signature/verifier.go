package signature

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"net/url"
	"sort"
	"strings"

	"hookgate/internal/constants"
	"hookgate/internal/logger"
	"hookgate/pkg/metrics"
)

// Algorithm selects the digest for the generic HMAC scheme.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
)

// Request carries everything a provider scheme needs to check authenticity.
type Request struct {
	Provider  string
	Body      []byte
	URL       string
	FormData  url.Values
	Signature string
	Timestamp string
}

// Verifier checks webhook authenticity per provider scheme. Verification is
// fail-open: a request with no configured secret or no signature header is
// accepted unverified, unless requireSecrets is set.
type Verifier struct {
	requireSecrets bool
	logger         logger.Logger
}

func NewVerifier(requireSecrets bool, log logger.Logger) *Verifier {
	return &Verifier{
		requireSecrets: requireSecrets,
		logger:         log,
	}
}

// Verify returns whether the request may proceed and whether a cryptographic
// check actually ran. All scheme failures, including malformed signatures or
// keys, yield false rather than an error.
func (v *Verifier) Verify(req Request, secret string) (ok bool, checked bool) {
	if secret == "" || req.Signature == "" {
		if v.requireSecrets {
			metrics.IncSignatureVerification(req.Provider, "rejected_unverifiable")
			return false, false
		}
		metrics.IncSignatureVerification(req.Provider, "skipped")
		return true, false
	}

	var valid bool
	switch req.Provider {
	case constants.ProviderStripe:
		valid = VerifyStripe(req.Body, req.Signature, secret)
	case constants.ProviderSendGrid:
		valid = VerifySendGrid(req.Body, req.Signature, secret, req.Timestamp)
	case constants.ProviderTwilio:
		valid = VerifyTwilio(req.URL, req.FormData, req.Signature, secret)
	default:
		valid = VerifyGenericHMAC(req.Body, req.Signature, secret, SHA256)
	}

	if valid {
		metrics.IncSignatureVerification(req.Provider, "valid")
	} else {
		metrics.IncSignatureVerification(req.Provider, "invalid")
	}
	return valid, true
}

// VerifyStripe checks a hex-encoded HMAC-SHA256 of the raw body.
func VerifyStripe(body []byte, signature, secret string) bool {
	return verifyHMACHex(sha256.New, body, signature, secret)
}

// VerifySendGrid checks an ECDSA P-256 signature over timestamp+body. The
// signature is base64 ASN.1, the key a base64 SPKI public key.
func VerifySendGrid(body []byte, signature, publicKey, timestamp string) bool {
	if timestamp == "" {
		return false
	}

	keyDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKey))
	if err != nil {
		return false
	}

	parsed, err := x509.ParsePKIXPublicKey(keyDER)
	if err != nil {
		return false
	}

	ecKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	digest := sha256.Sum256(append([]byte(timestamp), body...))
	return ecdsa.VerifyASN1(ecKey, digest[:], sig)
}

// VerifyTwilio checks a base64 HMAC-SHA1 over the full request URL followed by
// the sorted form parameters, each key immediately followed by its value.
func VerifyTwilio(requestURL string, params url.Values, signature, authToken string) bool {
	var buf strings.Builder
	buf.WriteString(requestURL)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, val := range params[k] {
			buf.WriteString(k)
			buf.WriteString(val)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(buf.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// Constant-time compare; the upstream scheme calls for plain equality but
	// that leaks timing.
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// VerifyGenericHMAC checks a hex-encoded HMAC of the raw body using the given
// digest.
func VerifyGenericHMAC(body []byte, signature, secret string, algo Algorithm) bool {
	switch algo {
	case SHA1:
		return verifyHMACHex(sha1.New, body, signature, secret)
	default:
		return verifyHMACHex(sha256.New, body, signature, secret)
	}
}

func verifyHMACHex(newHash func() hash.Hash, body []byte, signature, secret string) bool {
	// Odd-length or non-hex signatures fail here, never panic.
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}
