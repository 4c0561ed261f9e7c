package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/internal/logger"
)

func signHex(t *testing.T, body []byte, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyStripe(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"checkout.session.completed"}`)
	secret := "whsec_test"

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{
			name:      "valid signature",
			signature: signHex(t, body, secret),
			want:      true,
		},
		{
			name:      "wrong secret",
			signature: signHex(t, body, "whsec_other"),
			want:      false,
		},
		{
			name:      "tampered body",
			signature: signHex(t, []byte(`{"id":"evt_999"}`), secret),
			want:      false,
		},
		{
			name:      "odd length hex",
			signature: "abc",
			want:      false,
		},
		{
			name:      "non-hex signature",
			signature: "zzzz",
			want:      false,
		},
		{
			name:      "empty signature",
			signature: "",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyStripe(body, tt.signature, secret))
		})
	}
}

func TestVerifySendGrid(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicKey := base64.StdEncoding.EncodeToString(keyDER)

	body := []byte(`[{"email":"user@example.com","event":"delivered"}]`)
	timestamp := "1700000000"

	digest := sha256.Sum256(append([]byte(timestamp), body...))
	sigDER, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)
	signature := base64.StdEncoding.EncodeToString(sigDER)

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, VerifySendGrid(body, signature, publicKey, timestamp))
	})

	t.Run("wrong timestamp", func(t *testing.T) {
		assert.False(t, VerifySendGrid(body, signature, publicKey, "1700000001"))
	})

	t.Run("missing timestamp", func(t *testing.T) {
		assert.False(t, VerifySendGrid(body, signature, publicKey, ""))
	})

	t.Run("tampered body", func(t *testing.T) {
		assert.False(t, VerifySendGrid([]byte(`[]`), signature, publicKey, timestamp))
	})

	t.Run("malformed public key", func(t *testing.T) {
		assert.False(t, VerifySendGrid(body, signature, "not base64!!", timestamp))
	})

	t.Run("non-ecdsa public key", func(t *testing.T) {
		assert.False(t, VerifySendGrid(body, signature, base64.StdEncoding.EncodeToString([]byte("garbage")), timestamp))
	})

	t.Run("malformed signature", func(t *testing.T) {
		assert.False(t, VerifySendGrid(body, "not base64!!", publicKey, timestamp))
	})
}

func TestVerifyTwilio(t *testing.T) {
	authToken := "twilio_auth_token"
	requestURL := "https://example.com/?provider=twilio"
	params := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
		"To":            {"+15551234567"},
	}

	// Params concatenate sorted by key, each key immediately followed by its value.
	expectedInput := requestURL + "MessageSidSM123" + "MessageStatusdelivered" + "To+15551234567"
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(expectedInput))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, VerifyTwilio(requestURL, params, signature, authToken))
	})

	t.Run("wrong token", func(t *testing.T) {
		assert.False(t, VerifyTwilio(requestURL, params, signature, "other_token"))
	})

	t.Run("different url", func(t *testing.T) {
		assert.False(t, VerifyTwilio("https://example.com/other", params, signature, authToken))
	})

	t.Run("modified params", func(t *testing.T) {
		changed := url.Values{}
		for k, v := range params {
			changed[k] = v
		}
		changed.Set("MessageStatus", "failed")
		assert.False(t, VerifyTwilio(requestURL, changed, signature, authToken))
	})

	t.Run("no params", func(t *testing.T) {
		mac := hmac.New(sha1.New, []byte(authToken))
		mac.Write([]byte(requestURL))
		sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		assert.True(t, VerifyTwilio(requestURL, nil, sig, authToken))
	})
}

func TestVerifyGenericHMAC(t *testing.T) {
	body := []byte(`{"id":"gen-1"}`)
	secret := "generic-secret"

	t.Run("sha256", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		assert.True(t, VerifyGenericHMAC(body, sig, secret, SHA256))
		assert.False(t, VerifyGenericHMAC(body, sig, secret, SHA1))
	})

	t.Run("sha1", func(t *testing.T) {
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		assert.True(t, VerifyGenericHMAC(body, sig, secret, SHA1))
		assert.False(t, VerifyGenericHMAC(body, sig, secret, SHA256))
	})

	t.Run("unknown algorithm defaults to sha256", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		assert.True(t, VerifyGenericHMAC(body, sig, secret, Algorithm("md5")))
	})

	t.Run("malformed hex", func(t *testing.T) {
		assert.False(t, VerifyGenericHMAC(body, "nothex", secret, SHA256))
		assert.False(t, VerifyGenericHMAC(body, "abc", secret, SHA256))
	})
}

func TestVerifierFailOpen(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name           string
		requireSecrets bool
		secret         string
		signature      string
		wantOK         bool
		wantChecked    bool
	}{
		{
			name:        "no secret accepts unverified",
			secret:      "",
			signature:   signHex(t, body, "whsec_test"),
			wantOK:      true,
			wantChecked: false,
		},
		{
			name:        "no signature accepts unverified",
			secret:      "whsec_test",
			signature:   "",
			wantOK:      true,
			wantChecked: false,
		},
		{
			name:           "require secrets rejects missing secret",
			requireSecrets: true,
			secret:         "",
			signature:      signHex(t, body, "whsec_test"),
			wantOK:         false,
			wantChecked:    false,
		},
		{
			name:           "require secrets rejects missing signature",
			requireSecrets: true,
			secret:         "whsec_test",
			signature:      "",
			wantOK:         false,
			wantChecked:    false,
		},
		{
			name:        "valid signature verifies",
			secret:      "whsec_test",
			signature:   signHex(t, body, "whsec_test"),
			wantOK:      true,
			wantChecked: true,
		},
		{
			name:        "invalid signature rejected",
			secret:      "whsec_test",
			signature:   signHex(t, body, "whsec_other"),
			wantOK:      false,
			wantChecked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(tt.requireSecrets, logger.NopLogger())
			ok, checked := v.Verify(Request{
				Provider:  "stripe",
				Body:      body,
				Signature: tt.signature,
			}, tt.secret)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantChecked, checked)
		})
	}
}

func TestVerifierRoutesByProvider(t *testing.T) {
	body := []byte(`{"id":"gen-1"}`)
	secret := "generic-secret"
	v := NewVerifier(false, logger.NopLogger())

	// Unknown providers fall through to generic HMAC-SHA256.
	ok, checked := v.Verify(Request{
		Provider:  "acme",
		Body:      body,
		Signature: signHex(t, body, secret),
	}, secret)
	assert.True(t, ok)
	assert.True(t, checked)

	// A stripe-style hex signature is not valid base64 HMAC-SHA1 for twilio.
	ok, checked = v.Verify(Request{
		Provider:  "twilio",
		URL:       "https://example.com/",
		Signature: signHex(t, body, secret),
	}, secret)
	assert.False(t, ok)
	assert.True(t, checked)
}
