package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const secret = "sk_test_secret"

func TestVerifyValid(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"id":"evt1","reference":"ord_1"}}`)

	require.True(t, Verify(body, secret, Sign(body, secret)))
	require.True(t, Verify(body, secret, strings.ToUpper(Sign(body, secret))))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"amount":500000}}`)
	sig := Sign(body, secret)

	tampered := []byte(`{"event":"charge.success","data":{"amount":500001}}`)
	require.False(t, Verify(tampered, secret, sig))

	// whitespace changes the digest even though the JSON is equivalent
	reformatted := []byte(`{"event": "charge.success", "data": {"amount": 500000}}`)
	require.False(t, Verify(reformatted, secret, sig))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	body := []byte(`{"event":"charge.failed"}`)
	sig := []byte(Sign(body, secret))
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}

	require.False(t, Verify(body, secret, string(sig)))
	require.False(t, Verify(body, "other-secret", Sign(body, secret)))
}

func TestVerifyMalformedInput(t *testing.T) {
	body := []byte(`{}`)

	cases := []struct {
		name   string
		secret string
		sig    string
	}{
		{name: "empty signature", secret: secret, sig: ""},
		{name: "empty secret", secret: "", sig: Sign(body, "")},
		{name: "not hex", secret: secret, sig: "zz-not-hex"},
		{name: "odd length", secret: secret, sig: "abc"},
		{name: "truncated", secret: secret, sig: Sign(body, secret)[:64]},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				require.False(t, Verify(body, tc.secret, tc.sig))
			})
		})
	}

	require.NotPanics(t, func() { Verify(nil, secret, Sign(nil, secret)) })
}
