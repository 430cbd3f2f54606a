package otp

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30 // seconds per time step
	totpSkew   = 1  // accepted steps of clock drift on either side
	qrSize     = 200
)

// Enrollment is the result of generating a fresh TOTP secret: the
// base32 secret itself and the otpauth:// provisioning URI an
// authenticator app can import.
type Enrollment struct {
	Secret string
	URI    string
}

// TOTP generates and verifies time-based one-time passwords.  The
// issuer name is embedded in provisioning URIs so authenticator apps
// label the entry.
type TOTP struct {
	Issuer string
}

// GenerateSecret produces a new shared secret labelled with the
// account email.
func (p TOTP) GenerateSecret(accountEmail string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.Issuer,
		AccountName: accountEmail,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// ProvisioningImage renders a provisioning URI as a scannable QR code
// and returns it as a base64 PNG data URI.  Pure computation, no side
// effects.
func ProvisioningImage(uri string) (string, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", err
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyCode checks a submitted code against a shared secret at the
// current time step, tolerating one step of drift on either side.  It
// never returns an error: any internal failure, including a malformed
// secret, reads as a plain mismatch.
func (p TOTP) VerifyCode(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}
