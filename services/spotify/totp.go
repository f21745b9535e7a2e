package spotify

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpSecret is the shared secret the upstream web player embeds for its
// token-exchange TOTP, base32 without padding. It is fixed by the
// upstream protocol, not operator-configurable.
const totpSecret = "GU2TANZRGQ2TQNJTGQ4DONBZHE2TSMRSGQ4DMMZQGMZDSMZUG4"

const totpPeriod = 30 // seconds per time step

// GenerateTOTP derives the 6-digit one-time code for the given upstream
// server time: counter = serverTime/30, HMAC-SHA1 dynamic truncation,
// left-zero-padded. Deterministic for a given 30-second window.
func GenerateTOTP(serverTimeSeconds int64) (string, error) {
	code, err := totp.GenerateCodeCustom(totpSecret, time.Unix(serverTimeSeconds, 0), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Only reachable if the embedded secret is corrupt
		return "", fmt.Errorf("failed to derive one-time code: %w", err)
	}
	return code, nil
}
