package account

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/socportal/jumuiya/core"
)

var (
	salt = []byte("jumuiya.core.account.token_gen")

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// resetTokenGenerator issues single-purpose password reset tokens.
// A token becomes invalid once the password or the last login changes.
type resetTokenGenerator struct {
	secret  []byte
	timeout time.Duration
	nowFunc func() time.Time
}

func newResetTokenGenerator(secret string, timeout time.Duration) *resetTokenGenerator {
	return &resetTokenGenerator{secret: []byte(secret), timeout: timeout, nowFunc: core.NowFunc}
}

// EncodeUID base64 encodes given Account ID
func EncodeUID(acc Account) string {
	return base64.RawURLEncoding.EncodeToString([]byte(acc.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

func (g *resetTokenGenerator) makeToken(acc Account) string {
	return g.makeTokenWithTimestamp(acc, numDaysSince2001(g.nowFunc()))
}

func (g *resetTokenGenerator) verifyToken(acc Account, token string) error {
	tsB32, _, ok := strings.Cut(token, "-")
	if !ok {
		return errInvalidToken
	}
	data, err := b32.DecodeString(tsB32)
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(g.makeTokenWithTimestamp(acc, ts)), []byte(token)) == 0 {
		return errInvalidToken
	}

	if (numDaysSince2001(g.nowFunc()) - ts) > int(g.timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func (g *resetTokenGenerator) makeTokenWithTimestamp(acc Account, ts int) string {
	tsB32 := b32.EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, g.sign(hashValue(acc, ts)))
}

func (g *resetTokenGenerator) sign(val []byte) string {
	key := sha256.Sum256(append(append([]byte{}, salt...), g.secret...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(acc Account, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(acc.ID)
	val.Write(acc.PasswordHash)
	if !acc.LastLogin.IsZero() {
		val.WriteString(acc.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
