package order

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateNumber produces a short, human-presentable order number of the form
// PREFIX-<base36 timestamp>-<4 random base36 chars>, uppercased, e.g.
// BB-LK3J9A1-X7QM. Collisions are overwhelmingly unlikely but not impossible;
// the orders table's unique constraint is the actual guarantee, and a
// collision surfaces as ErrNumberConflict for the caller to retry.
func GenerateNumber(prefix string) string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))

	var buf [4]byte
	_, _ = rand.Read(buf[:])
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}

	return strings.ToUpper(prefix) + "-" + ts + "-" + string(suffix)
}
