package pathselect

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// randomIndex returns a uniform random index in [0, n) using a CSPRNG, so
// repeated path selections over the same pool usually differ (§8).
func randomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("pathselect: randomIndex: n must be positive, got %d", n)
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("pathselect: random index: %w", err)
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(n)), nil
}

func parseIP(address string) net.IP {
	return net.ParseIP(address)
}
