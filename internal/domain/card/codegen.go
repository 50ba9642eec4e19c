package card

import (
	"crypto/rand"
	"fmt"
)

// No 0/O or 1/I. 32 symbols divide 256 evenly.
const dashboardAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const dashboardGroupLength = 4

// generateDashboardCode returns a code like "K7QP-3MXA"
func generateDashboardCode() (string, error) {
	b := make([]byte, dashboardGroupLength*2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate dashboard code: %w", err)
	}
	for i := range b {
		b[i] = dashboardAlphabet[int(b[i])%len(dashboardAlphabet)]
	}
	return string(b[:dashboardGroupLength]) + "-" + string(b[dashboardGroupLength:]), nil
}
