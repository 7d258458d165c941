package strategies

import (
	"math/big"
	"strconv"
	"strings"
)

// formatUnits converts an integer amount with the given decimals to the
// nearest float64, going through the exact decimal text.
func formatUnits(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	digits := new(big.Int).Abs(amount).String()
	if d := int(decimals); d > 0 {
		if len(digits) <= d {
			digits = strings.Repeat("0", d-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-d] + "." + digits[len(digits)-d:]
	}
	if amount.Sign() < 0 {
		digits = "-" + digits
	}
	f, _ := strconv.ParseFloat(digits, 64)
	return f
}
