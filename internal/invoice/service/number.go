package service

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const invoiceNumberPrefix = "PINV"

// generateInvoiceNumber yields PREFIX-YYYYMM-NNNN. The random suffix keeps
// numbers unguessable; uniqueness is enforced by the index with retry.
func generateInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("%s-%04d%02d-%04d", invoiceNumberPrefix, now.Year(), int(now.Month()), rand.IntN(10000))
}
