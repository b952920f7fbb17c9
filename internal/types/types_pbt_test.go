package types

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Normalizing any 20-byte address yields a lowercase value that round-trips to the same bytes
func TestNormalizeAddressProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("normalization is lowercase and lossless", prop.ForAll(
		func(raw []byte) bool {
			addr := common.BytesToAddress(raw)
			got, ok := NormalizeAddress(addr.Hex())
			if !ok {
				return false
			}
			return got == strings.ToLower(got) && common.HexToAddress(got) == addr
		},
		gen.SliceOfN(20, gen.UInt8()),
	))

	properties.Property("normalization is idempotent", prop.ForAll(
		func(raw []byte) bool {
			once, _ := NormalizeAddress(common.BytesToAddress(raw).Hex())
			twice, ok := NormalizeAddress(once)
			return ok && once == twice
		},
		gen.SliceOfN(20, gen.UInt8()),
	))

	properties.TestingRun(t)
}
