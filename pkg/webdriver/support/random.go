// pkg/webdriver/support/random.go
package support

import (
	"fmt"
	"math/rand/v2"

	"github.com/brit/playwrightium/api/schemas"
)

// RandomIntExcept draws from [start, end) until it gets a value other than
// except, giving up after maxTries draws.
func RandomIntExcept(rng *rand.Rand, start, end, except, maxTries int) (int, error) {
	if end <= start {
		return 0, fmt.Errorf("%w: empty range [%d, %d)", schemas.ErrInvalidArgument, start, end)
	}
	if end-start == 1 && start == except {
		return 0, fmt.Errorf("%w: range [%d, %d) holds only %d", schemas.ErrInvalidArgument, start, end, except)
	}
	for i := 0; i < maxTries; i++ {
		if n := start + rng.IntN(end-start); n != except {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: no value other than %d after %d tries", schemas.ErrInvalidArgument, except, maxTries)
}
