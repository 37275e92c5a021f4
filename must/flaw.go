package must

import (
	"errors"
	"fmt"

	"github.com/xeptore/flaw/v8"
)

// BeFlaw returns the flaw carried by err. Callers use it only on errors
// already checked with errutil.IsFlaw, so a mismatch is a programming error.
func BeFlaw(err error) *flaw.Flaw {
	var f *flaw.Flaw
	if !errors.As(err, &f) {
		panic(fmt.Sprintf("must: %T is not a flaw: %v", err, err))
	}
	return f
}
