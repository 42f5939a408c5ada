package metadata

import (
	"fmt"

	"github.com/fortiblox/x1-metadata/pkg/svm"
)

// Program-specific errors. Both surface as invalid account data.
var (
	// ErrNotExecutableAccount is returned when the program account is not executable.
	ErrNotExecutableAccount = fmt.Errorf("%w: program account is not executable", svm.ErrInvalidAccountData)

	// ErrImmutableMetadata is returned when modifying a frozen record.
	ErrImmutableMetadata = fmt.Errorf("%w: metadata is immutable", svm.ErrInvalidAccountData)
)
