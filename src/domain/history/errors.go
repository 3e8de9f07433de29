package history

import (
	"fmt"

	"github.com/sandai/pkbattle/src/domain/shared"
)

var ErrHistoryNotFound = fmt.Errorf("%w: battle history not found", shared.ErrNotFound)
