package activity

import (
	"fmt"

	"github.com/sandai/pkbattle/src/domain/shared"
)

var ErrDispatchFailed = fmt.Errorf("%w: failed to dispatch activity events", shared.ErrDependency)
