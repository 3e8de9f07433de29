package battle

import (
	"fmt"

	"github.com/sandai/pkbattle/src/domain/shared"
)

var (
	ErrBattleNotFound    = fmt.Errorf("%w: battle not found", shared.ErrNotFound)
	ErrInviteNotFound    = fmt.Errorf("%w: invite not found", shared.ErrNotFound)
	ErrIllegalTransition = fmt.Errorf("%w: illegal battle transition", shared.ErrInvalidState)
	ErrNotActive         = fmt.Errorf("%w: battle not active", shared.ErrInvalidState)
	ErrNotWaiting        = fmt.Errorf("%w: battle not waiting", shared.ErrInvalidState)
	ErrRoomBusy          = fmt.Errorf("%w: room already in a battle", shared.ErrInvalidState)
	ErrInviteNotPending  = fmt.Errorf("%w: invite not pending", shared.ErrInvalidState)
	ErrInviteExpired     = fmt.Errorf("%w: invite expired", shared.ErrExpired)
	ErrAlreadySettled    = fmt.Errorf("%w: battle already settled", shared.ErrInvalidState)
	ErrHistoryRecorded   = fmt.Errorf("%w: battle history already recorded", shared.ErrInvalidState)
	ErrSameRoom          = fmt.Errorf("%w: a room cannot battle itself", shared.ErrValidation)
	ErrUnknownRoom       = fmt.Errorf("%w: room is not part of this battle", shared.ErrValidation)
	ErrGiftValue         = fmt.Errorf("%w: gift value must be positive", shared.ErrValidation)
	ErrNotHost           = fmt.Errorf("%w: only a host may cancel the battle", shared.ErrForbidden)
	ErrVersionConflict   = fmt.Errorf("%w: battle version changed", shared.ErrConflict)
	ErrDuplicateBattle   = fmt.Errorf("%w: battle already exists", shared.ErrDuplicate)
	ErrDuplicateInvite   = fmt.Errorf("%w: invite already exists", shared.ErrDuplicate)
)
