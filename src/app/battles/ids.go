package battles

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gofrs/uuid/v5"

	"github.com/sandai/pkbattle/src/domain/shared"
)

// IDGenerator mints identifiers for new records.
type IDGenerator interface {
	BattleID() shared.BattleID
	InviteID() shared.InviteID
	GiftEventID() shared.GiftEventID
}

// generator uses random UUIDs for battles and invites and node-scoped
// snowflakes for gift events so the gift log sorts by time.
type generator struct {
	node *snowflake.Node
}

func NewIDGenerator(nodeID int64) (IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &generator{node: node}, nil
}

func (g *generator) BattleID() shared.BattleID {
	return shared.BattleID(uuid.Must(uuid.NewV4()).String())
}

func (g *generator) InviteID() shared.InviteID {
	return shared.InviteID(uuid.Must(uuid.NewV4()).String())
}

func (g *generator) GiftEventID() shared.GiftEventID {
	return shared.GiftEventID(g.node.Generate().String())
}
