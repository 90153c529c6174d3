package models

import "encoding/json"

// A database model for global rules, that are periodically executed on
// all nodes. Lets the fleet retarget load without redeploying nodes.
type GlobalRule struct {
	ID      uint `gorm:"primarykey"`
	Enabled bool
	// NodeSelector limits the rule to one node. Empty means every node.
	NodeSelector string
	Priority     int
	// rdesc.Rule
	Desc json.RawMessage `gorm:"type:jsonb"`
}
