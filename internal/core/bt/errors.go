package bt

import "errors"

// Structural misuse by the editing collaborator. Business failure is never an
// error; it travels as StateFailure.
var (
	ErrUnknownVariant    = errors.New("bt: unknown node variant")
	ErrForeignNode       = errors.New("bt: node is not owned by this tree")
	ErrNodeReferenced    = errors.New("bt: node is still referenced by a parent")
	ErrCycle             = errors.New("bt: edge would create a cycle")
	ErrChildOccupied     = errors.New("bt: single child slot is occupied")
	ErrInvalidState      = errors.New("bt: invalid state")
	ErrInvalidParam      = errors.New("bt: invalid node parameter")
	ErrInvalidDefinition = errors.New("bt: invalid tree definition")
)
