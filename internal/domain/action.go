package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAction is returned when a button payload cannot be decoded.
var ErrInvalidAction = errors.New("invalid action")

// ActionKind identifies what a button click asks for.
type ActionKind string

const (
	ActionApproveReceipt ActionKind = "approve_receipt"
	ActionRejectReceipt  ActionKind = "reject_receipt"
	ActionCustomPoints   ActionKind = "custom_points"
	ActionApproveCustom  ActionKind = "approve_custom"
	ActionCancelCustom   ActionKind = "cancel_custom"
	ActionProcessOrder   ActionKind = "process_order"
	ActionCompleteOrder  ActionKind = "complete_order"
)

const actionSeparator = ":"

// carriesPoints lists kinds whose payload must include a positive points value.
var carriesPoints = map[ActionKind]bool{
	ActionApproveReceipt: true,
	ActionApproveCustom:  true,
}

var knownKinds = map[ActionKind]bool{
	ActionApproveReceipt: true,
	ActionRejectReceipt:  true,
	ActionCustomPoints:   true,
	ActionApproveCustom:  true,
	ActionCancelCustom:   true,
	ActionProcessOrder:   true,
	ActionCompleteOrder:  true,
}

// Action is a decoded button payload.
type Action struct {
	Kind      ActionKind `json:"kind"`
	SubjectID string     `json:"subject_id"`
	Points    int        `json:"points,omitempty"`
}

// IsOrderAction returns true if the action targets an order rather than a receipt.
func (a Action) IsOrderAction() bool {
	return a.Kind == ActionProcessOrder || a.Kind == ActionCompleteOrder
}

// CustomID encodes the action as a Discord component custom id:
// <kind>:<subjectId>[:<points>].
func (a Action) CustomID() string {
	parts := []string{string(a.Kind), a.SubjectID}
	if carriesPoints[a.Kind] {
		parts = append(parts, strconv.Itoa(a.Points))
	}
	return strings.Join(parts, actionSeparator)
}

// Validate checks the action is well formed.
func (a Action) Validate() error {
	if !knownKinds[a.Kind] {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	if a.SubjectID == "" {
		return fmt.Errorf("%w: missing subject id", ErrInvalidAction)
	}
	if carriesPoints[a.Kind] && a.Points <= 0 {
		return fmt.Errorf("%w: %s requires positive points", ErrInvalidAction, a.Kind)
	}
	return nil
}

// ParseAction decodes a custom id produced by Action.CustomID.
func ParseAction(customID string) (Action, error) {
	parts := strings.Split(strings.TrimSpace(customID), actionSeparator)
	if len(parts) < 2 || len(parts) > 3 {
		return Action{}, fmt.Errorf("%w: malformed payload %q", ErrInvalidAction, customID)
	}

	a := Action{Kind: ActionKind(parts[0]), SubjectID: parts[1]}
	if len(parts) == 3 {
		if !carriesPoints[a.Kind] {
			return Action{}, fmt.Errorf("%w: %s does not take points", ErrInvalidAction, a.Kind)
		}
		points, err := strconv.Atoi(parts[2])
		if err != nil {
			return Action{}, fmt.Errorf("%w: bad points %q", ErrInvalidAction, parts[2])
		}
		a.Points = points
	}

	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}
