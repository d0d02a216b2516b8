package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SelectMode chooses how much of the document graph a fetch returns.
type SelectMode int

const (
	SelectSingle    SelectMode = 0
	SelectManual    SelectMode = 1
	SelectWholeTree SelectMode = 2
)

const (
	// TraversalMaxDepth bounds parent and child walks in the graph engine.
	TraversalMaxDepth = 50
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,119}$`)

var selectModeNames = map[string]SelectMode{
	"single": SelectSingle,
	"manual": SelectManual,
	"tree":   SelectWholeTree,
	"all":    SelectWholeTree,
}

func (m SelectMode) String() string {
	switch m {
	case SelectManual:
		return "manual"
	case SelectWholeTree:
		return "tree"
	default:
		return "single"
	}
}

// ParseSelectMode accepts a mode name or its numeric value. Empty and
// unrecognized numeric values fall back to SelectSingle.
func ParseSelectMode(raw string) (SelectMode, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return SelectSingle, nil
	}
	if mode, ok := selectModeNames[value]; ok {
		return mode, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		switch SelectMode(n) {
		case SelectManual, SelectWholeTree:
			return SelectMode(n), nil
		default:
			return SelectSingle, nil
		}
	}
	return SelectSingle, fmt.Errorf("invalid mode: %s", value)
}

// ParseID resolves raw into the canonical identifier form.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid identifier %q", raw)
	}
	return id.String(), nil
}

// NewID returns a fresh canonical identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidateCollection rejects names that cannot address a collection.
func ValidateCollection(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
