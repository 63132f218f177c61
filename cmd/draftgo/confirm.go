package main

import (
	"log"
	"strings"

	"github.com/peterh/liner"

	"github.com/draftgo-dev/draftgo/pkg/session"
)

// linerConfirmer asks discard questions on the terminal. The prompt severity
// follows the tier: spent-credit discards demand a typed "yes" while plain
// unsaved changes accept a single "y".
type linerConfirmer struct{}

func (linerConfirmer) ConfirmDiscard(tier session.DiscardTier, message string) bool {
	if tier == session.TierNone {
		return true
	}

	line := liner.NewLiner()
	defer func() {
		if err := line.Close(); err != nil {
			log.Printf("Warning: Failed to restore terminal: %v", err)
		}
	}()
	line.SetCtrlCAborts(true)

	prompt := message + " [y/N]: "
	if tier == session.TierCreditSpent {
		prompt = message + " Type 'yes' to confirm: "
	}

	answer, err := line.Prompt(prompt)
	if err != nil {
		// Ctrl-C or closed stdin declines.
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))

	if tier == session.TierCreditSpent {
		return answer == "yes"
	}
	return answer == "y" || answer == "yes"
}
