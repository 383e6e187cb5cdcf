package ui

import (
	"errors"
	"os"

	survey "github.com/AlecAivazis/survey/v2"
)

// ErrNotInteractive is returned by prompts when stdin is not a terminal.
var ErrNotInteractive = errors.New("stdin is not a terminal")

// Interactive reports whether prompts can be shown.
func Interactive() bool {
	return IsTerminal(os.Stdin)
}

// Confirm asks a yes/no question. The prompt and the answer go to the full
// log.
func (l *Logger) Confirm(text string) (bool, error) {
	if !Interactive() {
		return false, ErrNotInteractive
	}

	l.Spacer()
	l.InfoSilent("PROMPT: %s", text)

	var yes bool
	err := survey.AskOne(
		&survey.Confirm{Message: text},
		&yes,
		survey.WithStdio(os.Stdin, os.Stderr, os.Stderr),
	)
	if err != nil {
		l.Error("PROMPT FAILED: %v", err)
		return false, err
	}

	l.InfoSilent("ANSWER: %t", yes)
	return yes, nil
}
