package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// PromptYesNo asks a yes/no question with an interactive form.
// It defaults to the `defaultYes` value in non-interactive mode and falls
// back to a plain line prompt if the form cannot run.
func PromptYesNo(question string, defaultYes bool) bool {
	if !IsTerminal() {
		fmt.Printf("%s (non-interactive, defaulting to %t)\n", yesNo(question, defaultYes), defaultYes)
		return defaultYes
	}

	answer := defaultYes
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&answer).
		Run()
	switch {
	case err == nil:
		return answer
	case errors.Is(err, huh.ErrUserAborted):
		return false
	default:
		return Confirm(os.Stdin, os.Stdout, question, defaultYes)
	}
}

// Confirm asks question on out and reads a single line answer from in.
func Confirm(in io.Reader, out io.Writer, question string, defaultYes bool) bool {
	_, _ = fmt.Fprint(out, yesNo(question, defaultYes))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		// On error (e.g., EOF), default
		_, _ = fmt.Fprintf(out, "(no input, defaulting to %t)\n", defaultYes)
		return defaultYes
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return defaultYes
}

func yesNo(question string, defaultYes bool) string {
	if defaultYes {
		return fmt.Sprintf("%s [Y/n] ", question)
	}
	return fmt.Sprintf("%s [y/N] ", question)
}
