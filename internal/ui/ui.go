// Package ui renders the interactive front matter of a clean: the banner,
// the confirmation prompt and the log location notice.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
)

// ConfirmLabel is the question asked before a clean starts.
const ConfirmLabel = "Perform recursive clean? (Y/n)"

var (
	// ErrDeclined is returned when the user answers no.
	ErrDeclined = errors.New("clean declined")
	// ErrInvalidAnswer is returned by ParseAnswer for anything but y or n.
	ErrInvalidAnswer = errors.New("invalid option")
)

// Banner prints the title box and the resolved root.
func Banner(w io.Writer, root string, noColor bool) {
	title := color.New(color.FgCyan, color.Bold)
	if noColor {
		title.DisableColor()
	}
	fmt.Fprintln(w)
	title.Fprintln(w, "***********************************")
	title.Fprintln(w, "***      DUPLICATE REMOVER      ***")
	title.Fprintln(w, "***********************************")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "RECURSIVE CLEAN ON PATH '%s'\n", root)
}

// Starting prints the log location, when a log is written, and the start line.
func Starting(w io.Writer, logDisplay string) {
	fmt.Fprintln(w)
	if logDisplay != "" {
		fmt.Fprintf(w, "Log file location: %s\n", logDisplay)
	}
	fmt.Fprintln(w, "Starting clean...")
}

// ParseAnswer accepts y or n in any case.
func ParseAnswer(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y":
		return true, nil
	case "n":
		return false, nil
	default:
		return false, ErrInvalidAnswer
	}
}

// Confirm asks ConfirmLabel until it gets y or n. On a terminal it uses an
// interactive prompt; otherwise it reads lines from in.
func Confirm(in *os.File, out io.Writer) error {
	if in == nil {
		return ErrDeclined
	}
	if fi, err := in.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		return confirmPrompt(in)
	}
	return ConfirmLines(in, out)
}

func confirmPrompt(in io.ReadCloser) error {
	p := promptui.Prompt{
		Label: ConfirmLabel,
		Stdin: in,
		Validate: func(s string) error {
			_, err := ParseAnswer(s)
			return err
		},
	}
	answer, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return ErrDeclined
		}
		return fmt.Errorf("prompt failed: %w", err)
	}
	if ok, _ := ParseAnswer(answer); !ok {
		return ErrDeclined
	}
	return nil
}

// ConfirmLines is the line-oriented confirmation used when input is not a
// terminal. End of input counts as a no.
func ConfirmLines(in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s:", ConfirmLabel)
		if !sc.Scan() {
			fmt.Fprintln(out)
			if err := sc.Err(); err != nil {
				return err
			}
			return ErrDeclined
		}
		ok, err := ParseAnswer(sc.Text())
		if err != nil {
			fmt.Fprintln(out, "Invalid option.")
			continue
		}
		if !ok {
			return ErrDeclined
		}
		return nil
	}
}
