// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package validator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudcix/validator/pkg/stress"
	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// ExitWord aborts a password prompt
const ExitWord = "exit"

var ErrNoChoice = errors.New("nothing to choose from")

// Prompter asks the operator to make choices during an interactive run
type Prompter interface {
	Select(label string, items []string) (int, error)
	Password(label string) (string, error)
}

// Terminal prompts on the controlling terminal
type Terminal struct{}

var _ Prompter = Terminal{}

func (Terminal) Select(label string, items []string) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%s: %w", label, ErrNoChoice)
	}

	prompt := promptui.Select{
		Label: label,
		Items: items,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▶ {{ . | cyan }}",
			Inactive: "  {{ . | cyan }}",
			Selected: "▶ {{ . | red | cyan }}",
		},
		Size: 20,
		Searcher: func(input string, index int) bool {
			name := strings.ReplaceAll(strings.ToLower(items[index]), " ", "")
			input = strings.ReplaceAll(strings.ToLower(input), " ", "")

			return strings.Contains(name, input)
		},
	}

	selected, _, err := prompt.Run()
	if err != nil {
		return 0, fmt.Errorf("failed to select: %w", err)
	}

	return selected, nil
}

// Password reads a non-empty password without echo, typing the exit word aborts
func (Terminal) Password(label string) (string, error) {
	for {
		fmt.Fprintf(os.Stderr, "%s (%s quits): ", label, ExitWord)
		bytePassword, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		password := string(bytePassword)
		if password == ExitWord {
			return "", stress.ErrAborted
		}
		if password != "" {
			return password, nil
		}
	}
}

// vmPassword adapts the prompter to the bandwidth tester
func vmPassword(p Prompter) stress.PasswordFunc {
	return func(name, addr string) (string, error) {
		return p.Password(fmt.Sprintf("Password for VM %s (%s)", name, addr))
	}
}
