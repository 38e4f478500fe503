package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	errNoTerminal = errors.New("no terminal available")
	errMismatch   = errors.New("passphrases do not match")
)

// Source resolves the passphrase of one keystore role ("owner", "organizer")
// once, from an environment variable or an interactive prompt, and caches the
// outcome.
type Source struct {
	envVar  string
	role    string
	confirm bool
	prompt  func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

func NewSource(envVar, role string) *Source {
	role = strings.TrimSpace(role)
	if role == "" {
		role = "keystore"
	}
	return &Source{envVar: strings.TrimSpace(envVar), role: role, prompt: readTerminal}
}

// WithConfirmation makes an interactive prompt ask twice. Used when a new
// keystore is created.
func (s *Source) WithConfirmation() *Source {
	s.confirm = true
	return s
}

// Get returns the passphrase. A set environment variable wins and is used
// verbatim. Blank passphrases are refused from either source.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	value, err := s.prompt(fmt.Sprintf("Enter %s keystore passphrase: ", s.role))
	if errors.Is(err, errNoTerminal) {
		if s.envVar != "" {
			return "", fmt.Errorf("%s keystore passphrase required; set %s or run interactively", s.role, s.envVar)
		}
		return "", fmt.Errorf("%s keystore passphrase required: %w", s.role, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s keystore passphrase cannot be empty", s.role)
	}
	if s.confirm {
		again, err := s.prompt("Repeat passphrase: ")
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		if again != value {
			return "", errMismatch
		}
	}
	return value, nil
}

func readTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
