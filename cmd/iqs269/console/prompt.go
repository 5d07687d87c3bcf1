package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// YesOrNo asks question and returns Yes or No. Empty or unrecognized input
// resolves to Yes.
func YesOrNo(question string) (string, error) {
	rl, err := readline.New(question + " [Y/n]:")
	if err != nil {
		return "", err
	}
	defer rl.Close()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return normalizeChoice(response, Yes, No), nil
}

// normalizeChoice maps free-form input onto one of the given choices; the
// first choice is the default.
func normalizeChoice(response string, choices ...string) string {
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range choices {
		if normalized == c {
			return normalized
		}
	}
	return choices[0]
}
