// Package rename transforms a generated artifact's default name into its
// published name.
package rename

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/cloudbuild/internal/config"
)

// Apply resolves the published name for an artifact. A nil rule leaves the
// default name unchanged. The three strategies are mutually exclusive and
// selected by which rule key is present: regex substitution, external program
// transform (the program gets the default name as its argument and its
// trimmed stdout becomes the final name), or static replacement.
func Apply(ctx context.Context, rule *config.RenameRule, name string) (string, error) {
	if rule == nil {
		return name, nil
	}
	switch {
	case rule.Regex != "":
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return "", fmt.Errorf("invalid rename regex %q: %w", rule.Regex, err)
		}
		return re.ReplaceAllString(name, rule.To), nil
	case rule.Prog != "":
		out, err := exec.CommandContext(ctx, rule.Prog, name).Output()
		if err != nil {
			return "", fmt.Errorf("rename program %q failed: %w", rule.Prog, err)
		}
		renamed := strings.TrimSpace(string(out))
		if renamed == "" {
			return "", fmt.Errorf("rename program %q produced an empty name", rule.Prog)
		}
		return renamed, nil
	default:
		return rule.To, nil
	}
}
