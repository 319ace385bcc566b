package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchBashPermission finds the matching permission action for a command.
func MatchBashPermission(cmd BashCommand, permissions map[string]PermissionAction) PermissionAction {
	cmdWithSubcommand := cmd.Name
	if cmd.Subcommand != "" {
		cmdWithSubcommand = cmd.Name + " " + cmd.Subcommand
	}

	// Try most specific match first: "git commit *"
	if cmd.Subcommand != "" {
		if action, ok := permissions[cmdWithSubcommand+" *"]; ok {
			return action
		}
	}

	// Try command + wildcard: "git *"
	if action, ok := permissions[cmd.Name+" *"]; ok {
		return action
	}

	// Try command alone: "git"
	if action, ok := permissions[cmd.Name]; ok {
		return action
	}

	// Try global wildcard: "*"
	if action, ok := permissions["*"]; ok {
		return action
	}

	// Fall back to a full doublestar sweep over every configured pattern,
	// so patterns this function's fast paths don't special-case (e.g.
	// "git co**t *") still apply.
	for pattern, action := range permissions {
		if MatchPattern(pattern, cmd) {
			return action
		}
	}

	return ActionAsk
}

// commandString renders cmd as the flat, space-joined string patterns are
// matched against: name followed by every argument, in order.
func commandString(cmd BashCommand) string {
	parts := append([]string{cmd.Name}, cmd.Args...)
	return strings.Join(parts, " ")
}

// MatchPattern checks if a command matches a wildcard pattern using
// doublestar glob matching. Pattern format: "command subcommand *",
// "command *", or "*". A bare "*" pattern matches every command. Elsewhere
// doublestar treats "/" as a separator: a "*" matches any run of text that
// contains no "/", so a command whose remaining arguments include a path
// (e.g. "rm -rf /tmp/x" against "rm -rf *") does not match.
func MatchPattern(pattern string, cmd BashCommand) bool {
	if pattern == "*" {
		return true
	}
	matched, err := doublestar.Match(pattern, commandString(cmd))
	if err != nil {
		return false
	}
	return matched
}

// BuildPattern creates a permission pattern for a command.
// For "git commit -m msg", returns "git commit *"
// For "ls -la", returns "ls *"
func BuildPattern(cmd BashCommand) string {
	if cmd.Subcommand != "" {
		return cmd.Name + " " + cmd.Subcommand + " *"
	}
	return cmd.Name + " *"
}

// BuildPatterns creates permission patterns for multiple commands.
func BuildPatterns(commands []BashCommand) []string {
	seen := make(map[string]bool)
	var patterns []string

	for _, cmd := range commands {
		// Skip "cd" since we handle directory changes separately
		if cmd.Name == "cd" {
			continue
		}

		pattern := BuildPattern(cmd)
		if !seen[pattern] {
			seen[pattern] = true
			patterns = append(patterns, pattern)
		}
	}

	return patterns
}
