package hostwatch

import (
	"context"
	"regexp"
	"strings"
)

// Runner runs a shell command on the local machine.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

const (
	sessionsCommand = `pgrep -fla "^ssh " || true`
	historyCommand  = `cat ~/.bash_history 2>/dev/null | awk '$1 == "ssh" && $2 ~ /^[a-z0-9]/ {print $2}' | tail -50 | sort -u`

	// LocalName stands for this machine in host listings.
	LocalName = "localhost"
)

var sshPrefix = regexp.MustCompile(`^[0-9]+ +ssh +`)

// Sessions lists the hosts of currently running ssh clients, followed by
// LocalName.
func Sessions(ctx context.Context, r Runner) ([]string, error) {
	out, err := r.Run(ctx, sessionsCommand)
	if err != nil {
		return nil, err
	}
	return ParseSessions(out), nil
}

// ParseSessions parses `pgrep -fla` output. Only the last argument of each
// ssh command line is considered, so option flags are skipped.
func ParseSessions(out string) []string {
	var hosts []string
	seen := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !sshPrefix.MatchString(line) {
			continue
		}
		args := strings.Fields(sshPrefix.ReplaceAllString(line, ""))
		if len(args) == 0 {
			continue
		}
		h := args[len(args)-1]
		if len(h) < 2 || !ValidHost(h) || seen[h] {
			continue
		}
		seen[h] = true
		hosts = append(hosts, h)
	}
	return append(hosts, LocalName)
}

// History lists hosts recently reached with ssh from the shell history.
func History(ctx context.Context, r Runner) ([]string, error) {
	out, err := r.Run(ctx, historyCommand)
	if err != nil {
		return nil, err
	}
	return ParseHistory(out), nil
}

func ParseHistory(out string) []string {
	hosts := []string{}
	for _, line := range strings.Split(out, "\n") {
		h := strings.TrimSpace(line)
		if len(h) > 1 && ValidHost(h) {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
