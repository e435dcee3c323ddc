package config

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ExpandArgs expands @file tokens: any token starting with "@" names a
// file whose non-empty, trimmed lines are spliced into the argument
// list in place of the token; everything else passes through
// unchanged.
func ExpandArgs(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "" {
			continue
		}
		if !strings.HasPrefix(arg, "@") {
			out = append(out, arg)
			continue
		}
		items, err := loadFileItems(arg[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "expand %s", arg)
		}
		out = append(out, items...)
	}
	return out, nil
}

func loadFileItems(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	return items, scanner.Err()
}
