package worker

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var itemIDPattern = regexp.MustCompile(`^Q[0-9]+$`)

// ReadIDsFromFile reads one item identifier per line, skipping blanks,
// # comments and duplicates
func ReadIDsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id list: %w", err)
	}
	defer func() { _ = f.Close() }()

	seen := make(map[string]bool)
	var ids []string
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		id := strings.TrimSpace(scanner.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if !itemIDPattern.MatchString(id) {
			return nil, fmt.Errorf("%s:%d: not an item identifier: %q", path, line, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id list: %w", err)
	}
	return ids, nil
}
