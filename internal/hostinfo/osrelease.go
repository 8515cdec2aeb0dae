package hostinfo

import (
	"bufio"
	"strings"
)

// ParseOSRelease returns the distribution from os-release content:
// PRETTY_NAME if present, otherwise NAME followed by VERSION or VERSION_ID
func ParseOSRelease(content string) string {
	var pretty, name, version, versionID string

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		switch key {
		case "PRETTY_NAME":
			pretty = value
		case "NAME":
			name = value
		case "VERSION":
			version = value
		case "VERSION_ID":
			versionID = value
		}
	}

	if pretty != "" {
		return pretty
	}
	if version == "" {
		version = versionID
	}
	return strings.TrimSpace(name + " " + version)
}
