package rawsock

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// path to the protocol database, replaced in tests
var protocolsFile = "/etc/protocols"

// used when /etc/protocols is missing or does not list the protocol, which is common in
// minimal containers
var fallbackProtocols = map[string]int{
	"icmp": 1,
	"tcp":  6,
	"udp":  17,
}

// LookupProtocol resolves a protocol name such as "tcp" to its IP protocol number
func LookupProtocol(name string) (int, error) {
	name = strings.ToLower(name)
	if num, ok := readProtocols(protocolsFile)[name]; ok {
		return num, nil
	}
	if num, ok := fallbackProtocols[name]; ok {
		return num, nil
	}
	return 0, fmt.Errorf("protocol not found: %q", name)
}

// readProtocols parses lines of the form "name number [aliases...] [# comment]". A missing
// or unreadable file yields an empty table.
func readProtocols(path string) map[string]int {
	table := make(map[string]int)

	f, err := os.Open(path)
	if err != nil {
		return table
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		num, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		for _, name := range append(fields[:1:1], fields[2:]...) {
			name = strings.ToLower(name)
			if _, seen := table[name]; !seen {
				table[name] = num
			}
		}
	}
	return table
}
