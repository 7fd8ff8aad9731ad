package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// Layering rules: the dispatcher reaches the transport only through its
// Client interface, and the transport never reaches up into the session.
var forbidden = map[string][]string{
	"raise-and-raze/editor/internal/action": {
		"raise-and-raze/editor/internal/net",
	},
	"raise-and-raze/editor/internal/net": {
		"raise-and-raze/editor/internal/editor",
		"raise-and-raze/editor/internal/app",
	},
	"raise-and-raze/editor/internal/targets": {
		"raise-and-raze/editor/internal/net",
		"raise-and-raze/editor/internal/action",
	},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	decoder := json.NewDecoder(bytes.NewReader(output))

	var violations []string
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
			os.Exit(1)
		}

		for prefix, banned := range forbidden {
			if !strings.HasPrefix(pkg.ImportPath, prefix) {
				continue
			}
			for _, imp := range pkg.Imports {
				for _, ban := range banned {
					if strings.HasPrefix(imp, ban) {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}
