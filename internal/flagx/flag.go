// Package flagx lets several components parse their own slice of os.Args
// without tripping over each other's flags. The standard flag package
// errors out on any name it does not know, so each caller first narrows
// the argument list to the flags it owns.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs narrows args to the flags listed in allowedFlags, keeping both
// the "-f value" and "--flag=value" spellings. Values are attached to the
// preceding flag unless they start with a dash.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := allowed[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if next := i + 1; next < len(args) && !strings.HasPrefix(args[next], "-") {
			filtered = append(filtered, args[next])
			i = next
		}
	}
	return filtered
}

// JsonConfigFlags returns the config file path given via -c or -config, or
// an empty string when neither is present. Other arguments are ignored so
// the caller's own flag set stays undisturbed.
func JsonConfigFlags() string {
	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	var path string
	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return path
}
