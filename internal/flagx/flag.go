// Package flagx helps several independent loaders share os.Args without
// tripping over each other's flags.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns the subset of args made of allowed flags and their values.
//
// Both "-c conf.json" and "--config=conf.json" forms are recognised. A value
// is only consumed when the next token does not itself start with '-'.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// StringFlag extracts a single string value registered under one or more
// names. The last occurrence wins; absent flags yield "".
func StringFlag(args []string, names ...string) string {
	var v string

	allowed := make([]string, 0, len(names))
	fs := flag.NewFlagSet("flagx", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, name := range names {
		fs.StringVar(&v, name, "", "")
		allowed = append(allowed, "-"+name)
	}
	_ = fs.Parse(FilterArgs(args, allowed))

	return v
}

// JsonConfigFlag returns the path given with -c or -config.
func JsonConfigFlag(args []string) string {
	return StringFlag(args, "c", "config")
}

// EnvFileFlag returns the dotenv path given with -env-file.
func EnvFileFlag(args []string) string {
	return StringFlag(args, "env-file")
}
