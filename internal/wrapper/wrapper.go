// Package wrapper parses the Chromium-wrapper argv described in spec §6 and
// grounded on original_source/remote_debugging_path_chromium/chromium.py's
// main(): it extracts --remote-debugging-path and the repeated
// --remote-debugging-allow[-expression] flags from argv, leaving every
// other flag untouched for Chromium to see, and reports whether proxy mode
// should start at all.
//
// -v/--verbose is also recognized and stripped here rather than left to
// cobra: in wrapper/proxy mode argv never reaches rootCmd's flag parser
// (cmd.Execute dispatches straight into this package), so without this,
// -v would silently pass through to Chromium as an unrecognized flag
// instead of raising this process's own log level.
package wrapper

import (
	"fmt"
	"strings"

	"cdpproxy/internal/allowlist"
)

const (
	flagPath      = "--remote-debugging-path"
	flagAllow     = "--remote-debugging-allow"
	flagAllowExpr = "--remote-debugging-allow-expression"
	flagChromium  = "--chromium-path"
)

// Parsed is the result of scanning argv.
type Parsed struct {
	// ProxyEnabled is true iff --remote-debugging-path was present.
	ProxyEnabled bool
	// SocketPath is the value of --remote-debugging-path, if ProxyEnabled.
	SocketPath string
	// ChromiumBinary is the value of --chromium-path, or "" to use the
	// supervisor's default.
	ChromiumBinary string
	// Verbose is true iff -v or --verbose was present in argv.
	Verbose bool
	// Allow is nil when no allow flag was given, meaning every method is
	// permitted; otherwise it holds the compiled predicate list.
	Allow *allowlist.List
	// PassthroughArgs is argv with every wrapper-only flag removed; callers
	// append --remote-debugging-pipe themselves only once ProxyEnabled is
	// confirmed (the supervisor does this, not this package, so a caller
	// that execs Chromium unchanged never sees it appended).
	PassthroughArgs []string
}

// Parse scans argv (not including argv[0]) the same way the original
// Python main() does: a single left-to-right pass, consuming a flag's value
// whether it arrives as "--flag value" or "--flag=value", and deleting
// every wrapper-only token from the forwarded argv.
func Parse(argv []string) (Parsed, error) {
	var p Parsed
	var allowPredicates []allowlist.Predicate
	sawAllowFlag := false

	out := make([]string, 0, len(argv))
	i := 0
	for i < len(argv) {
		arg := argv[i]
		switch {
		case arg == flagPath:
			if i+1 >= len(argv) {
				return Parsed{}, fmt.Errorf("wrapper: %s requires a value", flagPath)
			}
			p.ProxyEnabled = true
			p.SocketPath = argv[i+1]
			i += 2
			continue
		case strings.HasPrefix(arg, flagPath+"="):
			p.ProxyEnabled = true
			p.SocketPath = strings.TrimPrefix(arg, flagPath+"=")
			i++
			continue
		case arg == flagChromium:
			if i+1 >= len(argv) {
				return Parsed{}, fmt.Errorf("wrapper: %s requires a value", flagChromium)
			}
			p.ChromiumBinary = argv[i+1]
			i += 2
			continue
		case strings.HasPrefix(arg, flagChromium+"="):
			p.ChromiumBinary = strings.TrimPrefix(arg, flagChromium+"=")
			i++
			continue
		case arg == flagAllow:
			if i+1 >= len(argv) {
				return Parsed{}, fmt.Errorf("wrapper: %s requires a value", flagAllow)
			}
			sawAllowFlag = true
			allowPredicates = append(allowPredicates, allowlist.MethodEquals(argv[i+1]))
			i += 2
			continue
		case strings.HasPrefix(arg, flagAllow+"="):
			sawAllowFlag = true
			allowPredicates = append(allowPredicates, allowlist.MethodEquals(strings.TrimPrefix(arg, flagAllow+"=")))
			i++
			continue
		case arg == flagAllowExpr:
			if i+1 >= len(argv) {
				return Parsed{}, fmt.Errorf("wrapper: %s requires a value", flagAllowExpr)
			}
			pred, err := allowlist.CompileExpression([]byte(argv[i+1]))
			if err != nil {
				return Parsed{}, err
			}
			sawAllowFlag = true
			allowPredicates = append(allowPredicates, pred)
			i += 2
			continue
		case strings.HasPrefix(arg, flagAllowExpr+"="):
			pred, err := allowlist.CompileExpression([]byte(strings.TrimPrefix(arg, flagAllowExpr+"=")))
			if err != nil {
				return Parsed{}, err
			}
			sawAllowFlag = true
			allowPredicates = append(allowPredicates, pred)
			i++
			continue
		case arg == "-v" || arg == "--verbose":
			p.Verbose = true
			i++
			continue
		default:
			out = append(out, arg)
			i++
		}
	}

	if sawAllowFlag && !p.ProxyEnabled {
		return Parsed{}, fmt.Errorf("wrapper: %s/%s has no effect without %s", flagAllow, flagAllowExpr, flagPath)
	}
	if sawAllowFlag {
		p.Allow = allowlist.New(allowPredicates...)
	}
	p.PassthroughArgs = out
	return p, nil
}
