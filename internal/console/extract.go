package console

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ExtractionResult mirrors the original's ExtractionResult dataclass.
type ExtractionResult struct {
	Success bool
	Config  string
	Error   string
}

// ExtractOptions configures one extraction attempt (spec section 4.8).
type ExtractOptions struct {
	Command        string
	Username       string
	Password       string
	EnablePassword string
	PromptPattern  string
	PagingDisable  string
	Retries        int
	Timeout        time.Duration
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	if o.PromptPattern == "" {
		o.PromptPattern = `[>#]\s*$`
	}
	if o.PagingDisable == "" {
		o.PagingDisable = "terminal length 0"
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Extractor drives the serial-console configuration extraction sequence
// (spec section 4.8): piggyback on an active web console session first,
// falling back to a dedicated, lock-held virsh console session.
type Extractor struct {
	Locker     *Locker
	Registry   *Registry
	LibvirtURI string
}

func NewExtractor(locker *Locker, registry *Registry, libvirtURI string) *Extractor {
	if libvirtURI == "" {
		libvirtURI = "qemu:///system"
	}
	return &Extractor{Locker: locker, Registry: registry, LibvirtURI: libvirtURI}
}

// Extract runs opts.Command against domainName, preferring to piggyback
// on an active web console session and falling back to a dedicated
// virsh console session under the per-domain lock, with retries.
func (e *Extractor) Extract(ctx context.Context, domainName string, opts ExtractOptions) ExtractionResult {
	opts = opts.withDefaults()

	if piggybacked, result := e.tryPiggyback(domainName, opts); piggybacked {
		if result.Success {
			return result
		}
		// fall through to the direct path on piggyback failure
	}

	last := ExtractionResult{Success: false, Error: "no attempts made"}
	_ = e.Locker.ExtractionSession(domainName, func() error {
		for attempt := 0; attempt <= opts.Retries; attempt++ {
			if attempt > 0 {
				time.Sleep(time.Duration(1<<uint(attempt)) * time.Second) // 2s, 4s, ...
			}

			release, err := e.Locker.Lock(domainName, 60*time.Second, true)
			if err != nil {
				last = ExtractionResult{Success: false, Error: "console is locked by another session"}
				continue
			}
			injector, closeConsole, openErr := OpenVirshConsole(ctx, e.LibvirtURI, domainName)
			if openErr != nil {
				release()
				last = ExtractionResult{Success: false, Error: openErr.Error()}
				continue
			}
			last = runExtraction(injector, domainName, opts)
			closeConsole()
			release()

			if last.Success {
				return nil
			}
		}
		return nil
	})
	return last
}

func (e *Extractor) tryPiggyback(domainName string, opts ExtractOptions) (attempted bool, result ExtractionResult) {
	var inner ExtractionResult
	ok, err := e.Registry.Piggyback(domainName, func(injector *PtyInjector) error {
		inner = runExtractionFromPrompt(injector, domainName, opts)
		if !inner.Success {
			return fmt.Errorf("%s", inner.Error)
		}
		return nil
	})
	if !ok {
		return false, ExtractionResult{}
	}
	if err != nil && inner.Error == "" {
		inner = ExtractionResult{Success: false, Error: err.Error()}
	}
	return true, inner
}

// runExtraction drives the full sequence on a freshly opened virsh
// console: wait for the "Connected to domain" banner, then hand off to
// runExtractionFromPrompt.
func runExtraction(injector *PtyInjector, domainName string, opts ExtractOptions) ExtractionResult {
	if _, _, err := injector.Expect([]*regexp.Regexp{regexp.MustCompile(`Connected to domain`)}, 10*time.Second); err != nil {
		return ExtractionResult{Success: false, Error: "timeout waiting for console connection"}
	}
	return runExtractionFromPrompt(injector, domainName, opts)
}

// runExtractionFromPrompt drives login/enable/paging/execute against an
// already-connected console (either a fresh virsh session past its
// banner, or a piggybacked web console session already at a prompt).
func runExtractionFromPrompt(injector *PtyInjector, domainName string, opts ExtractOptions) ExtractionResult {
	if !primeForPrompt(injector, opts.PromptPattern) {
		return ExtractionResult{Success: false, Error: "failed to wake console prompt"}
	}

	if opts.Username != "" {
		if !handleLogin(injector, opts.Username, opts.Password, opts.PromptPattern) {
			return ExtractionResult{Success: false, Error: "failed to login"}
		}
	} else if !waitForPrompt(injector, opts.PromptPattern, opts.Timeout) {
		return ExtractionResult{Success: false, Error: "failed to get CLI prompt"}
	}

	if opts.EnablePassword != "" {
		if !enterEnableMode(injector, opts.EnablePassword, opts.PromptPattern) {
			return ExtractionResult{Success: false, Error: "failed to enter enable mode"}
		}
	} else {
		attemptEnableMode(injector, opts.PromptPattern)
	}

	if opts.PagingDisable != "" {
		_ = executeCommand(injector, opts.PagingDisable, opts.PromptPattern, 5*time.Second)
	}

	raw, err := executeCommand(injector, opts.Command, opts.PromptPattern, opts.Timeout)
	if err != nil {
		return ExtractionResult{Success: false, Error: "timeout waiting for command output"}
	}

	config := cleanConfig(raw, opts.Command)
	if ok, reason := validateConfig(config, opts.Command); !ok {
		if strings.Contains(strings.ToLower(opts.Command), "running-config") {
			fallbackCmd := strings.Replace(strings.ToLower(opts.Command), "running-config", "startup-config", 1)
			if fallbackRaw, ferr := executeCommand(injector, fallbackCmd, opts.PromptPattern, opts.Timeout); ferr == nil {
				fallbackConfig := cleanConfig(fallbackRaw, fallbackCmd)
				if fbOK, _ := validateConfig(fallbackConfig, fallbackCmd); fbOK {
					return ExtractionResult{Success: true, Config: fallbackConfig}
				}
			}
		}
		return ExtractionResult{Success: false, Error: fmt.Sprintf("captured output not recognized as configuration: %s", reason)}
	}

	return ExtractionResult{Success: true, Config: config}
}

// promptPatterns builds the vendor-pattern -> Cisco-mode -> generic
// fallback chain spec section 4.8 requires.
func promptPatterns(vendorPattern string) []*regexp.Regexp {
	patterns := []string{
		vendorPattern,
		`\w+(\(.+\))?[>#]`,
		`^.*[>#]$`,
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	seen := make(map[string]bool)
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var (
	returnToStart  = regexp.MustCompile(`Press RETURN to get started!`)
	initialConfig  = regexp.MustCompile(`Would you like to enter the initial configuration dialog\?\s*\[yes/no\]:`)
	poapAbort      = regexp.MustCompile(`Abort\s+Power\s+On\s+Auto\s+Provisioning[^\r\n]*\(yes/no\)\[no\]:`)
	securePassword = regexp.MustCompile(`Would you like to enforce secure password standard\s*\(yes/no\)\s*\[y\]:`)
	enterPassword  = regexp.MustCompile(`Enter the password for "admin":`)
	confirmPass    = regexp.MustCompile(`Confirm the password for "admin":`)
	usernamePrompt = regexp.MustCompile(`[Uu]sername:`)
	loginPrompt    = regexp.MustCompile(`[Ll]ogin:`)
	passwordPrompt = regexp.MustCompile(`[Pp]assword:`)
)

// defaultStrongPassword is the deterministic fallback NX-OS's admin
// password-complexity policy is satisfied with when a configured password
// is too weak (spec section 4.8's explicit guidance to "enforce
// complexity with a deterministic default").
const defaultStrongPassword = "Archetype!Lab9k"

// primeForPrompt wakes an idle serial console (several platforms require
// multiple Enter presses before printing anything) and handles any
// onboarding prompts encountered along the way.
func primeForPrompt(injector *PtyInjector, promptPattern string) bool {
	prompts := promptPatterns(promptPattern)
	all := append(append([]*regexp.Regexp{}, prompts...), returnToStart, usernamePrompt, loginPrompt, initialConfig, poapAbort, securePassword, enterPassword, confirmPass)

	for i := 0; i < 8; i++ {
		_ = injector.Send("\r")
		idx, _, err := injector.Expect(all, 2*time.Second)
		if err != nil {
			continue
		}
		if idx < len(prompts) {
			return true
		}
		switch all[idx] {
		case initialConfig:
			_ = injector.SendLine("no")
			_ = injector.Send("\r")
		case poapAbort:
			_ = injector.SendLine("yes")
		case securePassword:
			_ = injector.SendLine("no")
		case enterPassword, confirmPass:
			_ = injector.SendLine(defaultStrongPassword)
		default:
			return true
		}
	}
	return false
}

func waitForPrompt(injector *PtyInjector, promptPattern string, timeout time.Duration) bool {
	prompts := promptPatterns(promptPattern)
	all := append(append([]*regexp.Regexp{}, prompts...), returnToStart, initialConfig)
	waitTimeout := timeout
	if waitTimeout > 15*time.Second {
		waitTimeout = 15 * time.Second
	}
	if waitTimeout < 5*time.Second {
		waitTimeout = 5 * time.Second
	}

	for i := 0; i < 4; i++ {
		idx, _, err := injector.Expect(all, waitTimeout)
		if err != nil {
			_ = injector.Send("\r")
			continue
		}
		if idx < len(prompts) {
			return true
		}
		if all[idx] == returnToStart {
			_ = injector.Send("\r")
			continue
		}
		_ = injector.SendLine("no")
		_ = injector.Send("\r")
	}
	return false
}

func handleLogin(injector *PtyInjector, username, password, promptPattern string) bool {
	all := []*regexp.Regexp{usernamePrompt, loginPrompt}
	if _, _, err := injector.Expect(all, 10*time.Second); err == nil {
		_ = injector.SendLine(username)
		if _, _, err := injector.Expect([]*regexp.Regexp{passwordPrompt}, 10*time.Second); err == nil {
			_ = injector.SendLine(password)
		}
	}
	return waitForPrompt(injector, promptPattern, 15*time.Second)
}

func enterEnableMode(injector *PtyInjector, enablePassword, promptPattern string) bool {
	_ = injector.SendLine("enable")
	if _, _, err := injector.Expect([]*regexp.Regexp{passwordPrompt}, 5*time.Second); err == nil {
		_ = injector.SendLine(enablePassword)
	}
	return waitForPrompt(injector, promptPattern, 10*time.Second)
}

// attemptEnableMode is a best-effort privilege escalation for platforms
// (e.g. IOSv) that often land in user EXEC mode without an explicit
// enable password configured.
func attemptEnableMode(injector *PtyInjector, promptPattern string) {
	_ = injector.SendLine("enable")
	_, _, _ = injector.Expect(promptPatterns(promptPattern), 3*time.Second)
}

func executeCommand(injector *PtyInjector, command, promptPattern string, timeout time.Duration) (string, error) {
	_ = injector.SendLine(command)
	_, before, err := injector.Expect(promptPatterns(promptPattern), timeout)
	if err != nil {
		return "", err
	}
	return before, nil
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// cleanConfig strips the echoed command, ANSI escapes, and surrounding
// whitespace from raw captured console output (spec section 4.8).
func cleanConfig(raw, command string) string {
	out := ansiEscape.ReplaceAllString(raw, "")
	lines := strings.Split(out, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == strings.TrimSpace(command) {
			continue // the echoed command itself
		}
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

var cliErrorMarkers = []string{"% invalid input", "% incomplete command", "% ambiguous command"}
var configMarkers = []string{"version ", "hostname ", "interface ", "!", "current configuration"}

// validateConfig reports whether config looks like a real device
// configuration rather than an error banner or empty capture (spec
// section 4.8's explicit marker list).
func validateConfig(config, command string) (bool, string) {
	lower := strings.ToLower(config)
	for _, marker := range cliErrorMarkers {
		if strings.Contains(lower, marker) {
			return false, "output contains a CLI error marker: " + marker
		}
	}
	if strings.TrimSpace(config) == "" {
		return false, "captured output is empty"
	}
	for _, marker := range configMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true, ""
		}
	}
	return false, "no recognizable configuration markers found"
}
