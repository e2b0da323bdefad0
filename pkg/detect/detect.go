// Package detect derives per-project facts the generator cannot be trusted
// to guess: the unit-test command and the application port.
package detect

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"dockhand/pkg/logx"
	"dockhand/pkg/project"
)

// DefaultPort is used when no other source names one.
const DefaultPort = 9528

// DefaultTestCommand is the last-resort unit-test command.
const DefaultTestCommand = "npx jest tests/unit/utils/validate.spec.js"

// knownTestFiles are project-relative spec paths tried in order.
var knownTestFiles = []string{
	"tests/unit/utils/validate.spec.js",
	"tests/unit/utils/formatTime.spec.js",
	"test/unit/utils/validate.spec.js",
}

// placeholderTest matches npm's default unconfigured test script.
var placeholderTest = regexp.MustCompile(`(?i)no test specified`)

// TestCommand picks the command run inside the container to verify the
// image. The result is never empty; a WARN is logged when nothing
// project-specific is found and the default is used.
func TestCommand(ctx *project.Context, log *logx.Logger) string {
	if ctx.Package != nil {
		if script, ok := ctx.Package.Scripts["test"]; ok {
			script = strings.TrimSpace(script)
			if script != "" && !placeholderTest.MatchString(script) {
				return "npm test"
			}
		}
	}

	for _, rel := range knownTestFiles {
		if _, err := os.Stat(filepath.Join(ctx.Root, rel)); err == nil {
			return "npx jest " + rel
		}
	}

	if ctx.Package != nil {
		runner := testRunnerDep(ctx.Package)
		if runner != "" {
			if dir := testDir(ctx.Root); dir != "" {
				return "npx " + runner + " " + dir
			}
			return "npx " + runner
		}
	}

	if dir := testDir(ctx.Root); dir != "" {
		return "npx jest " + dir
	}

	log.Warn("no test configuration found in project, falling back to default: %s", DefaultTestCommand)
	return DefaultTestCommand
}

// testRunnerDep returns the first known test runner found among the
// project's dependencies.
func testRunnerDep(pkg *project.PackageJSON) string {
	for _, runner := range []string{"jest", "vitest", "mocha"} {
		if _, ok := pkg.DevDependencies[runner]; ok {
			return runner
		}
		if _, ok := pkg.Dependencies[runner]; ok {
			return runner
		}
	}
	return ""
}

// testDir returns the conventional test directory if the project has one.
func testDir(root string) string {
	for _, d := range []string{"tests", "test"} {
		if info, err := os.Stat(filepath.Join(root, d)); err == nil && info.IsDir() {
			return d + "/"
		}
	}
	return ""
}

var (
	exposeRe    = regexp.MustCompile(`(?im)^\s*EXPOSE\s+(\d{2,5})`)
	localhostRe = regexp.MustCompile(`(?i)localhost:(\d{2,5})`)
	portFlagRe  = regexp.MustCompile(`(?:--port[= ]|PORT=)(\d{2,5})`)
	envPortRe   = regexp.MustCompile(`(?m)^\s*PORT\s*=\s*(\d{2,5})`)
)

// Port determines the application port, trying the generated Dockerfile's
// EXPOSE line, then README localhost URLs, then package.json script flags,
// then .env files, and finally DefaultPort.
func Port(ctx *project.Context, dockerfileText string) int {
	if p := firstPort(exposeRe, dockerfileText); p != 0 {
		return p
	}
	if p := firstPort(localhostRe, ctx.ReadmeText); p != 0 {
		return p
	}
	if ctx.Package != nil {
		for _, script := range ctx.Package.Scripts {
			if p := firstPort(portFlagRe, script); p != 0 {
				return p
			}
		}
	}
	for _, name := range []string{".env", ".env.development", ".env.local"} {
		data, err := os.ReadFile(filepath.Join(ctx.Root, name))
		if err != nil {
			continue
		}
		if p := firstPort(envPortRe, string(data)); p != 0 {
			return p
		}
	}
	return DefaultPort
}

func firstPort(re *regexp.Regexp, text string) int {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	p, err := strconv.Atoi(m[1])
	if err != nil || p < 1 || p > 65535 {
		return 0
	}
	return p
}
