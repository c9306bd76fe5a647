//go:build ignore

// build.go - langworker build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: build, test, release, clean

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	module  = "langworker"
	mainPkg = "./cmd/langworker"
	distDir = "dist"
)

// releaseTargets are the GOOS/GOARCH pairs built by -target=release
var releaseTargets = []string{
	"linux/amd64",
	"linux/arm64",
	"darwin/arm64",
	"windows/amd64",
}

var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
)

func main() {
	target := flag.String("target", "build", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if runtime.GOOS == "windows" {
		colorReset, colorRed, colorGreen, colorBlue, colorYellow = "", "", "", "", ""
	}

	start := time.Now()
	var err error
	switch *target {
	case "build":
		err = build(runtime.GOOS, runtime.GOARCH, *verbose)
	case "test":
		err = runTests(*verbose)
	case "release":
		err = release(*verbose)
	case "clean":
		err = os.RemoveAll(distDir)
	default:
		showHelp()
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("%s completed in %s", *target, time.Since(start).Round(time.Millisecond)))
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func printWarning(msg string) {
	fmt.Printf("%s[WARNING]%s %s\n", colorYellow, colorReset, msg)
}

// ldflags stamps the build time and commit into pkg/contracts
func ldflags() string {
	commit := "unknown"
	if out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		commit = strings.TrimSpace(string(out))
	} else {
		printWarning("git commit not available, stamping \"unknown\"")
	}
	return fmt.Sprintf("-s -w -X %s/pkg/contracts.BuildTime=%s -X %s/pkg/contracts.GitCommit=%s",
		module, time.Now().UTC().Format(time.RFC3339), module, commit)
}

func build(goos, goarch string, verbose bool) error {
	name := module
	if goos == "windows" {
		name += ".exe"
	}
	output := filepath.Join(distDir, goos+"_"+goarch, name)
	printInfo(fmt.Sprintf("Building %s for %s/%s", output, goos, goarch))

	args := []string{"build", "-trimpath", "-ldflags", ldflags(), "-o", output}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, mainPkg)

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS="+goos, "GOARCH="+goarch)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build %s/%s: %w", goos, goarch, err)
	}
	return nil
}

func runTests(verbose bool) error {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")

	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go tests failed: %w", err)
	}
	return nil
}

func release(verbose bool) error {
	if err := os.RemoveAll(distDir); err != nil {
		return err
	}
	if err := runTests(verbose); err != nil {
		return err
	}
	for _, t := range releaseTargets {
		goos, goarch, _ := strings.Cut(t, "/")
		if err := build(goos, goarch, verbose); err != nil {
			return err
		}
	}
	return nil
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  build    Build langworker for the host platform (default)")
	fmt.Println("  test     Run all Go tests with the race detector")
	fmt.Println("  release  Test, then cross-compile into dist/")
	fmt.Println("  clean    Remove dist/")
}
