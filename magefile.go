//go:build mage
// +build mage

package main

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

// binaries maps output names under bin/ to their main packages.
var binaries = map[string]string{
	"server":      "./cmd/server",
	"creativectl": "./cmd/creativectl",
}

// Build compiles every binary into bin/.
func Build() error {
	mg.Deps(Wire)

	names := make([]string, 0, len(binaries))
	for name := range binaries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Println("build", name)
		if err := sh.Run("go", "build", "-o", filepath.Join("bin", name), binaries[name]); err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
	}
	return nil
}

// Wire regenerates wire_gen.go next to every wire.go injector.
func Wire() error {
	dirs, err := walkFiles("wire.go")
	if err != nil {
		return fmt.Errorf("find injectors: %w", err)
	}
	for _, dir := range dirs {
		fmt.Println("wire", dir)
		if err := sh.Run("wire", dir); err != nil {
			return fmt.Errorf("wire %s: %w", dir, err)
		}
	}
	return nil
}

// walkFiles returns the package directories containing a file called name.
func walkFiles(name string) ([]string, error) {
	seen := map[string]bool{}
	var dirs []string
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != name {
			return nil
		}
		dir := "./" + filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
		return nil
	})
	return dirs, err
}

// ignored mirrors the go tool: vendor, build output and dot or underscore directories.
func ignored(name string) bool {
	return name == "vendor" || name == "bin" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Integration runs the suite against live backends, e.g. mage integration localhost:6379 "postgres://...".
// Pass "" for a backend to leave its tests skipped.
func Integration(redisAddr, databaseDSN string) error {
	env := map[string]string{
		"CREATIVE_TEST_REDIS_ADDR":    redisAddr,
		"CREATIVE_TEST_DATABASE_DSN": databaseDSN,
	}
	return sh.RunWithV(env, "go", "test", "-count=1", "./internal/adapter/...", "./internal/shared/...")
}

// Cover writes coverage.out.
func Cover() error {
	return sh.RunV("go", "test", "-covermode=atomic", "-coverprofile=coverage.out", "./...")
}

// Lint runs go vet and golangci-lint.
func Lint() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV("golangci-lint", "run", "./...")
}

// Score runs the content validator over a file with the example policy.
func Score(file string) error {
	mg.Deps(Build)
	return sh.RunV("./bin/creativectl", "score", "--config", "configs/config.yaml", "--policy", "configs/policy.yaml", file)
}

// Clean removes bin/, coverage output and generated injectors.
func Clean() error {
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	_ = os.Remove("coverage.out")

	dirs, err := walkFiles("wire_gen.go")
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, "wire_gen.go")
		fmt.Println("rm", path)
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// Dev builds and runs the server against configs/config.yaml.
func Dev() error {
	mg.Deps(Build)
	cmd := exec.Command("./bin/server", "-config", "configs/config.yaml")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// CI tidies, regenerates, lints and runs tests with coverage.
func CI() {
	mg.SerialDeps(Tidy, Wire, Lint, Cover)
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.Run("go", "mod", "tidy")
}

// Install fetches the code generation and lint tools.
func Install() error {
	for _, tool := range []string{
		"github.com/google/wire/cmd/wire@latest",
		"github.com/golangci/golangci-lint/cmd/golangci-lint@latest",
	} {
		fmt.Println("install", tool)
		if err := sh.Run("go", "install", tool); err != nil {
			return fmt.Errorf("install %s: %w", tool, err)
		}
	}
	return nil
}
