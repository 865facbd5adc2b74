package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

// The binary is built once per test process and shared by every server.
var build struct {
	sync.Mutex
	path string
	err  error
}

// CLIResult is the decoded --json envelope of one command, plus its exit
// code and raw stdout.
type CLIResult struct {
	OK       bool                   `json:"ok"`
	Data     map[string]interface{} `json:"data"`
	Error    *CLIError              `json:"error"`
	Warnings []CLIWarning           `json:"warnings"`
	Count    int                    `json:"-"`

	Stdout   string `json:"-"`
	ExitCode int    `json:"-"`
}

type CLIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

type CLIWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// BuildCLI compiles cmd/omero-transfer into a temporary directory and
// returns the binary path.
func BuildCLI(t *testing.T) string {
	t.Helper()
	build.Lock()
	defer build.Unlock()

	if build.path != "" {
		if _, err := os.Stat(build.path); err == nil {
			return build.path
		}
		build.path, build.err = "", nil
	}
	if build.err == nil {
		build.path, build.err = compileCLI()
	}
	if build.err != nil {
		t.Fatalf("building omero-transfer: %v", build.err)
	}
	return build.path
}

func compileCLI() (string, error) {
	root, err := moduleRoot()
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp("", "omero-transfer-bin-*")
	if err != nil {
		return "", err
	}
	name := "omero-transfer"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	bin := filepath.Join(dir, name)
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/omero-transfer")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w\n%s", err, out)
	}
	return bin, nil
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above " + dir)
		}
		dir = parent
	}
}

// RunCLI runs the binary in the server workspace with the server's config
// and --json, and decodes the envelope from stdout. Logs on stderr are
// ignored.
func (s *TestServer) RunCLI(args ...string) *CLIResult {
	s.t.Helper()
	bin := BuildCLI(s.t)

	cmd := exec.Command(bin, append([]string{"--config", s.ConfigPath, "--json"}, args...)...)
	cmd.Dir = s.Dir
	out, err := cmd.Output()

	res := &CLIResult{Stdout: string(out)}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -1
	}

	var meta struct {
		Meta *struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(out, res); err != nil {
		res.OK = false
		res.Error = &CLIError{Code: "PARSE_ERROR", Message: fmt.Sprintf("decoding output: %v", err)}
		return res
	}
	if json.Unmarshal(out, &meta) == nil && meta.Meta != nil {
		res.Count = meta.Meta.Count
	}
	return res
}

func (r *CLIResult) MustSucceed(t *testing.T) *CLIResult {
	t.Helper()
	if !r.OK {
		msg := "no error in envelope"
		if r.Error != nil {
			msg = r.Error.Code + ": " + r.Error.Message
		}
		t.Fatalf("command failed: %s\nstdout: %s", msg, r.Stdout)
	}
	return r
}

// MustFail checks the command failed with code and a nonzero exit.
func (r *CLIResult) MustFail(t *testing.T, code string) *CLIResult {
	t.Helper()
	switch {
	case r.OK:
		t.Fatalf("command succeeded, want %s\nstdout: %s", code, r.Stdout)
	case r.Error == nil:
		t.Fatalf("no error in envelope, want %s\nstdout: %s", code, r.Stdout)
	case r.Error.Code != code:
		t.Fatalf("error code %s (%s), want %s", r.Error.Code, r.Error.Message, code)
	case r.ExitCode == 0:
		t.Fatalf("exit code 0 for failed command %s", code)
	}
	return r
}

// DataList returns Data[key] when it is a JSON array.
func (r *CLIResult) DataList(key string) []interface{} {
	list, _ := r.Data[key].([]interface{})
	return list
}

// DataString returns Data[key] when it is a JSON string.
func (r *CLIResult) DataString(key string) string {
	s, _ := r.Data[key].(string)
	return s
}
