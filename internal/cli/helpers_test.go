package cli

import (
	"bytes"
	"io"
	"os"
	"testing"
)

// captureStdout runs fn and returns what it wrote to stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	prevOS, prevEnvelope := os.Stdout, stdout
	os.Stdout, stdout = w, w
	defer func() { os.Stdout, stdout = prevOS, prevEnvelope }()

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()
	w.Close()
	return <-done
}
