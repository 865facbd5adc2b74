package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// jsonOutput is set by --json.
var jsonOutput bool

// stdout is where envelopes go; tests swap it.
var stdout io.Writer = os.Stdout

// Response is the envelope every command prints with --json. Data is
// present on success, Error on failure; warnings never fail a command.
type Response struct {
	OK       bool       `json:"ok"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Warnings []Warning  `json:"warnings,omitempty"`
	Meta     *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Warning is a non-fatal problem, such as an image left out of an unpack.
// Path names the package file it concerns, when there is one.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

type Meta struct {
	Count int `json:"count,omitempty"`
}

func isJSONOutput() bool { return jsonOutput }

func writeResponse(resp Response) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

func outputSuccess(data any, meta *Meta) {
	writeResponse(Response{OK: true, Data: data, Meta: meta})
}

func outputSuccessWithWarnings(data any, warnings []Warning, meta *Meta) {
	writeResponse(Response{OK: true, Data: data, Warnings: warnings, Meta: meta})
}

// handleError reports err under code. With --json the envelope is printed
// here and errReported returned so Execute exits nonzero without printing
// it again; otherwise the suggestion is appended to the returned error.
func handleError(code string, err error, suggestion string) error {
	if jsonOutput {
		writeResponse(Response{Error: &ErrorInfo{Code: code, Message: err.Error(), Suggestion: suggestion}})
		return errReported
	}
	if suggestion == "" {
		return err
	}
	return fmt.Errorf("%w\n\n%s", err, suggestion)
}

func handleErrorMsg(code, message, suggestion string) error {
	return handleError(code, errors.New(message), suggestion)
}

// fail reports err under the code of the sentinel it wraps.
func fail(err error) error {
	code := errorCode(err)
	return handleError(code, err, suggestionFor(code))
}
