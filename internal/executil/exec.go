// Package executil wraps os/exec invocations of the external CLI tools the
// agent shells out to (ovs-vsctl, ovs-ofctl, ip, nsenter, virsh, qemu-img).
// There is no Go library that replaces these — OVS interaction is
// explicitly subprocess-based per the agent's external interface contract
// (no libovsdb linkage), and virsh/qemu-img are CLI-first tools.
package executil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Run executes combinedArgs[0] with the rest as arguments, inheriting the
// environment, and returns an error wrapping combined stdout+stderr on
// failure.
func Run(ctx context.Context, combinedArgs ...string) error {
	_, err := RunWithOutput(ctx, combinedArgs...)
	return err
}

// RunWithOutput is like Run but also returns combined stdout+stderr on success.
func RunWithOutput(ctx context.Context, combinedArgs ...string) (string, error) {
	logrus.WithField("args", combinedArgs).Debug("executil: run")
	cmd := exec.CommandContext(ctx, combinedArgs[0], combinedArgs[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("run %v: %w; output: %s", combinedArgs, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// RunWithInput runs combinedArgs with input piped to stdin.
func RunWithInput(ctx context.Context, input string, combinedArgs ...string) error {
	cmd := exec.CommandContext(ctx, combinedArgs[0], combinedArgs[1:]...)
	cmd.Stdin = strings.NewReader(input)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %v: %w; output: %s", combinedArgs, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ExitCode extracts the process exit code from an error returned by Run,
// or -1 if it isn't an *exec.ExitError.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	for err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			*target = ee
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
