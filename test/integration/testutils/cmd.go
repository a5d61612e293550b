package testutils

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(" +")

// RunMeshforge executes a meshforge command with the given arguments string (split by spaces).
// Use RunMeshforgeArgs when arguments contain spaces that should be preserved.
func RunMeshforge(ctx context.Context, env []string, binary, cmdArgs string, nolog bool) (stdout, stderr []byte, err error) {
	// Sanitize command.
	cmdArgs = strings.TrimSpace(cmdArgs)
	cmdArgs = multiSpaceRegex.ReplaceAllString(cmdArgs, " ")

	// Split into args.
	var args []string
	if cmdArgs != "" {
		args = strings.Split(cmdArgs, " ")
	}

	return RunMeshforgeArgs(ctx, env, binary, args, nolog)
}

// RunMeshforgeArgs executes a meshforge command with pre-split arguments.
// This preserves arguments that contain spaces (e.g. --prompt "a red chair").
func RunMeshforgeArgs(ctx context.Context, env []string, binary string, args []string, nolog bool) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &outData
	cmd.Stderr = &errData
	cmd.Env = commandEnv(env, nolog)

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}

// StartMeshforge starts a long running meshforge command (e.g. serve) in the background.
// The process is killed when ctx ends.
func StartMeshforge(ctx context.Context, env []string, binary string, args []string, nolog bool) (*exec.Cmd, *bytes.Buffer, error) {
	var errData bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &errData
	cmd.Env = commandEnv(env, nolog)

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	return cmd, &errData, nil
}

func commandEnv(env []string, nolog bool) []string {
	// os.Environ() first, then custom env overrides on top.
	// In Go's exec.Cmd, when duplicate keys exist, the last one wins.
	newEnv := append([]string{}, os.Environ()...)
	newEnv = append(newEnv, env...)
	if nolog {
		newEnv = append(newEnv, "MESHFORGE_NO_LOG=true")
	}
	return newEnv
}
