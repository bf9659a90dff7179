package mx

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"go.uber.org/zap"
)

// DefaultRuntimeCommand is the bundled runtime host binary, looked up on
// PATH when the config does not name one.
const DefaultRuntimeCommand = "maxrt"

// maxEnvelopeSize bounds a single response line. Chat pages with inlined
// attachments get large, but not this large.
const maxEnvelopeSize = 16 << 20

// Bridge hosts the embedded runtime as a child process and speaks its
// line-oriented protocol: one JSON request per Invoke on stdin, one JSON
// envelope line back on stdout. The process is single-threaded and handles
// one request at a time; Bridge is therefore not safe for concurrent use and
// must only be driven through the executor.
type Bridge struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Scanner
	logger *zap.Logger
}

// NewBridge starts the runtime host process in workDir.
func NewBridge(command, workDir string, logger *zap.Logger) (*Bridge, error) {
	if command == "" {
		command = DefaultRuntimeCommand
	}
	cmd := exec.Command(command)
	cmd.Dir = workDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("runtime stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runtime stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start runtime %s: %w", command, err)
	}
	logger.Info("runtime host started",
		zap.String("command", command),
		zap.Int("pid", cmd.Process.Pid))

	out := bufio.NewScanner(stdout)
	out.Buffer(make([]byte, 64<<10), maxEnvelopeSize)
	return &Bridge{cmd: cmd, stdin: stdin, out: out, logger: logger}, nil
}

type bridgeRequest struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args,omitempty"`
}

// Invoke sends one operation and blocks for its envelope line.
func (b *Bridge) Invoke(op string, args map[string]any) (string, error) {
	req, err := json.Marshal(bridgeRequest{Op: op, Args: args})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", op, err)
	}
	req = append(req, '\n')
	if _, err := b.stdin.Write(req); err != nil {
		return "", fmt.Errorf("write %s: %w", op, err)
	}

	if !b.out.Scan() {
		if err := b.out.Err(); err != nil {
			return "", fmt.Errorf("read %s: %w", op, err)
		}
		return "", fmt.Errorf("read %s: runtime closed its stdout", op)
	}
	return b.out.Text(), nil
}

// Close shuts the runtime process down by closing its stdin and waiting for
// exit.
func (b *Bridge) Close() error {
	_ = b.stdin.Close()
	err := b.cmd.Wait()
	if err != nil {
		b.logger.Warn("runtime host exited with error", zap.Error(err))
		return err
	}
	b.logger.Info("runtime host stopped")
	return nil
}
