package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// ExecSpawner re-executes the current binary in worker mode. extraArgs are
// the shared flags every worker inherits (data dir, service URL, donation
// settings); the per-slot identity is appended on top. The wallet address is
// passed by reference only; the worker loads key material from the wallet
// file itself so no secrets cross the process boundary.
func ExecSpawner(extraArgs []string) Spawner {
	return func(ctx context.Context, slot int, address, devAddress string) (Process, error) {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating own binary: %w", err)
		}

		args := append([]string{}, extraArgs...)
		args = append(args,
			"--worker.slot", fmt.Sprintf("%d", slot),
			"--worker.address", address,
		)
		if devAddress != "" {
			args = append(args, "--worker.devaddress", devAddress)
		}

		cmd := exec.Command(self, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return (*execProcess)(cmd), nil
	}
}

type execProcess exec.Cmd

func (p *execProcess) Wait() error { return (*exec.Cmd)(p).Wait() }

func (p *execProcess) Signal(sig os.Signal) error {
	return (*exec.Cmd)(p).Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return (*exec.Cmd)(p).Process.Kill()
}
