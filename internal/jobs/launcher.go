package jobs

import (
	"context"
	"os"
	"os/exec"

	logx "reportd/pkg/logx"
)

// ExecLauncher spawns the extract binary as a detached child process. The
// child inherits the daemon's environment (Jira credentials travel via env).
type ExecLauncher struct {
	Bin    string
	Config string // optional --config forwarded to the child
	Log    logx.Logger
}

type procHandle struct {
	proc *os.Process
}

func (h procHandle) Signal(sig os.Signal) error { return h.proc.Signal(sig) }
func (h procHandle) Pid() int                   { return h.proc.Pid }

// Start builds the command line from the task spec and starts the process
// without waiting. A background Wait reaps the child so it never lingers as
// a zombie; the exit status itself is irrelevant here because the task
// reports its outcome through the progress file.
func (l *ExecLauncher) Start(ctx context.Context, spec TaskSpec) (Handle, error) {
	// Deliberately not exec.CommandContext: the task must outlive the HTTP
	// request that submitted it.
	cmd := exec.Command(l.Bin, spec.Args(l.Config)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			l.Log.Debug("extraction task exited", logx.String("job_id", spec.JobID), logx.Err(err))
		}
	}()

	return procHandle{proc: cmd.Process}, nil
}
