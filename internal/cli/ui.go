package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/loqalabs/loqa-mic/internal/capture"
)

// terminalUI renders capture progress on stderr and results on stdout.
type terminalUI struct {
	mu      sync.Mutex
	out     io.Writer
	status  io.Writer
	ticking bool
}

func newTerminalUI(out, status io.Writer) *terminalUI {
	return &terminalUI{out: out, status: status}
}

func (u *terminalUI) OnTick(elapsed string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintf(u.status, "\r● recording %s", elapsed)
	u.ticking = true
}

func (u *terminalUI) OnError(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.endLine()
	fmt.Fprintf(u.status, "error: %s\n", capture.DisplayText(capture.Result{}, err))
}

func (u *terminalUI) OnResult(res capture.Result) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.endLine()
	fmt.Fprintln(u.out, capture.DisplayText(res, nil))
	if len(res.Analysis) == 0 || string(res.Analysis) == "null" {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, res.Analysis, "", "  "); err != nil {
		fmt.Fprintln(u.out, string(res.Analysis))
		return
	}
	fmt.Fprintln(u.out, pretty.String())
}

func (u *terminalUI) message(format string, args ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.endLine()
	fmt.Fprintf(u.status, format+"\n", args...)
}

func (u *terminalUI) endLine() {
	if u.ticking {
		fmt.Fprintln(u.status)
		u.ticking = false
	}
}
