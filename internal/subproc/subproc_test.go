package subproc

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	r := Runner{}
	res, err := r.Run(context.Background(), "", "sh", "-c", "echo out; echo err 1>&2; exit 3")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(string(res.Stdout), "out") {
		t.Errorf("Stdout = %q, want to contain 'out'", res.Stdout)
	}
	if !strings.Contains(string(res.Stderr), "err") {
		t.Errorf("Stderr = %q, want to contain 'err'", res.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	r := Runner{Timeout: 50 * time.Millisecond}
	_, err := r.Run(context.Background(), "", "sleep", "5")
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}
