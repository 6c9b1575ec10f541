//go:build darwin

package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

// Send sends a macOS notification using osascript
func Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q sound name "Glass"`, message, title)
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

// SendSyncSummary sends a summary of a finished sync
func SendSyncSummary(added, updated int, errs []string) error {
	if len(errs) > 0 {
		title := "❌ ttrak: Sync Failed"
		return Send(title, truncate(strings.Join(errs, "; "), 100))
	}
	title := "✅ ttrak: Synced"
	message := fmt.Sprintf("%d added, %d updated", added, updated)
	return Send(title, message)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
