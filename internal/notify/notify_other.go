//go:build !darwin

package notify

// Send is a no-op on non-darwin platforms
func Send(title, message string) error {
	return nil
}

// SendSyncSummary is a no-op on non-darwin platforms
func SendSyncSummary(added, updated int, errs []string) error {
	return nil
}
