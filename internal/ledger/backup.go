package ledger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Backup copies the whole database file aside and prunes backups older
// than the retention window, always keeping the newest one.
func (l *Ledger) Backup(retention time.Duration) error {
	if _, err := os.Stat(l.path); err != nil {
		return fmt.Errorf("ledger file missing: %w", err)
	}

	dst := fmt.Sprintf("%s.backup_%s", l.path, time.Now().Format("20060102_150405"))
	if err := copyFile(l.path, dst); err != nil {
		return fmt.Errorf("backup ledger: %w", err)
	}

	return l.pruneBackups(retention)
}

func (l *Ledger) pruneBackups(retention time.Duration) error {
	backups, err := filepath.Glob(l.path + ".backup_*")
	if err != nil {
		return err
	}

	var newest string
	var newestMod time.Time
	mods := make(map[string]time.Time, len(backups))
	for _, b := range backups {
		info, err := os.Stat(b)
		if err != nil {
			continue
		}
		mods[b] = info.ModTime()
		if info.ModTime().After(newestMod) {
			newest = b
			newestMod = info.ModTime()
		}
	}

	cutoff := time.Now().Add(-retention)
	for b, mod := range mods {
		if b == newest || mod.After(cutoff) {
			continue
		}
		if err := os.Remove(b); err != nil {
			return fmt.Errorf("prune backup %s: %w", b, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
