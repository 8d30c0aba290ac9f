package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// ChecksumFileName is written next to the config to pin its contents.
const ChecksumFileName = ".checksums"

// ComputeBlake3Hash returns the hex BLAKE3 digest of the file at path.
func ComputeBlake3Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteChecksum records the config file hash beside it, creating or
// replacing the checksum file.
func WriteChecksum(configPath string) error {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("%s  %s\n", hash, filepath.Base(configPath))
	checksumPath := filepath.Join(filepath.Dir(configPath), ChecksumFileName)
	if err := os.WriteFile(checksumPath, []byte(line), 0o644); err != nil {
		return fmt.Errorf("writing checksum file: %w", err)
	}
	return nil
}

// VerifyChecksum compares the config file against its recorded hash.
// It returns an error when no checksum file exists or the hash differs.
func VerifyChecksum(configPath string) error {
	checksumPath := filepath.Join(filepath.Dir(configPath), ChecksumFileName)
	data, err := os.ReadFile(checksumPath)
	if err != nil {
		return fmt.Errorf("reading checksum file: %w", err)
	}

	want := ""
	base := filepath.Base(configPath)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == base {
			want = fields[0]
			break
		}
	}
	if want == "" {
		return fmt.Errorf("no checksum recorded for %s", base)
	}

	got, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("config file %s has been modified (hash mismatch)", base)
	}
	return nil
}
