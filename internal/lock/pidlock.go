// Package lock prevents concurrent gateway instances via a pid file.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// PIDLock holds an exclusive flock on a pid file for the process lifetime.
type PIDLock struct {
	path string
	file *os.File
}

// Acquire takes the lock at path, writing the current pid into the file.
// It fails when another live process already holds the lock.
func Acquire(path string) (*PIDLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening pid file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readPID(f)
		f.Close()
		if holder > 0 {
			return nil, fmt.Errorf("another instance is running (pid %d)", holder)
		}
		return nil, fmt.Errorf("acquiring pid lock: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing pid: %w", err)
	}

	return &PIDLock{path: path, file: f}, nil
}

// Release drops the lock and removes the pid file. Safe on a nil lock.
func (l *PIDLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("releasing pid lock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing pid file: %w", err)
	}
	l.file = nil

	os.Remove(l.path)
	return nil
}

func readPID(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
