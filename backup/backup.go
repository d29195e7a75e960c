// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

// Package backup archives a payee's data directory: the payment database
// and the encrypted key files.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Directories under the data directory that are archived
const (
	PaymentsDir = "payments"
	KeysDir     = "keys"
)

var (
	ErrNothingToBackup = errors.New("no payment database or key files found")
	ErrUnsafePath      = errors.New("backup entry escapes the data directory")
)

// Manager manages backups of one data directory
type Manager struct {
	dataDir    string
	backupDir  string
	maxBackups int
}

// New creates a backup manager keeping at most maxBackups archives
func New(dataDir string, maxBackups int) *Manager {
	return &Manager{
		dataDir:    dataDir,
		backupDir:  filepath.Join(dataDir, "backups"),
		maxBackups: maxBackups,
	}
}

// Create writes a .tar.gz of the payment database and key files and returns
// its path. The database must not be open for writing.
func (m *Manager) Create(name string) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	if name == "" {
		name = fmt.Sprintf("backup-%s", time.Now().Format("2006-01-02-150405"))
	}
	backupPath := filepath.Join(m.backupDir, name+".tar.gz")

	log.Info("Creating backup", "path", backupPath)

	file, err := os.OpenFile(backupPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)

	archived := 0
	for _, dir := range []string{PaymentsDir, KeysDir} {
		src := filepath.Join(m.dataDir, dir)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			log.Debug("Skipping missing backup source", "dir", src)
			continue
		}
		if err := archiveDirectory(tw, src, dir); err != nil {
			err = fmt.Errorf("failed to archive %s: %w", dir, err)
			tw.Close()
			gz.Close()
			file.Close()
			os.Remove(backupPath)
			return "", err
		}
		archived++
	}

	err = tw.Close()
	if gzErr := gz.Close(); err == nil {
		err = gzErr
	}
	if fErr := file.Close(); err == nil {
		err = fErr
	}
	if err == nil && archived == 0 {
		err = ErrNothingToBackup
	}
	if err != nil {
		os.Remove(backupPath)
		return "", err
	}

	log.Info("Backup completed", "path", backupPath)
	if err := m.cleanupOldBackups(); err != nil {
		log.Warn("Failed to cleanup old backups", "err", err)
	}
	return backupPath, nil
}

// Restore extracts a backup into the data directory, overwriting files with
// the same names
func (m *Manager) Restore(backupPath string) error {
	log.Info("Restoring from backup", "path", backupPath)

	file, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	root := filepath.Clean(m.dataDir) + string(os.PathSeparator)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		targetPath := filepath.Join(m.dataDir, header.Name)
		if !strings.HasPrefix(targetPath, root) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0700); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0700); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			if _, err := io.Copy(outFile, tr); err != nil {
				outFile.Close()
				return fmt.Errorf("failed to write file: %w", err)
			}
			if err := outFile.Close(); err != nil {
				return err
			}
		default:
			log.Warn("Skipping unsupported backup entry", "name", header.Name, "type", header.Typeflag)
		}
	}

	log.Info("Restore completed", "path", backupPath)
	return nil
}

// List returns the available backups, oldest first
func (m *Manager) List() ([]os.FileInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result []os.FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ModTime().Before(result[j].ModTime())
	})
	return result, nil
}

// Delete removes a backup by file name
func (m *Manager) Delete(filename string) error {
	if filepath.Base(filename) != filename {
		return fmt.Errorf("%w: %s", ErrUnsafePath, filename)
	}
	if err := os.Remove(filepath.Join(m.backupDir, filename)); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	log.Info("Backup deleted", "file", filename)
	return nil
}

func archiveDirectory(tw *tar.Writer, srcDir, tarDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(tarDir, relPath))
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(tw, file)
		return err
	})
}

// cleanupOldBackups removes the oldest backups beyond maxBackups
func (m *Manager) cleanupOldBackups() error {
	if m.maxBackups <= 0 {
		return nil
	}
	files, err := m.List()
	if err != nil {
		return err
	}
	for i := 0; i < len(files)-m.maxBackups; i++ {
		if err := m.Delete(files[i].Name()); err != nil {
			log.Warn("Failed to delete old backup", "file", files[i].Name(), "err", err)
		}
	}
	return nil
}
