package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// CheckDirectory 输入目录必须已存在
func CheckDirectory(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("directory %s does not exist", path)
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", path, err)
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// CheckOutputDir 不存在时创建, 再确认可写
func CheckOutputDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", path, err)
	}

	f, err := os.CreateTemp(path, ".writable-")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", path, err)
	}
	f.Close()
	return os.Remove(f.Name())
}
