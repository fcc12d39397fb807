package utils

import (
	"os"
	"path/filepath"
)

func GetCacheDir() (string, error) {
	cacheDir := os.TempDir()

	appDir := filepath.Join(cacheDir, "spt2db-temp")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", err
	}

	return appDir, nil
}

// TempFile 在缓存目录下建一个临时文件路径, 调用方负责删除
func TempFile(pattern string) (string, error) {
	dir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	return name, f.Close()
}

// RemoveCacheDir 进程退出时清理缓存目录
func RemoveCacheDir() error {
	return os.RemoveAll(filepath.Join(os.TempDir(), "spt2db-temp"))
}
