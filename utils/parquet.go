package utils

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// 压缩格式版本, 写入 zip_ver 字段; 旧版本文件依旧可读, parquet 自描述编码
const (
	CodecVersionSnappy = 1
	CodecVersionZstd   = 2
)

func CodecFor(version int) (parquet.WriterOption, error) {
	switch version {
	case CodecVersionSnappy:
		return parquet.Compression(&parquet.Snappy), nil
	case CodecVersionZstd:
		return parquet.Compression(&parquet.Zstd), nil
	default:
		return nil, fmt.Errorf("unknown artifact codec version %d", version)
	}
}

type ParquetWriter[T any] struct {
	file   *os.File
	writer *parquet.GenericWriter[T]
}

// NewParquetWriter 初始化一个新的写入器
// options: 追加在默认配置之后, 可覆盖压缩方式
func NewParquetWriter[T any](filename string, options ...parquet.WriterOption) (*ParquetWriter[T], error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	defaultOpts := []parquet.WriterOption{
		parquet.Compression(&parquet.Zstd),
		parquet.PageBufferSize(64 * 1024),
	}
	finalOpts := append(defaultOpts, options...)

	pw := parquet.NewGenericWriter[T](f, finalOpts...)

	return &ParquetWriter[T]{
		file:   f,
		writer: pw,
	}, nil
}

func (p *ParquetWriter[T]) Write(data []T) error {
	_, err := p.writer.Write(data)
	return err
}

// Close 先写 footer 再关闭文件
func (p *ParquetWriter[T]) Close() error {
	if err := p.writer.Close(); err != nil {
		p.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := p.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}

// ReadParquet 读出整个文件
func ReadParquet[T any](filename string) ([]T, error) {
	rows, err := parquet.ReadFile[T](filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet %s: %w", filename, err)
	}
	return rows, nil
}
