package corpus

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/exp/mmap"
)

// vectorMagic 二進位向量檔的開頭標記 "RSV1"
const vectorMagic uint32 = 0x31565352

const vectorHeaderSize = 12

var byteOrder = binary.LittleEndian

// Vectors 語料庫食譜向量集合（每筆食譜一列），可由記憶體或 mmap 檔案提供
type Vectors struct {
	rows, dim int
	data      []float32
	mapped    *mmap.ReaderAt
}

// NewVectors 以記憶體中的資料建立向量集合，data 長度必須為 rows*dim
func NewVectors(rows, dim int, data []float32) (*Vectors, error) {
	if len(data) != rows*dim {
		return nil, fmt.Errorf("vector data length %d does not match %dx%d", len(data), rows, dim)
	}
	return &Vectors{rows: rows, dim: dim, data: data}, nil
}

// Len 向量數
func (v *Vectors) Len() int { return v.rows }

// Dim 向量維度
func (v *Vectors) Dim() int { return v.dim }

// Row 取得第 i 列，mmap 來源時直接解碼到 dst（容量不足時重新配置），重複使用 dst 不會再配置記憶體
func (v *Vectors) Row(i int, dst []float32) ([]float32, error) {
	if i < 0 || i >= v.rows {
		return nil, fmt.Errorf("vector index %d out of range [0, %d)", i, v.rows)
	}
	if v.mapped == nil {
		return v.data[i*v.dim : (i+1)*v.dim], nil
	}
	if cap(dst) < v.dim {
		dst = make([]float32, v.dim)
	}
	dst = dst[:v.dim]
	if v.dim == 0 {
		return dst, nil
	}
	// dst 的底層位元組直接當讀取緩衝，再原地轉換位元組序
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), 4*v.dim)
	off := int64(vectorHeaderSize) + int64(i)*int64(4*v.dim)
	if _, err := v.mapped.ReadAt(raw, off); err != nil {
		return nil, fmt.Errorf("read vector %d: %w", i, err)
	}
	for j := range dst {
		dst[j] = math.Float32frombits(byteOrder.Uint32(raw[4*j:]))
	}
	return dst, nil
}

// Close 釋放 mmap 對應
func (v *Vectors) Close() error {
	if v.mapped == nil {
		return nil
	}
	err := v.mapped.Close()
	v.mapped = nil
	return err
}

// LoadBinaryVectors 以 mmap 開啟二進位向量檔：magic, rows uint32, dim uint32, 之後為 little-endian float32
func LoadBinaryVectors(path string) (*Vectors, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap file: %w", err)
	}
	if r.Len() < vectorHeaderSize {
		r.Close()
		return nil, fmt.Errorf("%s: file too small for header", path)
	}
	header := make([]byte, vectorHeaderSize)
	if _, err := r.ReadAt(header, 0); err != nil {
		r.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	if magic := byteOrder.Uint32(header); magic != vectorMagic {
		r.Close()
		return nil, fmt.Errorf("%s: invalid magic 0x%08x", path, magic)
	}
	rows := int(byteOrder.Uint32(header[4:]))
	dim := int(byteOrder.Uint32(header[8:]))
	if want := vectorHeaderSize + rows*dim*4; r.Len() != want {
		r.Close()
		return nil, fmt.Errorf("%s: expected %d bytes for %dx%d vectors, got %d", path, want, rows, dim, r.Len())
	}
	return &Vectors{rows: rows, dim: dim, mapped: r}, nil
}

// WriteBinaryVectors 以二進位格式輸出向量集合
func WriteBinaryVectors(w io.Writer, v *Vectors) error {
	bw := bufio.NewWriter(w)
	header := make([]byte, vectorHeaderSize)
	byteOrder.PutUint32(header, vectorMagic)
	byteOrder.PutUint32(header[4:], uint32(v.rows))
	byteOrder.PutUint32(header[8:], uint32(v.dim))
	if _, err := bw.Write(header); err != nil {
		return err
	}
	buf := make([]byte, 4)
	var row []float32
	for i := 0; i < v.rows; i++ {
		var err error
		row, err = v.Row(i, row)
		if err != nil {
			return err
		}
		for _, x := range row {
			byteOrder.PutUint32(buf, math.Float32bits(x))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// SaveBinaryVectors 寫入二進位向量檔
func SaveBinaryVectors(path string, v *Vectors) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteBinaryVectors(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadTextVectors 讀取文字格式（可為 .gz）的向量，每行一筆、空白分隔
func LoadTextVectors(path string) (*Vectors, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var data []float32
	rows, cols, err := scanMatrix(rc, func(_ int, values []float64) error {
		for _, x := range values {
			data = append(data, float32(x))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return NewVectors(rows, cols, data)
}

// LoadVectors 依副檔名選擇二進位（.f32）或文字格式
func LoadVectors(path string) (*Vectors, error) {
	if strings.HasSuffix(path, ".f32") {
		return LoadBinaryVectors(path)
	}
	return LoadTextVectors(path)
}

// FormatVector 將向量格式化為一行文字
func FormatVector(row []float32) string {
	parts := make([]string, len(row))
	for i, x := range row {
		parts[i] = strconv.FormatFloat(float64(x), 'g', -1, 32)
	}
	return strings.Join(parts, " ")
}
