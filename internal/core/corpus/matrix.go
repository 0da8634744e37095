package corpus

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Matrix 稠密矩陣（列優先），建立後唯讀
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix 建立零矩陣
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// Rows 列數
func (m *Matrix) Rows() int { return m.rows }

// Cols 行數
func (m *Matrix) Cols() int { return m.cols }

// At 取得 (i, j) 元素
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

// Set 設定 (i, j) 元素，只在建構階段使用
func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

// Add 累加 (i, j) 元素，只在建構階段使用
func (m *Matrix) Add(i, j int, v float64) { m.data[i*m.cols+j] += v }

// Row 回傳第 i 列（共用底層陣列，呼叫端不可修改）
func (m *Matrix) Row(i int) []float64 { return m.data[i*m.cols : (i+1)*m.cols] }

// Sum 所有元素總和
func (m *Matrix) Sum() float64 {
	var s float64
	for _, v := range m.data {
		s += v
	}
	return s
}

// Flat 以攤平的索引 (i*cols + j) 取值
func (m *Matrix) Flat(idx int) float64 { return m.data[idx] }

// openMaybeGzip 依副檔名決定是否以 gzip 解壓
func openMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, closerFunc(func() error {
		gz.Close()
		return f.Close()
	})}, nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// scanMatrix 逐列解析 numpy savetxt 的空白分隔文字格式
func scanMatrix(r io.Reader, fn func(row int, values []float64) error) (rows, cols int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<30)

	var values []float64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if rows == 0 {
			cols = len(fields)
			values = make([]float64, cols)
		} else if len(fields) != cols {
			return 0, 0, fmt.Errorf("row %d: expected %d columns, got %d", rows, cols, len(fields))
		}
		for j, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("row %d col %d: %w", rows, j, err)
			}
			values[j] = v
		}
		if err := fn(rows, values); err != nil {
			return 0, 0, err
		}
		rows++
	}
	return rows, cols, scanner.Err()
}

// ReadMatrix 解析文字格式的稠密矩陣
func ReadMatrix(r io.Reader) (*Matrix, error) {
	var data []float64
	rows, cols, err := scanMatrix(r, func(_ int, values []float64) error {
		data = append(data, values...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// LoadMatrix 讀取文字格式（可為 .gz）的稠密矩陣
func LoadMatrix(path string) (*Matrix, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	m, err := ReadMatrix(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// WriteMatrix 以 numpy savetxt 相容的格式輸出，NaN 寫為 nan
func WriteMatrix(w io.Writer, m *Matrix) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < m.rows; i++ {
		for j, v := range m.Row(i) {
			if j > 0 {
				bw.WriteByte(' ')
			}
			if math.IsNaN(v) {
				bw.WriteString("nan")
				continue
			}
			bw.WriteString(strconv.FormatFloat(v, 'e', 18, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// SaveMatrix 寫入檔案
func SaveMatrix(path string, m *Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteMatrix(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
