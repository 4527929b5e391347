// Package columnar provides the fixed-width columnar batch format exchanged
// between row sources, the processing engine, and result sinks.
package columnar

import (
	"fmt"
	"sync"
)

// ColumnType represents the data type of a column
type ColumnType int

const (
	ColumnTypeString ColumnType = iota
	ColumnTypeUint64
)

// Column is the base interface for all column types
type Column interface {
	Type() ColumnType
	Len() int
	Get(i int) interface{}
	Append(value interface{}) error
	Clear()
	MemoryUsage() int64
}

// StringColumn stores string values with dictionary encoding for columns
// dominated by repeated values (author IDs, for instance).
type StringColumn struct {
	values []string
	dict   map[string]uint32
	rev    []string
	codes  []uint32
	// Switch to dictionary encoding once repetition exceeds the threshold.
	dictMode  bool
	threshold float64
}

// NewStringColumn creates a new string column
func NewStringColumn() *StringColumn {
	return &StringColumn{
		values:    make([]string, 0, 1024),
		threshold: 0.5,
	}
}

func (c *StringColumn) Type() ColumnType { return ColumnTypeString }

func (c *StringColumn) Len() int {
	if c.dictMode {
		return len(c.codes)
	}
	return len(c.values)
}

func (c *StringColumn) Get(i int) interface{} {
	return c.GetString(i)
}

// GetString returns the value at index i without boxing.
func (c *StringColumn) GetString(i int) string {
	if c.dictMode {
		return c.rev[c.codes[i]]
	}
	return c.values[i]
}

func (c *StringColumn) Append(value interface{}) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	c.AppendString(str)
	return nil
}

// AppendString appends a value without boxing.
func (c *StringColumn) AppendString(str string) {
	if c.dictMode {
		code, exists := c.dict[str]
		if !exists {
			code = uint32(len(c.rev))
			c.dict[str] = code
			c.rev = append(c.rev, str)
		}
		c.codes = append(c.codes, code)
		return
	}

	c.values = append(c.values, str)

	if len(c.values) > 100 && c.shouldUseDictionary() {
		c.convertToDictionary()
	}
}

func (c *StringColumn) shouldUseDictionary() bool {
	unique := make(map[string]struct{}, len(c.values))
	for _, v := range c.values {
		unique[v] = struct{}{}
	}
	ratio := float64(len(unique)) / float64(len(c.values))
	return ratio < c.threshold
}

func (c *StringColumn) convertToDictionary() {
	c.dictMode = true
	c.dict = make(map[string]uint32)
	c.rev = c.rev[:0]
	c.codes = make([]uint32, 0, len(c.values))

	for _, v := range c.values {
		code, exists := c.dict[v]
		if !exists {
			code = uint32(len(c.rev))
			c.dict[v] = code
			c.rev = append(c.rev, v)
		}
		c.codes = append(c.codes, code)
	}

	// Free row storage once encoded
	c.values = nil
}

func (c *StringColumn) Clear() {
	c.values = c.values[:0]
	c.codes = c.codes[:0]
	c.dict = nil
	c.rev = nil
	c.dictMode = false
}

func (c *StringColumn) MemoryUsage() int64 {
	var total int64
	if c.dictMode {
		for _, v := range c.rev {
			total += int64(len(v)) + 16
		}
		total += int64(len(c.codes)) * 4
		return total
	}
	for _, v := range c.values {
		total += int64(len(v)) + 16
	}
	return total
}

// Uint64Column stores unsigned counts.
type Uint64Column struct {
	values []uint64
}

// NewUint64Column creates a new uint64 column
func NewUint64Column() *Uint64Column {
	return &Uint64Column{values: make([]uint64, 0, 1024)}
}

func (c *Uint64Column) Type() ColumnType     { return ColumnTypeUint64 }
func (c *Uint64Column) Len() int             { return len(c.values) }
func (c *Uint64Column) Get(i int) interface{} { return c.values[i] }

// GetUint64 returns the value at index i without boxing.
func (c *Uint64Column) GetUint64(i int) uint64 { return c.values[i] }

func (c *Uint64Column) Append(value interface{}) error {
	switch v := value.(type) {
	case uint64:
		c.values = append(c.values, v)
	case int:
		if v < 0 {
			return fmt.Errorf("negative value %d for uint64 column", v)
		}
		c.values = append(c.values, uint64(v))
	default:
		return fmt.Errorf("expected uint64, got %T", value)
	}
	return nil
}

// AppendUint64 appends a value without boxing.
func (c *Uint64Column) AppendUint64(v uint64) {
	c.values = append(c.values, v)
}

func (c *Uint64Column) Clear() {
	c.values = c.values[:0]
}

func (c *Uint64Column) MemoryUsage() int64 {
	return int64(len(c.values)) * 8
}

// Schema defines the ordered columns of a batch.
type Schema struct {
	Fields []FieldSchema
}

// FieldSchema defines a single field in the schema
type FieldSchema struct {
	Name string
	Type ColumnType
}

// Batch is a fixed-width columnar batch: every column holds exactly
// RowCount values. Batches are the unit of exchange through the engine.
type Batch struct {
	mu       sync.RWMutex
	schema   Schema
	columns  []Column
	byName   map[string]int
	rowCount int
}

// NewBatch creates an empty batch with the given schema.
func NewBatch(schema Schema) *Batch {
	b := &Batch{
		schema:  schema,
		columns: make([]Column, len(schema.Fields)),
		byName:  make(map[string]int, len(schema.Fields)),
	}
	for i, field := range schema.Fields {
		b.byName[field.Name] = i
		switch field.Type {
		case ColumnTypeUint64:
			b.columns[i] = NewUint64Column()
		default:
			b.columns[i] = NewStringColumn()
		}
	}
	return b
}

// Schema returns the batch schema.
func (b *Batch) Schema() Schema {
	return b.schema
}

// RowCount returns the number of rows in the batch.
func (b *Batch) RowCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rowCount
}

// Column returns the named column, or nil if absent.
func (b *Batch) Column(name string) Column {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.byName[name]
	if !ok {
		return nil
	}
	return b.columns[idx]
}

// AppendRow appends one row. Values must match the schema order.
func (b *Batch) AppendRow(values ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(values) != len(b.columns) {
		return fmt.Errorf("expected %d values, got %d", len(b.columns), len(values))
	}
	for i, v := range values {
		if err := b.columns[i].Append(v); err != nil {
			return fmt.Errorf("column %q: %w", b.schema.Fields[i].Name, err)
		}
	}
	b.rowCount++
	return nil
}

// MemoryUsage returns the approximate heap footprint of the batch.
func (b *Batch) MemoryUsage() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int64
	for _, col := range b.columns {
		total += col.MemoryUsage()
	}
	return total
}

// Clear drops all rows, retaining column capacity for reuse.
func (b *Batch) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, col := range b.columns {
		col.Clear()
	}
	b.rowCount = 0
}

// MessageSchema is the input schema: one message row per (author, text).
func MessageSchema() Schema {
	return Schema{Fields: []FieldSchema{
		{Name: "author", Type: ColumnTypeString},
		{Name: "text", Type: ColumnTypeString},
	}}
}

// ResultSchema is the output schema: one deduplicated tally per row.
func ResultSchema() Schema {
	return Schema{Fields: []FieldSchema{
		{Name: "ngram", Type: ColumnTypeString},
		{Name: "author", Type: ColumnTypeString},
		{Name: "count", Type: ColumnTypeUint64},
	}}
}
