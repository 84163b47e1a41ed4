package model

import (
	"bytes"
	"encoding/json"
)

// Patch — поле частичного обновления с тремя состояниями:
// отсутствует (Set=false), явный null (Set=true, Null=true), значение.
type Patch[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// UnmarshalJSON вызывается только для присутствующего ключа,
// поэтому отсутствующее поле остаётся с Set=false.
func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	p.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.Null = true
		var zero T
		p.Value = zero
		return nil
	}
	p.Null = false
	return json.Unmarshal(data, &p.Value)
}

// PatchOf создаёт Patch со значением.
func PatchOf[T any](v T) Patch[T] {
	return Patch[T]{Set: true, Value: v}
}

// PatchNull создаёт Patch с явным null.
func PatchNull[T any]() Patch[T] {
	return Patch[T]{Set: true, Null: true}
}
