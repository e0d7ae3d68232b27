package appspec

import (
	"encoding/binary"
	"math"

	"github.com/asplang/asp/internal/format"
)

// LiteralKind discriminates the value held by a Literal.
type LiteralKind uint8

const (
	LiteralNone LiteralKind = iota
	LiteralEllipsis
	LiteralBoolean
	LiteralInteger
	LiteralFloat
	LiteralString
)

// Literal is an immutable typed value. Literals are copied by value into the
// binary spec and, at load time, into the engine's data arena.
type Literal struct {
	Kind    LiteralKind
	Boolean bool
	Integer int32
	Float   float64
	String  string
}

func (l *Literal) tag() byte {
	switch l.Kind {
	case LiteralEllipsis:
		return format.ValueEllipsis
	case LiteralBoolean:
		return format.ValueBoolean
	case LiteralInteger:
		return format.ValueInteger
	case LiteralFloat:
		return format.ValueFloat
	case LiteralString:
		return format.ValueString
	}
	return format.ValueNone
}

// appendSpec serializes the literal the way the engine payload stores it:
// a type tag, then a fixed-width big-endian value, with strings carrying a
// 4-byte length prefix.
func (l *Literal) appendSpec(b []byte) []byte {
	b = append(b, l.tag())
	switch l.Kind {
	case LiteralBoolean:
		if l.Boolean {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	case LiteralInteger:
		b = binary.BigEndian.AppendUint32(b, uint32(l.Integer))
	case LiteralFloat:
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(l.Float))
	case LiteralString:
		b = binary.BigEndian.AppendUint32(b, uint32(len(l.String)))
		b = append(b, l.String...)
	}
	return b
}

// appendCheck serializes the literal's check-value contribution, which is the
// spec form except that strings contribute their raw bytes with no length.
func (l *Literal) appendCheck(b []byte) []byte {
	if l.Kind == LiteralString {
		b = append(b, l.tag())
		return append(b, l.String...)
	}
	return l.appendSpec(b)
}
