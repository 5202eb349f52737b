package structure

// Kind selects the construction strategy of a Structure.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindArray
	KindStruct
	KindExternUnion
	KindBareUnion
	KindTaggedUnion
	KindErrorUnion
	KindErrorSet
	KindEnumeration
	KindOptional
	KindPointer
	KindSlice
	KindOpaque
	KindArgStruct
)

var kindNames = [...]string{
	KindPrimitive:   "primitive",
	KindArray:       "array",
	KindStruct:      "struct",
	KindExternUnion: "extern union",
	KindBareUnion:   "bare union",
	KindTaggedUnion: "tagged union",
	KindErrorUnion:  "error union",
	KindErrorSet:    "error set",
	KindEnumeration: "enumeration",
	KindOptional:    "optional",
	KindPointer:     "pointer",
	KindSlice:       "slice",
	KindOpaque:      "opaque",
	KindArgStruct:   "arg struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsUnion reports whether members of the kind share storage.
func (k Kind) IsUnion() bool {
	return k == KindExternUnion || k == KindBareUnion || k == KindTaggedUnion
}

// IsReference reports whether instances hold a relocatable reference
// instead of owning their payload bytes.
func (k Kind) IsReference() bool {
	return k == KindPointer || k == KindSlice
}

// MemberKind selects the codec of a member.
type MemberKind uint8

const (
	MemberBool MemberKind = iota
	MemberInt
	MemberFloat
	MemberEnumItem
	MemberObject
	MemberType
	MemberVoid
)

var memberKindNames = [...]string{
	MemberBool:     "bool",
	MemberInt:      "int",
	MemberFloat:    "float",
	MemberEnumItem: "enum item",
	MemberObject:   "object",
	MemberType:     "type",
	MemberVoid:     "void",
}

func (k MemberKind) String() string {
	if int(k) < len(memberKindNames) {
		return memberKindNames[k]
	}
	return "unknown"
}

func (k Kind) hasFields() bool {
	switch k {
	case KindStruct, KindArgStruct, KindExternUnion, KindBareUnion, KindTaggedUnion:
		return true
	}
	return false
}
