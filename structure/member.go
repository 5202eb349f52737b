package structure

// Descriptor opens a structure in the registry.
type Descriptor struct {
	Name     string
	Kind     Kind
	ByteSize int
	Align    int
}

// Member describes one field, array element or union arm. Offsets are
// precomputed by the foreign side; the registry never lays anything out.
type Member struct {
	// Structure is the referenced type for Object, EnumItem and Type members.
	Structure *Structure
	// Name is a field name or a decimal position for tuple-like members.
	Name      string
	BitOffset int
	BitSize   int
	// ByteSize is zero for sub-byte packed members.
	ByteSize int
	// Slot indexes the owning instance's slot map; Object members only.
	Slot   int
	Kind   MemberKind
	Signed bool
	Static bool
}

// ThunkHandle is an opaque identifier the loader resolves to a foreign
// entry point.
type ThunkHandle uint32

// Method is a foreign callable attached to a structure.
type Method struct {
	ArgStruct  *Structure
	thunk      *thunk
	Name       string
	Thunk      ThunkHandle
	StaticOnly bool
}

func (m Member) byteAligned() bool {
	return m.BitOffset%8 == 0
}

func (m Member) byteLength() int {
	if m.ByteSize > 0 {
		return m.ByteSize
	}
	if m.Structure != nil && m.Structure.byteSize > 0 {
		return m.Structure.byteSize
	}
	return (m.BitSize + 7) / 8
}

// member is a finalized member with its position in the owning structure.
type member struct {
	Member
	index int
}
