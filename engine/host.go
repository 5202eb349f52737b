package engine

import (
	"context"
	"encoding/binary"

	"github.com/stealthrocket/wazergo"
	"github.com/stealthrocket/wazergo/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/resource"
	"github.com/wippyai/membind/structure"
)

// HostModuleName is the import module guests describe their types with.
const HostModuleName = "membind"

// MemberRecordSize is the size of the record passed to attach_member.
const MemberRecordSize = 24

// Member record flags.
const (
	MemberSigned = 1 << iota
	MemberStatic
)

// Method flags passed to attach_method.
const (
	MethodStatic = 1 << iota
	MethodStaticOnly
)

var hostModule wazergo.HostModule[*hostState] = hostFunctions{
	"begin_structure":    wazergo.F4((*hostState).BeginStructure),
	"attach_member":      wazergo.F3((*hostState).AttachMember),
	"attach_template":    wazergo.F4((*hostState).AttachTemplate),
	"attach_method":      wazergo.F5((*hostState).AttachMethod),
	"finalize_structure": wazergo.F1((*hostState).FinalizeStructure),
	"log":                wazergo.F2((*hostState).Log),
}

type hostFunctions wazergo.Functions[*hostState]

func (f hostFunctions) Name() string {
	return HostModuleName
}

func (f hostFunctions) Functions() wazergo.Functions[*hostState] {
	return (wazergo.Functions[*hostState])(f)
}

func (f hostFunctions) Instantiate(ctx context.Context, opts ...wazergo.Option[*hostState]) (*hostState, error) {
	s := &hostState{}
	wazergo.Configure(s, opts...)
	return s, nil
}

func withLoader(m *Module) wazergo.Option[*hostState] {
	return wazergo.OptionFunc(func(s *hostState) {
		s.loader = m
		m.state = s
	})
}

// hostState receives the description stream of one guest. registry is
// only set while Describe runs.
type hostState struct {
	loader   *Module
	registry *structure.Registry
	err      error
	// exports handed out during the description, pinned until it ends
	pinned []resource.Handle
}

func (s *hostState) Close(context.Context) error {
	return nil
}

func (s *hostState) begin(r *structure.Registry) {
	s.registry = r
	s.err = nil
}

func (s *hostState) end() error {
	err := s.err
	s.registry = nil
	s.err = nil
	for _, h := range s.pinned {
		s.loader.unpin(h)
	}
	s.pinned = nil
	return err
}

func (s *hostState) pin(name string) resource.Handle {
	h := s.loader.export(name, true)
	if h != 0 {
		s.pinned = append(s.pinned, h)
	}
	return h
}

func (s *hostState) fail(err error) types.Int32 {
	if s.err == nil {
		s.err = err
	}
	Logger().Debug("description rejected", zap.Error(err))
	return -1
}

func (s *hostState) structure(id types.Int32) (*structure.Structure, error) {
	if s.registry == nil {
		return nil, errors.IllegalState(errors.PhaseLoad, "", "description outside of describe")
	}
	st, ok := s.registry.ByID(uint32(id))
	if !ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Value(uint32(id)).
			Detail("unknown structure id %d", id).
			Build()
	}
	return st, nil
}

func (s *hostState) BeginStructure(ctx context.Context, kind types.Int32, name types.String, size types.Int32, align types.Int32) types.Int32 {
	if s.registry == nil {
		return s.fail(errors.IllegalState(errors.PhaseLoad, string(name), "description outside of describe"))
	}
	st, err := s.registry.Begin(structure.Descriptor{
		Name:     string(name),
		Kind:     structure.Kind(kind),
		ByteSize: int(size),
		Align:    int(align),
	})
	if err != nil {
		return s.fail(err)
	}
	return types.Int32(st.ID())
}

func (s *hostState) AttachMember(ctx context.Context, id types.Int32, name types.String, record types.Bytes) types.Int32 {
	st, err := s.structure(id)
	if err != nil {
		return s.fail(err)
	}
	m, err := s.decodeMember(string(name), record)
	if err != nil {
		return s.fail(errors.WithPath(err, st.Name()))
	}
	if err := s.registry.AttachMember(st, m); err != nil {
		return s.fail(err)
	}
	return 0
}

func (s *hostState) decodeMember(name string, rec []byte) (structure.Member, error) {
	if len(rec) != MemberRecordSize {
		return structure.Member{}, errors.InvalidData(errors.PhaseLoad, []string{name}, "member record has wrong size")
	}
	le := binary.LittleEndian
	m := structure.Member{
		Name:      name,
		Kind:      structure.MemberKind(rec[0]),
		Signed:    rec[1]&MemberSigned != 0,
		Static:    rec[1]&MemberStatic != 0,
		BitOffset: int(le.Uint32(rec[4:])),
		BitSize:   int(le.Uint32(rec[8:])),
		ByteSize:  int(le.Uint32(rec[12:])),
		Slot:      int(le.Uint32(rec[16:])),
	}
	if ref := le.Uint32(rec[20:]); ref != 0 {
		st, err := s.structure(types.Int32(ref))
		if err != nil {
			return m, err
		}
		m.Structure = st
	}
	return m, nil
}

func (s *hostState) AttachTemplate(ctx context.Context, id types.Int32, addr types.Uint32, size types.Uint32, static types.Int32) types.Int32 {
	st, err := s.structure(id)
	if err != nil {
		return s.fail(err)
	}
	var t *structure.Instance
	if static != 0 {
		// statics keep observing the guest's memory
		t, err = s.registry.ForeignTemplate(uint32(addr), uint32(size))
	} else {
		var b []byte
		if b, err = s.loader.memory.View(uint32(addr), uint32(size)); err == nil {
			t = structure.NewTemplate(b, nil)
		}
	}
	if err != nil {
		return s.fail(errors.WithPath(err, st.Name()))
	}
	if err := s.registry.AttachTemplate(st, t, static != 0); err != nil {
		return s.fail(err)
	}
	return 0
}

func (s *hostState) AttachMethod(ctx context.Context, id types.Int32, name types.String, export types.String, args types.Int32, flags types.Int32) types.Int32 {
	st, err := s.structure(id)
	if err != nil {
		return s.fail(err)
	}
	as, err := s.structure(args)
	if err != nil {
		return s.fail(errors.WithPath(err, st.Name(), string(name)))
	}
	m := structure.Method{
		Name:       string(name),
		ArgStruct:  as,
		Thunk:      structure.ThunkHandle(s.pin(string(export))),
		StaticOnly: flags&MethodStaticOnly != 0,
	}
	if err := s.registry.AttachMethod(st, m, flags&MethodStatic != 0); err != nil {
		return s.fail(err)
	}
	return 0
}

func (s *hostState) FinalizeStructure(ctx context.Context, id types.Int32) types.Int32 {
	st, err := s.structure(id)
	if err != nil {
		return s.fail(err)
	}
	if err := s.registry.Finalize(st); err != nil {
		return s.fail(err)
	}
	return 0
}

func (s *hostState) Log(ctx context.Context, level types.Int32, msg types.String) types.Int32 {
	lvl := zapcore.Level(level - 1)
	if lvl < zapcore.DebugLevel || lvl > zapcore.ErrorLevel {
		lvl = zapcore.InfoLevel
	}
	if ce := Logger().Check(lvl, string(msg)); ce != nil {
		ce.Write(zap.String("source", "guest"))
	}
	return 0
}
