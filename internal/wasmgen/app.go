package wasmgen

// State layout of generated application modules. Every field is a
// little-endian u32 at the given offset into the State window.
const (
	OffsetFrames        = 0
	OffsetInitAll       = 4
	OffsetInitPartial   = 8
	OffsetGeneration    = 12
	OffsetQuitAfter     = 16
	OffsetDeInitAll     = 20
	OffsetDeInitPartial = 24

	// MinStateSize covers every field above.
	MinStateSize = 28
)

const (
	pageSize   = 65536
	greetingAt = 16
)

// App describes a generated application module that implements the
// six-entry-point contract.
type App struct {
	// Greeting is passed to env.log from InitAll and InitPartial when set.
	Greeting string

	// Omit lists entry points to leave out of the export section.
	Omit []string

	// WrongSignature lists entry points exported as () -> i32 instead of their
	// contract signature.
	WrongSignature []string

	// StateSize is the value MemorySize reports. Values below MinStateSize
	// are raised to it.
	StateSize uint32

	// Generation is written to the state by InitAll and InitPartial.
	Generation uint32

	// QuitAfter is written to the state by InitAll. MainLoop requests
	// shutdown once the frame counter reaches it; 0 never quits.
	QuitAfter uint32

	// TrapOnFrame makes MainLoop execute unreachable on that frame number.
	TrapOnFrame uint32

	// AllocStateAt exports AllocState returning this offset when non-zero.
	AllocStateAt uint32

	// InitFails makes InitAll report failure.
	InitFails bool

	// MemorySize64 exports MemorySize as () -> i64.
	MemorySize64 bool

	// HideMemory keeps the linear memory but does not export it.
	HideMemory bool
}

func (a App) has(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

// Build encodes the module.
func (a App) Build() []byte {
	size := a.StateSize
	if size < MinStateSize {
		size = MinStateSize
	}

	var (
		m         Module
		i32ToI32  = FuncType{Params: []ValType{I32}, Results: []ValType{I32}}
		i32ToNone = FuncType{Params: []ValType{I32}}
		noneToI32 = FuncType{Results: []ValType{I32}}
	)

	logIdx := uint32(0)
	greet := a.Greeting != ""
	if greet {
		logIdx = m.ImportFunc("env", "log", FuncType{Params: []ValType{I32, I32}})
		m.Data = append(m.Data, Data{Offset: greetingAt, Bytes: []byte(a.Greeting)})
	}
	logCall := func(c *Code) {
		if greet {
			c.I32Const(greetingAt).I32Const(int32(len(a.Greeting))).Call(logIdx)
		}
	}

	add := func(name string, ft FuncType, body *Code) {
		if a.has(a.Omit, name) {
			return
		}
		if a.has(a.WrongSignature, name) {
			ft = noneToI32
			body = (&Code{}).I32Const(0).End()
		}
		m.ExportFunc(name, m.AddFunc(ft, body.Bytes()))
	}

	if a.MemorySize64 {
		add("MemorySize", FuncType{Results: []ValType{I64}}, (&Code{}).I64Const(int64(size)).End())
	} else {
		add("MemorySize", noneToI32, (&Code{}).I32Const(int32(size)).End())
	}

	initAll := &Code{}
	initAll.LocalGet(0).I32Const(int32(a.Generation)).I32Store(OffsetGeneration)
	initAll.LocalGet(0).I32Const(int32(a.QuitAfter)).I32Store(OffsetQuitAfter)
	increment(initAll, OffsetInitAll)
	logCall(initAll)
	if a.InitFails {
		initAll.I32Const(0)
	} else {
		initAll.I32Const(1)
	}
	add("InitAll", i32ToI32, initAll.End())

	initPartial := &Code{}
	increment(initPartial, OffsetInitPartial)
	initPartial.LocalGet(0).I32Const(int32(a.Generation)).I32Store(OffsetGeneration)
	logCall(initPartial)
	add("InitPartial", i32ToNone, initPartial.End())

	deInitAll := &Code{}
	increment(deInitAll, OffsetDeInitAll)
	add("DeInitAll", i32ToNone, deInitAll.End())

	deInitPartial := &Code{}
	increment(deInitPartial, OffsetDeInitPartial)
	add("DeInitPartial", i32ToNone, deInitPartial.End())

	mainLoop := &Code{}
	increment(mainLoop, OffsetFrames)
	if a.TrapOnFrame != 0 {
		mainLoop.LocalGet(0).I32Load(OffsetFrames).I32Const(int32(a.TrapOnFrame)).Op(OpI32Eq).
			If().Op(OpUnreachable).End()
	}
	// quit = quitAfter != 0 && frames >= quitAfter
	mainLoop.LocalGet(0).I32Load(OffsetQuitAfter).I32Const(0).Op(OpI32Ne)
	mainLoop.LocalGet(0).I32Load(OffsetFrames).LocalGet(0).I32Load(OffsetQuitAfter).Op(OpI32GeU)
	mainLoop.Op(OpI32And)
	add("MainLoop", i32ToI32, mainLoop.End())

	if a.AllocStateAt != 0 {
		m.ExportFunc("AllocState", m.AddFunc(i32ToI32, (&Code{}).I32Const(int32(a.AllocStateAt)).End().Bytes()))
	}

	if a.HideMemory {
		m.DeclareMemory(1)
	} else {
		m.ExportMemory("memory", 1)
	}

	return m.Encode()
}

// increment emits state[offset] += 1 for the state pointer in local 0.
func increment(c *Code, offset uint32) {
	c.LocalGet(0)
	c.LocalGet(0).I32Load(offset)
	c.I32Const(1).Op(OpI32Add)
	c.I32Store(offset)
}
