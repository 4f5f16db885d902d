// Package wasmgen assembles the simulator's guest module in process, so
// the wazero-backed foreign runtime needs no toolchain and no fixture
// binaries. The guest imports the bridge's host functions and calls back
// through them the way a foreign library would: progress, data, completion,
// refcount traffic, and a deliberate double fire of the one-shot slot.
package wasmgen

// Host module and import names the guest links against.
const (
	HostModule = "embercef:bridge/foreign"

	FnObjectAddRef         = "object-add-ref"
	FnObjectRelease        = "object-release"
	FnObjectHasOneRef      = "object-has-one-ref"
	FnClientOnComplete     = "client-on-complete"
	FnClientOnProgress     = "client-on-progress"
	FnClientOnData         = "client-on-data"
	FnCompletionOnFinished = "completion-on-finished"
)

// Guest exports.
const (
	ExportDrive  = "drive"
	ExportStorm  = "storm"
	ExportMemory = "memory"
)

// Linear-memory layout of the guest's data segments.
const (
	PathOffset = 0
	PathUnits  = 15 // UTF-16 code units of GuestPath
	DataOffset = 64
	DataLen    = 16
)

// GuestPath is the path string the guest hands to the completion slot,
// stored in guest memory as UTF-16LE code units.
const GuestPath = "/tmp/report.pdf"

// GuestData is the payload the guest streams through client-on-data.
const GuestData = "hello from guest"

// Value types.
const (
	valI32 = 0x7f
	valI64 = 0x7e
)

// Section ids.
const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secExport   = 7
	secCode     = 10
	secData     = 11
)

// Opcodes.
const (
	opBlock    = 0x02
	opLoop     = 0x03
	opEnd      = 0x0b
	opBr       = 0x0c
	opBrIf     = 0x0d
	opCall     = 0x10
	opDrop     = 0x1a
	opLocalGet = 0x20
	opLocalSet = 0x21
	opI32Const = 0x41
	opI64Const = 0x42
	opI32Eqz   = 0x45
	opI32Sub   = 0x6b

	blockVoid = 0x40
)

// Function type indices.
const (
	typeUnary      = 0 // (i32) -> ()
	typeUnaryRet   = 1 // (i32) -> (i32)
	typeBinary     = 2 // (i32, i32) -> ()
	typeProgress   = 3 // (i32, i32, i64, i64) -> ()
	typeQuaternary = 4 // (i32, i32, i32, i32) -> ()
	typeTernary    = 5 // (i32, i32, i32) -> ()
)

// Imported function indices, in import-section order.
const (
	fnAddRef = iota
	fnRelease
	fnHasOneRef
	fnOnComplete
	fnOnProgress
	fnOnData
	fnOnFinished

	fnDrive // first defined function
	fnStorm
)

// Guest assembles the simulator guest module.
func Guest() []byte {
	w := NewWriter()
	w.WriteBytes([]byte{0x00, 0x61, 0x73, 0x6d}) // magic "\0asm"
	w.WriteBytes([]byte{0x01, 0x00, 0x00, 0x00}) // version 1

	w.Section(secType, typeSection())
	w.Section(secImport, importSection())
	w.Section(secFunction, functionSection())
	w.Section(secMemory, memorySection())
	w.Section(secExport, exportSection())
	w.Section(secCode, codeSection())
	w.Section(secData, dataSection())

	return w.Bytes()
}

func funcType(w *Writer, params, results []byte) {
	w.Byte(0x60)
	w.WriteU32(uint32(len(params)))
	w.WriteBytes(params)
	w.WriteU32(uint32(len(results)))
	w.WriteBytes(results)
}

func typeSection() *Writer {
	w := NewWriter()
	w.WriteU32(6)
	funcType(w, []byte{valI32}, nil)                           // typeUnary
	funcType(w, []byte{valI32}, []byte{valI32})                // typeUnaryRet
	funcType(w, []byte{valI32, valI32}, nil)                   // typeBinary
	funcType(w, []byte{valI32, valI32, valI64, valI64}, nil)   // typeProgress
	funcType(w, []byte{valI32, valI32, valI32, valI32}, nil)   // typeQuaternary
	funcType(w, []byte{valI32, valI32, valI32}, nil)           // typeTernary
	return w
}

func importSection() *Writer {
	imports := []struct {
		name    string
		typeIdx uint32
	}{
		{FnObjectAddRef, typeUnary},
		{FnObjectRelease, typeUnaryRet},
		{FnObjectHasOneRef, typeUnaryRet},
		{FnClientOnComplete, typeBinary},
		{FnClientOnProgress, typeProgress},
		{FnClientOnData, typeQuaternary},
		{FnCompletionOnFinished, typeQuaternary},
	}

	w := NewWriter()
	w.WriteU32(uint32(len(imports)))
	for _, imp := range imports {
		w.WriteName(HostModule)
		w.WriteName(imp.name)
		w.Byte(0x00) // func import
		w.WriteU32(imp.typeIdx)
	}
	return w
}

func functionSection() *Writer {
	w := NewWriter()
	w.WriteU32(2)
	w.WriteU32(typeTernary) // drive
	w.WriteU32(typeBinary)  // storm
	return w
}

func memorySection() *Writer {
	w := NewWriter()
	w.WriteU32(1)
	w.Byte(0x00) // limits: min only
	w.WriteU32(1)
	return w
}

func exportSection() *Writer {
	w := NewWriter()
	w.WriteU32(3)
	w.WriteName(ExportDrive)
	w.Byte(0x00)
	w.WriteU32(fnDrive)
	w.WriteName(ExportStorm)
	w.Byte(0x00)
	w.WriteU32(fnStorm)
	w.WriteName(ExportMemory)
	w.Byte(0x02)
	w.WriteU32(0)
	return w
}

func codeSection() *Writer {
	w := NewWriter()
	w.WriteU32(2)
	writeFuncBody(w, driveBody())
	writeFuncBody(w, stormBody())
	return w
}

func writeFuncBody(w *Writer, body *Writer) {
	w.WriteU32(uint32(body.Len()))
	w.WriteBytes(body.Bytes())
}

func emit(w *Writer, op byte, operands ...int64) {
	w.Byte(op)
	for _, v := range operands {
		w.WriteS64(v)
	}
}

func localGet(w *Writer, idx uint32) { w.Byte(opLocalGet); w.WriteU32(idx) }
func localSet(w *Writer, idx uint32) { w.Byte(opLocalSet); w.WriteU32(idx) }
func call(w *Writer, fn uint32)      { w.Byte(opCall); w.WriteU32(fn) }

// drive(client, req, comp): the canonical foreign call sequence. The
// completion slot is fired twice on purpose; the second must be a no-op.
func driveBody() *Writer {
	w := NewWriter()
	w.WriteU32(0) // no locals

	const (
		client = 0
		req    = 1
		comp   = 2
	)

	// progress 25/100 then 100/100
	localGet(w, client)
	localGet(w, req)
	emit(w, opI64Const, 25)
	emit(w, opI64Const, 100)
	call(w, fnOnProgress)

	localGet(w, client)
	localGet(w, req)
	emit(w, opI64Const, 100)
	emit(w, opI64Const, 100)
	call(w, fnOnProgress)

	// stream the data segment
	localGet(w, client)
	localGet(w, req)
	emit(w, opI32Const, DataOffset)
	emit(w, opI32Const, DataLen)
	call(w, fnOnData)

	// take a guest-held reference around completion, as a foreign
	// library caching the pointer would
	localGet(w, req)
	call(w, fnAddRef)

	localGet(w, client)
	localGet(w, req)
	call(w, fnOnComplete)

	localGet(w, req)
	call(w, fnRelease)
	w.Byte(opDrop)

	// one-shot completion: fire, then fire again
	localGet(w, comp)
	emit(w, opI32Const, PathOffset)
	emit(w, opI32Const, PathUnits)
	emit(w, opI32Const, 1)
	call(w, fnOnFinished)

	localGet(w, comp)
	emit(w, opI32Const, PathOffset)
	emit(w, opI32Const, PathUnits)
	emit(w, opI32Const, 1)
	call(w, fnOnFinished)

	w.Byte(opEnd)
	return w
}

// storm(h, n): n add-refs then n releases against one pinned object.
func stormBody() *Writer {
	w := NewWriter()
	w.WriteU32(1) // one local group
	w.WriteU32(1)
	w.Byte(valI32) // local 2: loop counter

	const (
		h       = 0
		n       = 1
		counter = 2
	)

	countedLoop := func(body func()) {
		localGet(w, n)
		localSet(w, counter)
		w.Byte(opBlock)
		w.Byte(blockVoid)
		w.Byte(opLoop)
		w.Byte(blockVoid)
		localGet(w, counter)
		w.Byte(opI32Eqz)
		w.Byte(opBrIf)
		w.WriteU32(1)
		body()
		localGet(w, counter)
		emit(w, opI32Const, 1)
		w.Byte(opI32Sub)
		localSet(w, counter)
		w.Byte(opBr)
		w.WriteU32(0)
		w.Byte(opEnd) // loop
		w.Byte(opEnd) // block
	}

	countedLoop(func() {
		localGet(w, h)
		call(w, fnAddRef)
	})
	countedLoop(func() {
		localGet(w, h)
		call(w, fnRelease)
		w.Byte(opDrop)
	})

	w.Byte(opEnd)
	return w
}

func dataSection() *Writer {
	w := NewWriter()
	w.WriteU32(2)

	// path as UTF-16LE at PathOffset
	path := make([]byte, 0, len(GuestPath)*2)
	for _, r := range GuestPath {
		path = append(path, byte(r), byte(r>>8))
	}
	writeDataSegment(w, PathOffset, path)

	// raw data chunk at DataOffset
	writeDataSegment(w, DataOffset, []byte(GuestData))

	return w
}

func writeDataSegment(w *Writer, offset int64, data []byte) {
	w.Byte(0x00) // active segment, memory 0
	emit(w, opI32Const, offset)
	w.Byte(opEnd)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}
