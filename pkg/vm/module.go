package vm

import (
	"slices"
)

// ModuleStatus is the [[Status]] of a module record.
type ModuleStatus uint8

const (
	ModuleUnlinked ModuleStatus = iota
	ModuleLinking
	ModuleLinked
	ModuleEvaluating
	ModuleEvaluatingAsync
	ModuleEvaluated
)

var moduleStatusNames = [...]string{"unlinked", "linking", "linked", "evaluating", "evaluating-async", "evaluated"}

func (s ModuleStatus) String() string { return moduleStatusNames[s] }

// ModuleRequest is one import or re-export specifier with its import
// attributes.
type ModuleRequest struct {
	Specifier  string
	Attributes map[string]string
}

// ImportEntry binds Slot of the module environment. ImportName "*" is a
// namespace import.
type ImportEntry struct {
	Request    int
	ImportName string
	LocalName  string
	Slot       int
}

// LocalExport exports the binding in Slot under ExportName.
type LocalExport struct {
	ExportName string
	LocalName  string
	Slot       int
}

// IndirectExport re-exports ImportName of a requested module. ImportName
// "*" exports that module's namespace (export * as name).
type IndirectExport struct {
	ExportName string
	Request    int
	ImportName string
}

// HoistedFunction is a function declaration instantiated at link time.
type HoistedFunction struct {
	Slot  int
	Index int
}

// ModuleRecord is a Source Text Module Record, or a synthetic module
// whose bindings the host fills in.
type ModuleRecord struct {
	// Path identifies the module to the loader and is import.meta.url.
	Path     string
	Template *FunctionTemplate

	Requests          []ModuleRequest
	ImportEntries     []ImportEntry
	LocalExports      []LocalExport
	IndirectExports   []IndirectExport
	StarExports       []int
	HoistedFunctions  []HoistedFunction
	synthetic         bool
	syntheticValues   []Value
	syntheticEvaluate func(vm *VM, m *ModuleRecord) error

	Env       *Env
	namespace *Object
	meta      *Object
	// loaded holds the record of each request once the graph is loaded.
	loaded []*ModuleRecord

	status    ModuleStatus
	evalError *Exception

	dfsIndex         int
	dfsAncestorIndex int
	cycleRoot        *ModuleRecord
	asyncEvaluation  bool
	asyncEvalOrder   int
	pendingAsyncDeps int
	asyncParents     []*ModuleRecord
	topLevel         *PromiseCapability
}

// Status returns the module's lifecycle state.
func (m *ModuleRecord) Status() ModuleStatus { return m.status }

// EvaluationError returns the exception evaluation failed with, if any.
func (m *ModuleRecord) EvaluationError() error {
	if m.evalError == nil {
		return nil
	}
	return m.evalError
}

func (m *ModuleRecord) hasTLA() bool { return m.Template != nil && m.Template.Async }

func (m *ModuleRecord) trace(mk *marker) {
	mk.env(m.Env)
	mk.object(m.namespace)
	mk.object(m.meta)
	mk.values(m.syntheticValues)
	if m.evalError != nil {
		mk.value(m.evalError.Value)
	}
	if m.topLevel != nil {
		m.topLevel.trace(mk)
	}
}

// ModuleLoader is the host hook that resolves a specifier relative to the
// referrer and returns the parsed module. Loading the same module twice
// must return the same record.
type ModuleLoader interface {
	LoadModule(vm *VM, referrer, specifier string, attrs map[string]string) (*ModuleRecord, error)
}

// ImportMetaInitializer is optionally implemented by a loader to add
// properties to import.meta objects.
type ImportMetaInitializer interface {
	InitializeImportMeta(vm *VM, m *ModuleRecord, meta *Object)
}

// NewModuleRecord prepares a compiled module for loading.
func (vm *VM) NewModuleRecord(path string, tmpl *FunctionTemplate) *ModuleRecord {
	m := &ModuleRecord{Path: path, Template: tmpl, status: ModuleUnlinked}
	vm.modules = append(vm.modules, m)
	return m
}

// NewSyntheticModule creates a module exporting names bound to values, as
// used for JSON modules and host modules. evaluate may be nil; otherwise
// it runs once when the module is evaluated and may update bindings with
// SetSyntheticExport.
func (vm *VM) NewSyntheticModule(path string, names []string, values []Value, evaluate func(vm *VM, m *ModuleRecord) error) *ModuleRecord {
	m := &ModuleRecord{
		Path:              path,
		synthetic:         true,
		syntheticValues:   append([]Value(nil), values...),
		syntheticEvaluate: evaluate,
		status:            ModuleUnlinked,
	}
	for i, name := range names {
		m.LocalExports = append(m.LocalExports, LocalExport{ExportName: name, LocalName: name, Slot: i})
	}
	vm.modules = append(vm.modules, m)
	return m
}

// SetSyntheticExport updates an export of a synthetic module.
func (vm *VM) SetSyntheticExport(m *ModuleRecord, name string, v Value) error {
	for _, e := range m.LocalExports {
		if e.ExportName == name {
			if m.Env != nil {
				m.Env.slots[e.Slot] = v
			} else {
				m.syntheticValues[e.Slot] = v
			}
			return nil
		}
	}
	return vm.NewReferenceError("module " + m.Path + " has no export named " + name)
}

// LoadRequestedModules fetches the whole graph below m through the loader.
func (vm *VM) LoadRequestedModules(m *ModuleRecord) error {
	seen := make(map[*ModuleRecord]bool)
	var load func(m *ModuleRecord) error
	load = func(m *ModuleRecord) error {
		if seen[m] {
			return nil
		}
		seen[m] = true
		if len(m.loaded) != len(m.Requests) {
			if vm.loader == nil {
				return vm.NewTypeError("Cannot load module '" + m.Path + "' dependencies: no module loader")
			}
			loaded := make([]*ModuleRecord, len(m.Requests))
			for i, req := range m.Requests {
				dep, err := vm.loader.LoadModule(vm, m.Path, req.Specifier, req.Attributes)
				if err != nil {
					return err
				}
				loaded[i] = dep
			}
			m.loaded = loaded
		}
		for _, dep := range m.loaded {
			if err := load(dep); err != nil {
				return err
			}
		}
		return nil
	}
	return load(m)
}

// resolvedBinding is a ResolvedBinding record: a slot of a module
// environment, or a module's namespace when slot is negative.
type resolvedBinding struct {
	module *ModuleRecord
	slot   int
}

type resolveResult uint8

const (
	resolveFound resolveResult = iota
	resolveNotFound
	resolveAmbiguous
)

type resolvePair struct {
	module *ModuleRecord
	name   string
}

// resolveExport implements ResolveExport.
func (vm *VM) resolveExport(m *ModuleRecord, name string, set []resolvePair) (resolvedBinding, resolveResult, []resolvePair) {
	for _, p := range set {
		if p.module == m && p.name == name {
			// Circular import request.
			return resolvedBinding{}, resolveNotFound, set
		}
	}
	set = append(set, resolvePair{m, name})
	for _, e := range m.LocalExports {
		if e.ExportName == name {
			return resolvedBinding{module: m, slot: e.Slot}, resolveFound, set
		}
	}
	for _, e := range m.IndirectExports {
		if e.ExportName != name {
			continue
		}
		dep := m.loaded[e.Request]
		if e.ImportName == "*" {
			return resolvedBinding{module: dep, slot: -1}, resolveFound, set
		}
		return vm.resolveExport(dep, e.ImportName, set)
	}
	if name == "default" {
		return resolvedBinding{}, resolveNotFound, set
	}
	var star resolvedBinding
	found := false
	for _, req := range m.StarExports {
		dep := m.loaded[req]
		var b resolvedBinding
		var r resolveResult
		b, r, set = vm.resolveExport(dep, name, set)
		switch r {
		case resolveAmbiguous:
			return resolvedBinding{}, resolveAmbiguous, set
		case resolveFound:
			if !found {
				star, found = b, true
			} else if star != b {
				return resolvedBinding{}, resolveAmbiguous, set
			}
		}
	}
	if !found {
		return resolvedBinding{}, resolveNotFound, set
	}
	return star, resolveFound, set
}

// exportedNames implements GetExportedNames.
func (m *ModuleRecord) exportedNames(visited map[*ModuleRecord]bool) []string {
	if visited[m] {
		return nil
	}
	visited[m] = true
	var names []string
	for _, e := range m.LocalExports {
		names = append(names, e.ExportName)
	}
	for _, e := range m.IndirectExports {
		names = append(names, e.ExportName)
	}
	for _, req := range m.StarExports {
		for _, n := range m.loaded[req].exportedNames(visited) {
			if n != "default" && !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
	}
	return names
}

// Link implements Link() for the graph below m. On failure every module
// that was being linked returns to unlinked.
func (vm *VM) Link(m *ModuleRecord) error {
	var graph []*ModuleRecord
	seen := make(map[*ModuleRecord]bool)
	var walk func(m *ModuleRecord)
	walk = func(m *ModuleRecord) {
		if seen[m] || m.status != ModuleUnlinked {
			return
		}
		seen[m] = true
		m.status = ModuleLinking
		graph = append(graph, m)
		for _, dep := range m.loaded {
			walk(dep)
		}
	}
	if len(m.loaded) != len(m.Requests) {
		return vm.NewTypeError("module " + m.Path + " was linked before its dependencies were loaded")
	}
	walk(m)
	// Every environment exists before any import is bound, so cycles can
	// refer to each other's slots.
	for _, mod := range graph {
		vm.createModuleEnv(mod)
	}
	for _, mod := range graph {
		if err := vm.initializeModuleEnv(mod); err != nil {
			for _, g := range graph {
				g.status = ModuleUnlinked
				g.Env = nil
				g.namespace = nil
			}
			return err
		}
	}
	for _, mod := range graph {
		mod.status = ModuleLinked
	}
	return nil
}

func (vm *VM) createModuleEnv(m *ModuleRecord) {
	if m.synthetic {
		names := make([]string, len(m.LocalExports))
		kinds := make([]BindingKind, len(m.LocalExports))
		for i, e := range m.LocalExports {
			names[i] = e.LocalName
			kinds[i] = BindVar
		}
		m.Env = vm.NewEnv(nil, &ScopeInfo{Kind: ScopeModule, Names: names, Kinds: kinds, Strict: true})
		copy(m.Env.slots, m.syntheticValues)
		return
	}
	m.Env = vm.NewEnv(nil, m.Template.Scopes[0])
	m.Env.imports = make([]importCell, len(m.Env.slots))
}

// initializeModuleEnv is the binding half of InitializeEnvironment.
func (vm *VM) initializeModuleEnv(m *ModuleRecord) error {
	if m.synthetic {
		return nil
	}
	for _, e := range m.IndirectExports {
		if _, r, _ := vm.resolveExport(m, e.ExportName, nil); r != resolveFound {
			return vm.resolutionError(m, m.loaded[e.Request], e.ImportName, r)
		}
	}
	env := m.Env
	for _, in := range m.ImportEntries {
		dep := m.loaded[in.Request]
		if in.ImportName == "*" {
			env.slots[in.Slot] = ObjectValue(vm.GetModuleNamespace(dep))
			continue
		}
		b, r, _ := vm.resolveExport(dep, in.ImportName, nil)
		if r != resolveFound {
			return vm.resolutionError(m, dep, in.ImportName, r)
		}
		if b.slot < 0 {
			// Namespace re-exported with export * as name.
			env.imports[in.Slot] = importCell{ns: vm.GetModuleNamespace(b.module)}
			continue
		}
		env.imports[in.Slot] = importCell{env: b.module.Env, slot: b.slot}
	}
	for _, h := range m.HoistedFunctions {
		env.slots[h.Slot] = ObjectValue(vm.MakeClosure(m.Template.Functions[h.Index], env, nil))
	}
	return nil
}

func (vm *VM) resolutionError(m, dep *ModuleRecord, name string, r resolveResult) error {
	if r == resolveAmbiguous {
		return vm.NewSyntaxError("The requested module '" + dep.Path + "' contains conflicting star exports for name '" + name + "'")
	}
	return vm.NewSyntaxError("The requested module '" + dep.Path + "' does not provide an export named '" + name + "'")
}

// readImport reads an imported binding through its cell.
func (vm *VM) readImport(env *Env, slot int, name string) (Value, error) {
	c := env.imports[slot]
	if c.ns != nil {
		return ObjectValue(c.ns), nil
	}
	if c.env == nil {
		return Undefined, vm.tdzError(name)
	}
	v := c.env.slots[c.slot]
	if v.IsEmpty() {
		return Undefined, vm.tdzError(name)
	}
	return v, nil
}

// namespaceData is the internal slot set of a module namespace exotic
// object. exports is sorted by code units.
type namespaceData struct {
	module   *ModuleRecord
	exports  []string
	bindings map[string]resolvedBinding
}

func (d *namespaceData) trace(m *marker) {
	for _, b := range d.bindings {
		m.env(b.module.Env)
		m.object(b.module.namespace)
	}
}

// GetModuleNamespace returns the namespace object of a linked module.
func (vm *VM) GetModuleNamespace(m *ModuleRecord) *Object {
	if m.namespace != nil {
		return m.namespace
	}
	d := &namespaceData{module: m, bindings: make(map[string]resolvedBinding)}
	for _, name := range m.exportedNames(make(map[*ModuleRecord]bool)) {
		if b, r, _ := vm.resolveExport(m, name, nil); r == resolveFound {
			d.exports = append(d.exports, name)
			d.bindings[name] = b
		}
	}
	slices.SortFunc(d.exports, func(a, b string) int {
		return NewString(a).Compare(NewString(b))
	})
	ns := vm.NewObjectClass(ClassNamespace, nil)
	ns.Internal = d
	ns.props.put(SymKey(SymToStringTag), NewStringValue("Module"), Undefined, 0)
	ns.clearFlag(objExtensible)
	m.namespace = ns
	return ns
}

func (vm *VM) namespaceValue(d *namespaceData, name string) (Value, bool, error) {
	b, ok := d.bindings[name]
	if !ok {
		return Undefined, false, nil
	}
	if b.slot < 0 {
		return ObjectValue(vm.GetModuleNamespace(b.module)), true, nil
	}
	env := b.module.Env
	if env == nil {
		return Undefined, true, vm.tdzError(name)
	}
	if env.scope.Kinds[b.slot] == BindImport {
		v, err := vm.readImport(env, b.slot, name)
		return v, true, err
	}
	v := env.slots[b.slot]
	if v.IsEmpty() {
		return Undefined, true, vm.tdzError(name)
	}
	return v, true, nil
}

func namespaceHas(o *Object, key PropertyKey) bool {
	_, ok := o.Internal.(*namespaceData).bindings[key.Name()]
	return ok
}

func (vm *VM) namespaceGetOwnProperty(o *Object, key PropertyKey) (PropertyDescriptor, bool, error) {
	if key.IsSymbol() {
		d, ok := o.ordinaryGetOwnProperty(key)
		return d, ok, nil
	}
	v, ok, err := vm.namespaceValue(o.Internal.(*namespaceData), key.Name())
	if err != nil || !ok {
		return PropertyDescriptor{}, false, err
	}
	return DataDescriptor(v, Writable|Enumerable), true, nil
}

func (vm *VM) namespaceDefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if key.IsSymbol() {
		return o.ordinaryDefineOwnProperty(key, desc), nil
	}
	cur, ok, err := vm.namespaceGetOwnProperty(o, key)
	if err != nil || !ok {
		return false, err
	}
	if desc.HasConfigurable() && desc.Configurable ||
		desc.HasEnumerable() && !desc.Enumerable ||
		desc.IsAccessor() ||
		desc.HasWritable() && !desc.Writable {
		return false, nil
	}
	if desc.HasValue() {
		return SameValue(desc.Value, cur.Value), nil
	}
	return true, nil
}

func (vm *VM) namespaceDelete(o *Object, key PropertyKey) (bool, error) {
	if key.IsSymbol() {
		p := o.props.get(key)
		if p == nil {
			return true, nil
		}
		if !p.flags.Configurable() {
			return false, nil
		}
		o.props.remove(key)
		return true, nil
	}
	return !namespaceHas(o, key), nil
}

func (vm *VM) namespaceOwnKeys(o *Object) []PropertyKey {
	d := o.Internal.(*namespaceData)
	keys := make([]PropertyKey, 0, len(d.exports)+1)
	for _, name := range d.exports {
		keys = append(keys, StrKey(name))
	}
	for _, k := range o.ordinaryOwnKeys() {
		if k.IsSymbol() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Evaluate implements Evaluate(): it runs the graph below a linked module
// and returns a promise settled when the module and its asynchronous
// dependencies finished.
func (vm *VM) Evaluate(m *ModuleRecord) *Object {
	if (m.status == ModuleEvaluatingAsync || m.status == ModuleEvaluated) && m.cycleRoot != nil {
		m = m.cycleRoot
	}
	if m.topLevel != nil {
		return m.topLevel.Promise
	}
	cap := vm.newCapability()
	m.topLevel = cap
	if m.status < ModuleLinked {
		vm.rejectWith(cap.state, vm.toException(vm.NewTypeError("module "+m.Path+" is not linked")).Value)
		return cap.Promise
	}
	var stack []*ModuleRecord
	if _, err := vm.innerModuleEvaluation(m, &stack, 0); err != nil {
		ex := vm.toException(err)
		for _, s := range stack {
			s.status = ModuleEvaluated
			s.evalError = ex
		}
		vm.rejectWith(cap.state, ex.Value)
		return cap.Promise
	}
	if !m.asyncEvaluation {
		vm.resolveWith(cap.state, Undefined)
	}
	return cap.Promise
}

func (vm *VM) innerModuleEvaluation(m *ModuleRecord, stack *[]*ModuleRecord, index int) (int, error) {
	switch m.status {
	case ModuleEvaluatingAsync, ModuleEvaluated:
		if m.evalError != nil {
			return index, m.evalError
		}
		return index, nil
	case ModuleEvaluating:
		return index, nil
	}
	m.status = ModuleEvaluating
	m.dfsIndex = index
	m.dfsAncestorIndex = index
	m.pendingAsyncDeps = 0
	index++
	*stack = append(*stack, m)
	for _, dep := range m.loaded {
		var err error
		index, err = vm.innerModuleEvaluation(dep, stack, index)
		if err != nil {
			return index, err
		}
		if dep.status == ModuleEvaluating {
			m.dfsAncestorIndex = min(m.dfsAncestorIndex, dep.dfsAncestorIndex)
		} else {
			dep = dep.cycleRoot
			if dep.evalError != nil {
				return index, dep.evalError
			}
		}
		if dep.asyncEvaluation {
			m.pendingAsyncDeps++
			dep.asyncParents = append(dep.asyncParents, m)
		}
	}
	if m.pendingAsyncDeps > 0 || m.hasTLA() {
		m.asyncEvaluation = true
		vm.asyncEvalCounter++
		m.asyncEvalOrder = vm.asyncEvalCounter
		if m.pendingAsyncDeps == 0 {
			vm.executeAsyncModule(m)
		}
	} else if err := vm.executeModule(m); err != nil {
		return index, err
	}
	if m.dfsAncestorIndex == m.dfsIndex {
		for {
			s := (*stack)[len(*stack)-1]
			*stack = (*stack)[:len(*stack)-1]
			if s.asyncEvaluation {
				s.status = ModuleEvaluatingAsync
			} else {
				s.status = ModuleEvaluated
			}
			s.cycleRoot = m
			if s == m {
				break
			}
		}
	}
	return index, nil
}

func (vm *VM) moduleFrame(m *ModuleRecord) *frame {
	return &frame{
		fn:        m.Template,
		regs:      make([]Value, m.Template.NumRegs),
		env:       m.Env,
		this:      Undefined,
		newTarget: Undefined,
		dst:       -1,
		boundary:  true,
	}
}

// executeModule runs a module body without top-level await.
func (vm *VM) executeModule(m *ModuleRecord) error {
	if m.synthetic {
		if m.syntheticEvaluate != nil {
			return m.syntheticEvaluate(vm, m)
		}
		return nil
	}
	vm.logger.Debug("module.evaluate", "path", m.Path)
	_, err := vm.enter(vm.moduleFrame(m))
	return err
}

// executeAsyncModule runs a module body as an async function.
func (vm *VM) executeAsyncModule(m *ModuleRecord) {
	vm.logger.Debug("module.evaluate", "path", m.Path, "async", true)
	f := vm.moduleFrame(m)
	f.async = &asyncState{promise: vm.NewPromise()}
	p := f.async.promise
	if _, err := vm.enter(f); err != nil {
		vm.rejectPromise(p, vm.toException(err).Value)
	}
	vm.Then(p, func(vm *VM, _ Value) (Value, error) {
		vm.asyncModuleFulfilled(m)
		return Undefined, nil
	}, func(vm *VM, reason Value) (Value, error) {
		vm.asyncModuleRejected(m, &Exception{Value: reason})
		return Undefined, nil
	})
}

func (vm *VM) gatherAvailableAncestors(m *ModuleRecord, list *[]*ModuleRecord) {
	for _, p := range m.asyncParents {
		if slices.Contains(*list, p) || p.cycleRoot.evalError != nil {
			continue
		}
		p.pendingAsyncDeps--
		if p.pendingAsyncDeps == 0 {
			*list = append(*list, p)
			if !p.hasTLA() {
				vm.gatherAvailableAncestors(p, list)
			}
		}
	}
}

func (vm *VM) asyncModuleFulfilled(m *ModuleRecord) {
	if m.status == ModuleEvaluated {
		return
	}
	m.asyncEvaluation = false
	m.status = ModuleEvaluated
	if m.topLevel != nil {
		vm.resolveWith(m.topLevel.state, Undefined)
	}
	var list []*ModuleRecord
	vm.gatherAvailableAncestors(m, &list)
	slices.SortFunc(list, func(a, b *ModuleRecord) int { return a.asyncEvalOrder - b.asyncEvalOrder })
	for _, p := range list {
		if p.evalError != nil {
			continue
		}
		if p.hasTLA() {
			vm.executeAsyncModule(p)
			continue
		}
		if err := vm.executeModule(p); err != nil {
			vm.asyncModuleRejected(p, vm.toException(err))
			continue
		}
		p.asyncEvaluation = false
		p.status = ModuleEvaluated
		if p.topLevel != nil {
			vm.resolveWith(p.topLevel.state, Undefined)
		}
	}
}

func (vm *VM) asyncModuleRejected(m *ModuleRecord, ex *Exception) {
	if m.status == ModuleEvaluated {
		return
	}
	m.evalError = ex
	m.status = ModuleEvaluated
	for _, p := range m.asyncParents {
		vm.asyncModuleRejected(p, ex)
	}
	if m.topLevel != nil {
		vm.rejectWith(m.topLevel.state, ex.Value)
	}
}

// importMeta returns the import.meta object of m, creating it on first
// use.
func (vm *VM) importMeta(m *ModuleRecord) *Object {
	if m.meta != nil {
		return m.meta
	}
	meta := vm.NewObjectClass(ClassObject, nil)
	meta.props.put(StrKey("url"), NewStringValue(m.Path), Undefined, DefaultFlags)
	if init, ok := vm.loader.(ImportMetaInitializer); ok {
		init.InitializeImportMeta(vm, m, meta)
	}
	m.meta = meta
	return meta
}

// dynamicImport implements import(specifier, options). Loading happens
// in a job so the promise is always settled asynchronously.
func (vm *VM) dynamicImport(fn *FunctionTemplate, specV, options Value) *Object {
	cap := vm.newCapability()
	fail := func(err error) *Object {
		vm.rejectWith(cap.state, vm.toException(err).Value)
		return cap.Promise
	}
	spec, err := vm.ToGoString(specV)
	if err != nil {
		return fail(err)
	}
	attrs, err := vm.importAttributes(options)
	if err != nil {
		return fail(err)
	}
	referrer := ""
	if fn.Module != nil {
		referrer = fn.Module.Path
	} else if fn.Source != nil {
		referrer = fn.Source.Path
	}
	vm.EnqueueJob(Job{
		Roots: []Value{ObjectValue(cap.Promise)},
		Run: func(vm *VM) error {
			m, err := vm.loadAndLink(referrer, spec, attrs)
			if err != nil {
				vm.rejectWith(cap.state, vm.toException(err).Value)
				return nil
			}
			p := vm.Evaluate(m)
			vm.Then(p, func(vm *VM, _ Value) (Value, error) {
				vm.resolveWith(cap.state, ObjectValue(vm.GetModuleNamespace(m)))
				return Undefined, nil
			}, func(vm *VM, reason Value) (Value, error) {
				vm.rejectWith(cap.state, reason)
				return Undefined, nil
			}, ObjectValue(cap.Promise))
			return nil
		},
	})
	return cap.Promise
}

func (vm *VM) loadAndLink(referrer, spec string, attrs map[string]string) (*ModuleRecord, error) {
	if vm.loader == nil {
		return nil, vm.NewTypeError("Cannot import '" + spec + "': no module loader")
	}
	m, err := vm.loader.LoadModule(vm, referrer, spec, attrs)
	if err != nil {
		return nil, err
	}
	if err := vm.LoadRequestedModules(m); err != nil {
		return nil, err
	}
	if m.status == ModuleUnlinked {
		if err := vm.Link(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ImportModule loads, links and evaluates the module spec resolves to from
// Go, returning the evaluation promise.
func (vm *VM) ImportModule(referrer, spec string) (*ModuleRecord, *Object, error) {
	m, err := vm.loadAndLink(referrer, spec, nil)
	if err != nil {
		return nil, nil, err
	}
	return m, vm.Evaluate(m), nil
}

// importAttributes reads the with clause of import() options.
func (vm *VM) importAttributes(options Value) (map[string]string, error) {
	if options.IsUndefined() {
		return nil, nil
	}
	if !options.IsObject() {
		return nil, vm.NewTypeError("The second argument to import() must be an object")
	}
	with, err := options.AsObject().Get(vm, StrKey("with"), options)
	if err != nil || with.IsUndefined() {
		return nil, err
	}
	if !with.IsObject() {
		return nil, vm.NewTypeError("The 'with' option must be an object")
	}
	w := with.AsObject()
	keys, err := w.OwnPropertyKeys(vm)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]string)
	for _, k := range keys {
		if k.IsSymbol() {
			continue
		}
		desc, ok, err := w.GetOwnProperty(vm, k)
		if err != nil {
			return nil, err
		}
		if !ok || !desc.Enumerable {
			continue
		}
		v, err := w.Get(vm, k, with)
		if err != nil {
			return nil, err
		}
		if !v.IsString() {
			return nil, vm.NewTypeError("Import attribute value must be a string")
		}
		attrs[k.Name()] = v.AsString().String()
	}
	return attrs, nil
}
