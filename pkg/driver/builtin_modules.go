package driver

import (
	"os"
	"path/filepath"

	"github.com/skua-js/skua/pkg/vm"
)

// registerStandardModules declares the native modules every engine
// provides.
func registerStandardModules(e *Engine) {
	e.DeclareModule("skua:path", pathModule)
	e.DeclareModule("skua:fs", fsModule)
}

// pathModule defines skua:path over the host's path syntax.
func pathModule(m *ModuleBuilder) {
	m.Const("sep", string(filepath.Separator))
	m.GoFunction("join", func(parts ...string) string {
		if len(parts) == 0 {
			return "."
		}
		return filepath.Join(parts...)
	})
	m.GoFunction("dirname", filepath.Dir)
	m.GoFunction("basename", func(p string, ext string) string {
		base := filepath.Base(p)
		if ext != "" && ext != base && filepath.Ext(base) == ext {
			base = base[:len(base)-len(ext)]
		}
		return base
	})
	m.GoFunction("extname", filepath.Ext)
	m.GoFunction("isAbsolute", filepath.IsAbs)
	m.GoFunction("normalize", filepath.Clean)
	m.GoFunction("resolve", func(parts ...string) (string, error) {
		p := ""
		for _, part := range parts {
			if filepath.IsAbs(part) {
				p = part
			} else {
				p = filepath.Join(p, part)
			}
		}
		return filepath.Abs(p)
	})
}

// fsModule defines skua:fs with synchronous text file access.
func fsModule(m *ModuleBuilder) {
	m.GoFunction("readFileSync", func(name string) (string, error) {
		data, err := os.ReadFile(name)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	m.GoFunction("writeFileSync", func(name, data string) error {
		return os.WriteFile(name, []byte(data), 0o644)
	})
	m.GoFunction("existsSync", func(name string) bool {
		_, err := os.Stat(name)
		return err == nil
	})
	m.GoFunction("readdirSync", func(name string) ([]string, error) {
		entries, err := os.ReadDir(name)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(entries))
		for i, ent := range entries {
			names[i] = ent.Name()
		}
		return names, nil
	})
	m.Function("statSync", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		name, err := v.ToGoString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		info, err := os.Stat(name)
		if err != nil {
			return vm.Undefined, v.Throw(vm.ObjectValue(v.NewError(vm.ErrError, err.Error())))
		}
		st := v.NewObject()
		st.SetOwn("size", vm.NumberValue(float64(info.Size())))
		st.SetOwn("mtimeMs", vm.NumberValue(float64(info.ModTime().UnixMilli())))
		st.SetOwn("isDirectory", vm.ObjectValue(v.NewNativeFunction("isDirectory", 0, func(*vm.VM, vm.Value, []vm.Value) (vm.Value, error) {
			return vm.BooleanValue(info.IsDir()), nil
		})))
		st.SetOwn("isFile", vm.ObjectValue(v.NewNativeFunction("isFile", 0, func(*vm.VM, vm.Value, []vm.Value) (vm.Value, error) {
			return vm.BooleanValue(info.Mode().IsRegular()), nil
		})))
		return vm.ObjectValue(st), nil
	})
}
