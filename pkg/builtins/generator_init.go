package builtins

import (
	"github.com/skua-js/skua/pkg/vm"
)

// GeneratorInitializer installs the generator and async function
// machinery: %GeneratorFunction%, %AsyncFunction%,
// %AsyncGeneratorFunction% and the generator object prototypes.
type GeneratorInitializer struct{}

func (g *GeneratorInitializer) Name() string {
	return "Generator"
}

func (g *GeneratorInitializer) Priority() int {
	return PriorityGenerator
}

func (g *GeneratorInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm

	genFn := realm.GeneratorFunctionPrototype
	genProto := realm.GeneratorPrototype
	genFn.DefineOwn(vm.StrKey("prototype"), vm.ObjectValue(genProto), vm.Configurable)
	genProto.DefineOwn(vm.StrKey("constructor"), vm.ObjectValue(genFn), vm.Configurable)
	toStringTag(genFn, "GeneratorFunction")
	toStringTag(genProto, "Generator")
	resume := func(name string, mode int) {
		method(v, genProto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return v.GeneratorResume(this, mode, vm.Arg(args, 0), "Generator.prototype."+name)
		})
	}
	resume("next", vm.ResumeNext)
	resume("return", vm.ResumeReturn)
	resume("throw", vm.ResumeThrow)

	asyncGenFn := realm.AsyncGeneratorFunctionPrototype
	asyncGenProto := realm.AsyncGeneratorPrototype
	asyncGenFn.DefineOwn(vm.StrKey("prototype"), vm.ObjectValue(asyncGenProto), vm.Configurable)
	asyncGenProto.DefineOwn(vm.StrKey("constructor"), vm.ObjectValue(asyncGenFn), vm.Configurable)
	toStringTag(asyncGenFn, "AsyncGeneratorFunction")
	toStringTag(asyncGenProto, "AsyncGenerator")
	enqueue := func(name string, mode int) {
		method(v, asyncGenProto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return v.AsyncGeneratorEnqueue(this, mode, vm.Arg(args, 0), "AsyncGenerator.prototype."+name), nil
		})
	}
	enqueue("next", vm.ResumeNext)
	enqueue("return", vm.ResumeReturn)
	enqueue("throw", vm.ResumeThrow)

	toStringTag(realm.AsyncFunctionPrototype, "AsyncFunction")

	for _, c := range []struct {
		name  string
		kind  vm.FunctionKind
		proto *vm.Object
	}{
		{"GeneratorFunction", vm.KindGenerator, genFn},
		{"AsyncGeneratorFunction", vm.KindAsyncGenerator, asyncGenFn},
		{"AsyncFunction", vm.KindAsync, realm.AsyncFunctionPrototype},
	} {
		ctor := dynamicFunctionConstructor(v, c.name, c.kind, c.proto)
		ctor.SetPrototypeDirect(realm.FunctionConstructor)
		realm.SetIntrinsic(c.name, ctor)
	}
	return nil
}
