package scope

// FrameKind says which part of the scope chain a frame came from.
type FrameKind int

const (
	// FrameLocal holds the invoking function's locals (and those of the
	// functions lexically enclosing it).
	FrameLocal FrameKind = iota
	// FrameDeclaration holds names visible where the rule set was declared.
	FrameDeclaration
	// FrameInstance holds the receiver's fields.
	FrameInstance
	// FrameGlobal holds module globals.
	FrameGlobal
)

func (k FrameKind) String() string {
	switch k {
	case FrameLocal:
		return "local"
	case FrameDeclaration:
		return "declaration"
	case FrameInstance:
		return "instance"
	case FrameGlobal:
		return "global"
	}
	return "unknown"
}

// Frame is one name→value mapping of an Environment.
type Frame struct {
	Kind FrameKind
	Name string
	Vars map[string]any
}

// Environment is an immutable, ordered snapshot of frames. Earlier frames
// shadow later ones.
type Environment struct {
	frames []Frame
}

// NewEnvironment builds an environment from frames in precedence order.
func NewEnvironment(frames ...Frame) Environment {
	out := make([]Frame, len(frames))
	copy(out, frames)
	return Environment{frames: out}
}

// Frames returns the frames in precedence order.
func (e Environment) Frames() []Frame {
	out := make([]Frame, len(e.frames))
	copy(out, e.frames)
	return out
}

// Lookup returns the value of name in the first frame that defines it.
func (e Environment) Lookup(name string) (any, Frame, bool) {
	for _, f := range e.frames {
		if v, ok := f.Vars[name]; ok {
			return v, f, true
		}
	}
	return nil, Frame{}, false
}

// Site describes an infer call site as the host sees it.
type Site struct {
	// Call is the scope of the function executing the infer call.
	Call *Scope
	// Declaration is the scope in which the rule set was declared.
	Declaration *Scope
	// Instance holds receiver fields when either site is inside a method.
	Instance map[string]any
	// Module overrides the globals scope; by default it is the outermost
	// scope of Call (or Declaration).
	Module *Scope
}

// Capture snapshots the scope chain for a call site in resolution order:
//
//  1. the call site's function scope and the function scopes enclosing it;
//  2. the declaration scope (even a class body) and the function scopes
//     enclosing it, skipping any already captured in step 1;
//  3. the instance fields;
//  4. the module globals.
func Capture(site Site) Environment {
	var frames []Frame
	seen := make(map[*Scope]bool)

	module := site.Module
	if module == nil {
		switch {
		case site.Call != nil:
			module = site.Call.Module()
		case site.Declaration != nil:
			module = site.Declaration.Module()
		}
	}

	addChain := func(start *Scope, kind FrameKind, includeStart bool) {
		cur := start
		if cur != nil && !includeStart && cur.kind == KindClass {
			cur = cur.Parent()
		}
		for ; cur != nil; cur = cur.Parent() {
			if cur == module || cur.kind == KindModule || seen[cur] {
				continue
			}
			seen[cur] = true
			frames = append(frames, Frame{Kind: kind, Name: cur.path(), Vars: cur.snapshot()})
		}
	}

	addChain(site.Call, FrameLocal, false)
	addChain(site.Declaration, FrameDeclaration, true)

	if site.Instance != nil {
		vars := make(map[string]any, len(site.Instance))
		for k, v := range site.Instance {
			vars[k] = v
		}
		frames = append(frames, Frame{Kind: FrameInstance, Name: "self", Vars: vars})
	}
	if module != nil {
		frames = append(frames, Frame{Kind: FrameGlobal, Name: module.path(), Vars: module.snapshot()})
	}
	return Environment{frames: frames}
}
