package primitives

// ExecutableContent is the tagged-variant interface implemented by every
// <onentry>/<onexit>/transition-action element kind (C9, spec.md §4.6).
// Document-order execution of a block is then a simple iteration: the
// runner type-switches on the concrete variant.
type ExecutableContent interface {
	executableContent()
	Pos() Position
}

type base struct{ Position Position }

func (base) executableContent() {}
func (b base) Pos() Position    { return b.Position }

// Log is <log label="..." expr="..."/>.
type Log struct {
	base
	Label string
	Expr  string
}

// Raise is <raise event="..."/>.
type Raise struct {
	base
	Event string
}

// Assign is <assign location="..." expr="..."/>.
type Assign struct {
	base
	Location string
	Expr     string
}

// IfBranch is one arm of an <if>/<elseif>/<else> chain. Cond == "" marks
// the trailing <else> (if present); branches are evaluated in order and the
// first whose Cond is true (or which is the else arm) runs.
type IfBranch struct {
	Cond string
	Body []ExecutableContent
}

// If is the whole <if>/<elseif>*/<else>? chain as one executable-content
// element, preserving its position in the enclosing block.
type If struct {
	base
	Branches []IfBranch
}

// Param is a <param name="..." expr="..."/> or <param name="..." location="..."/>
// child of <send> or <invoke>.
type Param struct {
	Name     string
	Expr     string
	Location string
}

// Content is the <content> child of <send>/<invoke>: either an expression
// or literal inline text/XML.
type Content struct {
	Expr    string
	Literal string
}

// DoneData is a <final>'s <donedata> child: the payload carried by the
// done.state.<parent> event it causes (spec.md §11).
type DoneData struct {
	Params  []Param
	Content *Content
}

// Send is <send .../>.
type Send struct {
	base
	Event      string
	EventExpr  string
	Target     string
	TargetExpr string
	Type       string
	TypeExpr   string
	ID         string
	IDLocation string
	Delay      string
	DelayExpr  string
	Namelist   []string
	Params     []Param
	Content    *Content

	// DocumentOrder breaks ties between delayed sends with identical
	// deadlines (spec.md §5).
	DocumentOrder int
}

// Cancel is <cancel sendid="..."/> or <cancel sendidexpr="..."/>.
type Cancel struct {
	base
	SendID     string
	SendIDExpr string
}

// Invoke is <invoke type="..." src="..."> with <param>/<content> children,
// dispatched to a registered handler at the enclosing state's entry.
type Invoke struct {
	base
	Type       string
	TypeExpr   string
	Src        string
	SrcExpr    string
	ID          string
	IDLocation  string
	Autoforward bool
	Namelist    []string
	Params      []Param
	Content     *Content
	Finalize    []ExecutableContent
}
